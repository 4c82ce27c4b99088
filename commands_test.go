package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	cmd := newRootCommand()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"collect", "discover", "track", "predict", "quota"} {
		assert.Contains(t, names, want)
	}

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("verbose"))
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Metric", "Value"}, [][]string{{"Harvested", "12"}}, 1)
	assert.True(t, strings.Contains(out, "Harvested"))
	assert.True(t, strings.Contains(out, "12"))

	assert.Empty(t, renderTable(nil, nil))
}

func TestBuildAppRequiresConfig(t *testing.T) {
	_, err := buildApp("/nonexistent/viewcast.yaml")
	assert.Error(t, err)
}
