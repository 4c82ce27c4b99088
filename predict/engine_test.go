package predict

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchaccelerator-hub/viewcast/config"
	"github.com/researchaccelerator-hub/viewcast/feature"
	"github.com/researchaccelerator-hub/viewcast/model"
)

func writeArtifact(t *testing.T, dir string, variant model.ModelVariant, biases map[string]float64) {
	t.Helper()

	art := Artifact{
		Variant:       variant,
		FeatureSchema: feature.Schema(),
		Horizons:      make(map[string]LinearModel, len(biases)),
	}
	for h, bias := range biases {
		art.Horizons[h] = LinearModel{Bias: bias, Weights: make([]float64, feature.Size())}
	}

	raw, err := json.Marshal(art)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, string(variant)+".json"), raw, 0o644))
}

func testEngine(t *testing.T, artifactDir string) *Engine {
	t.Helper()

	cfg := config.Default().Prediction
	cfg.ArtifactDir = artifactDir
	extractor := feature.NewExtractor(config.Default().Features, []string{"eng"})
	engine, err := NewEngine(cfg, extractor)
	require.NoError(t, err)
	return engine
}

func shortVideo() *model.Video {
	return &model.Video{
		ID:          "vid1",
		ChannelID:   "UCchan",
		Title:       "A quick one",
		PublishedAt: time.Date(2026, 8, 15, 20, 0, 0, 0, time.UTC),
		DurationSec: 45,
		CategoryID:  "22",
	}
}

func longVideo() *model.Video {
	v := shortVideo()
	v.ID = "vid2"
	v.DurationSec = 900
	return v
}

func TestPredictRoutesShortFormByDuration(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, model.VariantShortForm, map[string]float64{
		Horizon24h: 100, Horizon7d: 200, Horizon30d: 300,
	})
	writeArtifact(t, dir, model.VariantLongForm, map[string]float64{
		Horizon24h: 10, Horizon7d: 20, Horizon30d: 30,
	})
	engine := testEngine(t, dir)

	res := engine.Predict(shortVideo(), nil, nil)
	assert.Equal(t, model.VariantShortForm, res.ModelVariant)
	assert.Equal(t, 100.0, res.Horizon24h)

	res = engine.Predict(longVideo(), nil, nil)
	assert.Equal(t, model.VariantLongForm, res.ModelVariant)
	assert.Equal(t, 10.0, res.Horizon24h)
}

func TestPredictFallsBackWhenArtifactAbsent(t *testing.T) {
	dir := t.TempDir()
	// Only the short-form artifact exists.
	writeArtifact(t, dir, model.VariantShortForm, map[string]float64{
		Horizon24h: 100, Horizon7d: 200, Horizon30d: 300,
	})
	engine := testEngine(t, dir)

	res := engine.Predict(longVideo(), nil, nil)
	assert.Equal(t, model.VariantFallback, res.ModelVariant)
	assert.Equal(t, config.Default().Prediction.FallbackConfidence, res.Confidence)
	assert.False(t, res.GeneratedAt.IsZero())
}

func TestPredictFallsBackOnExtractionFailure(t *testing.T) {
	engine := testEngine(t, t.TempDir())

	video := shortVideo()
	video.PublishedAt = time.Time{}
	res := engine.Predict(video, nil, nil)
	assert.Equal(t, model.VariantFallback, res.ModelVariant)
}

func TestFallbackShapeMatchesModelOutput(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, model.VariantShortForm, map[string]float64{
		Horizon24h: 100, Horizon7d: 200, Horizon30d: 300,
	})
	engine := testEngine(t, dir)

	modeled := engine.Predict(shortVideo(), nil, nil)
	heuristic := engine.Predict(longVideo(), nil, nil)

	for _, res := range []model.PredictionResult{modeled, heuristic} {
		assert.GreaterOrEqual(t, res.Horizon24h, 0.0)
		assert.GreaterOrEqual(t, res.Horizon7d, 0.0)
		assert.GreaterOrEqual(t, res.Horizon30d, 0.0)
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
		assert.False(t, res.GeneratedAt.IsZero())
	}

	// The heuristic never outranks a trained model.
	assert.Less(t, heuristic.Confidence, modeled.Confidence)
	assert.Less(t, heuristic.Confidence, modelConfidenceFloor)
}

func TestPredictFloorsHorizonsAtZero(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, model.VariantShortForm, map[string]float64{
		Horizon24h: -500, Horizon7d: 200, Horizon30d: 300,
	})
	engine := testEngine(t, dir)

	res := engine.Predict(shortVideo(), nil, nil)
	assert.Equal(t, 0.0, res.Horizon24h)
}

func TestNewEngineRejectsCorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, string(model.VariantShortForm)+".json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	cfg := config.Default().Prediction
	cfg.ArtifactDir = dir
	extractor := feature.NewExtractor(config.Default().Features, []string{"eng"})
	_, err := NewEngine(cfg, extractor)
	assert.Error(t, err)
}

func TestNewEngineRejectsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	art := Artifact{
		Variant:       model.VariantShortForm,
		FeatureSchema: []string{"wrong"},
		Horizons: map[string]LinearModel{
			Horizon24h: {}, Horizon7d: {}, Horizon30d: {},
		},
	}
	raw, err := json.Marshal(art)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, string(model.VariantShortForm)+".json"), raw, 0o644))

	cfg := config.Default().Prediction
	cfg.ArtifactDir = dir
	_, err = NewEngine(cfg, feature.NewExtractor(config.Default().Features, nil))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrModelUnavailable))
}

func TestLoadArtifactMissingIsUnavailable(t *testing.T) {
	_, err := LoadArtifact(t.TempDir(), model.VariantShortForm)
	assert.ErrorIs(t, err, model.ErrModelUnavailable)
}

func TestSelectVariant(t *testing.T) {
	fv := model.FeatureVector{Values: make([]float64, feature.Size())}
	assert.Equal(t, model.VariantLongForm, SelectVariant(fv))

	fv.Values[feature.Index(feature.IsShortForm)] = 1
	assert.Equal(t, model.VariantShortForm, SelectVariant(fv))
}

func TestConsistency(t *testing.T) {
	assert.InDelta(t, 1.0, consistency(100, 200, 300), 1e-9)
	assert.InDelta(t, 1.0, consistency(100, 100, 100), 1e-9)
	// One drop of half the earlier value costs 0.5.
	assert.InDelta(t, 0.5, consistency(100, 50, 60), 1e-9)
	assert.Equal(t, 0.0, consistency(100, 0, 0))
}

func TestFallbackEstimate(t *testing.T) {
	fb := NewFallback(0.2)

	fv := model.FeatureVector{Values: make([]float64, feature.Size())}
	res := fb.Estimate(fv, time.Now())
	assert.Equal(t, fallbackBaseLongForm, res.Horizon24h)
	assert.Equal(t, res.Horizon24h*fallbackHorizon7dFactor, res.Horizon7d)
	assert.Equal(t, res.Horizon24h*fallbackHorizon30dFactor, res.Horizon30d)

	fv.Values[feature.Index(feature.IsShortForm)] = 1
	fv.Values[feature.Index(feature.AuthorityScore)] = 0.5
	fv.Values[feature.Index(feature.IsPrimeTime)] = 1
	res = fb.Estimate(fv, time.Now())
	assert.InDelta(t, fallbackBaseShortForm*1.5*fallbackPrimeTimeBoost, res.Horizon24h, 1e-9)
	assert.Equal(t, model.VariantFallback, res.ModelVariant)
	assert.Equal(t, 0.2, res.Confidence)
}

func TestRequestStageTransitions(t *testing.T) {
	req := &request{}
	assert.True(t, req.advance(stageFeaturesExtracted))
	assert.True(t, req.advance(stageModelSelected))
	assert.False(t, req.advance(stageDone)) // cannot skip inference
	assert.True(t, req.advance(stageInferred))
	assert.True(t, req.advance(stageConfidenced))
	assert.True(t, req.advance(stageDone))
	assert.False(t, req.advance(stageFallback)) // done is terminal

	req = &request{}
	assert.True(t, req.advance(stageFeaturesExtracted))
	assert.True(t, req.advance(stageFallback))
	assert.True(t, req.advance(stageDone))
}
