// Package predict routes a feature vector to a trained model variant, runs
// multi-horizon inference and scores confidence, degrading to a deterministic
// heuristic when no artifact is available.
package predict

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/researchaccelerator-hub/viewcast/feature"
	"github.com/researchaccelerator-hub/viewcast/model"
)

// Horizon keys used in artifact files and results.
const (
	Horizon24h = "24h"
	Horizon7d  = "7d"
	Horizon30d = "30d"
)

var horizons = []string{Horizon24h, Horizon7d, Horizon30d}

// LinearModel is one horizon's trained weights over the feature schema.
type LinearModel struct {
	Bias    float64   `json:"bias"`
	Weights []float64 `json:"weights"`
}

// Artifact is a trained model variant loaded from disk. Artifacts are
// produced by the offline training pipeline and consumed read-only here.
type Artifact struct {
	Variant       model.ModelVariant     `json:"variant"`
	FeatureSchema []string               `json:"feature_schema"`
	Horizons      map[string]LinearModel `json:"horizons"`
}

// Score runs the named horizon's linear model over the vector, floored at 0.
func (a *Artifact) Score(horizon string, values []float64) float64 {
	lm, ok := a.Horizons[horizon]
	if !ok {
		return 0
	}
	sum := lm.Bias
	for i, w := range lm.Weights {
		sum += w * values[i]
	}
	if sum < 0 {
		return 0
	}
	return sum
}

// LoadArtifact reads the variant's artifact from dir. A missing file maps to
// ErrModelUnavailable so callers can degrade; a file that exists but cannot
// be decoded or does not match the feature schema is a hard error, since
// serving stale or misaligned weights is worse than falling back.
func LoadArtifact(dir string, variant model.ModelVariant) (*Artifact, error) {
	path := filepath.Join(dir, string(variant)+".json")

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("artifact %s: %w", path, model.ErrModelUnavailable)
		}
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}

	var art Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("corrupt artifact %s: %w", path, err)
	}
	if err := art.validate(variant); err != nil {
		return nil, fmt.Errorf("corrupt artifact %s: %w", path, err)
	}
	return &art, nil
}

func (a *Artifact) validate(want model.ModelVariant) error {
	if a.Variant != want {
		return fmt.Errorf("variant mismatch: file says %q, expected %q", a.Variant, want)
	}
	if len(a.FeatureSchema) != feature.Size() {
		return fmt.Errorf("feature schema has %d entries, expected %d", len(a.FeatureSchema), feature.Size())
	}
	for i, name := range feature.Schema() {
		if a.FeatureSchema[i] != name {
			return fmt.Errorf("feature schema diverges at position %d: %q", i, a.FeatureSchema[i])
		}
	}
	for _, h := range horizons {
		lm, ok := a.Horizons[h]
		if !ok {
			return fmt.Errorf("missing horizon %q", h)
		}
		if len(lm.Weights) != feature.Size() {
			return fmt.Errorf("horizon %q has %d weights, expected %d", h, len(lm.Weights), feature.Size())
		}
	}
	return nil
}
