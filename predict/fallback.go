package predict

import (
	"time"

	"github.com/researchaccelerator-hub/viewcast/feature"
	"github.com/researchaccelerator-hub/viewcast/model"
)

// Heuristic baselines. Short-form clips spread faster early but the gap
// narrows over longer horizons, which the shared horizon multipliers absorb.
const (
	fallbackBaseShortForm = 5000.0
	fallbackBaseLongForm  = 1500.0

	fallbackPrimeTimeBoost = 1.2

	fallbackHorizon7dFactor  = 2.5
	fallbackHorizon30dFactor = 4.0
)

// Fallback is the deterministic estimator used when no trained artifact can
// serve a request. It produces the same three-horizon shape as the engine;
// only the fixed low confidence and the variant tag distinguish its output.
type Fallback struct {
	confidence float64
}

// NewFallback builds the heuristic estimator with the configured confidence.
func NewFallback(confidence float64) *Fallback {
	return &Fallback{confidence: confidence}
}

// Estimate derives a forecast from the content-type, authority and
// prime-time features alone.
func (f *Fallback) Estimate(fv model.FeatureVector, generatedAt time.Time) model.PredictionResult {
	base := fallbackBaseLongForm
	if featureAt(fv, feature.IsShortForm) >= 0.5 {
		base = fallbackBaseShortForm
	}

	base *= 1 + featureAt(fv, feature.AuthorityScore)
	if featureAt(fv, feature.IsPrimeTime) >= 0.5 {
		base *= fallbackPrimeTimeBoost
	}

	return model.PredictionResult{
		Horizon24h:   base,
		Horizon7d:    base * fallbackHorizon7dFactor,
		Horizon30d:   base * fallbackHorizon30dFactor,
		Confidence:   f.confidence,
		ModelVariant: model.VariantFallback,
		GeneratedAt:  generatedAt,
	}
}

func featureAt(fv model.FeatureVector, name string) float64 {
	idx := feature.Index(name)
	if idx < 0 || idx >= len(fv.Values) {
		return 0
	}
	return fv.Values[idx]
}
