package predict

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/researchaccelerator-hub/viewcast/config"
	"github.com/researchaccelerator-hub/viewcast/feature"
	"github.com/researchaccelerator-hub/viewcast/model"
)

// Trained-model predictions never report a confidence below this floor. The
// heuristic estimator sits below it so callers can always rank the two.
const modelConfidenceFloor = 0.25

// stage tracks a prediction request through its pipeline. Degrading to the
// heuristic is a modeled transition, reachable from any stage before done.
type stage int

const (
	stageIdle stage = iota
	stageFeaturesExtracted
	stageModelSelected
	stageInferred
	stageConfidenced
	stageDone
	stageFallback
)

// outcome is the explicit result code threaded through a request; it decides
// whether the trained path completes or the heuristic takes over.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeExtractionFailed
	outcomeModelUnavailable
)

type request struct {
	stage stage
}

// advance moves the request one stage forward, or into fallback. It reports
// whether the transition was legal; the pipeline below only ever issues
// legal ones.
func (r *request) advance(next stage) bool {
	switch {
	case next == r.stage+1 && r.stage < stageDone:
	case next == stageFallback && r.stage < stageDone:
	case next == stageDone && r.stage == stageFallback:
	default:
		return false
	}
	r.stage = next
	return true
}

// Engine runs the full prediction pipeline: extract features, select a
// trained variant, infer the three horizons and score confidence. Artifacts
// are loaded once at construction; a missing artifact only narrows the
// trained path, a corrupt one refuses to start.
type Engine struct {
	cfg       config.PredictionConfig
	extractor *feature.Extractor
	artifacts map[model.ModelVariant]*Artifact
	fallback  *Fallback
	now       func() time.Time
}

// NewEngine loads the trained artifacts from the configured directory and
// wires the heuristic estimator behind them.
func NewEngine(cfg config.PredictionConfig, extractor *feature.Extractor) (*Engine, error) {
	artifacts := make(map[model.ModelVariant]*Artifact, 2)
	for _, variant := range []model.ModelVariant{model.VariantShortForm, model.VariantLongForm} {
		art, err := LoadArtifact(cfg.ArtifactDir, variant)
		if err != nil {
			if errors.Is(err, model.ErrModelUnavailable) {
				log.Warn().Str("variant", string(variant)).
					Msg("Model artifact absent, requests for this variant will use the heuristic estimator")
				continue
			}
			return nil, err
		}
		artifacts[variant] = art
	}

	return &Engine{
		cfg:       cfg,
		extractor: extractor,
		artifacts: artifacts,
		fallback:  NewFallback(cfg.FallbackConfidence),
		now:       time.Now,
	}, nil
}

// Predict forecasts the three horizons for a video. It never fails the
// request: extraction errors and absent artifacts degrade to the heuristic
// estimator, distinguishable by the result's variant tag and low confidence.
func (e *Engine) Predict(video *model.Video, channel *model.Channel, recent []*model.Snapshot) model.PredictionResult {
	req := &request{}

	fv, err := e.extractor.Extract(video, channel, recent)
	if err != nil {
		log.Warn().Err(err).Msg("Feature extraction failed, degrading to heuristic estimator")
		return e.degrade(req, fv, outcomeExtractionFailed)
	}
	req.advance(stageFeaturesExtracted)

	variant := SelectVariant(fv)
	artifact, ok := e.artifacts[variant]
	if !ok {
		return e.degrade(req, fv, outcomeModelUnavailable)
	}
	req.advance(stageModelSelected)

	h24 := artifact.Score(Horizon24h, fv.Values)
	h7 := artifact.Score(Horizon7d, fv.Values)
	h30 := artifact.Score(Horizon30d, fv.Values)
	req.advance(stageInferred)

	conf := e.confidence(fv, h24, h7, h30)
	req.advance(stageConfidenced)

	result := model.PredictionResult{
		Horizon24h:   h24,
		Horizon7d:    h7,
		Horizon30d:   h30,
		Confidence:   conf,
		ModelVariant: variant,
		GeneratedAt:  e.now(),
	}
	req.advance(stageDone)
	return result
}

func (e *Engine) degrade(req *request, fv model.FeatureVector, why outcome) model.PredictionResult {
	req.advance(stageFallback)
	if why == outcomeModelUnavailable {
		log.Debug().Msg("No trained artifact for selected variant, using heuristic estimator")
	}
	result := e.fallback.Estimate(fv, e.now())
	req.advance(stageDone)
	return result
}

// confidence blends feature completeness with cross-horizon consistency,
// clamped to [0,1] and floored for trained-model output.
func (e *Engine) confidence(fv model.FeatureVector, h24, h7, h30 float64) float64 {
	conf := e.cfg.CompletenessWeight*fv.Completeness() + e.cfg.ConsistencyWeight*consistency(h24, h7, h30)
	if conf > 1 {
		conf = 1
	}
	if conf < modelConfidenceFloor {
		conf = modelConfidenceFloor
	}
	return conf
}

// consistency measures how close the horizon sequence is to monotonically
// non-decreasing: each drop between adjacent horizons subtracts its relative
// magnitude from a perfect 1.
func consistency(h24, h7, h30 float64) float64 {
	score := 1 - relativeDrop(h24, h7) - relativeDrop(h7, h30)
	if score < 0 {
		return 0
	}
	return score
}

func relativeDrop(earlier, later float64) float64 {
	if later >= earlier {
		return 0
	}
	denom := earlier
	if denom < 1 {
		denom = 1
	}
	return (earlier - later) / denom
}
