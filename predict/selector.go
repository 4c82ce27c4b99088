package predict

import (
	"github.com/researchaccelerator-hub/viewcast/feature"
	"github.com/researchaccelerator-hub/viewcast/model"
)

// SelectVariant routes a feature vector to a trained variant. Classification
// is carried by the short-form feature, so the router and the extractor can
// never disagree about a video's content type.
func SelectVariant(fv model.FeatureVector) model.ModelVariant {
	idx := feature.Index(feature.IsShortForm)
	if idx >= 0 && idx < len(fv.Values) && fv.Values[idx] >= 0.5 {
		return model.VariantShortForm
	}
	return model.VariantLongForm
}
