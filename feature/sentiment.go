package feature

import "strings"

// Minimal polarity lexicon. Extraction must stay a pure function, so the
// lexicon is embedded rather than served by an external NLP API.
var positiveWords = map[string]struct{}{
	"amazing": {}, "awesome": {}, "best": {}, "beautiful": {}, "epic": {},
	"excellent": {}, "fantastic": {}, "fun": {}, "good": {}, "great": {},
	"happy": {}, "incredible": {}, "love": {}, "perfect": {}, "top": {},
	"viral": {}, "win": {}, "wonderful": {}, "wow": {},
}

var negativeWords = map[string]struct{}{
	"angry": {}, "awful": {}, "bad": {}, "boring": {}, "broken": {},
	"fail": {}, "hate": {}, "horrible": {}, "sad": {}, "scam": {},
	"terrible": {}, "ugly": {}, "worst": {}, "wrong": {},
}

// polarity scores text in [-1, 1] from the balance of lexicon hits.
func polarity(text string) float64 {
	if text == "" {
		return 0
	}

	var pos, neg int
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?:;\"'()[]{}")
		if _, ok := positiveWords[word]; ok {
			pos++
		}
		if _, ok := negativeWords[word]; ok {
			neg++
		}
	}

	total := pos + neg
	if total == 0 {
		return 0
	}
	return float64(pos-neg) / float64(total)
}
