package classify

import (
	"math"
	"strings"

	"github.com/jonreiter/govader"
)

// analyzer holds the VADER lexicon. It is only read after construction, so
// one instance serves every goroutine.
var analyzer = govader.NewSentimentIntensityAnalyzer()

// Score returns the VADER compound valence of text in [-1, 1], rounded to
// four decimals. Text with no sentiment-bearing words scores 0.
func Score(text string) float64 {
	text = strings.TrimSpace(normalizeApostrophes(text))
	if text == "" {
		return 0
	}
	compound := analyzer.PolarityScores(text).Compound
	return round4(math.Max(-1, math.Min(1, compound)))
}

func normalizeApostrophes(s string) string {
	return strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'").Replace(s)
}

func round4(v float64) float64 {
	r := math.Round(v*1e4) / 1e4
	if r == 0 {
		return 0 // no negative zero
	}
	return r
}
