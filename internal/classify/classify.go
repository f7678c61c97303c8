// Package classify scores free text for sentiment and maps it to a severity
// bucket and a crisis flag.
package classify

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mindlog-lab/mindlog/internal/model"
)

// MaxInputBytes bounds the text accepted for scoring.
const MaxInputBytes = 20000

// DefaultCrisisThreshold is the score below which a turn is treated as a
// crisis regardless of keywords.
const DefaultCrisisThreshold = -0.8

// DefaultCrisisKeywords are matched case-insensitively as substrings.
var DefaultCrisisKeywords = []string{
	"hurt myself",
	"end it",
	"end it all",
	"suicide",
	"suicidal",
	"kill myself",
	"killing myself",
	"don't want to live",
	"dont want to live",
	"no reason to live",
	"better off dead",
	"can't go on",
	"cant go on",
	"want to die",
	"wish i was dead",
	"take my life",
	"end my life",
}

var (
	ErrInvalidUTF8  = errors.New("text is not valid UTF-8")
	ErrInputTooLong = errors.New("text exceeds maximum length")
)

// InputError reports text that could not be scored. The Result returned
// alongside it is neutral apart from IsCrisis, which still reflects the
// keyword trigger.
type InputError struct {
	Err error
	Len int
}

func (e *InputError) Error() string {
	return fmt.Sprintf("classify input (%d bytes): %v", e.Len, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// Result is the classifier output for one turn.
type Result struct {
	SentimentScore float64        `json:"sentiment_score"`
	Severity       model.Severity `json:"severity_bucket"`
	IsCrisis       bool           `json:"is_crisis"`
}

// Neutral is the result used when input cannot be scored.
var Neutral = Result{SentimentScore: 0, Severity: model.SeverityMild}

// Classifier holds the crisis rules. It has no mutable state and is safe for
// concurrent use.
type Classifier struct {
	threshold float64
	keywords  []string
}

// New builds a classifier. Keywords are lowercased and blank entries are
// ignored; a nil list means no keyword trigger.
func New(threshold float64, keywords []string) *Classifier {
	c := &Classifier{threshold: threshold}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(normalizeApostrophes(k)))
		if k != "" {
			c.keywords = append(c.keywords, k)
		}
	}
	return c
}

// NewDefault builds a classifier with the default threshold and keywords.
func NewDefault() *Classifier {
	return New(DefaultCrisisThreshold, DefaultCrisisKeywords)
}

// Classify scores text. On malformed input it returns Neutral together with
// an *InputError; a crisis keyword in the readable part of the text still
// sets IsCrisis.
func (c *Classifier) Classify(text string) (Result, error) {
	if !utf8.ValidString(text) {
		return c.unscorable(text), &InputError{Err: ErrInvalidUTF8, Len: len(text)}
	}
	if len(text) > MaxInputBytes {
		return c.unscorable(text), &InputError{Err: ErrInputTooLong, Len: len(text)}
	}

	score := Score(text)
	return Result{
		SentimentScore: score,
		Severity:       model.SeverityFor(score),
		IsCrisis:       c.IsCrisis(text, score),
	}, nil
}

// unscorable is the fallback for text that cannot be scored. Only the first
// and last MaxInputBytes are searched for keywords.
func (c *Classifier) unscorable(text string) Result {
	res := Neutral
	if len(text) > 2*MaxInputBytes {
		text = text[:MaxInputBytes] + "\n" + text[len(text)-MaxInputBytes:]
	}
	res.IsCrisis = c.MatchKeyword(strings.ToValidUTF8(text, " ")) != ""
	return res
}

// IsCrisis applies the two independent triggers: a score below the
// threshold, or a keyword match.
func (c *Classifier) IsCrisis(text string, score float64) bool {
	if score < c.threshold {
		return true
	}
	return c.MatchKeyword(text) != ""
}

// MatchKeyword returns the first crisis keyword found in text, or "".
func (c *Classifier) MatchKeyword(text string) string {
	lower := strings.ToLower(normalizeApostrophes(text))
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			return k
		}
	}
	return ""
}

// Threshold returns the crisis score threshold.
func (c *Classifier) Threshold() float64 { return c.threshold }
