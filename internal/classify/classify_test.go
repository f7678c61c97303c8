package classify_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/mindlog-lab/mindlog/internal/classify"
	"github.com/mindlog-lab/mindlog/internal/model"
)

func TestClassify_HappyInput(t *testing.T) {
	c := classify.NewDefault()

	res, err := c.Classify("I feel happy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SentimentScore <= 0 {
		t.Errorf("expected positive score, got %f", res.SentimentScore)
	}
	if res.Severity != model.SeverityMild {
		t.Errorf("got severity %s, want mild", res.Severity)
	}
	if res.IsCrisis {
		t.Error("expected no crisis for happy input")
	}
}

func TestClassify_CrisisKeyword(t *testing.T) {
	c := classify.NewDefault()

	res, err := c.Classify("I want to hurt myself")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsCrisis {
		t.Fatal("expected crisis for self-harm input")
	}
	// The keyword fires even though the score alone is above the threshold.
	if res.SentimentScore < classify.DefaultCrisisThreshold {
		t.Errorf("expected score above threshold, got %f", res.SentimentScore)
	}
}

func TestClassify_KeywordTriggers(t *testing.T) {
	c := classify.NewDefault()

	crisis := []string{
		"I want to end it all",
		"thinking about suicide",
		"I don't want to live anymore",
		"I don’t want to live anymore", // curly apostrophe
		"I WANT TO DIE",
		"everyone would be better off dead without me",
	}
	for _, text := range crisis {
		res, _ := c.Classify(text)
		if !res.IsCrisis {
			t.Errorf("expected crisis for %q", text)
		}
	}

	calm := []string{
		"I'm feeling sad today",
		"Work is stressful",
		"Just wanted to check in on my mental health",
	}
	for _, text := range calm {
		res, _ := c.Classify(text)
		if res.IsCrisis {
			t.Errorf("expected no crisis for %q (score %f)", text, res.SentimentScore)
		}
	}
}

func TestIsCrisis_SentimentThreshold(t *testing.T) {
	c := classify.NewDefault()

	if !c.IsCrisis("anything", -0.85) {
		t.Error("expected crisis below threshold")
	}
	if !c.IsCrisis("test", -0.9) {
		t.Error("expected crisis below threshold")
	}
	if c.IsCrisis("test", -0.7) {
		t.Error("expected no crisis above threshold")
	}
	if c.IsCrisis("test", -0.8) {
		t.Error("threshold itself is not a crisis")
	}
}

func TestClassify_VeryNegativeTextIsCrisis(t *testing.T) {
	c := classify.NewDefault()

	res, err := c.Classify("hopeless worthless miserable and depressed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SentimentScore >= -0.8 {
		t.Fatalf("expected score below -0.8, got %f", res.SentimentScore)
	}
	if res.Severity != model.SeveritySevere {
		t.Errorf("got severity %s, want severe", res.Severity)
	}
	if !res.IsCrisis {
		t.Error("expected crisis from sentiment alone")
	}
}

func TestClassify_CustomRules(t *testing.T) {
	c := classify.New(-0.95, []string{"  Give Up  ", ""})

	res, _ := c.Classify("i might just give up")
	if !res.IsCrisis {
		t.Error("expected custom keyword to trigger")
	}

	res, _ = c.Classify("I want to hurt myself")
	if res.IsCrisis {
		t.Error("default keywords should not apply to a custom classifier")
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := classify.NewDefault()
	inputs := []string{
		"",
		"I feel happy",
		"I feel terrible and hopeless",
		"Nothing brings me joy anymore",
		"I am SO tired of everything!!",
	}

	for _, text := range inputs {
		first, err1 := c.Classify(text)
		second, err2 := c.Classify(text)
		if first != second || (err1 == nil) != (err2 == nil) {
			t.Errorf("classify(%q) not deterministic: %+v vs %+v", text, first, second)
		}
	}
}

func TestClassify_InvalidInputIsNeutral(t *testing.T) {
	c := classify.NewDefault()

	tests := []struct {
		name string
		text string
		want error
	}{
		{"invalid utf8", string([]byte{0xff, 0xfe, 0xfd}), classify.ErrInvalidUTF8},
		{"too long", strings.Repeat("sad ", classify.MaxInputBytes), classify.ErrInputTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Classify(tt.text)

			var inputErr *classify.InputError
			if !errors.As(err, &inputErr) {
				t.Fatalf("expected InputError, got %v", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if res != classify.Neutral {
				t.Errorf("expected neutral result, got %+v", res)
			}
		})
	}
}

func TestClassify_EmptyIsNeutral(t *testing.T) {
	c := classify.NewDefault()

	res, err := c.Classify("   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != classify.Neutral {
		t.Errorf("expected neutral result, got %+v", res)
	}
}

func TestClassify_KeywordSurvivesInvalidInput(t *testing.T) {
	c := classify.NewDefault()

	tests := []struct {
		name   string
		text   string
		want   error
		crisis bool
	}{
		{"invalid utf8 with keyword", "I want to kill myself \xff", classify.ErrInvalidUTF8, true},
		{"invalid utf8 inside text", "please \xfe help, I want to die", classify.ErrInvalidUTF8, true},
		{"too long with keyword at end", strings.Repeat("a ", 10001) + "I want to kill myself", classify.ErrInputTooLong, true},
		{"too long with keyword at start", "I want to end my life " + strings.Repeat("b ", 3*classify.MaxInputBytes), classify.ErrInputTooLong, true},
		{"invalid utf8 without keyword", "tired \xff", classify.ErrInvalidUTF8, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Classify(tt.text)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if res.IsCrisis != tt.crisis {
				t.Errorf("IsCrisis = %v, want %v", res.IsCrisis, tt.crisis)
			}
			if res.SentimentScore != 0 || res.Severity != model.SeverityMild {
				t.Errorf("expected neutral score and severity, got %+v", res)
			}
		})
	}
}
