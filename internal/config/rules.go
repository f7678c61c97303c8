package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mindlog-lab/mindlog/internal/classify"
	"github.com/mindlog-lab/mindlog/internal/experiment"
	"github.com/mindlog-lab/mindlog/internal/model"
)

// DefaultReferralSource replaces any referral source outside the whitelist.
const DefaultReferralSource = "direct"

// Rules is the reviewable triage configuration: crisis triggers, the crisis
// resources and the response scripts.
type Rules struct {
	CrisisThreshold float64                                     `yaml:"crisis_threshold"`
	CrisisKeywords  []string                                    `yaml:"crisis_keywords"`
	CrisisMessage   string                                      `yaml:"crisis_message"`
	Responses       map[model.Variant]map[model.Severity]string `yaml:"responses"`
	ReferralSources []string                                    `yaml:"referral_sources"`
}

// DefaultRules returns the built-in rules.
func DefaultRules() *Rules {
	return &Rules{
		CrisisThreshold: classify.DefaultCrisisThreshold,
		CrisisKeywords:  append([]string(nil), classify.DefaultCrisisKeywords...),
		CrisisMessage:   experiment.DefaultCrisisMessage,
		Responses:       experiment.DefaultResponses(),
		ReferralSources: []string{
			"google_search", "facebook_ads", "instagram_ads", "direct",
			"referral", "email_campaign", "tiktok_ads", "organic", "other",
		},
	}
}

// LoadRules reads a YAML rules file over the defaults. An empty path returns
// the defaults. Lists in the file replace the default lists, and a variant
// listed under responses replaces that variant's whole row.
func LoadRules(path string) (*Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	return rules, nil
}

// Validate checks the rules are usable. A gap in the response table is a
// *experiment.ConfigurationError.
func (r *Rules) Validate() error {
	var problems []string

	if r.CrisisThreshold < -1 || r.CrisisThreshold > 1 {
		problems = append(problems, fmt.Sprintf("crisis_threshold %v outside [-1, 1]", r.CrisisThreshold))
	}
	if strings.TrimSpace(r.CrisisMessage) == "" {
		problems = append(problems, "crisis_message is required")
	}
	for v, row := range r.Responses {
		if !v.Valid() {
			problems = append(problems, fmt.Sprintf("unknown variant %q in responses", v))
		}
		for s := range row {
			if !s.Valid() {
				problems = append(problems, fmt.Sprintf("unknown severity %q in responses", s))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid rules: %s", strings.Join(problems, "; "))
	}

	if _, err := r.ResponseTable(); err != nil {
		return err
	}
	return nil
}

// ResponseTable builds the validated response lookup.
func (r *Rules) ResponseTable() (*experiment.ResponseTable, error) {
	return experiment.NewResponseTable(r.Responses)
}

// Classifier builds a classifier from the crisis triggers.
func (r *Rules) Classifier() *classify.Classifier {
	return classify.New(r.CrisisThreshold, r.CrisisKeywords)
}

// NormalizeReferral returns source if it is whitelisted, otherwise
// DefaultReferralSource.
func (r *Rules) NormalizeReferral(source string) string {
	source = strings.TrimSpace(source)
	for _, allowed := range r.ReferralSources {
		if source != "" && source == allowed {
			return source
		}
	}
	return DefaultReferralSource
}

// IsConfigurationError reports whether err is a response table gap.
func IsConfigurationError(err error) bool {
	var cerr *experiment.ConfigurationError
	return errors.As(err, &cerr)
}
