package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mindlog-lab/mindlog/internal/model"
	"github.com/mindlog-lab/mindlog/internal/stats"
	"github.com/mindlog-lab/mindlog/internal/store"
)

var resultsFormat string

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Show experiment results",
	Long: `Show per-arm conversion rates with Wilson intervals, the relative lift,
the one-tailed z-test and the recommendation, followed by the funnel and the
severity segments.

Examples:
  mindlog results
  mindlog results --format json`,
	Args: cobra.NoArgs,
	RunE: runResults,
}

func init() {
	resultsCmd.Flags().StringVarP(&resultsFormat, "format", "f", "text", "output format (text or json)")
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	if resultsFormat != "text" && resultsFormat != "json" {
		return fmt.Errorf("invalid format: must be 'text' or 'json'")
	}

	return withStore(func(s store.Store) error {
		summary, err := stats.FromStore(context.Background(), s, store.Filter{})
		if err != nil {
			return fmt.Errorf("failed to summarize events: %w", err)
		}

		if resultsFormat == "json" {
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(summary)
		}
		printResults(cmd.OutOrStdout(), summary)
		return nil
	})
}

func printResults(w io.Writer, s *stats.Summary) {
	fmt.Fprintf(w, "SESSIONS: %s (%s excluded by crisis protocol)\n",
		humanize.Comma(int64(s.Funnel.TotalSessions)),
		humanize.Comma(int64(s.Funnel.CrisisExcluded)),
	)
	fmt.Fprintf(w, "EVENTS:   %s\n", humanize.Comma(int64(s.Funnel.TotalEvents)))
	fmt.Fprintln(w)

	// Print table header
	fmt.Fprintf(w, "%-16s  %-8s  %-11s  %-7s  %s\n", "VARIANT", "SESSIONS", "CONVERSIONS", "RATE", "95% CI")
	fmt.Fprintln(w, strings.Repeat("─", 64))

	for _, arm := range model.Variants {
		v := s.Variant(arm)
		name := fmt.Sprintf("%s (%s)", v.Variant, v.Label)
		ci := v.CI.Percent(1)
		if v.Status == stats.StatusInsufficientData {
			ci = "insufficient data"
		}
		fmt.Fprintf(w, "%-16s  %-8s  %-11s  %-7s  %s\n",
			name,
			humanize.Comma(int64(v.Sessions)),
			humanize.Comma(int64(v.Conversions)),
			v.Rate.Percent(1),
			ci,
		)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Relative lift: %s %s\n", signedPercent(s.Lift), s.LiftCI.Percent(1))
	fmt.Fprintf(w, "z = %s, p = %s (one-tailed, B > A)\n", formatValue(s.ZStatistic, 3), formatValue(s.PValue, 4))
	fmt.Fprintf(w, "Recommendation: %s\n", s.Recommendation)
	fmt.Fprintln(w, recommendationText(s.Recommendation))
	fmt.Fprintln(w)

	f := s.Funnel
	fmt.Fprintln(w, "FUNNEL")
	fmt.Fprintf(w, "  eligible   %s\n", humanize.Comma(int64(f.EligibleSessions)))
	fmt.Fprintf(w, "  decided    %s\n", humanize.Comma(int64(f.Decisions)))
	fmt.Fprintf(w, "  converted  %s\n", humanize.Comma(int64(f.Conversions)))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SEGMENTS")
	for _, seg := range s.Segments {
		if seg.Sessions == 0 {
			continue
		}
		fmt.Fprintf(w, "  %s/%-8s  %s of %s  %s\n",
			seg.Variant,
			seg.Severity,
			humanize.Comma(int64(seg.Conversions)),
			humanize.Comma(int64(seg.Sessions)),
			seg.Rate.Percent(1),
		)
	}
}

func formatValue(v stats.Value, decimals int) string {
	x, ok := v.Get()
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.*f", decimals, x)
}

func signedPercent(v stats.Value) string {
	x, ok := v.Get()
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f%%", x*100)
}

func recommendationText(r stats.Recommendation) string {
	switch r {
	case stats.SignificantPositive:
		return fmt.Sprintf("The %s arm converts better and the lift interval is above zero.", model.VariantB.Label())
	case stats.SignificantInconclusiveDirection:
		return "The test is significant but the lift interval includes zero. Keep collecting data."
	default:
		return "No significant difference yet. Keep collecting data."
	}
}
