package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mindlog-lab/mindlog/internal/model"
	"github.com/mindlog-lab/mindlog/internal/store"
)

var (
	exportFormat   string
	exportSession  string
	exportEligible bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export raw event data",
	Long: `Export the interaction log in CSV or JSON format.

Examples:
  mindlog export --format csv > events.csv
  mindlog export --format json --eligible > experiment.json`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	exportCmd.Flags().StringVar(&exportSession, "session", "", "only export one session")
	exportCmd.Flags().BoolVar(&exportEligible, "eligible", false, "skip events excluded by the crisis protocol")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withStore(func(s store.Store) error {
		events, err := s.Query(context.Background(), store.Filter{
			SessionID:    exportSession,
			EligibleOnly: exportEligible,
		})
		if err != nil {
			return fmt.Errorf("failed to get events: %w", err)
		}

		if exportFormat == "csv" {
			return exportCSV(cmd.OutOrStdout(), events)
		}
		return exportJSON(cmd.OutOrStdout(), events)
	})
}

var csvHeader = []string{
	"id", "session_id", "timestamp", "input_text", "sentiment_score", "severity_bucket",
	"assigned_variant", "response_time_ms", "time_to_decision_ms", "session_depth",
	"converted", "exclusion_reason", "referral_source",
}

func exportCSV(out io.Writer, events []*model.InteractionEvent) error {
	w := csv.NewWriter(out)

	// Write header
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Write rows
	for _, e := range events {
		ttd := ""
		if e.TimeToDecisionMs != nil {
			ttd = strconv.FormatInt(*e.TimeToDecisionMs, 10)
		}
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.SessionID,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.InputText,
			strconv.FormatFloat(e.SentimentScore, 'f', 4, 64),
			string(e.Severity),
			string(e.Variant),
			strconv.FormatInt(e.ResponseTimeMs, 10),
			ttd,
			strconv.Itoa(e.SessionDepth),
			strconv.FormatBool(e.Converted),
			string(e.ExclusionReason),
			e.ReferralSource,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

type jsonExport struct {
	Count  int                       `json:"count"`
	Events []*model.InteractionEvent `json:"events"`
}

func exportJSON(out io.Writer, events []*model.InteractionEvent) error {
	if events == nil {
		events = []*model.InteractionEvent{}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonExport{Count: len(events), Events: events})
}
