package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mindlog-lab/mindlog/internal/model"
	"github.com/mindlog-lab/mindlog/internal/store"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent sessions",
	Long:  `List sessions with their arm, turn count, outcome and last activity, most recent first.`,
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "maximum sessions to show (0 for all)")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	return withStore(func(s store.Store) error {
		events, err := s.Query(context.Background(), store.Filter{})
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}

		rows := sessionRows(events)
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions yet.")
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Start one with 'mindlog chat' or POST /api/turns.")
			return nil
		}
		if sessionsLimit > 0 && len(rows) > sessionsLimit {
			rows = rows[:sessionsLimit]
		}

		printSessions(cmd.OutOrStdout(), rows, time.Now())
		return nil
	})
}

type sessionRow struct {
	ID       string
	Variant  model.Variant
	Severity model.Severity
	Turns    int
	Crisis   bool
	Decided  bool
	Convert  bool
	Source   string
	LastSeen time.Time
}

func (r sessionRow) outcome() string {
	switch {
	case r.Crisis:
		return "CRISIS"
	case !r.Decided:
		return "OPEN"
	case r.Convert:
		return "CONVERTED"
	default:
		return "DECLINED"
	}
}

// sessionRows folds store-ordered events into one row per session, most
// recently active first.
func sessionRows(events []*model.InteractionEvent) []sessionRow {
	index := make(map[string]*sessionRow)
	var order []string

	for _, e := range events {
		r, ok := index[e.SessionID]
		if !ok {
			r = &sessionRow{ID: e.SessionID, Source: e.ReferralSource}
			index[e.SessionID] = r
			order = append(order, e.SessionID)
		}
		if e.IsDecision() {
			r.Decided = true
			r.Convert = r.Convert || e.Converted
		} else {
			r.Turns++
		}
		if e.Excluded() {
			r.Crisis = true
		}
		if r.Variant == model.VariantNone && e.Variant.Valid() {
			r.Variant = e.Variant
			r.Severity = e.Severity
		}
		if e.Timestamp.After(r.LastSeen) {
			r.LastSeen = e.Timestamp
		}
	}

	rows := make([]sessionRow, 0, len(order))
	for _, id := range order {
		rows = append(rows, *index[id])
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].LastSeen.After(rows[j].LastSeen)
	})
	return rows
}

func printSessions(out io.Writer, rows []sessionRow, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tVARIANT\tSEVERITY\tTURNS\tOUTCOME\tSOURCE\tLAST SEEN")

	for _, r := range rows {
		variant, severity := "-", "-"
		if r.Variant.Valid() {
			variant = string(r.Variant)
			severity = string(r.Severity)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			variant,
			severity,
			humanize.Comma(int64(r.Turns)),
			r.outcome(),
			r.Source,
			humanize.RelTime(r.LastSeen, now, "ago", "from now"),
		)
	}

	w.Flush()
}
