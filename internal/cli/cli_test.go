package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindlog-lab/mindlog/internal/classify"
	"github.com/mindlog-lab/mindlog/internal/experiment"
	"github.com/mindlog-lab/mindlog/internal/model"
	"github.com/mindlog-lab/mindlog/internal/publish"
	"github.com/mindlog-lab/mindlog/internal/stats"
	"github.com/mindlog-lab/mindlog/internal/store"
	"github.com/mindlog-lab/mindlog/internal/triage"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func event(id int64, session string, v model.Variant, at time.Duration) *model.InteractionEvent {
	return &model.InteractionEvent{
		ID:             id,
		SessionID:      session,
		Timestamp:      epoch.Add(at),
		InputText:      "[anonymized:0123456789abcdef]",
		SentimentScore: -0.45,
		Severity:       model.SeverityModerate,
		Variant:        v,
		ResponseTimeMs: 3,
		SessionDepth:   1,
		ReferralSource: "organic",
	}
}

func decision(id int64, session string, v model.Variant, at time.Duration, converted bool) *model.InteractionEvent {
	e := event(id, session, v, at)
	ttd := int64(4200)
	e.TimeToDecisionMs = &ttd
	e.Converted = converted
	return e
}

func crisisEvent(id int64, session string, at time.Duration) *model.InteractionEvent {
	e := event(id, session, model.VariantNone, at)
	e.SentimentScore = -0.91
	e.Severity = model.SeveritySevere
	e.ExclusionReason = model.ExclusionCrisis
	return e
}

func TestPrintResults(t *testing.T) {
	var events []*model.InteractionEvent
	var id int64
	add := func(v model.Variant, n, k int) {
		for i := 0; i < n; i++ {
			id++
			e := event(id, fmt.Sprintf("%s-%04d", v, i), v, time.Duration(id)*time.Second)
			e.Converted = i < k
			events = append(events, e)
		}
	}
	add(model.VariantA, 1200, 216)
	add(model.VariantB, 1200, 312)
	events = append(events, crisisEvent(9999, "crisis", time.Hour))

	var buf bytes.Buffer
	printResults(&buf, stats.Summarize(events))
	out := buf.String()

	expectations := []string{
		"SESSIONS: 2,401 (1 excluded by crisis protocol)",
		"A (clinical)",
		"B (empathetic)",
		"1,200",
		"18.0%",
		"26.0%",
		"Relative lift: +44.4%",
		"Recommendation: significant_positive",
		"B/moderate",
	}
	for _, expected := range expectations {
		if !strings.Contains(out, expected) {
			t.Errorf("results output missing %q\n\nGot:\n%s", expected, out)
		}
	}
}

func TestPrintResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	printResults(&buf, stats.Summarize(nil))
	out := buf.String()

	assert.Contains(t, out, "insufficient data")
	assert.Contains(t, out, "Relative lift: n/a n/a")
	assert.Contains(t, out, "z = n/a, p = n/a")
	assert.Contains(t, out, "not_significant_continue")
}

func TestExportCSV(t *testing.T) {
	events := []*model.InteractionEvent{
		event(1, "s1", model.VariantB, 0),
		decision(2, "s1", model.VariantB, time.Minute, true),
	}
	events[0].InputText = "hello, \"quoted\" world"

	var buf bytes.Buffer
	require.NoError(t, exportCSV(&buf, events))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "hello, \"quoted\" world", records[1][3])
	assert.Equal(t, "-0.4500", records[1][4])
	assert.Equal(t, "", records[1][8])
	assert.Equal(t, "4200", records[2][8])
	assert.Equal(t, "true", records[2][10])
	assert.Equal(t, "2026-03-01T09:01:00Z", records[2][2])
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, exportJSON(&buf, nil))

	var empty jsonExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &empty))
	assert.Equal(t, 0, empty.Count)
	assert.NotNil(t, empty.Events)

	buf.Reset()
	require.NoError(t, exportJSON(&buf, []*model.InteractionEvent{crisisEvent(1, "c1", 0)}))
	assert.Contains(t, buf.String(), `"exclusion_reason": "crisis_protocol"`)
	assert.NotContains(t, buf.String(), "assigned_variant")
}

func TestSessionRows(t *testing.T) {
	events := []*model.InteractionEvent{
		event(1, "open", model.VariantA, 0),
		event(2, "won", model.VariantB, time.Second),
		event(3, "won", model.VariantB, 2*time.Second),
		decision(4, "won", model.VariantB, 3*time.Second, true),
		event(5, "lost", model.VariantA, 4*time.Second),
		decision(6, "lost", model.VariantA, 5*time.Second, false),
		event(7, "crisis", model.VariantA, 6*time.Second),
		crisisEvent(8, "crisis", 7*time.Second),
	}

	rows := sessionRows(events)
	require.Len(t, rows, 4)

	got := make(map[string]string)
	for _, r := range rows {
		got[r.ID] = r.outcome()
	}
	assert.Equal(t, map[string]string{
		"open":   "OPEN",
		"won":    "CONVERTED",
		"lost":   "DECLINED",
		"crisis": "CRISIS",
	}, got)

	// Most recent first.
	assert.Equal(t, "crisis", rows[0].ID)
	assert.Equal(t, "open", rows[3].ID)
	assert.Equal(t, 2, rows[2].Turns)
}

func TestPrintSessions(t *testing.T) {
	rows := sessionRows([]*model.InteractionEvent{
		event(1, "s1", model.VariantB, 0),
		crisisEvent(2, "c1", 0),
	})

	var buf bytes.Buffer
	printSessions(&buf, rows, epoch.Add(2*time.Hour))
	out := buf.String()

	assert.Contains(t, out, "SESSION")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "CRISIS")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "-")
}

func TestPrintClassification(t *testing.T) {
	tests := []struct {
		name    string
		res     classify.Result
		keyword string
		want    string
	}{
		{"calm", classify.Result{SentimentScore: 0.4, Severity: model.SeverityMild}, "", "CRISIS:    no"},
		{"keyword", classify.Result{SentimentScore: -0.2, Severity: model.SeverityMild, IsCrisis: true}, "hurt myself", `keyword "hurt myself"`},
		{"score", classify.Result{SentimentScore: -0.9, Severity: model.SeveritySevere, IsCrisis: true}, "", "score below threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printClassification(&buf, tt.res, tt.keyword)
			assert.Contains(t, buf.String(), tt.want)
			assert.Contains(t, buf.String(), string(tt.res.Severity))
		})
	}
}

func TestPrintClassificationJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printClassificationJSON(&buf, classify.Result{SentimentScore: -0.2, Severity: model.SeverityMild, IsCrisis: true}, "end it"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, true, got["is_crisis"])
	assert.Equal(t, "end it", got["matched_keyword"])
	assert.Equal(t, "mild", got["severity_bucket"])
}

func newChat(t *testing.T, st store.EventStore, lines []string, converted bool) (*chat, *bytes.Buffer, *int) {
	t.Helper()

	svc, err := triage.New(st, triage.Options{
		Source: experiment.NewLockedSource(experiment.NewSource(3)),
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	asked := 0
	c := &chat{
		svc:       svc,
		sessionID: "term-1",
		referral:  "email_campaign",
		verbose:   true,
		out:       &buf,
		readLine: func() (string, error) {
			if len(lines) == 0 {
				return "", promptui.ErrEOF
			}
			line := lines[0]
			lines = lines[1:]
			return line, nil
		},
		decide: func() (bool, error) {
			asked++
			return converted, nil
		},
	}
	return c, &buf, &asked
}

func TestChat_RecordsTurnsAndDecision(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c, out, asked := newChat(t, st, []string{"I have been feeling a little low", "", "work is stressful", "/done"}, true)

	require.NoError(t, c.run(ctx))
	assert.Equal(t, 1, *asked)
	assert.Contains(t, out.String(), "Session term-1")
	assert.Contains(t, out.String(), "[sentiment ")
	assert.Contains(t, out.String(), "book your consultation")

	events, err := st.Query(ctx, store.Filter{SessionID: "term-1"})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[2].IsDecision())
	assert.True(t, events[2].Converted)
	assert.Equal(t, "email_campaign", events[0].ReferralSource)
	assert.Equal(t, events[0].Variant, events[2].Variant)
}

func TestChat_CrisisSkipsDecision(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c, out, asked := newChat(t, st, []string{"I want to end my life", "/done"}, true)

	require.NoError(t, c.run(ctx))
	assert.Equal(t, 0, *asked)
	assert.Contains(t, out.String(), "1-767")
	assert.Contains(t, out.String(), "crisis protocol")

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChat_QuitWithoutDecision(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c, _, asked := newChat(t, st, []string{"hello", "/quit"}, false)

	require.NoError(t, c.run(ctx))
	assert.Equal(t, 0, *asked)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChat_PropagatesPromptErrors(t *testing.T) {
	c, _, _ := newChat(t, store.NewMemoryStore(), nil, false)
	boom := errors.New("terminal gone")
	c.readLine = func() (string, error) { return "", boom }

	assert.ErrorIs(t, c.run(context.Background()), boom)
}

func TestRunToken(t *testing.T) {
	dir := t.TempDir()
	oldDB, oldPort := dbPath, port
	t.Cleanup(func() { dbPath, port = oldDB, oldPort })
	dbPath = filepath.Join(dir, "mindlog.db")
	port = 9090

	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	err := runToken(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no server running")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".mindlog-token"), []byte("abc123\n"), 0600))
	require.NoError(t, runToken(cmd, nil))
	assert.Contains(t, buf.String(), "http://localhost:9090/dashboard?token=abc123")
}

type fakeServer struct {
	err     error
	stopped atomic.Bool
}

func (f *fakeServer) Run(ctx context.Context) error {
	if f.err == nil {
		<-ctx.Done()
	}
	f.stopped.Store(true)
	return f.err
}

type fakePublisher struct {
	publish.Nop
	srv         *fakeServer
	closed      atomic.Int32
	afterServer atomic.Bool
}

func (f *fakePublisher) Close() error {
	f.closed.Add(1)
	f.afterServer.Store(f.srv.stopped.Load())
	return nil
}

func TestServeAndDrain(t *testing.T) {
	tests := []struct {
		name    string
		runErr  error
		wantErr bool
	}{
		{"shutdown signal", nil, false},
		{"server failure", errors.New("address in use"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &fakeServer{err: tt.runErr}
			pub := &fakePublisher{srv: srv}

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- serveAndDrain(ctx, srv, pub, zap.NewNop()) }()
			cancel()

			select {
			case err := <-done:
				if tt.wantErr {
					assert.ErrorIs(t, err, tt.runErr)
				} else {
					assert.NoError(t, err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("serveAndDrain did not return")
			}

			assert.Equal(t, int32(1), pub.closed.Load())
			assert.True(t, pub.afterServer.Load(), "publisher drained before the server stopped")
		})
	}
}
