package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/mindlog-lab/mindlog/internal/stats"
	"github.com/mindlog-lab/mindlog/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed assets/style.css
var styleCSS string

var (
	layoutTmpl  = template.Must(template.ParseFS(templateFS, "templates/layout.html"))
	summaryTmpl = template.Must(template.ParseFS(templateFS, "templates/summary.html"))
)

// Dashboard template data structures
type layoutData struct {
	Title   string
	CSS     template.CSS
	Content template.HTML
}

type summaryData struct {
	Recommendation string
	Confident      bool
	Lift           string
	LiftCI         string
	PValue         string
	ZStatistic     string
	Variants       []variantRow
	Funnel         stats.Funnel
	Segments       []segmentRow
	Sources        []sourceRow
}

type variantRow struct {
	Variant      string
	Label        string
	Status       string
	Sessions     int
	Conversions  int
	Rate         string
	CI           string
	MeanScore    string
	MedianTTDSec string
}

type segmentRow struct {
	Variant  string
	Severity string
	Sessions int
	Rate     string
	CI       string
}

type sourceRow struct {
	Source      string
	Sessions    int
	Conversions int
	Rate        string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	// Handle logout
	if r.URL.Query().Get("logout") == "1" {
		http.SetCookie(w, &http.Cookie{
			Name:   tokenCookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	summary, err := s.svc.Summary(r.Context(), parseFilterOrZero(r))
	if err != nil {
		http.Error(w, "Failed to load results", http.StatusServiceUnavailable)
		return
	}

	s.renderDashboard(w, "Triage experiment", newSummaryData(summary))
}

func newSummaryData(sum *stats.Summary) summaryData {
	data := summaryData{
		Recommendation: string(sum.Recommendation),
		Confident:      sum.Recommendation == stats.SignificantPositive,
		Lift:           sum.Lift.Percent(1),
		LiftCI:         sum.LiftCI.Percent(1),
		PValue:         formatFloat(sum.PValue, 4),
		ZStatistic:     formatFloat(sum.ZStatistic, 3),
		Funnel:         sum.Funnel,
	}

	for _, v := range []stats.VariantSummary{sum.Control, sum.Treatment} {
		data.Variants = append(data.Variants, variantRow{
			Variant:      string(v.Variant),
			Label:        v.Label,
			Status:       string(v.Status),
			Sessions:     v.Sessions,
			Conversions:  v.Conversions,
			Rate:         v.Rate.Percent(1),
			CI:           v.CI.Percent(1),
			MeanScore:    formatFloat(v.MeanSentiment, 3),
			MedianTTDSec: formatSeconds(v.MedianTimeToDecisionMs),
		})
	}
	for _, seg := range sum.Segments {
		data.Segments = append(data.Segments, segmentRow{
			Variant:  string(seg.Variant),
			Severity: string(seg.Severity),
			Sessions: seg.Sessions,
			Rate:     seg.Rate.Percent(1),
			CI:       seg.CI.Percent(1),
		})
	}
	for _, src := range sum.Sources {
		data.Sources = append(data.Sources, sourceRow{
			Source:      src.Source,
			Sessions:    src.Sessions,
			Conversions: src.Conversions,
			Rate:        src.Rate.Percent(1),
		})
	}
	return data
}

func (s *Server) renderDashboard(w http.ResponseWriter, title string, data summaryData) {
	var contentBuf bytes.Buffer
	if err := summaryTmpl.Execute(&contentBuf, data); err != nil {
		s.logger.Error("failed to render dashboard", zap.Error(err))
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
		return
	}

	page := layoutData{
		Title:   title,
		CSS:     template.CSS(styleCSS),
		Content: template.HTML(contentBuf.String()),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := layoutTmpl.Execute(w, page); err != nil {
		s.logger.Error("failed to render layout", zap.Error(err))
	}
}

func parseFilterOrZero(r *http.Request) (f store.Filter) {
	f, _ = parseFilter(r)
	return f
}

func formatFloat(v stats.Value, decimals int) string {
	x, ok := v.Get()
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.*f", decimals, x)
}

func formatSeconds(ms stats.Value) string {
	x, ok := ms.Get()
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.1fs", x/1000)
}
