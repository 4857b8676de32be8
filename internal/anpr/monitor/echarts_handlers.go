package monitor

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/plate.report/internal/db"
)

// echartsAssetsPrefix is where rendered chart pages load the echarts
// runtime from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridisColors is the shared visual-map palette for the debug charts.
var viridisColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// resolveSessionID returns the session named in the request, or the most
// recent recorded session when the parameter is absent.
func (ws *WebServer) resolveSessionID(r *http.Request) (string, error) {
	if sid := r.URL.Query().Get("session_id"); sid != "" {
		return sid, nil
	}
	sessions, err := ws.db.ListSessions(1)
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", fmt.Errorf("no sessions recorded")
	}
	return sessions[0].ID, nil
}

// handleReadingsChart renders confirmed readings for a session as a scatter
// timeline (HTML) using go-echarts. This is a debugging-only endpoint (no
// auth) to eyeball a run without the full UI.
// Query params:
//   - session_id (optional; defaults to the latest session)
//   - limit (optional; default 200)
func (ws *WebServer) handleReadingsChart(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	sessionID, err := ws.resolveSessionID(r)
	if err != nil {
		ws.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	limit := 200
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	records, err := ws.db.ListReadingEvents(db.ReadingQuery{SessionID: sessionID, Limit: limit})
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list readings: %v", err))
		return
	}
	if len(records) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no readings for session")
		return
	}

	// Records arrive newest first; plot seconds since the earliest one.
	first := records[len(records)-1].LastSeen
	for _, rec := range records {
		if rec.LastSeen.Before(first) {
			first = rec.LastSeen
		}
	}

	data := make([]opts.ScatterData, 0, len(records))
	maxCandidates := float64(1)
	maxSeconds := 0.0
	for _, rec := range records {
		seconds := rec.LastSeen.Sub(first).Seconds()
		if seconds > maxSeconds {
			maxSeconds = seconds
		}
		if float64(rec.Candidates) > maxCandidates {
			maxCandidates = float64(rec.Candidates)
		}
		data = append(data, opts.ScatterData{
			Value: []interface{}{seconds, rec.Confidence, rec.Candidates, rec.Plate},
		})
	}

	pad := maxSeconds * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "ANPR Readings", Theme: "dark", Width: "900px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Confirmed Readings", Subtitle: fmt.Sprintf("session=%s readings=%d", sessionID, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: pad, Name: "Seconds since first reading", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "Confidence", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxCandidates),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisColors},
		}),
	)

	scatter.AddSeries("readings", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleThroughputChart renders a simple bar chart of frame/detection/read
// throughput from the latest stats snapshot.
func (ws *WebServer) handleThroughputChart(w http.ResponseWriter, r *http.Request) {
	if ws.stats == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no pipeline stats available")
		return
	}

	snap := ws.stats.GetLatestSnapshot()
	if snap == nil {
		snap = &StatsSnapshot{Timestamp: time.Now()}
	}

	x := []string{"Frames/s", "Detections/s", "Reads/s", "Dropped (recent)"}
	y := []opts.BarData{
		{Value: snap.FramesPerSec},
		{Value: snap.DetectionsPerSec},
		{Value: snap.ReadsPerSec},
		{Value: snap.DroppedCount},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "ANPR Throughput", Subtitle: snap.Timestamp.Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("throughput", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleConfidenceChart renders a histogram of reading confidences for a
// session.
// Query params:
//   - session_id (optional; defaults to the latest session)
func (ws *WebServer) handleConfidenceChart(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	sessionID, err := ws.resolveSessionID(r)
	if err != nil {
		ws.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	records, err := ws.db.ListReadingEvents(db.ReadingQuery{SessionID: sessionID, Limit: 1000})
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list readings: %v", err))
		return
	}
	if len(records) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no readings for session")
		return
	}

	const bins = 10
	counts := make([]int64, bins)
	for _, rec := range records {
		bin := int(rec.Confidence * bins)
		if bin >= bins {
			bin = bins - 1
		}
		if bin < 0 {
			bin = 0
		}
		counts[bin]++
	}

	x := make([]string, bins)
	y := make([]opts.BarData, bins)
	for i := 0; i < bins; i++ {
		x[i] = fmt.Sprintf("%.1f-%.1f", float64(i)/bins, float64(i+1)/bins)
		y[i] = opts.BarData{Value: counts[i]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "ANPR Confidence", Theme: "dark", Width: "900px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Reading Confidence", Subtitle: fmt.Sprintf("session=%s readings=%d", sessionID, len(records))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("confidence", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleDebugDashboard renders a simple dashboard with iframes to the debug charts.
func (ws *WebServer) handleDebugDashboard(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	safeSessionID := html.EscapeString(sessionID)
	if sessionID == "" {
		safeSessionID = "latest"
	}
	qs := ""
	if sessionID != "" {
		qs = "?session_id=" + url.QueryEscape(sessionID)
	}
	safeQs := html.EscapeString(qs)

	doc := fmt.Sprintf(dashboardHTML, safeSessionID, safeQs)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}
