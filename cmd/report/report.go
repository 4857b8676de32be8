// Command report generates offline session reports from a recorder
// database: a summary on stdout, an HTML page of charts, and a PNG plot of
// where in the frame plates were sighted.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/plate.report/internal/db"
	"github.com/banshee-data/plate.report/internal/security"
)

var (
	dbFile    = flag.String("db", "plate.db", "Path to the SQLite database file")
	sessionID = flag.String("session", "", "Session to report on (empty: the most recent session)")
	outDir    = flag.String("out", "reports", "Directory the HTML and PNG reports are written into")
	listOnly  = flag.Bool("list", false, "List recorded sessions and exit")
)

// echartsAssetsPrefix is where the rendered report page loads the echarts
// runtime from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// sessionReport holds everything the report renders for one session.
// Readings are in chronological order.
type sessionReport struct {
	Session  *db.Session
	Readings []db.ReadingRecord
	Tracks   []db.TrackRecord
}

// buildReport loads one session and its readings and track summaries. An
// empty session ID selects the most recently started session.
func buildReport(database *db.DB, id string) (*sessionReport, error) {
	if id == "" {
		sessions, err := database.ListSessions(1)
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			return nil, fmt.Errorf("no sessions recorded")
		}
		id = sessions[0].ID
	}

	session, err := database.GetSession(id)
	if err != nil {
		return nil, err
	}
	readings, err := database.ListSessionReadings(id)
	if err != nil {
		return nil, err
	}
	tracks, err := database.ListTrackRecords(id)
	if err != nil {
		return nil, err
	}

	return &sessionReport{Session: session, Readings: readings, Tracks: tracks}, nil
}

// distSummary describes one set of sample values.
type distSummary struct {
	N      int
	Mean   float64
	StdDev float64
	P50    float64
	P90    float64
}

// summarize computes mean, standard deviation, and empirical quantiles of
// the values. An empty input yields the zero summary.
func summarize(values []float64) distSummary {
	if len(values) == 0 {
		return distSummary{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	s := distSummary{
		N:    len(sorted),
		Mean: stat.Mean(sorted, nil),
		P50:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:  stat.Quantile(0.9, stat.Empirical, sorted, nil),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}

// confidences extracts the confidence of each reading.
func confidences(readings []db.ReadingRecord) []float64 {
	values := make([]float64, 0, len(readings))
	for _, rec := range readings {
		values = append(values, rec.Confidence)
	}
	return values
}

// trackLifetimes extracts each track's presence duration in seconds.
func trackLifetimes(tracks []db.TrackRecord) []float64 {
	values := make([]float64, 0, len(tracks))
	for _, rec := range tracks {
		lifetime := rec.LastSeen.Sub(rec.FirstSeen).Seconds()
		if lifetime < 0 {
			lifetime = 0
		}
		values = append(values, lifetime)
	}
	return values
}

// hourlyCounts buckets readings by UTC hour of last sighting, covering
// every hour from the first reading to the last so gaps show as zeros.
func hourlyCounts(readings []db.ReadingRecord) (labels []string, counts []int) {
	if len(readings) == 0 {
		return nil, nil
	}

	byHour := make(map[time.Time]int)
	first := readings[0].LastSeen.UTC().Truncate(time.Hour)
	last := first
	for _, rec := range readings {
		hour := rec.LastSeen.UTC().Truncate(time.Hour)
		byHour[hour]++
		if hour.Before(first) {
			first = hour
		}
		if hour.After(last) {
			last = hour
		}
	}

	for hour := first; !hour.After(last); hour = hour.Add(time.Hour) {
		labels = append(labels, hour.Format("15:04 Jan 2"))
		counts = append(counts, byHour[hour])
	}
	return labels, counts
}

// plateTally aggregates the sightings of one plate within a session.
type plateTally struct {
	Plate         string
	Count         int
	MaxConfidence float64
}

// topPlates returns the most frequently confirmed plates, at most n.
func topPlates(readings []db.ReadingRecord, n int) []plateTally {
	byPlate := make(map[string]*plateTally)
	for _, rec := range readings {
		tally := byPlate[rec.Plate]
		if tally == nil {
			tally = &plateTally{Plate: rec.Plate}
			byPlate[rec.Plate] = tally
		}
		tally.Count++
		if rec.Confidence > tally.MaxConfidence {
			tally.MaxConfidence = rec.Confidence
		}
	}

	tallies := make([]plateTally, 0, len(byPlate))
	for _, tally := range byPlate {
		tallies = append(tallies, *tally)
	}
	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].Count != tallies[j].Count {
			return tallies[i].Count > tallies[j].Count
		}
		return tallies[i].Plate < tallies[j].Plate
	})

	if len(tallies) > n {
		tallies = tallies[:n]
	}
	return tallies
}

// confirmedTrackCount counts tracks that ended with a confirmed plate.
func confirmedTrackCount(tracks []db.TrackRecord) int {
	n := 0
	for _, rec := range tracks {
		if rec.ConfirmedPlate != "" {
			n++
		}
	}
	return n
}

// writeSummary prints the per-session summary table.
func writeSummary(w io.Writer, rep *sessionReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Session\t%s\n", rep.Session.ID)
	fmt.Fprintf(tw, "Camera\t%s\n", rep.Session.CameraID)
	fmt.Fprintf(tw, "Source\t%s\n", rep.Session.SourceDesc)
	fmt.Fprintf(tw, "Started\t%s\n", rep.Session.StartedAt.UTC().Format(time.RFC3339))
	if rep.Session.EndedAt != nil {
		fmt.Fprintf(tw, "Ended\t%s (ran %s)\n",
			rep.Session.EndedAt.UTC().Format(time.RFC3339),
			rep.Session.EndedAt.Sub(rep.Session.StartedAt).Round(time.Second))
	} else {
		fmt.Fprintf(tw, "Ended\tstill open\n")
	}
	fmt.Fprintf(tw, "Readings\t%d\n", len(rep.Readings))
	fmt.Fprintf(tw, "Tracks\t%d (%d confirmed)\n", len(rep.Tracks), confirmedTrackCount(rep.Tracks))

	if conf := summarize(confidences(rep.Readings)); conf.N > 0 {
		fmt.Fprintf(tw, "Confidence\tmean %.3f\tstddev %.3f\tp50 %.3f\tp90 %.3f\n",
			conf.Mean, conf.StdDev, conf.P50, conf.P90)
	}
	if life := summarize(trackLifetimes(rep.Tracks)); life.N > 0 {
		fmt.Fprintf(tw, "Track lifetime\tmean %.1fs\tstddev %.1fs\tp50 %.1fs\tp90 %.1fs\n",
			life.Mean, life.StdDev, life.P50, life.P90)
	}

	for i, tally := range topPlates(rep.Readings, 5) {
		heading := ""
		if i == 0 {
			heading = "Top plates"
		}
		fmt.Fprintf(tw, "%s\t%s x%d (max confidence %.2f)\n",
			heading, tally.Plate, tally.Count, tally.MaxConfidence)
	}

	tw.Flush()
}

// renderReportPage writes the HTML chart page: a readings timeline, an
// hourly histogram, and a confidence distribution.
func renderReportPage(rep *sessionReport, path string) error {
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(
		timelineChart(rep),
		hourlyChart(rep),
		confidenceChart(rep),
	)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report page: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("failed to render report page: %w", err)
	}
	return nil
}

// timelineChart plots each confirmed reading against seconds since session
// start, with confidence on the Y axis and candidate count on the color
// scale.
func timelineChart(rep *sessionReport) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(rep.Readings))
	maxSeconds := 0.0
	maxCandidates := float64(1)
	for _, rec := range rep.Readings {
		seconds := rec.LastSeen.Sub(rep.Session.StartedAt).Seconds()
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
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Session Report", Theme: "dark", Width: "900px", Height: "500px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Readings Timeline", Subtitle: fmt.Sprintf("session=%s readings=%d", rep.Session.ID, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: pad, Name: "Seconds since session start", NameLocation: "middle", NameGap: 25}),
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
	return scatter
}

// viridisColors is the visual-map palette shared with the live debug charts.
var viridisColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// hourlyChart renders readings-per-hour as a bar chart.
func hourlyChart(rep *sessionReport) *charts.Bar {
	labels, counts := hourlyCounts(rep.Readings)
	y := make([]opts.BarData, len(counts))
	for i, count := range counts {
		y[i] = opts.BarData{Value: count}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "400px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Readings per Hour"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("readings", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// confidenceChart renders the confidence distribution as a ten-bin
// histogram.
func confidenceChart(rep *sessionReport) *charts.Bar {
	const bins = 10
	counts := make([]int64, bins)
	for _, rec := range rep.Readings {
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
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "400px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Confidence Distribution"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("confidence", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// renderPositionsPlot writes a PNG scatter of box centers in frame
// coordinates. Readings without a recorded box (rows predating box capture)
// are skipped. Returns how many sightings were plotted; zero means no file
// was written.
func renderPositionsPlot(rep *sessionReport, path string) (int, error) {
	pts := make(plotter.XYs, 0, len(rep.Readings))
	for _, rec := range rep.Readings {
		if rec.Box.W <= 0 || rec.Box.H <= 0 {
			continue
		}
		pts = append(pts, plotter.XY{
			X: float64(rec.Box.X) + float64(rec.Box.W)/2,
			Y: float64(rec.Box.Y) + float64(rec.Box.H)/2,
		})
	}
	if len(pts) == 0 {
		return 0, nil
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Plate Sighting Positions (session %s)", rep.Session.ID)
	p.X.Label.Text = "X (px)"
	p.Y.Label.Text = "Y (px)"
	p.X.Min = 0
	p.Y.Min = 0
	// Frame origin is top-left; invert Y so the plot matches the camera
	// image.
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return 0, fmt.Errorf("failed to build scatter: %w", err)
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	scatter.GlyphStyle.Radius = vg.Points(3)
	p.Add(scatter)
	p.Legend.Add(fmt.Sprintf("%d sightings", len(pts)), scatter)
	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return 0, fmt.Errorf("failed to save positions plot: %w", err)
	}
	return len(pts), nil
}

// outputPaths derives the report file paths for a session. The session ID
// comes out of the database, which may have been produced elsewhere, so the
// filename is sanitized and both joined paths are checked against the output
// directory before anything is written. outDir must already exist.
func outputPaths(outDir, sessionID string) (htmlPath, pngPath string, err error) {
	base := security.SanitizeFilename(sessionID)
	htmlPath = filepath.Join(outDir, base+".html")
	pngPath = filepath.Join(outDir, base+"_positions.png")
	for _, path := range []string{htmlPath, pngPath} {
		if err := security.ValidatePathWithinDirectory(path, outDir); err != nil {
			return "", "", err
		}
	}
	return htmlPath, pngPath, nil
}

// listSessions prints the recorded sessions, newest first.
func listSessions(w io.Writer, database *db.DB) error {
	sessions, err := database.ListSessions(50)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tCAMERA\tSOURCE\tSTARTED\tDURATION\tREADINGS")
	for _, session := range sessions {
		duration := "open"
		if session.EndedAt != nil {
			duration = session.EndedAt.Sub(session.StartedAt).Round(time.Second).String()
		}
		count, err := database.CountReadingEvents(session.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			session.ID,
			session.CameraID,
			session.SourceDesc,
			session.StartedAt.UTC().Format(time.RFC3339),
			duration,
			count,
		)
	}
	return tw.Flush()
}

func main() {
	flag.Parse()

	// Report generation never mutates the schema; an out-of-date database
	// is reported so the operator can run the migrate subcommand.
	database, err := db.NewDBWithMigrationCheck(*dbFile, false)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if *listOnly {
		if err := listSessions(os.Stdout, database); err != nil {
			log.Fatalf("Failed to list sessions: %v", err)
		}
		return
	}

	rep, err := buildReport(database, *sessionID)
	if err != nil {
		log.Fatalf("Failed to build report: %v", err)
	}

	writeSummary(os.Stdout, rep)

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	htmlPath, pngPath, err := outputPaths(*outDir, rep.Session.ID)
	if err != nil {
		log.Fatalf("Refusing report output path: %v", err)
	}

	if err := renderReportPage(rep, htmlPath); err != nil {
		log.Fatalf("Failed to write report page: %v", err)
	}
	log.Printf("Report page written to %s", htmlPath)

	plotted, err := renderPositionsPlot(rep, pngPath)
	if err != nil {
		log.Fatalf("Failed to write positions plot: %v", err)
	}
	if plotted == 0 {
		log.Print("No box positions recorded; skipping positions plot")
	} else {
		log.Printf("Positions plot written to %s (%d sightings)", pngPath, plotted)
	}
}
