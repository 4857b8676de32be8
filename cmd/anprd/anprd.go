package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/plate.report/internal/anpr/detect"
	"github.com/banshee-data/plate.report/internal/anpr/monitor"
	"github.com/banshee-data/plate.report/internal/anpr/ocr"
	"github.com/banshee-data/plate.report/internal/anpr/pipeline"
	"github.com/banshee-data/plate.report/internal/anpr/video"
	"github.com/banshee-data/plate.report/internal/api"
	"github.com/banshee-data/plate.report/internal/config"
	"github.com/banshee-data/plate.report/internal/db"
	"github.com/banshee-data/plate.report/internal/gate"
	"github.com/banshee-data/plate.report/internal/httputil"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	dbFile      = flag.String("db", "plate.db", "Path to the SQLite database file")
	sourceDesc  = flag.String("source", "synthetic:300", "Frame source: a frames directory, synthetic:<count>, or pcap:<file>")
	cameraID    = flag.String("camera-id", "cam01", "Camera identifier stamped onto recording sessions")
	detectorURL = flag.String("detector-url", "", "Vehicle detection sidecar base URL (empty: built-in simulated detector)")
	readerURL   = flag.String("reader-url", "", "Plate reader sidecar base URL (empty: built-in simulated reader)")
	configPath  = flag.String("config", "", "Tuning config JSON file (empty: built-in defaults)")
	pcapPort    = flag.Int("pcap-port", 5600, "UDP port carrying the camera stream in a pcap source")
	pcapSpeed   = flag.Float64("pcap-speed", 1.0, "Replay speed for a pcap source (1.0 = real-time, <= 0 = unpaced)")
	gatePort    = flag.String("gate-port", "", "Serial port for the barrier gate (empty: gate disabled)")
	gateBaud    = flag.Int("gate-baud", 9600, "Baud rate for the barrier gate serial port")
	allowPath   = flag.String("allowlist", "", "Allowlist file of plates permitted to open the gate")
	logInterval = flag.Int("log-interval", 10, "Statistics logging interval in seconds")
	debugLog    = flag.Bool("debug", false, "Log operational and diagnostic detail to stderr")
	traceLog    = flag.Bool("trace", false, "Log per-frame trace detail to stderr (implies -debug)")
	autoMigrate = flag.Bool("auto-migrate", true, "Apply pending database migrations on startup")
)

// splitMigrateArgs pulls the --db-path option out of the migrate subcommand
// arguments, leaving the action and its positional arguments.
func splitMigrateArgs(args []string) (rest []string, dbPath string) {
	dbPath = "plate.db"
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--db-path" || arg == "-db-path":
			if i+1 < len(args) {
				dbPath = args[i+1]
				i++
			}
		case strings.HasPrefix(arg, "--db-path="):
			dbPath = strings.TrimPrefix(arg, "--db-path=")
		case strings.HasPrefix(arg, "-db-path="):
			dbPath = strings.TrimPrefix(arg, "-db-path=")
		default:
			rest = append(rest, arg)
		}
	}
	return rest, dbPath
}

// setupDebugLogging wires the pipeline debug streams. PLATE_DEBUG_LOG routes
// everything to one file and overrides the flags; otherwise -debug enables
// the ops and diag streams and -trace adds per-frame telemetry. The returned
// cleanup flushes and detaches the file writer.
func setupDebugLogging() func() {
	if path := os.Getenv("PLATE_DEBUG_LOG"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Printf("Failed to open PLATE_DEBUG_LOG file %s: %v", path, err)
		} else {
			pipeline.SetLegacyLogger(f)
			log.Printf("Debug logging to %s", path)
			return func() {
				pipeline.SetLegacyLogger(nil)
				f.Close()
			}
		}
	}

	switch {
	case *traceLog:
		pipeline.SetLogWriters(os.Stderr, os.Stderr, os.Stderr)
	case *debugLog:
		pipeline.SetLogWriters(os.Stderr, os.Stderr, nil)
	}
	return func() {}
}

// buildSource constructs a frame source from its descriptor: a directory of
// frame images, synthetic:<count> for generated frames, or pcap:<file> for
// camera stream replay.
func buildSource(desc string) (video.Source, error) {
	switch {
	case desc == "synthetic" || strings.HasPrefix(desc, "synthetic:"):
		count := 0
		if _, v, ok := strings.Cut(desc, ":"); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid synthetic frame count %q: %w", v, err)
			}
			count = n
		}
		return video.NewSyntheticSource(video.SyntheticConfig{
			Count:    count,
			Interval: 40 * time.Millisecond, // ~25 fps
		}, nil), nil

	case strings.HasPrefix(desc, "pcap:"):
		return video.NewPcapSource(strings.TrimPrefix(desc, "pcap:"), *pcapPort, *pcapSpeed, nil)

	default:
		return video.NewFileSource(desc, nil)
	}
}

// Main
func main() {
	// The migrate subcommand runs outside the daemon flag set so it can be
	// used against a stopped service.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		rest, dbPath := splitMigrateArgs(os.Args[2:])
		db.RunMigrateCommand(rest, dbPath)
		return
	}

	flag.Parse()

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	cleanupDebug := setupDebugLogging()
	defer cleanupDebug()

	var tuning *config.TuningConfig
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		log.Printf("Loaded tuning config from %s", *configPath)
	} else {
		tuning = config.DefaultTuningConfig()
	}

	database, err := db.NewDBWithMigrationCheck(*dbFile, *autoMigrate)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	source, err := buildSource(*sourceDesc)
	if err != nil {
		log.Fatalf("Failed to open frame source %q: %v", *sourceDesc, err)
	}
	defer source.Close()

	var detector detect.Detector
	if *detectorURL != "" {
		detector = detect.NewHTTPDetector(*detectorURL, httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Second}))
		log.Printf("Using detection sidecar at %s", *detectorURL)
	} else {
		detector = &detect.SimulatedDetector{}
		log.Print("No detector URL configured, using simulated detections")
	}

	var reader ocr.Reader
	if *readerURL != "" {
		reader = ocr.NewHTTPReader(*readerURL, httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Second}))
		log.Printf("Using plate reader sidecar at %s", *readerURL)
	} else {
		reader = &ocr.SimulatedReader{}
		log.Print("No reader URL configured, using simulated plate readings")
	}

	stats := monitor.NewPipelineStats()

	coord, err := pipeline.New(pipeline.Config{
		Source:   source,
		Detector: detector,
		Reader:   reader,
		Tuning:   tuning,
		Stats:    stats,
	})
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	// Barrier gate: a real serial link when configured, otherwise a no-op
	// stand-in so the controller and its counters still run.
	var link gate.LinkInterface
	if *gatePort != "" {
		serialLink, err := gate.NewSerialLink(*gatePort, gate.PortOptions{BaudRate: *gateBaud})
		if err != nil {
			log.Fatalf("Failed to open gate serial port %s: %v", *gatePort, err)
		}
		link = serialLink
		if err := link.Initialize(); err != nil {
			log.Fatalf("Failed to initialize gate device: %v", err)
		}
		log.Printf("Gate device initialized on %s", *gatePort)
	} else {
		link = gate.NewDisabledLink()
	}
	defer link.Close()

	var allow *gate.Allowlist
	if *allowPath != "" {
		allow, err = gate.LoadAllowlist(*allowPath)
		if err != nil {
			log.Fatalf("Failed to load allowlist: %v", err)
		}
		log.Printf("Loaded %d allowlisted plates from %s", allow.Len(), *allowPath)
	}
	gateCtrl := gate.NewController(link, allow, gate.DefaultControllerConfig(), nil)

	recorder := db.NewRecorder(database, *cameraID, *sourceDesc, coord.Tracker())

	web := monitor.NewWebServer(monitor.WebServerConfig{
		Address:     *listen,
		Stats:       stats,
		DB:          database,
		CameraID:    *cameraID,
		SourceDesc:  *sourceDesc,
		DetectorURL: *detectorURL,
		ReaderURL:   *readerURL,
	})

	apiServer := api.NewServer(coord, database, tuning)
	apiServer.SetStats(stats)
	apiServer.SetRecorder(recorder)
	apiServer.RegisterRoutes(web.Mux())
	link.AttachAdminRoutes(web.Mux())

	// Create a wait group for the HTTP server, pipeline consumers, and gate
	// routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Subscribe the consumers before Start so none of them miss the
	// started event. Each gets its own channel; the bus closes them all
	// during shutdown, which is what ends these routines.
	bus := coord.Events()
	_, recorderEvents := bus.Subscribe()
	_, gateEvents := bus.Subscribe()
	_, logEvents := bus.Subscribe()

	wg.Add(1)
	go func() {
		defer wg.Done()
		recorder.Run(context.Background(), recorderEvents)
		log.Print("recorder routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		gateCtrl.Run(context.Background(), gateEvents)
		log.Print("gate controller routine terminated")
	}()

	// Surface notable pipeline events in the daemon log.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for evt := range logEvents {
			switch evt.Kind {
			case pipeline.EventReading:
				if evt.Reading != nil {
					log.Printf("Confirmed plate %s (track %d, confidence %.2f)",
						evt.Reading.Text, evt.Reading.TrackID, evt.Reading.Confidence)
				}
			case pipeline.EventSourceExhausted:
				log.Print("Frame source exhausted, pipeline draining")
			case pipeline.EventStageFatal:
				log.Printf("Pipeline stage %s failed repeatedly: %s", evt.Stage, evt.Message)
			case pipeline.EventStopped:
				log.Print("Pipeline stopped")
			}
		}
	}()

	// run the monitor routine to manage IO on the gate serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("gate monitor error: %v", err)
		}
		log.Print("gate monitor routine terminated")
	}()

	// Start periodic statistics logging
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Duration(*logInterval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats.LogStats()
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := web.Start(ctx); err != nil {
			log.Printf("web server error: %v", err)
		}
	}()

	// The pipeline runs on the background context: shutdown goes through
	// Stop so in-flight frames drain instead of being abandoned.
	if err := coord.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}
	log.Printf("Pipeline running (source %s, camera %s)", *sourceDesc, *cameraID)

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		log.Print("shutting down pipeline...")
		coord.Stop()
		// Stop returns after the stopped event is published; closing the
		// bus lets the consumer routines drain their channels and exit.
		bus.Close()
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
