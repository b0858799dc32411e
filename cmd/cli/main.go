package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.viam.com/rdk/logging"

	"markertracker"
	"markertracker/video"
)

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func realMain() error {
	var (
		cfg      markertracker.Config
		logLevel string
	)
	flag.StringVar(&cfg.Source, "source", "0", "camera index or video file")
	flag.StringVar(&cfg.CalibrationPath, "calibration", "", "camera calibration JSON (camera_matrix, dist_coeffs)")
	flag.StringVar(&cfg.Dictionary, "dictionary", "6x6_250", "marker dictionary: "+strings.Join(video.DictionaryNames(), ", "))
	flag.IntVar(&cfg.MarkerID, "marker-id", video.AnyMarker, "marker id to track, -1 for the largest marker in view")
	flag.Float64Var(&cfg.MarkerSize, "marker-size", 0, "printed marker side length; sets the unit of the output")
	flag.StringVar(&cfg.OutputSigns, "signs", "-1,1,1", "output axis signs")
	flag.StringVar(&cfg.RawVideoPath, "raw-video", "", "record the raw stream to this file")
	flag.StringVar(&cfg.AnnotatedVideoPath, "annotated-video", "", "record the annotated stream to this file")
	flag.Float64Var(&cfg.RecordFPS, "record-fps", 0, "frame rate of recordings, 0 uses the source rate")
	flag.BoolVar(&cfg.Preview, "preview", false, "show a preview window (ESC/q stops, p/space pauses)")
	flag.IntVar(&cfg.KeyDelayMs, "key-delay", 1, "preview key poll delay in milliseconds")
	flag.StringVar(&cfg.CSVPath, "csv", "", "write records to this CSV file")
	flag.StringVar(&cfg.DBPath, "db", "", "write records to this SQLite database")
	flag.StringVar(&cfg.PlotPath, "plot", "", "write a trajectory plot (PNG) on exit")
	flag.BoolVar(&cfg.Quiet, "quiet", false, "do not print the per-frame table")
	flag.StringVar(&logLevel, "log-level", "info", "log level: info or debug")
	flag.Parse()

	var logger logging.Logger
	switch strings.ToLower(logLevel) {
	case "debug":
		logger = logging.NewDebugLogger("marker-tracker")
	case "info":
		logger = logging.NewLogger("marker-tracker")
	default:
		return fmt.Errorf("unknown log level %q", logLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker, err := markertracker.NewTracker(&cfg, logger)
	if err != nil {
		return err
	}
	if err := tracker.StartStreamingTrack(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
