package markertracker

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"gocv.io/x/gocv"

	"markertracker/calibrators"
	"markertracker/telemetry"
	"markertracker/trackers"
	"markertracker/utils"
	"markertracker/video"
)

// Tracker follows a marker in a local video stream and logs its world position per frame.
type Tracker struct {
	cfg         *Config
	logger      logging.Logger
	calibration *calibrators.CameraCalibration
	out         io.Writer
}

func NewTracker(cfg *Config, logger logging.Logger) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	calibration, err := calibrators.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		return nil, err
	}
	return &Tracker{
		cfg:         cfg,
		logger:      logger,
		calibration: calibration,
		out:         os.Stdout,
	}, nil
}

// StartStreamingTrack runs until the stream ends, the preview window is closed or ctx is done.
// Failing to open the stream is returned as an error; a failed read mid-stream ends the run.
func (t *Tracker) StartStreamingTrack(ctx context.Context) error {
	source, err := video.OpenSource(t.cfg.Source)
	if err != nil {
		return err
	}

	estimator, err := video.NewArucoEstimator(t.cfg.Dictionary, t.cfg.MarkerID, t.cfg.MarkerSize, t.calibration)
	if err != nil {
		source.Close()
		return err
	}
	defer estimator.Close()

	converter, err := utils.NewPoseFrameConverter(t.cfg.Convention())
	if err != nil {
		source.Close()
		return err
	}
	session := trackers.NewSession(converter)

	positions := &trackers.MemorySink{}
	recordSinks, err := t.recordSinks(session, positions)
	if err != nil {
		source.Close()
		trackers.MultiSink(recordSinks).Close()
		return err
	}

	driver, err := trackers.NewDriver(trackers.DriverConfig[gocv.Mat]{
		Source:      source,
		Estimator:   estimator,
		Session:     session,
		RecordSinks: recordSinks,
		FrameSinks:  t.frameSinks(source),
		Release:     video.ReleaseMat,
		Logger:      t.logger,
	})
	if err != nil {
		source.Close()
		trackers.MultiSink(recordSinks).Close()
		return err
	}

	t.logger.Infof("Tracking %s from %s (session %s, signs %s)", t.markerLabel(), source.Name(), session.ID(), session.Convention())
	runErr := driver.Run(ctx)

	stats := session.Stats()
	t.logger.Infof("Processed %d frames, skipped %d", stats.Processed, stats.Skipped)
	records := positions.Records()
	points := make([]r3.Vector, 0, len(records))
	for _, rec := range records {
		points = append(points, rec.Position)
	}
	utils.PrintTrajectorySummary(t.out, utils.SummarizeTrajectory(points))
	return runErr
}

func (t *Tracker) recordSinks(session *trackers.Session, positions *trackers.MemorySink) ([]trackers.RecordSink, error) {
	sinks := []trackers.RecordSink{positions, trackers.NewLogSink(t.logger)}
	if !t.cfg.Quiet {
		sinks = append(sinks, trackers.NewTableSink(t.out))
	}
	if t.cfg.CSVPath != "" {
		csvSink, err := trackers.NewCSVSink(t.cfg.CSVPath)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, csvSink)
	}
	if t.cfg.DBPath != "" {
		store, err := telemetry.Open(t.cfg.DBPath)
		if err != nil {
			return sinks, fmt.Errorf("opening telemetry store: %w", err)
		}
		sinks = append(sinks, store)
		if err := store.StartSession(telemetry.SessionInfo{
			ID:         session.ID(),
			StartedAt:  session.Stats().Started,
			Source:     t.cfg.Source,
			Convention: session.Convention().String(),
		}); err != nil {
			return sinks, fmt.Errorf("registering session: %w", err)
		}
	}
	if t.cfg.PlotPath != "" {
		sinks = append(sinks, telemetry.NewTrajectoryPlot(t.cfg.PlotPath, "Marker trajectory "+session.ID()))
	}
	return sinks, nil
}

func (t *Tracker) frameSinks(source *video.Source) []trackers.FrameSink[gocv.Mat] {
	var sinks []trackers.FrameSink[gocv.Mat]
	annotator := video.NewAnnotator(t.calibration, t.cfg.MarkerSize/2)
	fps := t.cfg.RecordFPS
	if fps == 0 {
		fps = source.FPS(defaultRecordFPS)
	}
	if t.cfg.RawVideoPath != "" {
		sinks = append(sinks, video.NewRecorder(t.cfg.RawVideoPath, fps, nil))
	}
	if t.cfg.AnnotatedVideoPath != "" {
		sinks = append(sinks, video.NewRecorder(t.cfg.AnnotatedVideoPath, fps, annotator))
	}
	if t.cfg.Preview {
		sinks = append(sinks, video.NewPreview("marker tracker", t.cfg.KeyDelayMs, annotator))
	}
	return sinks
}

func (t *Tracker) markerLabel() string {
	if t.cfg.MarkerID == video.AnyMarker {
		return fmt.Sprintf("any %s marker", t.cfg.Dictionary)
	}
	return fmt.Sprintf("%s marker %d", t.cfg.Dictionary, t.cfg.MarkerID)
}
