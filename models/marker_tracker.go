package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	genericservice "go.viam.com/rdk/services/generic"
	"go.viam.com/rdk/spatialmath"
	rdk_utils "go.viam.com/utils"
	"gocv.io/x/gocv"

	"markertracker/calibrators"
	"markertracker/telemetry"
	"markertracker/trackers"
	"markertracker/utils"
	"markertracker/video"
)

var (
	MarkerTracker = resource.NewModel("viam", "marker-pose-tracker", "marker-tracker")
)

func init() {
	resource.RegisterService(genericservice.API, MarkerTracker,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newMarkerTracker,
		},
	)
}

const (
	defaultMarkerDictionary = "6x6_250"
	defaultUpdateRateHz     = 10.0
)

type Config struct {
	CameraName       string                       `json:"camera_name"`
	CameraSourceName string                       `json:"camera_source_name,omitempty"` // which image of the camera to use
	Calibration      *calibrators.CalibrationFile `json:"calibration,omitempty"`        // overrides the camera's intrinsics
	MarkerDictionary string                       `json:"marker_dictionary"`
	MarkerID         *int                         `json:"marker_id,omitempty"` // unset tracks the largest marker
	MarkerSizeMM     float64                      `json:"marker_size_mm"`
	OutputSigns      string                       `json:"output_signs,omitempty"`
	Contrast         float64                      `json:"contrast,omitempty"` // percent, -100..100
	UpdateRateHz     float64                      `json:"update_rate_hz"`
	EnableOnStart    bool                         `json:"enable_on_start"`
	SQLitePath       string                       `json:"sqlite_path,omitempty"`
	PadPose          *PadPose                     `json:"pad_pose,omitempty"` // pad frame in the robot's world frame
}

// PadPose places the landing pad in the robot's world frame. Angles are in degrees.
type PadPose struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	RollDeg  float64 `json:"roll_deg"`
	PitchDeg float64 `json:"pitch_deg"`
	YawDeg   float64 `json:"yaw_deg"`
}

// Pose returns the pad pose as a spatialmath pose.
func (p *PadPose) Pose() spatialmath.Pose {
	if p == nil {
		return nil
	}
	return spatialmath.NewPose(r3.Vector{X: p.X, Y: p.Y, Z: p.Z}, &spatialmath.EulerAngles{
		Roll:  utils.DegreesToRadians(p.RollDeg),
		Pitch: utils.DegreesToRadians(p.PitchDeg),
		Yaw:   utils.DegreesToRadians(p.YawDeg),
	})
}

// Validate ensures all parts of the config are valid and important fields exist.
// Returns implicit required (first return) and optional (second return) dependencies based on the config.
// The path is the JSON path in your robot's config (not the `Config` struct) to the
// resource being validated; e.g. "services.0".
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.CameraName == "" {
		return nil, nil, errors.New("camera_name is required")
	}
	if cfg.MarkerSizeMM <= 0 {
		return nil, nil, errors.New("marker_size_mm must be greater than 0")
	}
	if cfg.MarkerDictionary == "" {
		cfg.MarkerDictionary = defaultMarkerDictionary
	}
	if cfg.UpdateRateHz == 0 {
		cfg.UpdateRateHz = defaultUpdateRateHz
	}
	if cfg.UpdateRateHz < 0 {
		return nil, nil, errors.New("update_rate_hz must be greater than 0")
	}
	if cfg.MarkerID != nil && *cfg.MarkerID < 0 {
		return nil, nil, errors.New("marker_id must not be negative")
	}
	if cfg.Contrast < -100 || cfg.Contrast > 100 {
		return nil, nil, errors.New("contrast must be between -100 and 100")
	}
	if cfg.OutputSigns != "" {
		if _, err := utils.ParseOutputSigns(cfg.OutputSigns); err != nil {
			return nil, nil, fmt.Errorf("output_signs: %w", err)
		}
	}
	if cfg.Calibration != nil {
		if _, err := cfg.Calibration.ToCalibration(); err != nil {
			return nil, nil, fmt.Errorf("calibration: %w", err)
		}
	}
	return []string{cfg.CameraName}, nil, nil
}

func (cfg *Config) convention() (utils.AxisConvention, error) {
	convention := utils.DefaultAxisConvention
	if cfg.OutputSigns == "" {
		return convention, nil
	}
	signs, err := utils.ParseOutputSigns(cfg.OutputSigns)
	if err != nil {
		return utils.AxisConvention{}, err
	}
	convention.OutputSigns = signs
	return convention, nil
}

func (cfg *Config) markerID() int {
	if cfg.MarkerID == nil {
		return video.AnyMarker
	}
	return *cfg.MarkerID
}

type markerTracker struct {
	resource.AlwaysRebuild
	name resource.Name

	logger logging.Logger
	cfg    *Config

	cam          camera.Camera
	calibration  *calibrators.CameraCalibration
	preprocessor *video.Preprocessor
	session      *trackers.Session
	padPose      spatialmath.Pose

	mu      sync.Mutex
	running bool
	lastErr error
	worker  *rdk_utils.StoppableWorkers
}

func newMarkerTracker(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}

	return NewMarkerTracker(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewMarkerTracker(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *Config, logger logging.Logger) (resource.Resource, error) {
	configJSON, _ := json.MarshalIndent(conf, "", "  ")
	logger.Debugf("Creating marker tracker with the following config:\n%s", configJSON)

	cam, err := camera.FromDependencies(deps, conf.CameraName)
	if err != nil {
		return nil, fmt.Errorf("failed to get camera %q: %w", conf.CameraName, err)
	}

	calibration, err := resolveCalibration(ctx, conf, cam)
	if err != nil {
		return nil, err
	}

	convention, err := conf.convention()
	if err != nil {
		return nil, err
	}
	converter, err := utils.NewPoseFrameConverter(convention)
	if err != nil {
		return nil, err
	}

	s := &markerTracker{
		name:         name,
		logger:       logger,
		cfg:          conf,
		cam:          cam,
		calibration:  calibration,
		preprocessor: video.NewPreprocessor(float32(conf.Contrast)),
		session:      trackers.NewSession(converter),
		padPose:      conf.PadPose.Pose(),
	}

	if conf.EnableOnStart {
		if err := s.start(); err != nil {
			return nil, err
		}
		s.logger.Info("Marker tracker started")
	}
	return s, nil
}

func resolveCalibration(ctx context.Context, conf *Config, cam camera.Camera) (*calibrators.CameraCalibration, error) {
	if conf.Calibration != nil {
		return conf.Calibration.ToCalibration()
	}
	props, err := cam.Properties(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get camera properties: %w", err)
	}
	calibration, err := calibrators.FromProperties(props)
	if err != nil {
		return nil, fmt.Errorf("camera %q has no usable intrinsics, set calibration in the config: %w", conf.CameraName, err)
	}
	return calibration, nil
}

func (s *markerTracker) Name() resource.Name {
	return s.name
}

// Close implements resource.Resource.
func (s *markerTracker) Close(ctx context.Context) error {
	s.stop()
	return nil
}

func (s *markerTracker) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("tracking is already running")
	}

	estimator, err := video.NewArucoEstimator(s.cfg.MarkerDictionary, s.cfg.markerID(), s.cfg.MarkerSizeMM, s.calibration)
	if err != nil {
		return err
	}
	sinks := []trackers.RecordSink{trackers.NewLogSink(s.logger)}
	if s.cfg.SQLitePath != "" {
		store, err := telemetry.Open(s.cfg.SQLitePath)
		if err != nil {
			estimator.Close()
			return fmt.Errorf("opening telemetry store: %w", err)
		}
		if err := store.StartSession(telemetry.SessionInfo{
			ID:         s.session.ID(),
			StartedAt:  time.Now(),
			Source:     s.cfg.CameraName,
			Convention: s.session.Convention().String(),
		}); err != nil {
			s.logger.Warnf("Failed to register session: %v", err)
		}
		sinks = append(sinks, store)
	}

	source := newCameraSource(s.cam, s.cfg.CameraSourceName, s.cfg.UpdateRateHz, s.preprocessor, s.logger)
	driver, err := trackers.NewDriver(trackers.DriverConfig[gocv.Mat]{
		Source:      source,
		Estimator:   estimator,
		Session:     s.session,
		RecordSinks: sinks,
		Release:     video.ReleaseMat,
		Logger:      s.logger,
	})
	if err != nil {
		estimator.Close()
		source.Close()
		trackers.MultiSink(sinks).Close()
		return err
	}

	s.running = true
	s.lastErr = nil
	s.worker = rdk_utils.NewBackgroundStoppableWorkers(func(ctx context.Context) {
		defer estimator.Close()
		s.logger.Infof("Starting tracking loop at %.1f Hz", s.cfg.UpdateRateHz)
		err := driver.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Errorf("Tracking loop stopped: %v", err)
		}
		s.mu.Lock()
		s.running = false
		if !errors.Is(err, context.Canceled) {
			s.lastErr = err
		}
		s.mu.Unlock()
	})
	return nil
}

func (s *markerTracker) stop() bool {
	s.mu.Lock()
	worker := s.worker
	s.worker = nil
	s.mu.Unlock()
	if worker == nil {
		return false
	}
	worker.Stop()
	return true
}

func (s *markerTracker) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *markerTracker) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	s.logger.Debugf("DoCommand: %+v", cmd)
	switch cmd["command"] {
	case "start":
		if err := s.start(); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "started", "session_id": s.session.ID()}, nil

	case "stop":
		if !s.stop() {
			return map[string]interface{}{"status": "not running"}, nil
		}
		return map[string]interface{}{"status": "stopped"}, nil

	case "get-latest-pose":
		rec, ok := s.session.Latest()
		if !ok {
			return nil, errors.New("no marker pose recorded yet")
		}
		return latestPoseResponse(rec, s.padPose, time.Now()), nil

	case "get-stats":
		return s.statsResponse(), nil

	case "reset":
		s.session.Reset()
		return map[string]interface{}{"status": "reset", "session_id": s.session.ID()}, nil

	default:
		return nil, fmt.Errorf("invalid command: %v", cmd["command"])
	}
}

// latestPoseResponse reports a record for get-latest-pose. With a pad pose the position is also
// given in the robot's world frame.
func latestPoseResponse(rec trackers.Record, padPose spatialmath.Pose, now time.Time) map[string]interface{} {
	pose := utils.GlobalPoseToPose(utils.GlobalPose{Position: rec.Position, Euler: rec.Euler})
	euler := rec.Euler.Degrees()
	resp := map[string]interface{}{
		"session_id":  rec.SessionID,
		"seq":         rec.Seq,
		"marker_id":   rec.MarkerID,
		"pose":        utils.PoseToMap(pose),
		"position":    utils.VectorToMap(rec.Position),
		"camera":      utils.VectorToMap(rec.CameraTranslation),
		"euler_deg":   map[string]interface{}{"roll": euler.Roll, "pitch": euler.Pitch, "yaw": euler.Yaw},
		"age_ms":      float64(now.Sub(rec.WallTime)) / float64(time.Millisecond),
		"avg_fps":     rec.AvgFPS,
		"avg_dur_ms":  rec.AvgDurationMs,
		"reproj_rmse": rec.ReprojectionError,
	}
	if padPose != nil {
		resp["world_position"] = utils.VectorToMap(utils.TransformPointToFrame(padPose, rec.Position))
		padYaw := padPose.Orientation().EulerAngles().Yaw
		resp["world_heading_deg"] = utils.RadiansToDegrees(utils.WrapAngleRad(rec.Euler.Yaw + padYaw))
	}
	return resp
}

func (s *markerTracker) statsResponse() map[string]interface{} {
	stats := s.session.Stats()
	resp := map[string]interface{}{
		"session_id":      stats.SessionID,
		"running":         s.isRunning(),
		"processed":       stats.Processed,
		"skipped":         stats.Skipped,
		"avg_duration_ms": stats.AvgDurationMs,
		"avg_fps":         stats.AvgFPS,
		"started":         stats.Started.Format(time.RFC3339),
		"convention":      s.session.Convention().String(),
	}
	s.mu.Lock()
	if s.lastErr != nil {
		resp["last_error"] = s.lastErr.Error()
	}
	s.mu.Unlock()
	return resp
}
