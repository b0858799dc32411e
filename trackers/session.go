package trackers

import (
	"fmt"
	"sync"
	"time"

	"markertracker/utils"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
)

// Record is one processed frame with a detected marker.
type Record struct {
	SessionID         string            `json:"session_id"`
	Seq               int               `json:"seq"`
	FrameIndex        int               `json:"frame_index"`
	StreamTime        time.Duration     `json:"stream_time"`
	WallTime          time.Time         `json:"wall_time"`
	RunningTime       time.Duration     `json:"running_time"`
	Duration          time.Duration     `json:"duration"`
	AvgDurationMs     float64           `json:"avg_duration_ms"`
	AvgFPS            float64           `json:"avg_fps"`
	MarkerID          int               `json:"marker_id"`
	CameraTranslation r3.Vector         `json:"camera_translation"`
	Position          r3.Vector         `json:"position"`
	Euler             utils.EulerAngles `json:"euler"`
	ReprojectionError float64           `json:"reprojection_error"`
}

// SessionStats summarizes a session for status queries.
type SessionStats struct {
	SessionID     string
	Started       time.Time
	Processed     int
	Skipped       int
	AvgDurationMs float64
	AvgFPS        float64
}

// Session owns the per-run state: smoothing averages, counters and the most recent record.
type Session struct {
	mu        sync.Mutex
	converter *utils.PoseFrameConverter
	smoother  *TimingSmoother
	now       func() time.Time

	id      string
	started time.Time
	seq     int
	skipped int
	latest  *Record
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionClock replaces time.Now for both the session and its smoother.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// WithSmoother uses a preconfigured smoother.
func WithSmoother(smoother *TimingSmoother) SessionOption {
	return func(s *Session) {
		s.smoother = smoother
	}
}

func NewSession(converter *utils.PoseFrameConverter, opts ...SessionOption) *Session {
	s := &Session{
		converter: converter,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.smoother == nil {
		s.smoother = NewTimingSmoother(WithClock(s.now))
	}
	s.id = uuid.NewString()
	s.started = s.now()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Convention returns the axis convention used for conversions.
func (s *Session) Convention() utils.AxisConvention {
	return s.converter.Convention()
}

// Process converts a detected pose to the world frame and updates the timing averages.
// A pose whose rotation fails the orthonormality check is counted as skipped and leaves the
// averages untouched.
func (s *Session) Process(meta FrameMeta, pose MarkerPose, duration time.Duration) (Record, error) {
	global, err := s.converter.ConvertToGlobal(pose.Rotation, pose.Translation)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.skipped++
		return Record{}, fmt.Errorf("frame %d: %w", meta.Index, err)
	}

	now := s.now()
	s.seq++
	rec := Record{
		SessionID:         s.id,
		Seq:               s.seq,
		FrameIndex:        meta.Index,
		StreamTime:        meta.StreamTime,
		WallTime:          now,
		RunningTime:       now.Sub(s.started),
		Duration:          duration,
		AvgDurationMs:     s.smoother.AddDuration(duration),
		AvgFPS:            s.smoother.Tick(),
		MarkerID:          pose.ID,
		CameraTranslation: pose.Translation,
		Position:          global.Position,
		Euler:             global.Euler,
		ReprojectionError: pose.ReprojectionError,
	}
	s.latest = &rec
	return rec, nil
}

// Latest returns the most recent record, if any.
func (s *Session) Latest() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Record{}, false
	}
	return *s.latest, true
}

func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStats{
		SessionID:     s.id,
		Started:       s.started,
		Processed:     s.seq,
		Skipped:       s.skipped,
		AvgDurationMs: s.smoother.AverageDuration(),
		AvgFPS:        s.smoother.AverageFPS(),
	}
}

// Reset starts a new session: fresh id, counters and averages.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smoother.Reset()
	s.id = uuid.NewString()
	s.started = s.now()
	s.seq = 0
	s.skipped = 0
	s.latest = nil
}
