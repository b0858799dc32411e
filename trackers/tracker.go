package trackers

import (
	"context"
	"errors"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

var (
	// ErrReadFailed is returned by a FrameSource when a frame could not be read mid-stream.
	ErrReadFailed = errors.New("unable to read next frame")
	// ErrStopRequested is returned by a FrameSink to end the loop (for example ESC in a preview window).
	ErrStopRequested = errors.New("stop requested")
)

// FrameMeta describes where a frame came from in its stream.
type FrameMeta struct {
	Index      int           // frame position reported by the source
	StreamTime time.Duration // stream position (video files) or time since open (devices)
	Captured   time.Time
}

// MarkerPose is a marker's pose in camera coordinates.
type MarkerPose struct {
	ID                int
	Corners           [4]r2.Point // pixel corners in detector order: TL, TR, BR, BL
	Rotation          r3.Vector   // axis-angle rotation vector, radians
	Translation       r3.Vector   // same unit as the marker size
	ReprojectionError float64     // RMS, normalized image units
}

// FrameSource yields frames until it returns io.EOF or ErrReadFailed.
type FrameSource[F any] interface {
	Next(ctx context.Context) (F, FrameMeta, error)
	Close() error
}

// PoseEstimator finds the tracked marker in a frame. ok is false when no marker was found.
type PoseEstimator[F any] interface {
	DetectAndSolvePose(frame F) (pose MarkerPose, ok bool, err error)
}

// FrameResult is what the loop learned about one frame.
type FrameResult struct {
	Meta     FrameMeta
	Detected bool
	Pose     MarkerPose
	Record   *Record // nil when nothing was detected or the pose was rejected
}

// FrameSink consumes every frame read, whether or not a marker was found.
type FrameSink[F any] interface {
	WriteFrame(frame F, result FrameResult) error
	Close() error
}

// RecordSink consumes the records of successfully processed frames.
type RecordSink interface {
	WriteRecord(rec Record) error
	Close() error
}
