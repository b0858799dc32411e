package video

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"markertracker/trackers"
)

// Source reads frames from a camera device or a video file.
type Source struct {
	capture *gocv.VideoCapture
	name    string
	isFile  bool
	opened  time.Time
	read    int
}

// OpenSource opens name as a video file if it exists on disk, otherwise as a device index.
func OpenSource(name string) (*Source, error) {
	var (
		capture *gocv.VideoCapture
		err     error
		isFile  bool
	)
	if _, statErr := os.Stat(name); statErr == nil {
		isFile = true
		capture, err = gocv.VideoCaptureFile(name)
	} else {
		id, convErr := strconv.Atoi(name)
		if convErr != nil {
			return nil, fmt.Errorf("%q is neither a video file nor a camera index", name)
		}
		capture, err = gocv.VideoCaptureDevice(id)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read video stream %q, is the camera mount path correct? %w", name, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("unable to read video stream %q, is the camera mount path correct?", name)
	}
	return &Source{
		capture: capture,
		name:    name,
		isFile:  isFile,
		opened:  time.Now(),
	}, nil
}

// Next reads the next frame. The caller owns the returned Mat.
func (s *Source) Next(ctx context.Context) (gocv.Mat, trackers.FrameMeta, error) {
	if err := ctx.Err(); err != nil {
		return gocv.Mat{}, trackers.FrameMeta{}, err
	}
	frame := gocv.NewMat()
	if ok := s.capture.Read(&frame); !ok || frame.Empty() {
		frame.Close()
		if s.isFile {
			return gocv.Mat{}, trackers.FrameMeta{}, io.EOF
		}
		return gocv.Mat{}, trackers.FrameMeta{}, fmt.Errorf("%w from %s", trackers.ErrReadFailed, s.name)
	}
	s.read++

	meta := trackers.FrameMeta{
		Index:    s.read,
		Captured: time.Now(),
	}
	if s.isFile {
		meta.Index = int(s.capture.Get(gocv.VideoCapturePosFrames))
		meta.StreamTime = time.Duration(s.capture.Get(gocv.VideoCapturePosMsec) * float64(time.Millisecond))
	} else {
		meta.StreamTime = meta.Captured.Sub(s.opened)
	}
	return frame, meta, nil
}

// FPS returns the frame rate reported by the backend, or fallback when it reports none.
func (s *Source) FPS(fallback float64) float64 {
	if fps := s.capture.Get(gocv.VideoCaptureFPS); fps > 0 {
		return fps
	}
	return fallback
}

// Size returns the frame width and height reported by the backend.
func (s *Source) Size() (int, int) {
	return int(s.capture.Get(gocv.VideoCaptureFrameWidth)), int(s.capture.Get(gocv.VideoCaptureFrameHeight))
}

func (s *Source) Name() string {
	return s.name
}

func (s *Source) Close() error {
	return s.capture.Close()
}

// ReleaseMat frees a frame once the tracking loop is done with it.
func ReleaseMat(m gocv.Mat) {
	m.Close()
}
