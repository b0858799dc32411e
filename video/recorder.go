package video

import (
	"fmt"

	"gocv.io/x/gocv"

	"markertracker/trackers"
)

// DefaultCodec is the FourCC used for recordings.
const DefaultCodec = "MJPG"

// Recorder writes every frame to a video file. The writer is opened on the first frame so the
// output takes the frame size of the stream.
type Recorder struct {
	path      string
	codec     string
	fps       float64
	annotator *Annotator
	writer    *gocv.VideoWriter
}

// NewRecorder records raw frames, or annotated ones when annotator is not nil.
func NewRecorder(path string, fps float64, annotator *Annotator) *Recorder {
	return &Recorder{
		path:      path,
		codec:     DefaultCodec,
		fps:       fps,
		annotator: annotator,
	}
}

// WriteFrame implements trackers.FrameSink.
func (r *Recorder) WriteFrame(frame gocv.Mat, result trackers.FrameResult) error {
	if r.writer == nil {
		w, err := gocv.VideoWriterFile(r.path, r.codec, r.fps, frame.Cols(), frame.Rows(), frame.Channels() > 1)
		if err != nil {
			return fmt.Errorf("opening video writer %q: %w", r.path, err)
		}
		r.writer = w
	}
	if r.annotator == nil {
		return r.writer.Write(frame)
	}
	annotated := r.annotator.Draw(frame, result)
	defer annotated.Close()
	return r.writer.Write(annotated)
}

func (r *Recorder) Close() error {
	if r.writer == nil {
		return nil
	}
	return r.writer.Close()
}
