package video

import (
	"gocv.io/x/gocv"

	"markertracker/trackers"
)

const (
	keyNone   = -1
	keyEscape = 27
)

type keyAction int

const (
	actionContinue keyAction = iota
	actionPause
	actionStop
)

func actionForKey(key int) keyAction {
	switch key {
	case keyEscape, 'q', 'Q':
		return actionStop
	case 'p', 'P', ' ':
		return actionPause
	default:
		return actionContinue
	}
}

// Preview shows frames in a window. ESC or q stops tracking; p or space pauses until the next key.
type Preview struct {
	window    *gocv.Window
	delayMs   int
	annotator *Annotator
}

// NewPreview opens a window. delayMs is how long each frame waits for a key press.
func NewPreview(title string, delayMs int, annotator *Annotator) *Preview {
	if delayMs <= 0 {
		delayMs = 1
	}
	return &Preview{
		window:    gocv.NewWindow(title),
		delayMs:   delayMs,
		annotator: annotator,
	}
}

// WriteFrame implements trackers.FrameSink.
func (p *Preview) WriteFrame(frame gocv.Mat, result trackers.FrameResult) error {
	if p.annotator != nil {
		annotated := p.annotator.Draw(frame, result)
		defer annotated.Close()
		p.window.IMShow(annotated)
	} else {
		p.window.IMShow(frame)
	}

	switch actionForKey(p.window.WaitKey(p.delayMs)) {
	case actionStop:
		return trackers.ErrStopRequested
	case actionPause:
		key := keyNone
		for key == keyNone {
			key = p.window.WaitKey(0)
		}
		if actionForKey(key) == actionStop {
			return trackers.ErrStopRequested
		}
	}
	return nil
}

func (p *Preview) Close() error {
	return p.window.Close()
}
