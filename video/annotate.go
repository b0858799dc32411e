package video

import (
	"fmt"
	"image"
	"image/color"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"

	"markertracker/calibrators"
	"markertracker/trackers"
	"markertracker/utils"
)

var (
	outlineColor = color.RGBA{0, 255, 0, 0}
	centerColor  = color.RGBA{0, 0, 255, 0}
	textColor    = color.RGBA{255, 255, 255, 0}
	axisColors   = [3]color.RGBA{{0, 0, 255, 0}, {0, 255, 0, 0}, {255, 0, 0, 0}} // BGR frames: x red, y green, z blue
)

// Annotator draws tracking results onto frames.
type Annotator struct {
	calibration *calibrators.CameraCalibration
	axisLength  float64
}

// NewAnnotator returns an annotator. axisLength is in marker units; zero disables the axes.
func NewAnnotator(calibration *calibrators.CameraCalibration, axisLength float64) *Annotator {
	return &Annotator{calibration: calibration, axisLength: axisLength}
}

// Draw returns an annotated copy of frame. The caller closes it.
func (a *Annotator) Draw(frame gocv.Mat, result trackers.FrameResult) gocv.Mat {
	out := frame.Clone()
	status := fmt.Sprintf("frame %d", result.Meta.Index)

	if result.Detected {
		c := result.Pose.Corners
		for i := range c {
			gocv.Line(&out, pt(c[i]), pt(c[(i+1)%4]), outlineColor, 2)
		}
		center := r2.Point{X: (c[0].X + c[1].X + c[2].X + c[3].X) / 4, Y: (c[0].Y + c[1].Y + c[2].Y + c[3].Y) / 4}
		gocv.Circle(&out, pt(center), 4, centerColor, -1)
		a.drawAxes(&out, result.Pose)
		status = fmt.Sprintf("%s id %d", status, result.Pose.ID)
	}
	if rec := result.Record; rec != nil {
		status = fmt.Sprintf("%s  x %.3f y %.3f z %.3f  fps %.1f", status, rec.Position.X, rec.Position.Y, rec.Position.Z, rec.AvgFPS)
	}
	gocv.PutText(&out, status, image.Pt(10, 20), gocv.FontHersheyPlain, 1.2, textColor, 1)
	return out
}

func (a *Annotator) drawAxes(img *gocv.Mat, pose trackers.MarkerPose) {
	if a.calibration == nil || a.axisLength <= 0 {
		return
	}
	r := utils.Rodrigues(pose.Rotation)
	origin, ok := a.calibration.Project(pose.Translation)
	if !ok {
		return
	}
	axes := [3]r3.Vector{{X: a.axisLength}, {Y: a.axisLength}, {Z: a.axisLength}}
	for i, axis := range axes {
		tip, ok := a.calibration.Project(utils.MulVec(r, axis).Add(pose.Translation))
		if !ok {
			continue
		}
		gocv.Line(img, pt(origin), pt(tip), axisColors[i], 2)
	}
}

func pt(p r2.Point) image.Point {
	return image.Pt(int(p.X+0.5), int(p.Y+0.5))
}
