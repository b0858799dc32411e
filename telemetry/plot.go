package telemetry

import (
	"fmt"
	"image/color"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"markertracker/trackers"
)

var axisLineColors = []color.Color{
	color.RGBA{R: 214, G: 39, B: 40, A: 255},
	color.RGBA{R: 44, G: 160, B: 44, A: 255},
	color.RGBA{R: 31, G: 119, B: 180, A: 255},
}

// TrajectoryPlot collects world positions and writes a PNG of X, Y and Z over the run when closed.
type TrajectoryPlot struct {
	mu     sync.Mutex
	path   string
	title  string
	points [3]plotter.XYs
	top    plotter.XYs
}

// NewTrajectoryPlot returns a sink that plots to path on Close. The format follows the extension.
func NewTrajectoryPlot(path, title string) *TrajectoryPlot {
	return &TrajectoryPlot{path: path, title: title}
}

// WriteRecord implements trackers.RecordSink.
func (t *TrajectoryPlot) WriteRecord(rec trackers.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	x := rec.RunningTime.Seconds()
	t.points[0] = append(t.points[0], plotter.XY{X: x, Y: rec.Position.X})
	t.points[1] = append(t.points[1], plotter.XY{X: x, Y: rec.Position.Y})
	t.points[2] = append(t.points[2], plotter.XY{X: x, Y: rec.Position.Z})
	t.top = append(t.top, plotter.XY{X: rec.Position.X, Y: rec.Position.Y})
	return nil
}

// Len returns the number of collected samples.
func (t *TrajectoryPlot) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.top)
}

// Close renders the plot. Nothing is written when no records were collected.
func (t *TrajectoryPlot) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.top) == 0 {
		return nil
	}

	p := plot.New()
	p.Title.Text = t.title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Position"

	for i, name := range []string{"X", "Y", "Z"} {
		line, err := plotter.NewLine(t.points[i])
		if err != nil {
			return err
		}
		line.Color = axisLineColors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(name, line)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Add(plotter.NewGrid())

	if err := p.Save(10*vg.Inch, 5*vg.Inch, t.path); err != nil {
		return fmt.Errorf("save trajectory plot: %w", err)
	}
	return nil
}

// SaveTopView writes the X/Y ground track as a scatter plot.
func (t *TrajectoryPlot) SaveTopView(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.top) == 0 {
		return fmt.Errorf("no samples to plot")
	}

	p := plot.New()
	p.Title.Text = t.title + " (top view)"
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	scatter, err := plotter.NewScatter(t.top)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(scatter, plotter.NewGrid())

	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save top view plot: %w", err)
	}
	return nil
}
