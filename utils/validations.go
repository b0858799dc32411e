package utils

import (
	"fmt"
	"io"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"
)

// TrajectorySummary describes the spread of the world positions recorded during a run.
type TrajectorySummary struct {
	Points   int
	Mean     r3.Vector
	StdDev   r3.Vector
	Min      r3.Vector
	Max      r3.Vector
	PathLen  float64
	Distance float64 // straight line distance between the first and last point
}

// SummarizeTrajectory computes mean, spread and path length of a sequence of positions.
func SummarizeTrajectory(points []r3.Vector) TrajectorySummary {
	n := len(points)
	summary := TrajectorySummary{Points: n}
	if n == 0 {
		return summary
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	zs := make([]float64, n)
	summary.Min = r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	summary.Max = r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for i, p := range points {
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
		summary.Min = r3.Vector{X: math.Min(summary.Min.X, p.X), Y: math.Min(summary.Min.Y, p.Y), Z: math.Min(summary.Min.Z, p.Z)}
		summary.Max = r3.Vector{X: math.Max(summary.Max.X, p.X), Y: math.Max(summary.Max.Y, p.Y), Z: math.Max(summary.Max.Z, p.Z)}
		if i > 0 {
			summary.PathLen += p.Distance(points[i-1])
		}
	}
	summary.Distance = points[n-1].Distance(points[0])

	summary.Mean.X, summary.StdDev.X = meanStdDev(xs)
	summary.Mean.Y, summary.StdDev.Y = meanStdDev(ys)
	summary.Mean.Z, summary.StdDev.Z = meanStdDev(zs)
	return summary
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(values []float64) (float64, float64) {
	mean := stat.Mean(values, nil)
	if len(values) < 2 {
		return mean, 0
	}
	return mean, stat.PopStdDev(values, nil)
}

// PrintTrajectorySummary writes a human readable run summary.
func PrintTrajectorySummary(w io.Writer, s TrajectorySummary) {
	fmt.Fprintf(w, "Trajectory summary:\n")
	fmt.Fprintf(w, "  Points: %d\n", s.Points)
	if s.Points == 0 {
		fmt.Fprintln(w, "  ⚠️  No marker detections")
		return
	}
	fmt.Fprintf(w, "  Mean:   X=%.3f, Y=%.3f, Z=%.3f\n", s.Mean.X, s.Mean.Y, s.Mean.Z)
	fmt.Fprintf(w, "  Spread: X=%.3f, Y=%.3f, Z=%.3f\n", s.StdDev.X, s.StdDev.Y, s.StdDev.Z)
	fmt.Fprintf(w, "  Range:  X=[%.3f, %.3f], Y=[%.3f, %.3f], Z=[%.3f, %.3f]\n",
		s.Min.X, s.Max.X, s.Min.Y, s.Max.Y, s.Min.Z, s.Max.Z)
	fmt.Fprintf(w, "  Path length: %.3f (net displacement %.3f)\n", s.PathLen, s.Distance)
	if s.Points < 3 {
		fmt.Fprintln(w, "  ⚠️  Fewer than 3 detections")
	}
}
