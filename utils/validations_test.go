package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
)

func TestSummarizeTrajectory(t *testing.T) {
	points := []r3.Vector{
		{X: 0, Y: 0, Z: -5},
		{X: 3, Y: 0, Z: -5},
		{X: 3, Y: 4, Z: -5},
	}
	s := SummarizeTrajectory(points)
	if s.Points != 3 {
		t.Errorf("Points: got %d", s.Points)
	}
	if !vectorsAlmostEqual(s.Mean, r3.Vector{X: 2, Y: 4.0 / 3, Z: -5}, 1e-9) {
		t.Errorf("Mean: got %+v", s.Mean)
	}
	if abs(s.StdDev.Z) > 1e-12 {
		t.Errorf("constant Z should have zero spread, got %f", s.StdDev.Z)
	}
	if abs(s.PathLen-7) > 1e-9 {
		t.Errorf("PathLen: got %f, want 7", s.PathLen)
	}
	if abs(s.Distance-5) > 1e-9 {
		t.Errorf("Distance: got %f, want 5", s.Distance)
	}
	if s.Min != (r3.Vector{X: 0, Y: 0, Z: -5}) || s.Max != (r3.Vector{X: 3, Y: 4, Z: -5}) {
		t.Errorf("bounds: got %+v .. %+v", s.Min, s.Max)
	}
}

func TestPrintTrajectorySummary(t *testing.T) {
	var buf bytes.Buffer
	PrintTrajectorySummary(&buf, SummarizeTrajectory(nil))
	if !strings.Contains(buf.String(), "No marker detections") {
		t.Errorf("empty summary should warn, got %q", buf.String())
	}

	buf.Reset()
	PrintTrajectorySummary(&buf, SummarizeTrajectory([]r3.Vector{{X: 1, Y: 2, Z: 3}}))
	out := buf.String()
	if !strings.Contains(out, "Points: 1") || !strings.Contains(out, "Fewer than 3 detections") {
		t.Errorf("unexpected summary output %q", out)
	}
}
