package trackers

import (
	"time"
)

const (
	defaultDurationAlpha = 0.98
	defaultFPSAlpha      = 0.7
	fpsBucket            = time.Second
)

// TimingSmoother keeps exponential moving averages of per-frame processing time and frame rate.
// It is not safe for concurrent use; Session guards it.
type TimingSmoother struct {
	durationAlpha float64
	fpsAlpha      float64
	now           func() time.Time

	avgDuration float64 // milliseconds
	avgFPS      float64
	bucketStart time.Time
	bucketCount int
}

// SmootherOption configures a TimingSmoother.
type SmootherOption func(*TimingSmoother)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SmootherOption {
	return func(s *TimingSmoother) {
		s.now = now
	}
}

// WithAlphas sets the weight kept from the previous average for duration and FPS.
func WithAlphas(durationAlpha, fpsAlpha float64) SmootherOption {
	return func(s *TimingSmoother) {
		s.durationAlpha = durationAlpha
		s.fpsAlpha = fpsAlpha
	}
}

func NewTimingSmoother(opts ...SmootherOption) *TimingSmoother {
	s := &TimingSmoother{
		durationAlpha: defaultDurationAlpha,
		fpsAlpha:      defaultFPSAlpha,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddDuration folds a processing time into the running average and returns it in milliseconds.
func (s *TimingSmoother) AddDuration(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	s.avgDuration = s.durationAlpha*s.avgDuration + (1-s.durationAlpha)*ms
	return s.avgDuration
}

// Tick counts one processed frame and returns the smoothed frames per second.
// The average only moves when more than a second has passed since the current bucket opened,
// so the first call of a session reports the previous (initially zero) value.
func (s *TimingSmoother) Tick() float64 {
	now := s.now()
	if now.Sub(s.bucketStart) > fpsBucket {
		s.bucketStart = now
		s.avgFPS = s.fpsAlpha*s.avgFPS + (1-s.fpsAlpha)*float64(s.bucketCount)
		s.bucketCount = 0
	}
	s.bucketCount++
	return s.avgFPS
}

// AverageDuration returns the current smoothed duration in milliseconds.
func (s *TimingSmoother) AverageDuration() float64 {
	return s.avgDuration
}

// AverageFPS returns the current smoothed frame rate.
func (s *TimingSmoother) AverageFPS() float64 {
	return s.avgFPS
}

// Reset clears all averages and the FPS bucket.
func (s *TimingSmoother) Reset() {
	s.avgDuration = 0
	s.avgFPS = 0
	s.bucketStart = time.Time{}
	s.bucketCount = 0
}
