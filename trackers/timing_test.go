package trackers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestAddDurationFirstSample(t *testing.T) {
	s := NewTimingSmoother()
	assert.InDelta(t, 0.2, s.AddDuration(10*time.Millisecond), 1e-12)
	assert.InDelta(t, 0.2*0.98+0.2, s.AddDuration(10*time.Millisecond), 1e-12)
}

func TestAddDurationConvergesToConstantInput(t *testing.T) {
	s := NewTimingSmoother()
	var avg float64
	for i := 0; i < 2000; i++ {
		avg = s.AddDuration(12 * time.Millisecond)
	}
	assert.InDelta(t, 12.0, avg, 1e-6)
	assert.Equal(t, avg, s.AverageDuration())
}

func TestTickBuckets(t *testing.T) {
	clock := newFakeClock()
	s := NewTimingSmoother(WithClock(clock.Now))

	// The first call opens a bucket with nothing counted yet.
	assert.Equal(t, 0.0, s.Tick())
	for i := 0; i < 29; i++ {
		clock.Advance(30 * time.Millisecond)
		assert.Equal(t, 0.0, s.Tick())
	}

	clock.Advance(200 * time.Millisecond)
	assert.InDelta(t, 9.0, s.Tick(), 1e-12) // 0.3 * 30

	clock.Advance(500 * time.Millisecond)
	assert.InDelta(t, 9.0, s.Tick(), 1e-12)

	clock.Advance(600 * time.Millisecond)
	assert.InDelta(t, 0.7*9.0+0.3*2, s.Tick(), 1e-12)
}

func TestTickExactlyOneSecondDoesNotRoll(t *testing.T) {
	clock := newFakeClock()
	s := NewTimingSmoother(WithClock(clock.Now))
	s.Tick()
	clock.Advance(time.Second)
	assert.Equal(t, 0.0, s.Tick())
	clock.Advance(time.Millisecond)
	assert.InDelta(t, 0.6, s.Tick(), 1e-12) // 0.3 * 2
}

func TestSmootherResetAndAlphas(t *testing.T) {
	s := NewTimingSmoother(WithAlphas(0.5, 0.5))
	assert.InDelta(t, 5.0, s.AddDuration(10*time.Millisecond), 1e-12)
	s.Reset()
	assert.Equal(t, 0.0, s.AverageDuration())
	assert.Equal(t, 0.0, s.AverageFPS())
}
