package trackers

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

// fakeSource yields frame numbers 1..len(frames) then endErr.
type fakeSource struct {
	frames []int
	pos    int
	endErr error
	closed bool
}

func (f *fakeSource) Next(ctx context.Context) (int, FrameMeta, error) {
	if f.pos >= len(f.frames) {
		return 0, FrameMeta{}, f.endErr
	}
	frame := f.frames[f.pos]
	f.pos++
	return frame, FrameMeta{Index: frame}, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

type fakeEstimator struct {
	poses map[int]MarkerPose
	errs  map[int]error
}

func (f *fakeEstimator) DetectAndSolvePose(frame int) (MarkerPose, bool, error) {
	if err, ok := f.errs[frame]; ok {
		return MarkerPose{}, false, err
	}
	pose, ok := f.poses[frame]
	return pose, ok, nil
}

type fakeFrameSink struct {
	seen    []FrameResult
	stopAt  int
	closed  bool
	failErr error
}

func (f *fakeFrameSink) WriteFrame(frame int, result FrameResult) error {
	f.seen = append(f.seen, result)
	if f.failErr != nil {
		return f.failErr
	}
	if f.stopAt != 0 && frame == f.stopAt {
		return ErrStopRequested
	}
	return nil
}

func (f *fakeFrameSink) Close() error {
	f.closed = true
	return nil
}

type failingRecordSink struct {
	closed bool
}

func (f *failingRecordSink) WriteRecord(Record) error { return errors.New("disk full") }

func (f *failingRecordSink) Close() error {
	f.closed = true
	return nil
}

type driverFixture struct {
	source    *fakeSource
	estimator *fakeEstimator
	frames    *fakeFrameSink
	records   *MemorySink
	released  []int
	session   *Session
}

func newDriverFixture(t *testing.T, frames []int, endErr error) *driverFixture {
	t.Helper()
	return &driverFixture{
		source: &fakeSource{frames: frames, endErr: endErr},
		estimator: &fakeEstimator{
			poses: map[int]MarkerPose{},
			errs:  map[int]error{},
		},
		frames:  &fakeFrameSink{},
		records: &MemorySink{},
		session: newTestSession(t, newFakeClock()),
	}
}

func (f *driverFixture) driver(t *testing.T, extra ...RecordSink) *Driver[int] {
	t.Helper()
	d, err := NewDriver(DriverConfig[int]{
		Source:      f.source,
		Estimator:   f.estimator,
		Session:     f.session,
		RecordSinks: append([]RecordSink{f.records}, extra...),
		FrameSinks:  []FrameSink[int]{f.frames},
		Release:     func(frame int) { f.released = append(f.released, frame) },
		Logger:      logging.NewTestLogger(t),
	})
	require.NoError(t, err)
	return d
}

func (f *driverFixture) assertClosed(t *testing.T) {
	t.Helper()
	assert.True(t, f.source.closed, "source closed")
	assert.True(t, f.frames.closed, "frame sink closed")
	assert.True(t, f.records.Closed(), "record sink closed")
}

func TestDriverRunsUntilEndOfStream(t *testing.T) {
	f := newDriverFixture(t, []int{1, 2, 3}, io.EOF)
	f.estimator.poses[1] = MarkerPose{ID: 4, Translation: r3.Vector{Z: 5}}
	f.estimator.poses[3] = MarkerPose{ID: 4, Translation: r3.Vector{X: 1, Z: 5}}

	require.NoError(t, f.driver(t).Run(context.Background()))

	records := f.records.Records()
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].FrameIndex)
	assert.Equal(t, 3, records[1].FrameIndex)
	assert.Equal(t, 2, records[1].Seq)
	assert.InDelta(t, -5.0, records[0].Position.Z, 1e-12)
	assert.InDelta(t, 1.0, records[1].Position.X, 1e-12) // -(1) with the X sign flip

	// Every frame reaches the frame sinks, detected or not.
	require.Len(t, f.frames.seen, 3)
	assert.True(t, f.frames.seen[0].Detected)
	assert.NotNil(t, f.frames.seen[0].Record)
	assert.False(t, f.frames.seen[1].Detected)
	assert.Nil(t, f.frames.seen[1].Record)
	assert.Equal(t, []int{1, 2, 3}, f.released)
	f.assertClosed(t)
}

func TestDriverStopsOnReadFailure(t *testing.T) {
	f := newDriverFixture(t, []int{1, 2}, ErrReadFailed)
	f.estimator.poses[2] = MarkerPose{Translation: r3.Vector{Z: 1}}

	require.NoError(t, f.driver(t).Run(context.Background()))
	assert.Len(t, f.records.Records(), 1)
	f.assertClosed(t)
}

func TestDriverStopsOnRequest(t *testing.T) {
	f := newDriverFixture(t, []int{1, 2, 3, 4}, io.EOF)
	f.frames.stopAt = 2

	require.NoError(t, f.driver(t).Run(context.Background()))
	assert.Len(t, f.frames.seen, 2)
	assert.Equal(t, 2, f.source.pos)
	f.assertClosed(t)
}

func TestDriverHonorsCancellation(t *testing.T) {
	f := newDriverFixture(t, []int{1, 2, 3}, io.EOF)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.driver(t).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.frames.seen)
	f.assertClosed(t)
}

func TestDriverSkipsInvalidRotation(t *testing.T) {
	f := newDriverFixture(t, []int{1, 2}, io.EOF)
	nan := math.NaN()
	f.estimator.poses[1] = MarkerPose{Rotation: r3.Vector{X: nan, Y: nan, Z: nan}, Translation: r3.Vector{Z: 1}}
	f.estimator.poses[2] = MarkerPose{Translation: r3.Vector{Z: 1}}

	require.NoError(t, f.driver(t).Run(context.Background()))
	assert.Len(t, f.records.Records(), 1)
	assert.Equal(t, 1, f.session.Stats().Skipped)
	require.Len(t, f.frames.seen, 2)
	assert.True(t, f.frames.seen[0].Detected)
	assert.Nil(t, f.frames.seen[0].Record)
}

func TestDriverContinuesAfterEstimatorError(t *testing.T) {
	f := newDriverFixture(t, []int{1, 2}, io.EOF)
	f.estimator.errs[1] = errors.New("corner refinement failed")
	f.estimator.poses[2] = MarkerPose{Translation: r3.Vector{Z: 1}}

	require.NoError(t, f.driver(t).Run(context.Background()))
	assert.Len(t, f.records.Records(), 1)
	assert.Len(t, f.frames.seen, 2)
}

func TestDriverReturnsSinkErrors(t *testing.T) {
	f := newDriverFixture(t, []int{1, 2}, io.EOF)
	f.estimator.poses[1] = MarkerPose{Translation: r3.Vector{Z: 1}}
	failing := &failingRecordSink{}

	err := f.driver(t, failing).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, failing.closed)
	f.assertClosed(t)

	g := newDriverFixture(t, []int{1}, io.EOF)
	g.frames.failErr = errors.New("encoder gone")
	err = g.driver(t).Run(context.Background())
	assert.ErrorContains(t, err, "encoder gone")
	g.assertClosed(t)
}

func TestDriverSourceError(t *testing.T) {
	f := newDriverFixture(t, nil, errors.New("device unplugged"))
	err := f.driver(t).Run(context.Background())
	assert.ErrorContains(t, err, "device unplugged")
	f.assertClosed(t)
}

func TestNewDriverValidation(t *testing.T) {
	f := newDriverFixture(t, nil, io.EOF)
	_, err := NewDriver(DriverConfig[int]{Estimator: f.estimator, Session: f.session})
	assert.Error(t, err)
	_, err = NewDriver(DriverConfig[int]{Source: f.source, Session: f.session})
	assert.Error(t, err)
	_, err = NewDriver(DriverConfig[int]{Source: f.source, Estimator: f.estimator})
	assert.Error(t, err)

	d, err := NewDriver(DriverConfig[int]{Source: f.source, Estimator: f.estimator, Session: f.session})
	require.NoError(t, err)
	assert.Same(t, f.session, d.Session())
}
