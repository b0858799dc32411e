package trackers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.viam.com/rdk/logging"

	"markertracker/utils"
)

// DriverConfig wires the pieces of a tracking loop together.
type DriverConfig[F any] struct {
	Source      FrameSource[F]
	Estimator   PoseEstimator[F]
	Session     *Session
	RecordSinks []RecordSink
	FrameSinks  []FrameSink[F]
	// Release is called once every frame sink has seen a frame. Optional.
	Release func(F)
	Logger  logging.Logger
}

// Driver runs the read, detect, convert, record loop until the source is exhausted,
// a sink asks to stop or the context is cancelled.
type Driver[F any] struct {
	source    FrameSource[F]
	estimator PoseEstimator[F]
	session   *Session
	records   []RecordSink
	frames    []FrameSink[F]
	release   func(F)
	logger    logging.Logger
}

func NewDriver[F any](cfg DriverConfig[F]) (*Driver[F], error) {
	if cfg.Source == nil {
		return nil, errors.New("driver needs a frame source")
	}
	if cfg.Estimator == nil {
		return nil, errors.New("driver needs a pose estimator")
	}
	if cfg.Session == nil {
		return nil, errors.New("driver needs a session")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("driver")
	}
	return &Driver[F]{
		source:    cfg.Source,
		estimator: cfg.Estimator,
		session:   cfg.Session,
		records:   cfg.RecordSinks,
		frames:    cfg.FrameSinks,
		release:   cfg.Release,
		logger:    cfg.Logger,
	}, nil
}

// Session returns the session records are produced by.
func (d *Driver[F]) Session() *Session {
	return d.session
}

// Run blocks until the loop ends. End of stream, read failures and stop requests end the loop
// without an error; context cancellation returns ctx.Err(). The source and all sinks are closed
// before Run returns.
func (d *Driver[F]) Run(ctx context.Context) (err error) {
	defer func() {
		if closeErr := d.closeAll(); closeErr != nil {
			d.logger.Errorf("Error closing tracker outputs: %v", closeErr)
			if err == nil {
				err = closeErr
			}
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, meta, err := d.source.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			d.logger.Info("End of stream reached. Ending tracking.")
			return nil
		case errors.Is(err, ErrReadFailed):
			d.logger.Warnf("Unable to read next frame. Ending tracking: %v", err)
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("reading frame: %w", err)
		}

		stop, err := d.step(frame, meta)
		if d.release != nil {
			d.release(frame)
		}
		if err != nil {
			return err
		}
		if stop {
			d.logger.Info("Stop requested. Ending tracking.")
			return nil
		}
	}
}

func (d *Driver[F]) step(frame F, meta FrameMeta) (bool, error) {
	result := FrameResult{Meta: meta}

	start := time.Now()
	pose, ok, err := d.estimator.DetectAndSolvePose(frame)
	duration := time.Since(start)
	switch {
	case err != nil:
		d.logger.Warnf("Pose estimation failed on frame %d: %v", meta.Index, err)
	case ok:
		result.Detected = true
		result.Pose = pose
		rec, err := d.session.Process(meta, pose, duration)
		if err != nil {
			if !utils.IsInvalidRotation(err) {
				return false, err
			}
			d.logger.Errorf("Skipping frame with invalid rotation: %v", err)
			break
		}
		result.Record = &rec
		for _, sink := range d.records {
			if err := sink.WriteRecord(rec); err != nil {
				return false, fmt.Errorf("writing record %d: %w", rec.Seq, err)
			}
		}
	default:
		d.logger.Debugf("No marker in frame %d", meta.Index)
	}

	stop := false
	for _, sink := range d.frames {
		err := sink.WriteFrame(frame, result)
		switch {
		case err == nil:
		case errors.Is(err, ErrStopRequested):
			stop = true
		default:
			return false, fmt.Errorf("writing frame %d: %w", meta.Index, err)
		}
	}
	return stop, nil
}

func (d *Driver[F]) closeAll() error {
	var errs []error
	if err := d.source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing source: %w", err))
	}
	for _, sink := range d.frames {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, sink := range d.records {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
