package models

import (
	"context"
	"errors"
	"time"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"gocv.io/x/gocv"

	"markertracker/trackers"
	"markertracker/video"
)

// cameraSource polls a Viam camera at a fixed rate and hands grayscale Mats to the driver.
// Failed reads are logged and retried on the next tick; only cancellation ends the stream.
type cameraSource struct {
	cam        camera.Camera
	sourceName string
	pre        *video.Preprocessor
	logger     logging.Logger
	ticker     *time.Ticker
	opened     time.Time
	index      int
}

func newCameraSource(cam camera.Camera, sourceName string, rateHz float64, pre *video.Preprocessor, logger logging.Logger) *cameraSource {
	interval := time.Duration(1.0 / rateHz * float64(time.Second))
	return &cameraSource{
		cam:        cam,
		sourceName: sourceName,
		pre:        pre,
		logger:     logger,
		ticker:     time.NewTicker(interval),
		opened:     time.Now(),
	}
}

// Next implements trackers.FrameSource.
func (c *cameraSource) Next(ctx context.Context) (gocv.Mat, trackers.FrameMeta, error) {
	for {
		select {
		case <-ctx.Done():
			return gocv.Mat{}, trackers.FrameMeta{}, ctx.Err()
		case <-c.ticker.C:
		}

		frame, captured, err := c.read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return gocv.Mat{}, trackers.FrameMeta{}, ctx.Err()
			}
			c.logger.Warnf("Failed to read camera frame: %v", err)
			continue
		}
		c.index++
		return frame, trackers.FrameMeta{
			Index:      c.index,
			StreamTime: captured.Sub(c.opened),
			Captured:   captured,
		}, nil
	}
}

func (c *cameraSource) read(ctx context.Context) (gocv.Mat, time.Time, error) {
	var filter []string
	if c.sourceName != "" {
		filter = []string{c.sourceName}
	}
	imgs, meta, err := c.cam.Images(ctx, filter, nil)
	if err != nil {
		return gocv.Mat{}, time.Time{}, err
	}
	if len(imgs) == 0 {
		return gocv.Mat{}, time.Time{}, errors.New("no images returned from camera")
	}
	img, err := imgs[0].Image(ctx)
	if err != nil {
		return gocv.Mat{}, time.Time{}, err
	}
	mat, err := c.pre.Mat(img)
	if err != nil {
		return gocv.Mat{}, time.Time{}, err
	}
	captured := meta.CapturedAt
	if captured.IsZero() {
		captured = time.Now()
	}
	return mat, captured, nil
}

func (c *cameraSource) Close() error {
	c.ticker.Stop()
	return nil
}
