package trackers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"go.viam.com/rdk/logging"
)

// TableHeader is printed once before the first table row.
const TableHeader = "FrameNo \t Timestamp \t RunningTime \t FPS \t MarkerID \t X \t Y \t Z"

// TimestampLayout renders wall-clock times as day-month hour-minute-second.
const TimestampLayout = "02-01 15-04-05"

// TableSink prints one tab separated row per record. RunningTime is the smoothed processing
// time in milliseconds.
type TableSink struct {
	w           io.Writer
	wroteHeader bool
}

func NewTableSink(w io.Writer) *TableSink {
	return &TableSink{w: w}
}

func (t *TableSink) WriteRecord(rec Record) error {
	if !t.wroteHeader {
		if _, err := fmt.Fprintln(t.w, TableHeader); err != nil {
			return err
		}
		t.wroteHeader = true
	}
	_, err := fmt.Fprintf(t.w, "%d\t%s\t%.3f\t%.2f\t%d\t%.4f\t%.4f\t%.4f\n",
		rec.Seq,
		rec.WallTime.Format(TimestampLayout),
		rec.AvgDurationMs,
		rec.AvgFPS,
		rec.MarkerID,
		rec.Position.X, rec.Position.Y, rec.Position.Z,
	)
	return err
}

func (t *TableSink) Close() error {
	return nil
}

// CSVHeader lists the columns written by CSVSink.
var CSVHeader = []string{
	"session_id", "seq", "frame_index", "stream_ms", "wall_time", "running_ms",
	"duration_ms", "avg_duration_ms", "avg_fps", "marker_id",
	"cam_x", "cam_y", "cam_z", "x", "y", "z", "roll", "pitch", "yaw", "reprojection_error",
}

// CSVSink writes full records to a CSV file.
type CSVSink struct {
	file   io.Closer
	writer *csv.Writer
}

// NewCSVSink creates (or truncates) path and writes the header row.
func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating csv output: %w", err)
	}
	sink := newCSVSink(f, f)
	if err := sink.writer.Write(CSVHeader); err != nil {
		f.Close()
		return nil, err
	}
	return sink, nil
}

func newCSVSink(w io.Writer, c io.Closer) *CSVSink {
	return &CSVSink{file: c, writer: csv.NewWriter(w)}
}

func (c *CSVSink) WriteRecord(rec Record) error {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	ms := func(d time.Duration) string { return strconv.FormatInt(d.Milliseconds(), 10) }
	row := []string{
		rec.SessionID,
		strconv.Itoa(rec.Seq),
		strconv.Itoa(rec.FrameIndex),
		ms(rec.StreamTime),
		rec.WallTime.Format("2006-01-02T15:04:05.000Z07:00"),
		ms(rec.RunningTime),
		f(float64(rec.Duration.Microseconds()) / 1000),
		f(rec.AvgDurationMs),
		f(rec.AvgFPS),
		strconv.Itoa(rec.MarkerID),
		f(rec.CameraTranslation.X), f(rec.CameraTranslation.Y), f(rec.CameraTranslation.Z),
		f(rec.Position.X), f(rec.Position.Y), f(rec.Position.Z),
		f(rec.Euler.Roll), f(rec.Euler.Pitch), f(rec.Euler.Yaw),
		f(rec.ReprojectionError),
	}
	return c.writer.Write(row)
}

func (c *CSVSink) Close() error {
	c.writer.Flush()
	err := c.writer.Error()
	if c.file != nil {
		err = errors.Join(err, c.file.Close())
	}
	return err
}

// LogSink reports every record at debug level.
type LogSink struct {
	logger logging.Logger
}

func NewLogSink(logger logging.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) WriteRecord(rec Record) error {
	l.logger.Debugf("frame %d marker %d position (%.3f, %.3f, %.3f) rpy (%.3f, %.3f, %.3f) fps %.2f",
		rec.FrameIndex, rec.MarkerID,
		rec.Position.X, rec.Position.Y, rec.Position.Z,
		rec.Euler.Roll, rec.Euler.Pitch, rec.Euler.Yaw,
		rec.AvgFPS)
	return nil
}

func (l *LogSink) Close() error {
	return nil
}

// MultiSink fans records out to several sinks, stopping at the first write error.
type MultiSink []RecordSink

func (m MultiSink) WriteRecord(rec Record) error {
	for _, s := range m {
		if err := s.WriteRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// MemorySink keeps every record in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
	closed  bool
}

func (m *MemorySink) WriteRecord(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Records returns a copy of the stored records.
func (m *MemorySink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Closed reports whether Close has been called.
func (m *MemorySink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
