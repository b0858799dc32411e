package trackers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"

	"markertracker/utils"
)

func sampleRecord(seq int) Record {
	return Record{
		SessionID:         "session-1",
		Seq:               seq,
		FrameIndex:        seq * 2,
		StreamTime:        time.Duration(seq) * 33 * time.Millisecond,
		WallTime:          time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC),
		RunningTime:       time.Duration(seq) * 40 * time.Millisecond,
		Duration:          1500 * time.Microsecond,
		AvgDurationMs:     1.25,
		AvgFPS:            29.5,
		MarkerID:          3,
		CameraTranslation: r3.Vector{X: 0.1, Y: 0.2, Z: 0.9},
		Position:          r3.Vector{X: -0.1, Y: 0.25, Z: -0.9},
		Euler:             utils.EulerAngles{Roll: 3.1, Pitch: 0.01, Yaw: -0.2},
		ReprojectionError: 0.0005,
	}
}

func TestTableSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTableSink(&buf)
	require.NoError(t, sink.WriteRecord(sampleRecord(1)))
	require.NoError(t, sink.WriteRecord(sampleRecord(2)))
	require.NoError(t, sink.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, TableHeader, lines[0])
	assert.Equal(t, "1\t09-03 14-05-07\t1.250\t29.50\t3\t-0.1000\t0.2500\t-0.9000", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "2\t"))
}

type nopCloser struct{ closed bool }

func (n *nopCloser) Close() error {
	n.closed = true
	return nil
}

func TestCSVSinkRows(t *testing.T) {
	var buf bytes.Buffer
	closer := &nopCloser{}
	sink := newCSVSink(&buf, closer)
	require.NoError(t, sink.WriteRecord(sampleRecord(1)))
	require.NoError(t, sink.Close())
	assert.True(t, closer.closed)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]
	require.Len(t, row, len(CSVHeader))

	want := map[string]string{
		"session_id":  "session-1",
		"seq":         "1",
		"frame_index": "2",
		"stream_ms":   "33",
		"running_ms":  "40",
		"duration_ms": "1.5",
		"marker_id":   "3",
		"x":           "-0.1",
		"z":           "-0.9",
		"yaw":         "-0.2",
	}
	got := map[string]string{}
	for i, name := range CSVHeader {
		if _, ok := want[name]; ok {
			got[name] = row[i]
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("csv row mismatch (-want +got):\n%s", diff)
	}
}

func TestNewCSVSinkWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poses.csv")
	sink, err := NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.WriteRecord(sampleRecord(1)))
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, CSVHeader, rows[0])

	_, err = NewCSVSink(filepath.Join(t.TempDir(), "missing", "poses.csv"))
	assert.Error(t, err)
}

func TestMultiSinkAndMemorySink(t *testing.T) {
	a, b := &MemorySink{}, &MemorySink{}
	multi := MultiSink{a, b, NewLogSink(logging.NewTestLogger(t))}

	recs := []Record{sampleRecord(1), sampleRecord(2)}
	for _, rec := range recs {
		require.NoError(t, multi.WriteRecord(rec))
	}
	require.NoError(t, multi.Close())

	if diff := cmp.Diff(recs, a.Records()); diff != "" {
		t.Errorf("first sink mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, a.Records(), b.Records())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
}

func TestMultiSinkStopsAtFirstError(t *testing.T) {
	after := &MemorySink{}
	multi := MultiSink{&failingRecordSink{}, after}
	err := multi.WriteRecord(sampleRecord(1))
	assert.Error(t, err)
	assert.Empty(t, after.Records())

	closeErr := errors.New("flush failed")
	assert.ErrorIs(t, MultiSink{closingSink{closeErr}}.Close(), closeErr)
}

type closingSink struct{ err error }

func (c closingSink) WriteRecord(Record) error { return nil }
func (c closingSink) Close() error             { return c.err }
