package markertracker

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markertracker/utils"
)

func TestConfigValidateDefaults(t *testing.T) {
	cfg := Config{CalibrationPath: "calib.json", MarkerSize: 0.15}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, defaultSource, cfg.Source)
	assert.Equal(t, defaultDictionary, cfg.Dictionary)
	assert.Equal(t, defaultKeyDelayMs, cfg.KeyDelayMs)
	assert.Equal(t, utils.DefaultAxisConvention, cfg.Convention())
}

func TestConfigValidateOutputSigns(t *testing.T) {
	cfg := Config{CalibrationPath: "calib.json", MarkerSize: 1, OutputSigns: "+x,+y,-z"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, r3.Vector{X: 1, Y: 1, Z: -1}, cfg.Convention().OutputSigns)
	assert.Equal(t, utils.DefaultAxisConvention.Flip, cfg.Convention().Flip)
}

func TestConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing calibration", Config{MarkerSize: 1}},
		{"zero marker size", Config{CalibrationPath: "c.json"}},
		{"bad marker id", Config{CalibrationPath: "c.json", MarkerSize: 1, MarkerID: -2}},
		{"bad signs", Config{CalibrationPath: "c.json", MarkerSize: 1, OutputSigns: "1,2,1"}},
		{"short signs", Config{CalibrationPath: "c.json", MarkerSize: 1, OutputSigns: "1,1"}},
		{"negative fps", Config{CalibrationPath: "c.json", MarkerSize: 1, RecordFPS: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestNewTrackerMissingCalibration(t *testing.T) {
	cfg := Config{CalibrationPath: "does-not-exist.json", MarkerSize: 1}
	_, err := NewTracker(&cfg, nil)
	assert.Error(t, err)
}
