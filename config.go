package markertracker

import (
	"errors"
	"fmt"

	"markertracker/utils"
)

const (
	defaultSource     = "0"
	defaultDictionary = "6x6_250"
	defaultKeyDelayMs = 1
	defaultRecordFPS  = 30.0
)

type Config struct {
	Source             string  `json:"source"`      // camera index or video file path
	CalibrationPath    string  `json:"calibration"` // JSON with camera_matrix and dist_coeffs
	Dictionary         string  `json:"marker_dictionary"`
	MarkerID           int     `json:"marker_id"` // -1 tracks the largest marker in view
	MarkerSize         float64 `json:"marker_size"`
	OutputSigns        string  `json:"output_signs"` // e.g. "-1,1,1"
	RawVideoPath       string  `json:"raw_video_path"`
	AnnotatedVideoPath string  `json:"annotated_video_path"`
	RecordFPS          float64 `json:"record_fps"`
	Preview            bool    `json:"preview"`
	KeyDelayMs         int     `json:"key_delay_ms"`
	CSVPath            string  `json:"csv_path"`
	DBPath             string  `json:"sqlite_path"`
	PlotPath           string  `json:"plot_path"`
	Quiet              bool    `json:"quiet"` // no console table

	convention utils.AxisConvention
}

// Validate fills defaults and checks the config.
func (cfg *Config) Validate() error {
	if cfg.Source == "" {
		cfg.Source = defaultSource
	}
	if cfg.CalibrationPath == "" {
		return errors.New("calibration is required")
	}
	if cfg.Dictionary == "" {
		cfg.Dictionary = defaultDictionary
	}
	if cfg.MarkerSize <= 0 {
		return errors.New("marker_size must be greater than 0")
	}
	if cfg.MarkerID < -1 {
		return errors.New("marker_id must be -1 (any) or a marker id")
	}
	if cfg.KeyDelayMs <= 0 {
		cfg.KeyDelayMs = defaultKeyDelayMs
	}
	if cfg.RecordFPS < 0 {
		return errors.New("record_fps must not be negative")
	}

	cfg.convention = utils.DefaultAxisConvention
	if cfg.OutputSigns != "" {
		signs, err := utils.ParseOutputSigns(cfg.OutputSigns)
		if err != nil {
			return fmt.Errorf("output_signs: %w", err)
		}
		cfg.convention.OutputSigns = signs
	}
	return cfg.convention.Validate()
}

// Convention returns the axis convention resolved by Validate.
func (cfg *Config) Convention() utils.AxisConvention {
	return cfg.convention
}
