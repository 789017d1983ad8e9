package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/trial.report/internal/units"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// PipelineConfig holds the tunable parameters of the trial pipeline. Fields
// are pointers so a partial file only overrides what it names; the Get*
// methods supply defaults for everything else.
type PipelineConfig struct {
	// Convex volume params
	HullEpsilon     *float64 `json:"hull_epsilon,omitempty" yaml:"hull_epsilon,omitempty"`
	VolumeStride    *int     `json:"volume_stride,omitempty" yaml:"volume_stride,omitempty"`
	VolumeMode      *string  `json:"volume_mode,omitempty" yaml:"volume_mode,omitempty"` // "running_sum" or "swept"
	BodyMarkersOnly *bool    `json:"body_markers_only,omitempty" yaml:"body_markers_only,omitempty"`

	// Behaviour interval params (seconds)
	PointDuration *float64 `json:"point_duration,omitempty" yaml:"point_duration,omitempty"`
	MergeGap      *float64 `json:"merge_gap,omitempty" yaml:"merge_gap,omitempty"`

	// Alignment params
	AxisResolution *float64 `json:"axis_resolution,omitempty" yaml:"axis_resolution,omitempty"` // seconds; 0 = finest source

	// Input params
	HeartRatePeriod *float64 `json:"heart_rate_period,omitempty" yaml:"heart_rate_period,omitempty"` // seconds between workbook rows
	LengthUnit      *string  `json:"length_unit,omitempty" yaml:"length_unit,omitempty"`
	Caregivers      []string `json:"caregivers,omitempty" yaml:"caregivers,omitempty"` // subjects of a dual trial, in column order

	// Batch and rendering params
	Workers     *int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	HeatmapBins *int    `json:"heatmap_bins,omitempty" yaml:"heatmap_bins,omitempty"`
	VolumeUnit  *string `json:"volume_unit,omitempty" yaml:"volume_unit,omitempty"`

	// Heatmap params
	CareOnly       *bool    `json:"care_only,omitempty" yaml:"care_only,omitempty"`
	ReachBehaviors []string `json:"reach_behaviors,omitempty" yaml:"reach_behaviors,omitempty"`
	FeetMarkers    []string `json:"feet_markers,omitempty" yaml:"feet_markers,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptyPipelineConfig returns a PipelineConfig with all fields unset.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// DefaultPipelineConfig returns a config with every field populated with its
// default value.
func DefaultPipelineConfig() *PipelineConfig {
	c := EmptyPipelineConfig()
	return &PipelineConfig{
		HullEpsilon:     ptrFloat64(c.GetHullEpsilon()),
		VolumeStride:    ptrInt(c.GetVolumeStride()),
		VolumeMode:      ptrString(c.GetVolumeMode()),
		BodyMarkersOnly: ptrBool(c.GetBodyMarkersOnly()),
		PointDuration:   ptrFloat64(c.GetPointDuration()),
		MergeGap:        ptrFloat64(c.GetMergeGap()),
		AxisResolution:  ptrFloat64(c.GetAxisResolution()),
		HeartRatePeriod: ptrFloat64(c.GetHeartRatePeriod()),
		LengthUnit:      ptrString(c.GetLengthUnit()),
		Workers:         ptrInt(c.GetWorkers()),
		HeatmapBins:     ptrInt(c.GetHeatmapBins()),
		VolumeUnit:      ptrString(c.GetVolumeUnit()),
		CareOnly:        ptrBool(c.GetCareOnly()),
		ReachBehaviors:  c.GetReachBehaviors(),
		FeetMarkers:     c.GetFeetMarkers(),
	}
}

// LoadPipelineConfig loads a PipelineConfig from a .json, .yaml or .yml file.
// Fields omitted from the file keep their defaults.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded, intended for test setup.
func MustLoadDefaultConfig() *PipelineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/mocap/hull/
	}
	for _, path := range candidates {
		if cfg, err := LoadPipelineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *PipelineConfig) Validate() error {
	if c.HullEpsilon != nil {
		if *c.HullEpsilon < 0 || math.IsNaN(*c.HullEpsilon) {
			return fmt.Errorf("hull_epsilon must be non-negative, got %f", *c.HullEpsilon)
		}
	}
	if c.VolumeStride != nil && *c.VolumeStride < 1 {
		return fmt.Errorf("volume_stride must be at least 1, got %d", *c.VolumeStride)
	}
	if c.VolumeMode != nil {
		switch *c.VolumeMode {
		case "running_sum", "swept":
		default:
			return fmt.Errorf("volume_mode must be running_sum or swept, got %q", *c.VolumeMode)
		}
	}
	if c.PointDuration != nil && (*c.PointDuration < 0 || math.IsNaN(*c.PointDuration)) {
		return fmt.Errorf("point_duration must be non-negative, got %f", *c.PointDuration)
	}
	if c.MergeGap != nil && (*c.MergeGap < 0 || math.IsNaN(*c.MergeGap)) {
		return fmt.Errorf("merge_gap must be non-negative, got %f", *c.MergeGap)
	}
	if c.AxisResolution != nil && (*c.AxisResolution < 0 || math.IsNaN(*c.AxisResolution)) {
		return fmt.Errorf("axis_resolution must be non-negative, got %f", *c.AxisResolution)
	}
	if c.HeartRatePeriod != nil && !(*c.HeartRatePeriod > 0) {
		return fmt.Errorf("heart_rate_period must be positive, got %f", *c.HeartRatePeriod)
	}
	if c.LengthUnit != nil && !units.IsValidLength(*c.LengthUnit) {
		return fmt.Errorf("length_unit must be one of %s, got %q", units.GetValidLengthUnitsString(), *c.LengthUnit)
	}
	if c.VolumeUnit != nil && !units.IsValidVolume(*c.VolumeUnit) {
		return fmt.Errorf("volume_unit must be one of %s, got %q", units.GetValidVolumeUnitsString(), *c.VolumeUnit)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.HeatmapBins != nil && *c.HeatmapBins < 2 {
		return fmt.Errorf("heatmap_bins must be at least 2, got %d", *c.HeatmapBins)
	}
	if len(c.Caregivers) != 0 && len(c.Caregivers) != 2 {
		return fmt.Errorf("caregivers must name exactly 2 subjects, got %d", len(c.Caregivers))
	}
	seen := make(map[string]bool)
	for _, s := range c.Caregivers {
		if s == "" || seen[s] {
			return fmt.Errorf("caregivers must be distinct non-empty subjects, got %q", c.Caregivers)
		}
		seen[s] = true
	}
	for _, m := range c.FeetMarkers {
		if m == "" {
			return fmt.Errorf("feet_markers must not contain an empty pattern")
		}
	}
	return nil
}

// GetHullEpsilon returns the coplanarity tolerance, relative to the bounding
// box diagonal of each frame's point cloud.
func (c *PipelineConfig) GetHullEpsilon() float64 {
	if c.HullEpsilon == nil {
		return 1e-9
	}
	return *c.HullEpsilon
}

// GetVolumeStride returns how many frames separate volume computations.
func (c *PipelineConfig) GetVolumeStride() int {
	if c.VolumeStride == nil {
		return 1
	}
	return *c.VolumeStride
}

// GetVolumeMode returns how cumulative volume is accumulated: "running_sum"
// adds each frame's hull volume, "swept" takes the hull of every point seen
// so far.
func (c *PipelineConfig) GetVolumeMode() string {
	if c.VolumeMode == nil || *c.VolumeMode == "" {
		return "running_sum"
	}
	return *c.VolumeMode
}

// GetBodyMarkersOnly reports whether table and frame markers are excluded
// from the volume point cloud.
func (c *PipelineConfig) GetBodyMarkersOnly() bool {
	if c.BodyMarkersOnly == nil {
		return true
	}
	return *c.BodyMarkersOnly
}

// GetPointDuration returns the width given to point-event intervals.
func (c *PipelineConfig) GetPointDuration() float64 {
	if c.PointDuration == nil {
		return 0.1
	}
	return *c.PointDuration
}

// GetMergeGap returns the gap below which same-behaviour intervals are
// merged. Zero disables merging.
func (c *PipelineConfig) GetMergeGap() float64 {
	if c.MergeGap == nil {
		return 0
	}
	return *c.MergeGap
}

// GetAxisResolution returns the aligned axis step. Zero selects the finest
// sampled source.
func (c *PipelineConfig) GetAxisResolution() float64 {
	if c.AxisResolution == nil {
		return 0
	}
	return *c.AxisResolution
}

// GetWorkers returns how many trials may run concurrently in a batch.
func (c *PipelineConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	return *c.Workers
}

// GetHeatmapBins returns the histogram resolution for spatial heatmaps.
func (c *PipelineConfig) GetHeatmapBins() int {
	if c.HeatmapBins == nil {
		return 100
	}
	return *c.HeatmapBins
}

// GetHeartRatePeriod returns the spacing of heart-rate workbook rows.
func (c *PipelineConfig) GetHeartRatePeriod() float64 {
	if c.HeartRatePeriod == nil {
		return 1
	}
	return *c.HeartRatePeriod
}

// GetLengthUnit returns the unit of tracked marker coordinates.
func (c *PipelineConfig) GetLengthUnit() string {
	if c.LengthUnit == nil {
		return units.MM
	}
	return *c.LengthUnit
}

// GetVolumeUnit returns the unit volumes are reported in.
func (c *PipelineConfig) GetVolumeUnit() string {
	if c.VolumeUnit == nil {
		return units.Litre
	}
	return *c.VolumeUnit
}

// GetCaregivers returns the configured dual-trial subjects, first caregiver
// first. Nil leaves the loader to take them from the observation log.
func (c *PipelineConfig) GetCaregivers() []string {
	return append([]string(nil), c.Caregivers...)
}

// GetCareOnly reports whether care-only heatmaps are rendered alongside the
// full ones.
func (c *PipelineConfig) GetCareOnly() bool {
	if c.CareOnly == nil {
		return true
	}
	return *c.CareOnly
}

// GetReachBehaviors returns the behaviour name prefixes whose intervals are
// removed from care-only heatmaps.
func (c *PipelineConfig) GetReachBehaviors() []string {
	if c.ReachBehaviors == nil {
		return []string{"Retrieving/Returning"}
	}
	return append([]string(nil), c.ReachBehaviors...)
}

// GetFeetMarkers returns the marker name fragments that identify feet.
func (c *PipelineConfig) GetFeetMarkers() []string {
	if c.FeetMarkers == nil {
		return []string{"HEE", "ANM", "ANL", "TOT"}
	}
	return append([]string(nil), c.FeetMarkers...)
}
