package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultPipelineConfig(t *testing.T) {
	cfg := DefaultPipelineConfig()

	if cfg.HullEpsilon == nil || *cfg.HullEpsilon != 1e-9 {
		t.Errorf("Expected HullEpsilon 1e-9, got %v", cfg.HullEpsilon)
	}
	if cfg.VolumeStride == nil || *cfg.VolumeStride != 1 {
		t.Errorf("Expected VolumeStride 1, got %v", cfg.VolumeStride)
	}
	if cfg.BodyMarkersOnly == nil || !*cfg.BodyMarkersOnly {
		t.Errorf("Expected BodyMarkersOnly true, got %v", cfg.BodyMarkersOnly)
	}
	if cfg.GetPointDuration() != 0.1 {
		t.Errorf("GetPointDuration() = %f, want 0.1", cfg.GetPointDuration())
	}
	if cfg.GetVolumeMode() != "running_sum" {
		t.Errorf("GetVolumeMode() = %q, want running_sum", cfg.GetVolumeMode())
	}
	if cfg.GetMergeGap() != 0 {
		t.Errorf("GetMergeGap() = %f, want 0", cfg.GetMergeGap())
	}
	if cfg.GetWorkers() != 1 {
		t.Errorf("GetWorkers() = %d, want 1", cfg.GetWorkers())
	}
	if cfg.GetHeartRatePeriod() != 1 {
		t.Errorf("GetHeartRatePeriod() = %f, want 1", cfg.GetHeartRatePeriod())
	}
	if cfg.GetLengthUnit() != "mm" || cfg.GetVolumeUnit() != "l" {
		t.Errorf("units = %q, %q, want mm, l", cfg.GetLengthUnit(), cfg.GetVolumeUnit())
	}
	if !cfg.GetCareOnly() {
		t.Error("GetCareOnly() = false, want true")
	}
	if got := cfg.GetReachBehaviors(); len(got) != 1 || got[0] != "Retrieving/Returning" {
		t.Errorf("GetReachBehaviors() = %q", got)
	}
	if got := cfg.GetFeetMarkers(); strings.Join(got, ",") != "HEE,ANM,ANL,TOT" {
		t.Errorf("GetFeetMarkers() = %q", got)
	}
	if got := cfg.GetCaregivers(); got != nil {
		t.Errorf("GetCaregivers() = %q, want nil", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadPipelineConfig_Caregivers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dual.yaml")
	content := "caregivers: [S07, S08]\ncare_only: false\nreach_behaviors: [Fetching]\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadPipelineConfig(path)
	if err != nil {
		t.Fatalf("LoadPipelineConfig failed: %v", err)
	}
	if got := cfg.GetCaregivers(); strings.Join(got, ",") != "S07,S08" {
		t.Errorf("GetCaregivers() = %q, want [S07 S08]", got)
	}
	if cfg.GetCareOnly() {
		t.Error("GetCareOnly() = true, want false")
	}
	if got := cfg.GetReachBehaviors(); len(got) != 1 || got[0] != "Fetching" {
		t.Errorf("GetReachBehaviors() = %q, want [Fetching]", got)
	}
	// unset slices keep defaults
	if got := cfg.GetFeetMarkers(); len(got) != 4 {
		t.Errorf("GetFeetMarkers() = %q, want 4 defaults", got)
	}
}

func TestLoadPipelineConfig_JSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "pipeline.json")

	testJSON := `{
  "hull_epsilon": 1e-6,
  "volume_stride": 5,
  "merge_gap": 0.25
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadPipelineConfig(configPath)
	if err != nil {
		t.Fatalf("LoadPipelineConfig failed: %v", err)
	}

	if cfg.GetHullEpsilon() != 1e-6 {
		t.Errorf("GetHullEpsilon() = %g, want 1e-6", cfg.GetHullEpsilon())
	}
	if cfg.GetVolumeStride() != 5 {
		t.Errorf("GetVolumeStride() = %d, want 5", cfg.GetVolumeStride())
	}
	if cfg.GetMergeGap() != 0.25 {
		t.Errorf("GetMergeGap() = %f, want 0.25", cfg.GetMergeGap())
	}
	// Omitted fields keep defaults.
	if cfg.GetHeatmapBins() != 100 {
		t.Errorf("GetHeatmapBins() = %d, want 100", cfg.GetHeatmapBins())
	}
}

func TestLoadPipelineConfig_YAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "pipeline.yaml")

	testYAML := "workers: 4\nvolume_mode: swept\naxis_resolution: 0.02\n"
	if err := os.WriteFile(configPath, []byte(testYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadPipelineConfig(configPath)
	if err != nil {
		t.Fatalf("LoadPipelineConfig failed: %v", err)
	}
	if cfg.GetWorkers() != 4 {
		t.Errorf("GetWorkers() = %d, want 4", cfg.GetWorkers())
	}
	if cfg.GetVolumeMode() != "swept" {
		t.Errorf("GetVolumeMode() = %q, want swept", cfg.GetVolumeMode())
	}
	if cfg.GetAxisResolution() != 0.02 {
		t.Errorf("GetAxisResolution() = %f, want 0.02", cfg.GetAxisResolution())
	}
}

func TestLoadPipelineConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"bad extension", "cfg.txt", "{}", "extension"},
		{"bad json", "cfg.json", "{not json", "parse config JSON"},
		{"bad yaml", "cfg.yaml", "workers: [", "parse config YAML"},
		{"negative stride", "stride.json", `{"volume_stride": 0}`, "volume_stride"},
		{"negative merge gap", "gap.json", `{"merge_gap": -1}`, "merge_gap"},
		{"zero workers", "workers.yml", "workers: 0\n", "workers"},
		{"tiny heatmap", "bins.json", `{"heatmap_bins": 1}`, "heatmap_bins"},
		{"unknown volume mode", "mode.json", `{"volume_mode": "peak"}`, "volume_mode"},
		{"zero heart rate period", "hr.json", `{"heart_rate_period": 0}`, "heart_rate_period"},
		{"unknown length unit", "len.yaml", "length_unit: inch\n", "length_unit"},
		{"unknown volume unit", "vol.json", `{"volume_unit": "gallon"}`, "volume_unit"},
		{"three caregivers", "cg3.yaml", "caregivers: [S07, S08, S09]\n", "caregivers"},
		{"repeated caregiver", "cg2.json", `{"caregivers": ["S07", "S07"]}`, "caregivers"},
		{"empty feet pattern", "feet.json", `{"feet_markers": ["HEE", ""]}`, "feet_markers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := LoadPipelineConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}

	if _, err := LoadPipelineConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetVolumeStride() != 1 {
		t.Errorf("GetVolumeStride() = %d, want 1", cfg.GetVolumeStride())
	}
	if cfg.GetPointDuration() != 0.1 {
		t.Errorf("GetPointDuration() = %f, want 0.1", cfg.GetPointDuration())
	}
}
