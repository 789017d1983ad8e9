package units

import (
	"math"
	"testing"
)

func TestConvertVolume(t *testing.T) {
	tests := []struct {
		name     string
		v        float64
		length   string
		target   string
		expected float64
	}{
		{"1e6 mm3 to litres", 1e6, MM, Litre, 1},
		{"1 m3 to litres", 1, M, Litre, 1000},
		{"1 cm3 to mm3", 1, CM, MM3, 1000},
		{"1e9 mm3 to m3", 1e9, MM, M3, 1},
		{"same unit", 42, M, M3, 42},
		{"unknown length unchanged", 5, "furlong", Litre, 5},
		{"unknown target unchanged", 5, MM, "gallon", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertVolume(tt.v, tt.length, tt.target)
			if math.Abs(got-tt.expected) > 1e-9*math.Max(1, tt.expected) {
				t.Errorf("ConvertVolume(%g, %s, %s) = %g, want %g", tt.v, tt.length, tt.target, got, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		volume   bool
		expected bool
	}{
		{"mm length", MM, false, true},
		{"metres length", M, false, true},
		{"litre is not a length", Litre, false, false},
		{"litre volume", Litre, true, true},
		{"m3 volume", M3, true, true},
		{"mm is not a volume", MM, true, false},
		{"case sensitive", "L", true, false},
		{"empty", "", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidLength(tt.unit)
			if tt.volume {
				got = IsValidVolume(tt.unit)
			}
			if got != tt.expected {
				t.Errorf("valid(%q) = %v, want %v", tt.unit, got, tt.expected)
			}
		})
	}
}

func TestUnitStrings(t *testing.T) {
	if got := GetValidVolumeUnitsString(); got != "mm3, cm3, l, m3" {
		t.Errorf("GetValidVolumeUnitsString() = %q", got)
	}
	if got := GetValidLengthUnitsString(); got != "mm, cm, m" {
		t.Errorf("GetValidLengthUnitsString() = %q", got)
	}
	if VolumeLabel(Litre) != "L" || VolumeLabel("x") != "x" {
		t.Error("unexpected labels")
	}
}
