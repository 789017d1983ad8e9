// Package units provides shared constants and conversions for marker
// coordinate lengths and the hull volumes derived from them.
package units

import "strings"

// Length units of tracked marker coordinates.
const (
	MM = "mm"
	CM = "cm"
	M  = "m"
)

// Volume units for reporting.
const (
	MM3   = "mm3"
	CM3   = "cm3"
	Litre = "l"
	M3    = "m3"
)

// ValidLengthUnits contains all valid coordinate units
var ValidLengthUnits = []string{MM, CM, M}

// ValidVolumeUnits contains all valid reporting units
var ValidVolumeUnits = []string{MM3, CM3, Litre, M3}

// metres per unit
var lengthScale = map[string]float64{MM: 1e-3, CM: 1e-2, M: 1}

// cubic metres per unit
var volumeScale = map[string]float64{MM3: 1e-9, CM3: 1e-6, Litre: 1e-3, M3: 1}

func IsValidLength(unit string) bool { return contains(ValidLengthUnits, unit) }
func IsValidVolume(unit string) bool { return contains(ValidVolumeUnits, unit) }

func contains(list []string, unit string) bool {
	for _, u := range list {
		if unit == u {
			return true
		}
	}
	return false
}

// GetValidVolumeUnitsString returns a comma-separated list for error messages
func GetValidVolumeUnitsString() string { return strings.Join(ValidVolumeUnits, ", ") }

// GetValidLengthUnitsString returns a comma-separated list for error messages
func GetValidLengthUnitsString() string { return strings.Join(ValidLengthUnits, ", ") }

// ConvertVolume converts v, measured in cubic lengthUnit, to target.
// Unknown units leave v unchanged.
func ConvertVolume(v float64, lengthUnit, target string) float64 {
	l, ok := lengthScale[lengthUnit]
	t, ok2 := volumeScale[target]
	if !ok || !ok2 {
		return v
	}
	return v * l * l * l / t
}

// VolumeLabel returns the axis label for a reporting unit.
func VolumeLabel(unit string) string {
	switch unit {
	case MM3:
		return "mm³"
	case CM3:
		return "cm³"
	case Litre:
		return "L"
	case M3:
		return "m³"
	default:
		return unit
	}
}
