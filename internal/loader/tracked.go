package loader

import (
	"errors"
	"io"
	"math"
	"strings"

	"github.com/banshee-data/trial.report/internal/mocap"
	"github.com/banshee-data/trial.report/internal/trialerr"
	"gonum.org/v1/gonum/spatial/r3"
)

// NormalizeMarker strips the "f" suffix BTS appends to filtered markers, so
// "TAB1f" and "TAB1" name the same marker.
func NormalizeMarker(name string) string {
	base := strings.TrimSuffix(name, "f")
	if base != name && base != "" && base == strings.ToUpper(base) {
		return base
	}
	return name
}

// BodyMarkers reports whether marker belongs to a subject rather than the
// table (TAB*) or the frame (FRM*).
func BodyMarkers(marker string) bool {
	m := strings.ToUpper(NormalizeMarker(marker))
	return !strings.HasPrefix(m, "TAB") && !strings.HasPrefix(m, "FRM")
}

// SplitCaregivers groups body markers by where they sit around the fixture
// (TAB*, FRM*) columns. A dual-caregiver export lists the first caregiver's
// markers, then the fixtures, then the second caregiver's markers, so
// markers must be in column order as ReadTracked returns them. Any other
// layout is one caregiver and gives a single group.
func SplitCaregivers(markers []string) [][]string {
	lastFixture := -1
	for i, m := range markers {
		if !BodyMarkers(m) {
			lastFixture = i
		}
	}
	var first, second []string
	for i, m := range markers {
		switch {
		case !BodyMarkers(m):
		case lastFixture >= 0 && i > lastFixture:
			second = append(second, m)
		default:
			first = append(first, m)
		}
	}
	if len(first) == 0 || len(second) == 0 {
		return [][]string{append(first, second...)}
	}
	return [][]string{first, second}
}

type markerColumns struct {
	name    string
	x, y, z int
}

// ReadTracked parses a BTS tracked-data export. The preamble is skipped up
// to the row starting with "Frame"; marker columns are "<NAME>.X", ".Y",
// ".Z". Empty or NaN cells mark the marker missing in that frame. Markers
// are returned in column order.
func ReadTracked(r io.Reader) (markers []string, frames []mocap.Frame, err error) {
	cr := newReader(r)
	header, line, err := findHeader(cr, func(rec []string) bool {
		return len(rec) > 1 && strings.EqualFold(rec[0], "Frame")
	})
	if err != nil {
		return nil, nil, trialerr.New(trialerr.ComponentLoader, "tracked", trialerr.ErrMalformedTrajectoryData, "%v", err)
	}

	cols := columnIndex(header)
	timeCol, ok := cols["time"]
	if !ok {
		return nil, nil, trialerr.New(trialerr.ComponentLoader, lineRecord(line), trialerr.ErrMalformedTrajectoryData, "no Time column")
	}

	var mcols []markerColumns
	byName := make(map[string]int)
	for i, h := range header {
		dot := strings.LastIndexByte(h, '.')
		if dot <= 0 {
			continue
		}
		name, axis := NormalizeMarker(h[:dot]), strings.ToUpper(h[dot+1:])
		if axis != "X" && axis != "Y" && axis != "Z" {
			continue
		}
		j, seen := byName[name]
		if !seen {
			j = len(mcols)
			byName[name] = j
			mcols = append(mcols, markerColumns{name: name, x: -1, y: -1, z: -1})
		}
		var slot *int
		switch axis {
		case "X":
			slot = &mcols[j].x
		case "Y":
			slot = &mcols[j].y
		default:
			slot = &mcols[j].z
		}
		if *slot >= 0 {
			return nil, nil, trialerr.New(trialerr.ComponentLoader, lineRecord(line), trialerr.ErrMalformedTrajectoryData,
				"duplicate column %s", h)
		}
		*slot = i
	}
	if len(mcols) == 0 {
		return nil, nil, trialerr.New(trialerr.ComponentLoader, lineRecord(line), trialerr.ErrMalformedTrajectoryData, "no marker columns")
	}
	for _, m := range mcols {
		if m.x < 0 || m.y < 0 || m.z < 0 {
			return nil, nil, trialerr.New(trialerr.ComponentLoader, lineRecord(line), trialerr.ErrMalformedTrajectoryData,
				"marker %s lacks one of X, Y, Z", m.name)
		}
		markers = append(markers, m.name)
	}

	for {
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, trialerr.New(trialerr.ComponentLoader, lineRecord(line), trialerr.ErrMalformedTrajectoryData, "%v", err)
		}
		if blank(rec) {
			continue
		}
		t, missing, err := parseCell(field(rec, timeCol))
		if err != nil || missing {
			return nil, nil, trialerr.New(trialerr.ComponentLoader, lineRecord(line), trialerr.ErrMalformedTrajectoryData,
				"bad time %q", field(rec, timeCol))
		}
		fr := mocap.Frame{Time: t, Positions: make(map[string]r3.Vec, len(mcols))}
		for _, m := range mcols {
			p, err := readPoint(rec, m)
			if err != nil {
				return nil, nil, trialerr.New(trialerr.ComponentLoader, lineRecord(line), trialerr.ErrMalformedTrajectoryData,
					"marker %s: %v", m.name, err)
			}
			fr.Positions[m.name] = p
		}
		frames = append(frames, fr)
	}
	return markers, frames, nil
}

// readPoint returns a NaN vector when any coordinate is missing.
func readPoint(rec []string, m markerColumns) (r3.Vec, error) {
	var p r3.Vec
	for i, col := range []int{m.x, m.y, m.z} {
		v, missing, err := parseCell(field(rec, col))
		if err != nil {
			return r3.Vec{}, err
		}
		if missing {
			return r3.Vec{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}, nil
		}
		switch i {
		case 0:
			p.X = v
		case 1:
			p.Y = v
		default:
			p.Z = v
		}
	}
	return p, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
