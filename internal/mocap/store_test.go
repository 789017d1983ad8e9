package mocap

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/trial.report/internal/trialerr"
	"gonum.org/v1/gonum/spatial/r3"
)

func testFrames() []Frame {
	return []Frame{
		{Time: 0.00, Positions: map[string]r3.Vec{"HEAD": {X: 0, Y: 1.7, Z: 0}, "LSHO": {X: -0.2, Y: 1.4, Z: 0}}},
		{Time: 0.04, Positions: map[string]r3.Vec{"HEAD": {X: 0.01, Y: 1.7, Z: 0}, "LSHO": {X: math.NaN(), Y: 0, Z: 0}}},
		{Time: 0.08, Positions: map[string]r3.Vec{"LSHO": {X: -0.2, Y: 1.41, Z: 0.01}}},
	}
}

func TestLoadAndQuery(t *testing.T) {
	s, err := Load([]string{"LSHO", "HEAD", "TAB1"}, testFrames())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.FrameCount() != 3 {
		t.Errorf("FrameCount() = %d, want 3", s.FrameCount())
	}
	if got := s.Markers(); len(got) != 3 || got[0] != "HEAD" || got[2] != "TAB1" {
		t.Errorf("Markers() = %v, want sorted names", got)
	}

	p, ok := s.Position("HEAD", 1)
	if !ok || p.X != 0.01 {
		t.Errorf("Position(HEAD, 1) = %v, %v", p, ok)
	}
	if _, ok := s.Position("LSHO", 1); ok {
		t.Error("expected NaN position to be missing")
	}
	if _, ok := s.Position("HEAD", 2); ok {
		t.Error("expected absent marker to be missing")
	}
	if _, ok := s.Position("NOPE", 0); ok {
		t.Error("expected unknown marker to be missing")
	}
	if _, ok := s.Position("HEAD", 7); ok {
		t.Error("expected out-of-range frame to be missing")
	}

	ts, err := s.FrameTime(2)
	if err != nil || ts != 0.08 {
		t.Errorf("FrameTime(2) = %f, %v", ts, err)
	}
	if _, err := s.FrameTime(3); !errors.Is(err, trialerr.ErrOutOfRange) {
		t.Errorf("FrameTime(3) error = %v, want ErrOutOfRange", err)
	}

	at := s.MarkersAt(1)
	if len(at) != 1 {
		t.Errorf("MarkersAt(1) has %d markers, want 1", len(at))
	}
	if _, ok := at["LSHO"]; ok {
		t.Error("MarkersAt must omit missing markers")
	}
	if s.MissingAt(1) != 2 {
		t.Errorf("MissingAt(1) = %d, want 2", s.MissingAt(1))
	}
	if n := len(s.PointsAt(0)); n != 2 {
		t.Errorf("PointsAt(0) returned %d points, want 2", n)
	}
	if n := len(s.AllPoints()); n != 4 {
		t.Errorf("AllPoints() returned %d points, want 4", n)
	}

	start, end := s.TimeRange()
	if start != 0 || end != 0.08 {
		t.Errorf("TimeRange() = %f, %f", start, end)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		markers []string
		frames  []Frame
	}{
		{"no markers", nil, testFrames()},
		{"no frames", []string{"HEAD"}, nil},
		{"duplicate marker", []string{"HEAD", "HEAD"}, testFrames()},
		{"non-monotonic", []string{"HEAD"}, []Frame{{Time: 1}, {Time: 0.5}}},
		{"repeated time", []string{"HEAD"}, []Frame{{Time: 1}, {Time: 1}}},
		{"nan time", []string{"HEAD"}, []Frame{{Time: math.NaN()}}},
		{"unknown marker", []string{"HEAD"}, []Frame{{Time: 0, Positions: map[string]r3.Vec{"FOOT": {}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.markers, tt.frames)
			if !errors.Is(err, trialerr.ErrMalformedTrajectoryData) {
				t.Errorf("expected ErrMalformedTrajectoryData, got %v", err)
			}
		})
	}
}

func TestLoadToleratesEmptyFrame(t *testing.T) {
	s, err := Load([]string{"HEAD"}, []Frame{{Time: 0}, {Time: 0.1}})
	if err != nil {
		t.Fatalf("a frame with zero valid markers must load: %v", err)
	}
	if len(s.MarkersAt(0)) != 0 {
		t.Error("expected no markers at frame 0")
	}
}

func TestFilter(t *testing.T) {
	s, err := Load([]string{"LSHO", "HEAD", "TAB1"}, testFrames())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	body, err := s.Filter(func(m string) bool { return m != "TAB1" })
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if got := body.Markers(); len(got) != 2 {
		t.Errorf("filtered markers = %v", got)
	}
	if _, ok := body.Position("HEAD", 0); !ok {
		t.Error("expected HEAD to survive filter")
	}
	if body.FrameCount() != s.FrameCount() {
		t.Error("filter must keep the frame grid")
	}

	if _, err := s.Filter(func(string) bool { return false }); !errors.Is(err, trialerr.ErrMalformedTrajectoryData) {
		t.Errorf("expected error when filter drops everything, got %v", err)
	}
}

func TestFilterFrames(t *testing.T) {
	s, err := Load([]string{"HEAD", "LSHO"}, testFrames())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	kept, err := s.FilterFrames(func(t float64) bool { return t != 0.04 })
	if err != nil {
		t.Fatalf("FilterFrames failed: %v", err)
	}
	if kept.FrameCount() != 2 {
		t.Fatalf("FrameCount() = %d, want 2", kept.FrameCount())
	}
	if tm, _ := kept.FrameTime(1); tm != 0.08 {
		t.Errorf("FrameTime(1) = %f, want 0.08", tm)
	}
	if p, ok := kept.Position("LSHO", 1); !ok || p.Y != 1.41 {
		t.Errorf("Position(LSHO, 1) = %v, %v", p, ok)
	}
	if s.FrameCount() != 3 {
		t.Error("FilterFrames modified the original store")
	}

	if _, err := s.FilterFrames(func(float64) bool { return false }); !errors.Is(err, trialerr.ErrEmptyTrial) {
		t.Errorf("expected ErrEmptyTrial, got %v", err)
	}
}
