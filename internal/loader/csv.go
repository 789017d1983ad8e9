// Package loader reads a trial's raw exports: the BTS tracked-marker CSV,
// the BORIS observation CSV and heart-rate tables. Each reader skips the
// exporter's preamble by locating the real header row.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const bom = "\ufeff"

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr
}

// findHeader reads records until isHeader accepts one. It returns the
// trimmed header and the number of records consumed, header included.
func findHeader(cr *csv.Reader, isHeader func([]string) bool) ([]string, int, error) {
	for n := 1; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, n, fmt.Errorf("header row not found")
		}
		if err != nil {
			return nil, n, err
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(strings.TrimPrefix(rec[i], bom))
		}
		if isHeader(rec) {
			return rec, n, nil
		}
	}
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(h)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// parseCell parses a numeric cell. Empty and NaN cells give NaN and
// missing=true.
func parseCell(s string) (v float64, missing bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), true, nil
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	return v, math.IsNaN(v), nil
}

func lineRecord(line int) string { return "line " + strconv.Itoa(line) }
