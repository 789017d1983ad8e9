// Package security guards the file names built from trial identifiers.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateTrialName rejects trial names that could address files outside a
// data directory once substituted into a path.
func ValidateTrialName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty trial name")
	case name == "." || name == ".." || strings.Contains(name, ".."):
		return fmt.Errorf("trial name %q contains a parent reference", name)
	case strings.ContainsAny(name, `/\`) || filepath.IsAbs(name):
		return fmt.Errorf("trial name %q contains a path separator", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("trial name contains a NUL byte")
	}
	return nil
}

// JoinWithin joins elem onto dir and fails if the cleaned result escapes
// dir. The check is lexical; symlinks are not resolved.
func JoinWithin(dir string, elem ...string) (string, error) {
	base := filepath.Clean(dir)
	joined := filepath.Join(append([]string{base}, elem...)...)
	rel, err := filepath.Rel(base, joined)
	if err != nil {
		return "", fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %s escapes %s", filepath.Join(elem...), dir)
	}
	return joined, nil
}

// SanitizeFilename makes a safe filename from an arbitrary string. Anything
// other than ASCII letters, digits, dot, underscore or dash becomes a single
// underscore, and the result is capped at 128 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
