package models

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	labelPattern       = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	framePatternFormat = regexp.MustCompile(`^[a-zA-Z0-9_\-.${}]+$`)
)

// ValidateLabel checks that an object label contains only letters, numbers
// and underscores. Labels become path components, so nothing else is allowed.
func ValidateLabel(label string) error {
	if !labelPattern.MatchString(label) {
		return fmt.Errorf("label %q contains invalid characters, only letters, numbers and underscores are allowed", label)
	}
	return nil
}

// ValidateFramePattern checks a per-frame filename pattern such as "${frame}.mhd"
func ValidateFramePattern(pattern string) error {
	if !framePatternFormat.MatchString(pattern) {
		return fmt.Errorf("pattern %q contains unsafe characters", pattern)
	}
	if !strings.Contains(pattern, "${frame}") && !strings.Contains(pattern, "$frame") {
		return fmt.Errorf("pattern %q must contain a $frame placeholder", pattern)
	}
	return nil
}

// FrameFilename substitutes frame into a validated pattern
func FrameFilename(pattern string, frame int) string {
	n := fmt.Sprintf("%d", frame)
	out := strings.ReplaceAll(pattern, "${frame}", n)
	return strings.ReplaceAll(out, "$frame", n)
}
