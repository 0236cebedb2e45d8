package logger

import (
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug": LogDebug,
		"INFO":  LogInfo,
		"Error": LogError,
	}
	for name, want := range cases {
		got, err := ParseLogLevel(name)
		if err != nil {
			t.Fatalf("ParseLogLevel(%q) failed: %v", name, err)
		}
		if got != want {
			t.Errorf("Expected level %d for %q, got %d", want, name, got)
		}
	}

	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("Expected error for unknown log level")
	}
}

func TestRecordingLogger(t *testing.T) {
	var l RecordingLogger
	l.Infof("loaded %d frames", 3)
	l.Errorf("bad axcode %q", "XYZ")

	lines := l.Lines()
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "INFO: loaded 3 frames" {
		t.Errorf("Unexpected first line: %q", lines[0])
	}
	if lines[1] != `ERROR: bad axcode "XYZ"` {
		t.Errorf("Unexpected second line: %q", lines[1])
	}
}
