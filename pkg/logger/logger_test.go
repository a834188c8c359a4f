package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitAndWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otpcap.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer Close()
	SetLevel(LevelInfo)

	Info("attempt %d/%d", 1, 5)
	Debug("hidden")
	Error("boom: %s", "x")
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "[INFO] attempt 1/5") {
		t.Errorf("log missing info line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] boom: x") {
		t.Errorf("log missing error line: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug line written below threshold")
	}
}

func TestInitWriter_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)
	defer Close()
	SetLevel(LevelDebug)
	defer SetLevel(LevelInfo)

	Debug("dump %q", "text")
	Warn("careful")

	if !strings.Contains(buf.String(), `[DEBUG] dump "text"`) || !strings.Contains(buf.String(), "[WARN] careful") {
		t.Errorf("unexpected output %q", buf.String())
	}
	if GetWriter() == nil {
		t.Error("GetWriter() returned nil")
	}
}

func TestNoopBeforeInit(t *testing.T) {
	Close()
	Info("nothing happens")
	if w := GetWriter(); w == nil {
		t.Error("GetWriter() should return io.Discard")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{"debug": LevelDebug, "": LevelInfo, "WARNING": LevelWarn, "error": LevelError}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
