package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetLevel(t *testing.T) {
	prev := std
	t.Cleanup(func() { std = prev })

	out := filepath.Join(t.TempDir(), "out.log")
	std = NewLogger(&Options{Level: "info", Format: "json", OutputPaths: []string{out}})

	Debug("hidden")
	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if got := Level(); got != "debug" {
		t.Fatalf("Level() = %q, want debug", got)
	}
	WithName("child").Debug("visible", "agentID", "a-1")

	if err := SetLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Errorf("debug entry written before level change: %s", data)
	}
	if !strings.Contains(string(data), "visible") {
		t.Errorf("debug entry missing after level change: %s", data)
	}
}
