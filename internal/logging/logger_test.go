package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Printf("ignored %d", 1)
	l.WithField("graph", "g").Debugf("ignored")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestLoggerWritesFieldsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "info", Output: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.WithField("graph", "chain").Printf("adding buffering after %s\n", "f1")
	l.Debugf("hidden")

	out := buf.String()
	if !strings.Contains(out, "adding buffering after f1") || !strings.Contains(out, "graph=chain") {
		t.Fatalf("unexpected output %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at info level: %q", out)
	}
}

func TestWarnfSurvivesWarnLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "warn", Output: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.Printf("quiet")
	l.Warnf("cannot add buffering inside %s", "p")

	out := buf.String()
	if !strings.Contains(out, "level=warning") || !strings.Contains(out, "cannot add buffering inside p") {
		t.Fatalf("expected warning line, got %q", out)
	}
	if strings.Contains(out, "quiet") {
		t.Fatalf("info line leaked at warn level: %q", out)
	}
}

func TestLoggerAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "streamsynth.log")
	l, err := New(Options{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.Debugf("first")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "first") {
		t.Fatalf("expected log line in file, got %q", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Level: "chatty"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
