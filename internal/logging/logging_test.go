package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
		hasError bool
	}{
		{"text", FormatText, false},
		{"TEXT", FormatText, false},
		{"json", FormatJSON, false},
		{"", FormatText, false},
		{"xml", FormatText, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			format, err := ParseFormat(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && format != test.expected {
				t.Errorf("expected %v, got %v", test.expected, format)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			if got := LevelString(test.level); got != test.expected {
				t.Errorf("expected %q, got %q", test.expected, got)
			}
		})
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{
		Level:     LevelInfo,
		Format:    FormatText,
		Output:    &buf,
		Component: "test",
	})

	logger.Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "hello") {
		t.Errorf("output missing message: %s", out)
	}
	if !strings.Contains(out, "component=test") {
		t.Errorf("output missing component attr: %s", out)
	}
	if !strings.Contains(out, "key=value") {
		t.Errorf("output missing attr: %s", out)
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{
		Level:     LevelInfo,
		Format:    FormatJSON,
		Output:    &buf,
		Component: "test",
	})

	logger.Info("hello", "count", 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["msg"] != "hello" {
		t.Errorf("expected msg hello, got %v", record["msg"])
	}
	if record["component"] != "test" {
		t.Errorf("expected component test, got %v", record["component"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{
		Level:  LevelWarn,
		Format: FormatText,
		Output: &buf,
	})

	logger.Info("should not appear")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Error("info message leaked through warn-level logger")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("warn message missing")
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{
		Level:  LevelInfo,
		Format: FormatText,
		Output: &buf,
	})

	logger.WithComponent("reporter").Info("ping")

	if !strings.Contains(buf.String(), "component=reporter") {
		t.Errorf("output missing component attr: %s", buf.String())
	}
}

func TestCrashHandler(t *testing.T) {
	dir := t.TempDir()
	handler := NewCrashHandler(dir, "1.0.0")

	handler.HandlePanic("test panic value")

	reports, err := handler.Reports()
	if err != nil {
		t.Fatalf("failed to read crash reports: %v", err)
	}
	if len(reports) == 0 {
		t.Fatal("no crash report was created")
	}

	report := reports[0]
	if report.PanicValue != "test panic value" {
		t.Errorf("expected panic value 'test panic value', got %q", report.PanicValue)
	}
	if report.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got %q", report.Version)
	}
	if report.StackTrace == "" {
		t.Error("crash report has no stack trace")
	}
}

func TestCrashHandlerRecover(t *testing.T) {
	dir := t.TempDir()
	handler := NewCrashHandler(dir, "1.0.0")

	ran := false
	handler.Recover(func() {
		ran = true
		panic("intentional test panic")
	})

	if !ran {
		t.Error("function did not run")
	}

	reports, _ := handler.Reports()
	if len(reports) == 0 {
		t.Error("crash report was not created for recovered panic")
	}
}

func TestCrashHandlerCleanupOld(t *testing.T) {
	dir := t.TempDir()
	handler := NewCrashHandler(dir, "1.0.0")

	handler.HandlePanic("old panic")

	if err := handler.CleanupOld(time.Nanosecond); err != nil {
		t.Fatalf("CleanupOld failed: %v", err)
	}
}
