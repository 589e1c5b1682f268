package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReport records the state of the process at the moment of a panic.
type CrashReport struct {
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version"`
	GOOS         string    `json:"goos"`
	GOARCH       string    `json:"goarch"`
	NumGoroutine int       `json:"num_goroutine"`
	PanicValue   string    `json:"panic_value"`
	StackTrace   string    `json:"stack_trace"`
}

// CrashHandler writes crash reports for unrecovered panics. Reports land
// in a directory as timestamped JSON files so a wedged filter leaves
// evidence behind.
type CrashHandler struct {
	mu      sync.Mutex
	dir     string
	version string
}

// DefaultCrashDir returns the default crash report directory.
func DefaultCrashDir() string {
	if os.Geteuid() == 0 {
		return "/var/lib/dechatter/crashes"
	}
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		homeDir, _ := os.UserHomeDir()
		stateHome = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateHome, "dechatter", "crashes")
}

// NewCrashHandler creates a CrashHandler writing reports under dir.
func NewCrashHandler(dir, version string) *CrashHandler {
	if dir == "" {
		dir = DefaultCrashDir()
	}
	os.MkdirAll(dir, 0o750)
	return &CrashHandler{
		dir:     dir,
		version: version,
	}
}

// Recover wraps a function with panic recovery.
func (h *CrashHandler) Recover(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.HandlePanic(r)
		}
	}()
	fn()
}

// HandlePanic writes a crash report for the given panic value.
func (h *CrashHandler) HandlePanic(panicValue any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", panicValue),
		StackTrace:   string(debug.Stack()),
	}

	if err := h.writeDump(report); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write crash report: %v\n", err)
	}

	// Raw stderr here: the logger may be part of what went wrong.
	fmt.Fprintf(os.Stderr, "\n=== CRASH REPORT ===\n")
	fmt.Fprintf(os.Stderr, "Time: %s\n", report.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(os.Stderr, "Panic: %s\n", report.PanicValue)
	fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", report.StackTrace)
	fmt.Fprintf(os.Stderr, "Crash dump written to: %s\n", h.dir)
}

func (h *CrashHandler) writeDump(report CrashReport) error {
	filename := fmt.Sprintf("crash-%s.json", report.Timestamp.Format("20060102-150405"))
	path := filepath.Join(h.dir, filename)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("write crash report: %w", err)
	}
	return nil
}

// Reports returns all crash reports in the handler's directory.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// CleanupOld removes crash reports older than maxAge.
func (h *CrashHandler) CleanupOld(maxAge time.Duration) error {
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
