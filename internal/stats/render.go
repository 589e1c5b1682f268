package stats

import (
	"fmt"
	"io"
)

// FormatUS renders a microsecond duration in the most readable unit.
func FormatUS(us uint64) string {
	switch {
	case us < 1_000:
		return fmt.Sprintf("%d µs", us)
	case us < 1_000_000:
		return fmt.Sprintf("%.1f ms", float64(us)/1_000.0)
	default:
		return fmt.Sprintf("%.3f s", float64(us)/1_000_000.0)
	}
}

// WriteHuman writes the snapshot as a sectioned plain-text report. Output is
// deterministic; empty sections render a confirmation line instead of
// dividing by zero.
func (s Snapshot) WriteHuman(w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("--- dechatter status ---\n")
	ew.printf("Debounce Threshold: %s\n", FormatUS(s.Meta.WindowUS))
	ew.printf("Log All Events: %s\n", activeInactive(s.Meta.LogAllEvents))
	switch {
	case s.Meta.LogAllEvents:
		ew.printf("Log Bounces: Overridden by log-all-events\n")
	default:
		ew.printf("Log Bounces: %s\n", activeInactive(s.Meta.LogBounces))
	}
	if s.Meta.LogIntervalUS > 0 {
		ew.printf("Periodic Log Interval: Every %d seconds\n", s.Meta.LogIntervalUS/1_000_000)
	} else {
		ew.printf("Periodic Log Interval: Disabled\n")
	}

	ew.printf("\n--- Overall Statistics ---\n")
	ew.printf("Key Events Processed: %d\n", s.Processed)
	ew.printf("Key Events Passed:    %d\n", s.Passed)
	ew.printf("Key Events Dropped:   %d\n", s.Dropped)
	ew.printf("Percentage Dropped:   %.2f%%\n", s.DroppedPct)

	if len(s.Keys) > 0 {
		ew.printf("\n--- Dropped Event Statistics Per Key ---\n")
		ew.printf("Format: Key [Name] (Code):\n")
		ew.printf("  State (Value): Drop Count (Bounce Time: Min / Avg / Max)\n")
		for _, kr := range s.Keys {
			ew.printf("\nKey [%s] (%d):\n", kr.Name, kr.Code)
			printValueTiming(ew, "Press", 1, kr.Press)
			printValueTiming(ew, "Release", 0, kr.Release)
			printValueTiming(ew, "Repeat", 2, kr.Repeat)
		}
	} else {
		ew.printf("\n--- No key events dropped ---\n")
	}

	if len(s.NearMisses) > 0 {
		ew.printf("\n--- Passed Event Near-Miss Statistics (Passed within %s) ---\n",
			FormatUS(s.Meta.NearMissUS))
		ew.printf("Format: Key [Name] (Code, Value): Count (Near-Miss Time: Min / Avg / Max)\n")
		for _, nm := range s.NearMisses {
			ew.printf("  Key [%s] (%d, %d): %d (Near-Miss Time: %s / %s / %s)\n",
				nm.Name, nm.Code, nm.Value, nm.Count,
				FormatUS(nm.MinUS), FormatUS(uint64(nm.AvgUS)), FormatUS(nm.MaxUS))
		}
	} else {
		ew.printf("\n--- No near-miss events recorded (< %s) ---\n", FormatUS(s.Meta.NearMissUS))
	}

	if s.RuntimeUS != nil {
		ew.printf("\nRuntime: %s\n", FormatUS(*s.RuntimeUS))
	}
	ew.printf("----------------------------------------------------------\n")
	return ew.err
}

func printValueTiming(ew *errWriter, state string, value int32, t *Timing) {
	if t == nil || t.Count == 0 {
		return
	}
	ew.printf("  %-7s (%d): %d (Bounce Time: %s / %s / %s)\n",
		state, value, t.Count,
		FormatUS(t.MinUS), FormatUS(uint64(t.AvgUS)), FormatUS(t.MaxUS))
}

func activeInactive(b bool) string {
	if b {
		return "Active"
	}
	return "Inactive"
}

// errWriter folds write errors so the render path stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
