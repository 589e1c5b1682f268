// Package filter implements the per-key debounce decision engine.
//
// The filter tracks, for every (key code, key value) identity, the timestamp
// of the last event that passed. An incoming key event whose gap to that
// timestamp is shorter than the debounce window is a bounce and is dropped;
// dropped events never update the table, so a chattering contact cannot keep
// extending its own suppression window.
package filter

import "dechatter/internal/evdev"

const (
	numKeyCodes  = int(evdev.KeyMax) + 1
	numKeyValues = 3 // release, press, repeat
)

// noTimestamp marks identities no event has passed for yet.
const noTimestamp = ^uint64(0)

// Result describes the outcome of a single debounce decision.
type Result struct {
	Event evdev.Event
	US    uint64 // event timestamp in microseconds

	// Bounce is true when the event was dropped. DiffUS then holds the gap
	// to the previous passed event of the same identity.
	Bounce  bool
	DiffUS  uint64
	HasDiff bool

	// LastUS holds the previously recorded pass timestamp for this
	// identity, for drops and for passes that had prior history.
	LastUS  uint64
	HasLast bool
}

// Filter holds the minimal state needed for debounce decisions. It is not
// safe for concurrent use; callers serialize access.
type Filter struct {
	lastPassedUS [numKeyCodes][numKeyValues]uint64

	// First and last timestamps over all processed events, for the
	// runtime span in the final report.
	firstUS uint64
	lastUS  uint64
	seenAny bool
}

// New returns a Filter with no recorded history.
func New() *Filter {
	f := &Filter{}
	for code := range f.lastPassedUS {
		for value := range f.lastPassedUS[code] {
			f.lastPassedUS[code][value] = noTimestamp
		}
	}
	return f
}

// Check runs the debounce decision for one event.
//
// Only key press and release events are ever dropped: non-key events, key
// repeats, and events outside the tracked code/value range pass untouched
// and untracked. A windowUS of zero disables dropping while still recording
// pass timestamps, so diagnostics stay meaningful.
//
// Timestamps that step backwards are tolerated: the event passes and its
// earlier timestamp replaces the stored one, re-anchoring the window.
func (f *Filter) Check(ev evdev.Event, windowUS uint64) Result {
	eventUS := ev.Micros()

	if !f.seenAny {
		f.firstUS = eventUS
		f.seenAny = true
	}
	f.lastUS = eventUS

	res := Result{Event: ev, US: eventUS}

	if !ev.IsKey() || ev.Value == evdev.ValueRepeat {
		return res
	}
	if int(ev.Code) >= numKeyCodes || ev.Value < 0 || int(ev.Value) >= numKeyValues {
		return res
	}

	last := f.lastPassedUS[ev.Code][ev.Value]
	if last == noTimestamp {
		// First occurrence of this identity.
		f.lastPassedUS[ev.Code][ev.Value] = eventUS
		return res
	}

	if eventUS >= last {
		diff := eventUS - last
		if windowUS > 0 && diff < windowUS {
			// Bounce. State stays untouched.
			res.Bounce = true
			res.DiffUS = diff
			res.HasDiff = true
			res.LastUS = last
			res.HasLast = true
			return res
		}
	}

	// Passed: either the gap reached the window, or time went backwards.
	// Either way this event becomes the new reference point.
	f.lastPassedUS[ev.Code][ev.Value] = eventUS
	res.LastUS = last
	res.HasLast = true
	return res
}

// RuntimeUS returns the span between the first and last processed event.
// The second return value is false before any event has been seen.
func (f *Filter) RuntimeUS() (uint64, bool) {
	if !f.seenAny {
		return 0, false
	}
	if f.lastUS < f.firstUS {
		return 0, true
	}
	return f.lastUS - f.firstUS, true
}
