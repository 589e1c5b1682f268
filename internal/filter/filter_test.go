package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dechatter/internal/evdev"
)

// Test helpers

const windowUS = uint64(10_000) // 10ms debounce window

func keyEvent(us uint64, code uint16, value int32) evdev.Event {
	return evdev.Event{
		Sec:   int64(us / 1_000_000),
		Usec:  int64(us % 1_000_000),
		Type:  evdev.EvKey,
		Code:  code,
		Value: value,
	}
}

func synEvent(us uint64) evdev.Event {
	return evdev.Event{
		Sec:  int64(us / 1_000_000),
		Usec: int64(us % 1_000_000),
		Type: evdev.EvSyn,
	}
}

// =============================================================================
// Basic Drop/Pass Decisions
// =============================================================================

func TestCheck_DropsPressBounce(t *testing.T) {
	f := New()

	first := f.Check(keyEvent(0, 30, evdev.ValuePress), windowUS)
	require.False(t, first.Bounce, "first press must pass")

	second := f.Check(keyEvent(5_000, 30, evdev.ValuePress), windowUS)
	assert.True(t, second.Bounce, "press 5ms after a pass is a bounce")
	require.True(t, second.HasDiff)
	assert.Equal(t, uint64(5_000), second.DiffUS)
	require.True(t, second.HasLast)
	assert.Equal(t, uint64(0), second.LastUS)
}

func TestCheck_DropsReleaseBounce(t *testing.T) {
	f := New()

	require.False(t, f.Check(keyEvent(0, 30, evdev.ValueRelease), windowUS).Bounce)
	res := f.Check(keyEvent(3_000, 30, evdev.ValueRelease), windowUS)
	assert.True(t, res.Bounce)
	assert.Equal(t, uint64(3_000), res.DiffUS)
}

func TestCheck_PassesOutsideWindow(t *testing.T) {
	f := New()

	require.False(t, f.Check(keyEvent(0, 30, evdev.ValuePress), windowUS).Bounce)
	res := f.Check(keyEvent(20_000, 30, evdev.ValuePress), windowUS)
	assert.False(t, res.Bounce, "press 20ms after a pass is clean")
	require.True(t, res.HasLast, "a pass with history reports the previous timestamp")
	assert.Equal(t, uint64(0), res.LastUS)
}

func TestCheck_PassesAtWindowBoundary(t *testing.T) {
	f := New()

	require.False(t, f.Check(keyEvent(0, 30, evdev.ValuePress), windowUS).Bounce)
	res := f.Check(keyEvent(windowUS, 30, evdev.ValuePress), windowUS)
	assert.False(t, res.Bounce, "gap equal to the window passes")
}

func TestCheck_DropsJustBelowWindowBoundary(t *testing.T) {
	f := New()

	require.False(t, f.Check(keyEvent(0, 30, evdev.ValuePress), windowUS).Bounce)
	res := f.Check(keyEvent(windowUS-1, 30, evdev.ValuePress), windowUS)
	assert.True(t, res.Bounce, "gap one microsecond under the window is a bounce")
	assert.Equal(t, windowUS-1, res.DiffUS)
}

// =============================================================================
// State Independence
// =============================================================================

func TestCheck_FiltersDifferentKeysIndependently(t *testing.T) {
	f := New()

	require.False(t, f.Check(keyEvent(0, 30, evdev.ValuePress), windowUS).Bounce)
	// A different key inside the window is not a bounce.
	assert.False(t, f.Check(keyEvent(1_000, 31, evdev.ValuePress), windowUS).Bounce)
	// The same key inside the window still is.
	assert.True(t, f.Check(keyEvent(2_000, 30, evdev.ValuePress), windowUS).Bounce)
}

func TestCheck_FiltersPressReleaseIndependently(t *testing.T) {
	f := New()

	require.False(t, f.Check(keyEvent(0, 30, evdev.ValuePress), windowUS).Bounce)
	// A release right after a press is normal typing, not a bounce.
	assert.False(t, f.Check(keyEvent(1_000, 30, evdev.ValueRelease), windowUS).Bounce)
}

func TestCheck_ReleasePassesAfterDroppedPress(t *testing.T) {
	f := New()

	require.False(t, f.Check(keyEvent(0, 30, evdev.ValuePress), windowUS).Bounce)
	require.False(t, f.Check(keyEvent(1_000, 30, evdev.ValueRelease), windowUS).Bounce)
	// Press bounce...
	require.True(t, f.Check(keyEvent(2_000, 30, evdev.ValuePress), windowUS).Bounce)
	// ...must not suppress the matching release outside its own window.
	res := f.Check(keyEvent(15_000, 30, evdev.ValueRelease), windowUS)
	assert.False(t, res.Bounce)
}

func TestCheck_DropDoesNotShiftWindow(t *testing.T) {
	f := New()

	require.False(t, f.Check(keyEvent(0, 30, evdev.ValuePress), windowUS).Bounce)
	require.True(t, f.Check(keyEvent(9_000, 30, evdev.ValuePress), windowUS).Bounce)

	// 11ms after the original pass, 2ms after the drop. If the drop had
	// updated state this would bounce; it must pass.
	res := f.Check(keyEvent(11_000, 30, evdev.ValuePress), windowUS)
	assert.False(t, res.Bounce)
	assert.Equal(t, uint64(0), res.LastUS, "reference point is still the passed event")
}

// =============================================================================
// Exemptions
// =============================================================================

func TestCheck_PassesNonKeyEvents(t *testing.T) {
	f := New()

	for _, us := range []uint64{0, 1, 2, 3} {
		res := f.Check(synEvent(us), windowUS)
		assert.False(t, res.Bounce, "EV_SYN events are never bounces")
		assert.False(t, res.HasLast, "non-key events carry no history")
	}

	// Non-key events must not have created per-key state: a first key press
	// at any timestamp passes.
	assert.False(t, f.Check(keyEvent(1, 30, evdev.ValuePress), windowUS).Bounce)
}

func TestCheck_PassesKeyRepeats(t *testing.T) {
	f := New()

	require.False(t, f.Check(keyEvent(0, 30, evdev.ValueRepeat), windowUS).Bounce)
	// Repeats inside the window still pass and never record state.
	res := f.Check(keyEvent(1_000, 30, evdev.ValueRepeat), windowUS)
	assert.False(t, res.Bounce)
	assert.False(t, res.HasLast)
}

func TestCheck_PassesOutOfRangeCodes(t *testing.T) {
	f := New()

	big := keyEvent(0, 30, evdev.ValuePress)
	big.Code = evdev.KeyMax + 1
	assert.False(t, f.Check(big, windowUS).Bounce)

	neg := keyEvent(0, 30, -1)
	assert.False(t, f.Check(neg, windowUS).Bounce)
}

func TestCheck_WindowZeroPassesAllKeyEvents(t *testing.T) {
	f := New()

	require.False(t, f.Check(keyEvent(0, 30, evdev.ValuePress), 0).Bounce)
	res := f.Check(keyEvent(1, 30, evdev.ValuePress), 0)
	assert.False(t, res.Bounce, "window 0 disables filtering entirely")
	require.True(t, res.HasLast, "state is still recorded with filtering disabled")
	assert.Equal(t, uint64(0), res.LastUS)
}

// =============================================================================
// Time Anomalies
// =============================================================================

func TestCheck_HandlesTimeGoingBackwards(t *testing.T) {
	f := New()

	require.False(t, f.Check(keyEvent(50_000, 30, evdev.ValuePress), windowUS).Bounce)

	// Clock steps back: the event passes and re-anchors the window.
	back := f.Check(keyEvent(20_000, 30, evdev.ValuePress), windowUS)
	assert.False(t, back.Bounce)
	require.True(t, back.HasLast)
	assert.Equal(t, uint64(50_000), back.LastUS)

	// The next event is measured against the earlier timestamp.
	res := f.Check(keyEvent(25_000, 30, evdev.ValuePress), windowUS)
	assert.True(t, res.Bounce)
	assert.Equal(t, uint64(5_000), res.DiffUS)
	assert.Equal(t, uint64(20_000), res.LastUS)
}

// =============================================================================
// Runtime Span
// =============================================================================

func TestRuntimeUS(t *testing.T) {
	f := New()

	_, ok := f.RuntimeUS()
	assert.False(t, ok, "no runtime before any event")

	f.Check(keyEvent(10_000, 30, evdev.ValuePress), windowUS)
	f.Check(synEvent(15_000), windowUS)
	f.Check(keyEvent(40_000, 30, evdev.ValueRelease), windowUS)

	span, ok := f.RuntimeUS()
	require.True(t, ok)
	assert.Equal(t, uint64(30_000), span, "span covers all events, key or not")
}

func TestRuntimeUS_ClampsBackwardTime(t *testing.T) {
	f := New()

	f.Check(keyEvent(50_000, 30, evdev.ValuePress), windowUS)
	f.Check(keyEvent(10_000, 30, evdev.ValuePress), windowUS)

	span, ok := f.RuntimeUS()
	require.True(t, ok)
	assert.Equal(t, uint64(0), span)
}
