// Package stats accumulates debounce statistics and renders them as JSON or
// human-readable reports.
//
// A Collector counts key events, records per-key bounce timing
// distributions for dropped events, and tracks "near misses": passed events
// that landed close behind the previous pass of the same identity. Near
// misses never influence filtering; they exist so a user can tell whether
// the configured window is close to clipping legitimate typing.
package stats

import (
	"dechatter/internal/evdev"
	"dechatter/internal/filter"
)

const (
	numKeyCodes  = int(evdev.KeyMax) + 1
	numKeyValues = 3 // release, press, repeat

	// maxTimingSamples bounds the gap samples retained per identity so a
	// switch that chatters for months cannot grow memory without limit.
	// Counts stay exact; min/avg/max cover the retained samples.
	maxTimingSamples = 4096
)

// ValueStats holds drop statistics for one (key code, value) identity.
type ValueStats struct {
	Count     uint64
	TimingsUS []uint64 // gap to the previous pass, one entry per drop
}

// Collector accumulates statistics for key events. Non-key events are
// ignored entirely. Not safe for concurrent use; the reporting goroutine
// owns it.
type Collector struct {
	KeyEventsProcessed uint64
	KeyEventsPassed    uint64
	KeyEventsDropped   uint64

	perKeyDrops   [numKeyCodes][numKeyValues]ValueStats
	nearMissCount [numKeyCodes][numKeyValues]uint64
	nearMissUS    [numKeyCodes][numKeyValues][]uint64
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Record updates counters and distributions from one decision result.
// Passed events closer than nearMissThresholdUS to the previous pass of the
// same identity are recorded as near misses.
func (c *Collector) Record(res filter.Result, nearMissThresholdUS uint64) {
	if !res.Event.IsKey() {
		return
	}
	c.KeyEventsProcessed++

	code := int(res.Event.Code)
	value := res.Event.Value
	inRange := code < numKeyCodes && value >= 0 && int(value) < numKeyValues

	if res.Bounce {
		c.KeyEventsDropped++
		if inRange {
			vs := &c.perKeyDrops[code][value]
			vs.Count++
			if res.HasDiff && len(vs.TimingsUS) < maxTimingSamples {
				vs.TimingsUS = append(vs.TimingsUS, res.DiffUS)
			}
		}
		return
	}

	c.KeyEventsPassed++
	if inRange && res.HasLast && res.US >= res.LastUS {
		diff := res.US - res.LastUS
		if diff < nearMissThresholdUS {
			c.nearMissCount[code][value]++
			if len(c.nearMissUS[code][value]) < maxTimingSamples {
				c.nearMissUS[code][value] = append(c.nearMissUS[code][value], diff)
			}
		}
	}
}

// Reset zeroes the collector in place, keeping slice capacity for reuse
// between reporting intervals.
func (c *Collector) Reset() {
	c.KeyEventsProcessed = 0
	c.KeyEventsPassed = 0
	c.KeyEventsDropped = 0
	for code := range c.perKeyDrops {
		for value := range c.perKeyDrops[code] {
			vs := &c.perKeyDrops[code][value]
			vs.Count = 0
			vs.TimingsUS = vs.TimingsUS[:0]
			c.nearMissCount[code][value] = 0
			c.nearMissUS[code][value] = c.nearMissUS[code][value][:0]
		}
	}
}

// DropStats returns the drop statistics recorded for one identity.
func (c *Collector) DropStats(code uint16, value int32) ValueStats {
	if int(code) >= numKeyCodes || value < 0 || int(value) >= numKeyValues {
		return ValueStats{}
	}
	return c.perKeyDrops[code][value]
}

// NearMisses returns the near-miss gaps recorded for one identity.
func (c *Collector) NearMisses(code uint16, value int32) []uint64 {
	if int(code) >= numKeyCodes || value < 0 || int(value) >= numKeyValues {
		return nil
	}
	return c.nearMissUS[code][value]
}
