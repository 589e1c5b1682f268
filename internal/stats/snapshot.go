package stats

import (
	"encoding/json"
	"io"

	"dechatter/internal/evdev"
)

// Meta records the effective configuration a report was produced under.
type Meta struct {
	WindowUS      uint64 `json:"window_us"`
	NearMissUS    uint64 `json:"near_miss_us"`
	LogIntervalUS uint64 `json:"log_interval_us"`
	LogAllEvents  bool   `json:"log_all_events"`
	LogBounces    bool   `json:"log_bounces"`
}

// Timing summarizes a list of microsecond gaps.
type Timing struct {
	Count uint64  `json:"count"`
	MinUS uint64  `json:"min_us"`
	AvgUS float64 `json:"avg_us"`
	MaxUS uint64  `json:"max_us"`
}

// KeyReport holds drop statistics for one key code, split by value state.
type KeyReport struct {
	Code    uint16  `json:"code"`
	Name    string  `json:"name"`
	Press   *Timing `json:"press,omitempty"`
	Release *Timing `json:"release,omitempty"`
	Repeat  *Timing `json:"repeat,omitempty"`
}

// NearMissReport holds near-miss statistics for one (code, value) identity.
type NearMissReport struct {
	Code  uint16 `json:"code"`
	Name  string `json:"name"`
	Value int32  `json:"value"`
	State string `json:"state"`
	Timing
}

// Snapshot is a pure, renderable view of a Collector. Field order is fixed
// and all collections are sorted, so encoding the same snapshot always
// produces the same bytes.
type Snapshot struct {
	Meta       Meta             `json:"meta"`
	RuntimeUS  *uint64          `json:"runtime_us,omitempty"`
	Processed  uint64           `json:"key_events_processed"`
	Passed     uint64           `json:"key_events_passed"`
	Dropped    uint64           `json:"key_events_dropped"`
	DroppedPct float64          `json:"dropped_pct"`
	Keys       []KeyReport      `json:"keys,omitempty"`
	NearMisses []NearMissReport `json:"near_misses,omitempty"`
}

// Snapshot builds a renderable snapshot of the collector's current state.
// hasRuntime is false when no events were processed; the runtime field is
// then omitted.
func (c *Collector) Snapshot(meta Meta, runtimeUS uint64, hasRuntime bool) Snapshot {
	s := Snapshot{
		Meta:      meta,
		Processed: c.KeyEventsProcessed,
		Passed:    c.KeyEventsPassed,
		Dropped:   c.KeyEventsDropped,
	}
	if hasRuntime {
		rt := runtimeUS
		s.RuntimeUS = &rt
	}
	if c.KeyEventsProcessed > 0 {
		s.DroppedPct = float64(c.KeyEventsDropped) / float64(c.KeyEventsProcessed) * 100.0
	}

	for code := 0; code < numKeyCodes; code++ {
		kr := KeyReport{Code: uint16(code), Name: evdev.KeyName(uint16(code))}
		any := false
		for value := 0; value < numKeyValues; value++ {
			vs := &c.perKeyDrops[code][value]
			if vs.Count == 0 {
				continue
			}
			t := summarize(vs.Count, vs.TimingsUS)
			switch int32(value) {
			case evdev.ValuePress:
				kr.Press = &t
			case evdev.ValueRelease:
				kr.Release = &t
			default:
				kr.Repeat = &t
			}
			any = true
		}
		if any {
			s.Keys = append(s.Keys, kr)
		}
	}

	for code := 0; code < numKeyCodes; code++ {
		for value := 0; value < numKeyValues; value++ {
			count := c.nearMissCount[code][value]
			if count == 0 {
				continue
			}
			s.NearMisses = append(s.NearMisses, NearMissReport{
				Code:   uint16(code),
				Name:   evdev.KeyName(uint16(code)),
				Value:  int32(value),
				State:  evdev.ValueName(int32(value)),
				Timing: summarize(count, c.nearMissUS[code][value]),
			})
		}
	}
	return s
}

// summarize reduces a gap list to count/min/avg/max. count may exceed the
// list length when timing data was unavailable for some entries.
func summarize(count uint64, timingsUS []uint64) Timing {
	t := Timing{Count: count}
	if len(timingsUS) == 0 {
		return t
	}
	var sum uint64
	t.MinUS = timingsUS[0]
	for _, us := range timingsUS {
		if us < t.MinUS {
			t.MinUS = us
		}
		if us > t.MaxUS {
			t.MaxUS = us
		}
		sum += us
	}
	t.AvgUS = float64(sum) / float64(len(timingsUS))
	return t
}

// WriteJSON writes the snapshot as an indented JSON document followed by a
// newline.
func (s Snapshot) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
