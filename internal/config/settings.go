package config

import "sync/atomic"

// Settings holds the live filter parameters as atomics so the stream
// loop and the reporter can read them without locking. A config reload
// calls Apply to swap in new values mid-stream.
type Settings struct {
	windowUS   atomic.Uint64
	nearMissUS atomic.Uint64
	logAll     atomic.Bool
	logBounces atomic.Bool
}

// NewSettings returns a Settings seeded from cfg.
func NewSettings(cfg *Config) *Settings {
	s := &Settings{}
	s.Apply(cfg)
	return s
}

// Apply updates the live values from cfg.
func (s *Settings) Apply(cfg *Config) {
	s.windowUS.Store(uint64(cfg.Window().Microseconds()))
	s.nearMissUS.Store(uint64(cfg.NearMiss().Microseconds()))
	s.logAll.Store(cfg.Report.LogAllEvents)
	s.logBounces.Store(cfg.Report.LogBounces)
}

// WindowUS returns the debounce window in microseconds.
func (s *Settings) WindowUS() uint64 {
	return s.windowUS.Load()
}

// NearMissUS returns the near-miss threshold in microseconds.
func (s *Settings) NearMissUS() uint64 {
	return s.nearMissUS.Load()
}

// LogAllEvents reports whether every event should be logged.
func (s *Settings) LogAllEvents() bool {
	return s.logAll.Load()
}

// LogBounces reports whether dropped events should be logged.
func (s *Settings) LogBounces() bool {
	return s.logBounces.Load()
}
