// Package mqtt publishes stats snapshots to an MQTT broker, with an
// abstraction for testing.
//
// Publishing is strictly best-effort: the event stream must keep flowing
// whether or not a broker is reachable.
package mqtt

import (
	"encoding/json"

	"dechatter/internal/stats"
)

// Topic suffixes, appended to the configured topic prefix.
const (
	// TopicInterval carries periodic stats snapshots.
	TopicInterval = "stats/interval"

	// TopicFinal carries the final end-of-run snapshot.
	TopicFinal = "stats/final"
)

// Publisher publishes stats snapshots.
type Publisher interface {
	// PublishInterval sends a periodic snapshot to the broker.
	// Returns error if publishing fails (must not crash the process).
	PublishInterval(snap stats.Snapshot) error

	// PublishFinal sends the end-of-run snapshot to the broker.
	PublishFinal(snap stats.Snapshot) error

	// Close disconnects from the broker.
	Close() error
}

// FormatSnapshot creates the JSON payload for a snapshot.
func FormatSnapshot(snap stats.Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}
