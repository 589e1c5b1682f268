// Package reporter consumes filter results on a dedicated goroutine,
// aggregates statistics, and emits per-event logs and periodic dumps.
//
// The stream loop hands results over through a bounded queue and never
// blocks on it: when the reporter falls behind, results are counted as
// lost and the stream keeps flowing.
package reporter

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"dechatter/internal/config"
	"dechatter/internal/evdev"
	"dechatter/internal/filter"
	"dechatter/internal/logging"
	"dechatter/internal/mqtt"
	"dechatter/internal/stats"
)

// DefaultQueueSize is the default capacity of the result queue.
const DefaultQueueSize = 1024

// pollInterval bounds how long the loop sleeps between checks of the
// stop flag and the periodic dump timer.
const pollInterval = 100 * time.Millisecond

// Options configures a Reporter.
type Options struct {
	// Settings supplies the live filter parameters.
	Settings *config.Settings

	// Interval is the periodic dump period. 0 disables periodic dumps.
	Interval time.Duration

	// StatsJSON selects JSON dumps instead of human-readable text.
	StatsJSON bool

	// Out is where dumps are written. Nil means stderr.
	Out io.Writer

	// Log receives per-event log records. Nil means the default logger.
	Log *logging.Logger

	// Publisher, if non-nil, receives a snapshot with each periodic dump.
	Publisher mqtt.Publisher

	// QueueSize is the result queue capacity. 0 means DefaultQueueSize.
	QueueSize int
}

// Reporter aggregates filter results off the stream path.
type Reporter struct {
	queue     chan filter.Result
	settings  *config.Settings
	interval  time.Duration
	statsJSON bool
	out       io.Writer
	log       *logging.Logger
	pub       mqtt.Publisher

	cumulative    *stats.Collector
	intervalStats *stats.Collector

	stop      atomic.Bool
	closeOnce sync.Once
}

// New creates a Reporter from opts.
func New(opts Options) *Reporter {
	if opts.Settings == nil {
		opts.Settings = config.NewSettings(config.DefaultConfig())
	}
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	if opts.Log == nil {
		opts.Log = logging.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	return &Reporter{
		queue:         make(chan filter.Result, opts.QueueSize),
		settings:      opts.Settings,
		interval:      opts.Interval,
		statsJSON:     opts.StatsJSON,
		out:           opts.Out,
		log:           opts.Log,
		pub:           opts.Publisher,
		cumulative:    stats.NewCollector(),
		intervalStats: stats.NewCollector(),
	}
}

// TryEnqueue offers a result to the reporter without blocking and
// reports whether it was accepted.
func (r *Reporter) TryEnqueue(res filter.Result) bool {
	select {
	case r.queue <- res:
		return true
	default:
		return false
	}
}

// Close closes the queue, signalling end of input. Only the stream loop
// may call it, and only after its last TryEnqueue.
func (r *Reporter) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
	})
}

// Stop asks the loop to drain whatever is queued and exit, without
// closing the queue. The signal path uses this because it cannot know
// whether the stream loop is still enqueueing.
func (r *Reporter) Stop() {
	r.stop.Store(true)
}

// Handle joins a running reporter goroutine.
type Handle struct {
	done       chan struct{}
	cumulative *stats.Collector
}

// Join waits for the reporter goroutine to finish and returns the
// cumulative collector. The collector must not be read before Join
// returns.
func (h *Handle) Join() *stats.Collector {
	<-h.done
	return h.cumulative
}

// Start launches the reporter loop and returns its join handle.
func (r *Reporter) Start() *Handle {
	h := &Handle{
		done:       make(chan struct{}),
		cumulative: r.cumulative,
	}
	go func() {
		defer close(h.done)
		r.run()
	}()
	return h
}

func (r *Reporter) run() {
	lastDump := time.Now()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		// The stop flag is authoritative: once set, take whatever is
		// already queued and get out.
		if r.stop.Load() {
			r.drain()
			return
		}

		if r.interval > 0 && time.Since(lastDump) >= r.interval {
			r.dumpInterval()
			lastDump = time.Now()
		}

		select {
		case res, ok := <-r.queue:
			if !ok {
				// A closed queue has already delivered everything that
				// was buffered, so there is nothing left to drain.
				return
			}
			r.handle(res)
		case <-ticker.C:
		}
	}
}

func (r *Reporter) drain() {
	for {
		select {
		case res, ok := <-r.queue:
			if !ok {
				return
			}
			r.handle(res)
		default:
			return
		}
	}
}

func (r *Reporter) handle(res filter.Result) {
	threshold := r.settings.NearMissUS()
	r.cumulative.Record(res, threshold)
	r.intervalStats.Record(res, threshold)
	r.logResult(res)
}

func (r *Reporter) logResult(res filter.Result) {
	ev := res.Event

	if res.Bounce {
		if !r.settings.LogBounces() && !r.settings.LogAllEvents() {
			return
		}
		r.log.Info("bounce",
			"key", evdev.KeyName(ev.Code),
			"code", ev.Code,
			"state", evdev.ValueName(ev.Value),
			"diff", stats.FormatUS(res.DiffUS),
		)
		return
	}

	if !r.settings.LogAllEvents() {
		return
	}
	// SYN markers and MSC scancodes would drown out everything else.
	if ev.IsSyn() || ev.IsMsc() {
		return
	}

	if !ev.IsKey() {
		r.log.Info("event",
			"type", evdev.TypeName(ev.Type),
			"code", ev.Code,
			"value", ev.Value,
		)
		return
	}

	args := []any{
		"key", evdev.KeyName(ev.Code),
		"code", ev.Code,
		"state", evdev.ValueName(ev.Value),
	}
	if res.HasLast && res.US >= res.LastUS {
		diff := res.US - res.LastUS
		if diff >= r.settings.WindowUS() && diff <= r.settings.NearMissUS() {
			args = append(args, "near_miss", stats.FormatUS(diff))
		}
	}
	r.log.Info("pass", args...)
}

// BuildMeta captures the live settings for a stats snapshot.
func (r *Reporter) BuildMeta() stats.Meta {
	return stats.Meta{
		WindowUS:      r.settings.WindowUS(),
		NearMissUS:    r.settings.NearMissUS(),
		LogIntervalUS: uint64(r.interval.Microseconds()),
		LogAllEvents:  r.settings.LogAllEvents(),
		LogBounces:    r.settings.LogBounces(),
	}
}

func (r *Reporter) dumpInterval() {
	snap := r.intervalStats.Snapshot(r.BuildMeta(), 0, false)

	stamp := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(r.out, "\n--- Periodic Stats (%s) ---\n", stamp)

	var err error
	if r.statsJSON {
		err = snap.WriteJSON(r.out)
	} else {
		err = snap.WriteHuman(r.out)
	}
	if err != nil {
		r.log.Warn("periodic stats write failed", "error", err)
	}

	if r.pub != nil {
		if err := r.pub.PublishInterval(snap); err != nil {
			r.log.Warn("interval snapshot publish failed", "error", err)
		}
	}

	r.intervalStats.Reset()
}
