// Package pipeline runs the stream loop: read one input_event, decide,
// forward or swallow, and hand the outcome to the reporter. It owns the
// shutdown sequence and the process exit codes.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"dechatter/internal/config"
	"dechatter/internal/evdev"
	"dechatter/internal/filter"
	"dechatter/internal/journal"
	"dechatter/internal/logging"
	"dechatter/internal/mqtt"
	"dechatter/internal/reporter"
)

// Process exit codes. Signal exits use 128+signo; the signal handler
// passes that code to Shutdown.
const (
	ExitOK         = 0 // clean EOF, or downstream closed the pipe
	ExitConfig     = 1 // configuration or setup failure
	ExitReadError  = 2 // fatal input read failure, including a truncated record
	ExitWriteError = 3 // fatal output write failure
)

// Exit reasons recorded in the journal and the final log line.
const (
	ReasonEOF        = "eof"
	ReasonSignal     = "signal"
	ReasonPipeClosed = "pipe-closed"
	ReasonReadError  = "read-error"
	ReasonWriteError = "write-error"
)

// Options configures a Pipeline.
type Options struct {
	// In is the event source. Nil means stdin.
	In io.Reader

	// Out is the event sink. Nil means stdout.
	Out io.Writer

	// ReportOut is where the final report is written. Nil means stderr.
	ReportOut io.Writer

	// Settings supplies the live filter parameters.
	Settings *config.Settings

	// StatsJSON selects JSON for the final report.
	StatsJSON bool

	// Log receives pipeline log records. Nil means the default logger.
	Log *logging.Logger

	// Reporter consumes filter results. Required.
	Reporter *reporter.Reporter

	// Publisher, if non-nil, receives the final snapshot.
	Publisher mqtt.Publisher

	// Journal, if non-nil, records the completed run.
	Journal *journal.Journal
}

// Pipeline is the stream loop plus its shutdown machinery.
type Pipeline struct {
	in        io.Reader
	out       io.Writer
	reportOut io.Writer

	settings  *config.Settings
	statsJSON bool
	log       *logging.Logger

	mu     sync.Mutex // serializes filter access between loop and shutdown
	filter *filter.Filter

	rep    *reporter.Reporter
	handle *reporter.Handle

	pub  mqtt.Publisher
	jrnl *journal.Journal

	startedAt time.Time

	// Reporter overflow accounting. The bools belong to the stream loop
	// alone; the counter is read by the shutdown path.
	lostResults       atomic.Uint64
	warnedAboutLoss   bool
	currentlyDropping bool

	checkPanicWarned bool

	stopping     atomic.Bool
	shutdownCode atomic.Int32
	finalDone    atomic.Bool
	concludeDone chan struct{}
}

// New creates a Pipeline and starts its reporter goroutine.
func New(opts Options) *Pipeline {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.ReportOut == nil {
		opts.ReportOut = os.Stderr
	}
	if opts.Settings == nil {
		opts.Settings = config.NewSettings(config.DefaultConfig())
	}
	if opts.Log == nil {
		opts.Log = logging.Default()
	}

	p := &Pipeline{
		in:           opts.In,
		out:          opts.Out,
		reportOut:    opts.ReportOut,
		settings:     opts.Settings,
		statsJSON:    opts.StatsJSON,
		log:          opts.Log,
		filter:       filter.New(),
		rep:          opts.Reporter,
		pub:          opts.Publisher,
		jrnl:         opts.Journal,
		startedAt:    time.Now(),
		concludeDone: make(chan struct{}),
	}
	p.handle = p.rep.Start()
	return p
}

// Run executes the stream loop until the input ends, a fatal error
// occurs, or Shutdown stops it, then returns the process exit code.
// The final report is rendered exactly once on every path.
func (p *Pipeline) Run() int {
	buf := make([]byte, evdev.EventSize)

	for {
		if p.stopping.Load() {
			// A shutdown is in flight and owns the final report. Wait
			// for it to complete and return its exit code.
			<-p.concludeDone
			return int(p.shutdownCode.Load())
		}

		if err := evdev.ReadEvent(p.in, buf); err != nil {
			if errors.Is(err, io.EOF) {
				p.log.Debug("input stream closed")
				return p.finish(ReasonEOF, ExitOK)
			}
			p.log.Error("input read failed", "error", err)
			return p.finish(ReasonReadError, ExitReadError)
		}

		ev := evdev.Decode(buf)
		res := p.check(ev)
		p.offer(res)

		if res.Bounce {
			continue
		}

		if err := evdev.WriteEvent(p.out, buf); err != nil {
			if isPipeClosed(err) {
				p.log.Info("downstream closed the pipe, stopping")
				return p.finish(ReasonPipeClosed, ExitOK)
			}
			p.log.Error("output write failed", "error", err)
			return p.finish(ReasonWriteError, ExitWriteError)
		}
	}
}

// check runs the debounce decision under the filter lock. A panicking
// filter must not take the keyboard down with it: the event passes
// unfiltered and the failure is logged once.
func (p *Pipeline) check(ev evdev.Event) (res filter.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			if !p.checkPanicWarned {
				p.checkPanicWarned = true
				p.log.Error("filter check panicked, passing events unfiltered", "panic", r)
			}
			res = filter.Result{Event: ev, US: ev.Micros()}
		}
	}()

	return p.filter.Check(ev, p.settings.WindowUS())
}

// offer hands a result to the reporter without ever blocking the stream.
func (p *Pipeline) offer(res filter.Result) {
	if p.rep.TryEnqueue(res) {
		if p.currentlyDropping {
			p.currentlyDropping = false
			p.log.Info("reporter caught up, stats collection resumed")
		}
		return
	}

	p.lostResults.Add(1)
	if !p.warnedAboutLoss {
		p.warnedAboutLoss = true
		p.currentlyDropping = true
		p.log.Warn("reporter queue full, stats will undercount")
	}
}

// finish is the stream-loop shutdown path. No further enqueues can
// happen, so the queue is closed and the reporter drains it fully.
func (p *Pipeline) finish(reason string, exit int) int {
	p.rep.Close()
	p.conclude(reason)
	return exit
}

// Shutdown is the signal-path shutdown: flag the loop to stop, ask the
// reporter to drain, and run the final sequence if nobody has yet. When
// it returns the final report is out, and a running Run returns code.
// It never closes the queue, because the stream loop may still be
// enqueueing. A Run blocked on an input read cannot observe the stop
// flag and never returns; the caller must then exit the process itself.
func (p *Pipeline) Shutdown(reason string, code int) {
	p.shutdownCode.Store(int32(code))
	p.stopping.Store(true)
	p.rep.Stop()
	p.conclude(reason)
}

// conclude renders the final report, records the run, and publishes the
// final snapshot. Exactly one caller wins; the rest return immediately.
// concludeDone is closed once the winner is finished.
func (p *Pipeline) conclude(reason string) {
	if p.finalDone.Swap(true) {
		return
	}
	defer close(p.concludeDone)

	coll := p.handle.Join()

	if lost := p.lostResults.Load(); lost > 0 {
		p.log.Warn("stats undercount: results were lost to a full reporter queue", "lost", lost)
	}

	p.mu.Lock()
	runtimeUS, hasRuntime := p.filter.RuntimeUS()
	p.mu.Unlock()

	snap := coll.Snapshot(p.rep.BuildMeta(), runtimeUS, hasRuntime)

	fmt.Fprintf(p.reportOut, "\n--- Final Stats ---\n")
	var err error
	if p.statsJSON {
		err = snap.WriteJSON(p.reportOut)
	} else {
		err = snap.WriteHuman(p.reportOut)
	}
	if err != nil {
		p.log.Warn("final stats write failed", "error", err)
	}

	finishedAt := time.Now()
	if p.jrnl != nil {
		run, err := journal.FromSnapshot(p.startedAt, finishedAt, reason, snap)
		if err == nil {
			_, err = p.jrnl.Append(run)
		}
		if err != nil {
			p.log.Warn("journal append failed", "error", err)
		}
	}

	if p.pub != nil {
		if err := p.pub.PublishFinal(snap); err != nil {
			p.log.Warn("final snapshot publish failed", "error", err)
		}
	}

	p.log.Info("run finished",
		"reason", reason,
		"processed", snap.Processed,
		"passed", snap.Passed,
		"dropped", snap.Dropped,
	)
}

func isPipeClosed(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe)
}
