// dechatter - keyboard chatter filter for interception tools pipelines.
//
// Reads raw input_event records on stdin, drops key press/release events
// that repeat within the debounce window, and forwards everything else to
// stdout unchanged. All diagnostics go to stderr; stdout carries nothing
// but events.
//
// Typical udevmon job:
//
//	intercept -g $DEVNODE | dechatter -window 25ms | uinput -d $DEVNODE
//
// Exit codes: 0 on clean shutdown (EOF or downstream pipe closed), 1 on
// configuration errors, 2 on fatal read errors, 3 on fatal write errors,
// 128+signal on signal-driven termination.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"dechatter/internal/config"
	"dechatter/internal/journal"
	"dechatter/internal/logging"
	"dechatter/internal/mqtt"
	"dechatter/internal/pipeline"
	"dechatter/internal/reporter"
	"dechatter/internal/stats"
)

// version is stamped by the build via -ldflags "-X main.version=...".
var version = "dev"

type cliFlags struct {
	configPath  string
	window      time.Duration
	nearMiss    time.Duration
	logInterval time.Duration
	logAll      bool
	logBounces  bool
	statsJSON   bool
	journalPath string
	history     int
	mqttBroker  string
	verbose     bool
	version     bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var fl cliFlags
	flag.StringVar(&fl.configPath, "config", config.ConfigPath(), "configuration file (toml, yaml or json)")
	flag.DurationVar(&fl.window, "window", 25*time.Millisecond, "debounce window; 0 disables dropping")
	flag.DurationVar(&fl.nearMiss, "near-miss", 100*time.Millisecond, "near-miss diagnostic threshold")
	flag.DurationVar(&fl.logInterval, "log-interval", 0, "periodic stats dump interval; 0 disables")
	flag.BoolVar(&fl.logAll, "log-all-events", false, "log every event except EV_SYN/EV_MSC")
	flag.BoolVar(&fl.logBounces, "log-bounces", false, "log each dropped event")
	flag.BoolVar(&fl.statsJSON, "stats-json", false, "emit stats reports as JSON")
	flag.StringVar(&fl.journalPath, "journal", "", "SQLite run-history database")
	flag.IntVar(&fl.history, "history", 0, "print the last N journal entries and exit")
	flag.StringVar(&fl.mqttBroker, "mqtt-broker", "", "publish stats snapshots to this MQTT broker")
	flag.BoolVar(&fl.verbose, "verbose", false, "debug-level logging")
	flag.BoolVar(&fl.version, "version", false, "print version and exit")
	flag.Parse()

	if fl.version {
		fmt.Printf("dechatter %s\n", version)
		return pipeline.ExitOK
	}

	cfg, loader, code := loadConfig(&fl)
	if code != pipeline.ExitOK {
		return code
	}
	if loader != nil {
		defer loader.Close()
	}

	if _, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return pipeline.ExitConfig
	}

	crash := logging.NewCrashHandler("", version)
	defer func() {
		if r := recover(); r != nil {
			crash.HandlePanic(r)
			os.Exit(pipeline.ExitConfig)
		}
	}()
	crash.CleanupOld(30 * 24 * time.Hour)

	if fl.history > 0 {
		return printHistory(cfg, fl.history)
	}

	logging.Info("starting", "version", version,
		"window", cfg.Window().String(),
		"near_miss", cfg.NearMiss().String(),
	)
	setHighPriority()

	settings := config.NewSettings(cfg)
	if loader != nil {
		loader.OnChange(func(c *config.Config) {
			c = c.Clone()
			applyFlagOverrides(c, &fl)
			oldWindow := time.Duration(settings.WindowUS()) * time.Microsecond
			settings.Apply(c)
			logging.Info("configuration reloaded",
				"window_old", oldWindow.String(),
				"window", c.Window().String(),
				"near_miss", c.NearMiss().String(),
			)
		})
		go func() {
			for err := range loader.Errors() {
				logging.Warn("config reload failed", "error", err)
			}
		}()
	}

	var pub mqtt.Publisher
	if cfg.MQTT.Enabled {
		real, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix)
		if err != nil {
			// The keyboard must keep working with or without a broker.
			logging.Warn("mqtt unavailable, continuing without publishing", "error", err)
		} else {
			pub = real
			defer real.Close()
			logging.Info("mqtt connected", "broker", cfg.MQTT.Broker)
		}
	}

	var jrnl *journal.Journal
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			logging.Warn("journal unavailable, run will not be recorded", "error", err)
		} else {
			jrnl = j
			defer j.Close()
		}
	}

	rep := reporter.New(reporter.Options{
		Settings:  settings,
		Interval:  cfg.LogInterval(),
		StatsJSON: cfg.Report.StatsJSON,
		Publisher: pub,
	})

	p := pipeline.New(pipeline.Options{
		Settings:  settings,
		StatsJSON: cfg.Report.StatsJSON,
		Reporter:  rep,
		Publisher: pub,
		Journal:   jrnl,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		code := 128 + int(sig.(syscall.Signal))
		logging.Info("signal received, shutting down", "signal", sig.String())
		p.Shutdown(pipeline.ReasonSignal, code)
		if jrnl != nil {
			jrnl.Close()
		}
		if pub != nil {
			pub.Close()
		}
		// A Run blocked on an idle input never returns; this exit covers
		// that path with the same code Run reports when it does return.
		os.Exit(code)
	}()

	return p.Run()
}

// loadConfig resolves the effective configuration: defaults, then file,
// then environment, then explicit command-line flags. When the config
// file exists it is also watched for live edits.
func loadConfig(fl *cliFlags) (*config.Config, *config.Loader, int) {
	configSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			configSet = true
		}
	})

	if _, err := os.Stat(fl.configPath); err != nil {
		if configSet {
			fmt.Fprintf(os.Stderr, "Error: config file %s: %v\n", fl.configPath, err)
			return nil, nil, pipeline.ExitConfig
		}
		// No file at the default location: defaults + env + flags.
		cfg, err := config.LoadOrDefault(fl.configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return nil, nil, pipeline.ExitConfig
		}
		applyFlagOverrides(cfg, fl)
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
			return nil, nil, pipeline.ExitConfig
		}
		return cfg, nil, pipeline.ExitOK
	}

	loader, err := config.NewLoader(fl.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, nil, pipeline.ExitConfig
	}

	cfg := loader.Current().Clone()
	applyFlagOverrides(cfg, fl)
	if err := cfg.Validate(); err != nil {
		loader.Close()
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		return nil, nil, pipeline.ExitConfig
	}
	return cfg, loader, pipeline.ExitOK
}

// applyFlagOverrides copies explicitly-set command-line flags onto cfg.
// Flags pin their fields: a config reload cannot override them.
func applyFlagOverrides(cfg *config.Config, fl *cliFlags) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "window":
			cfg.Filter.WindowMs = int(fl.window.Milliseconds())
		case "near-miss":
			cfg.Filter.NearMissMs = int(fl.nearMiss.Milliseconds())
		case "log-interval":
			cfg.Report.IntervalSec = int(fl.logInterval.Seconds())
		case "log-all-events":
			cfg.Report.LogAllEvents = fl.logAll
		case "log-bounces":
			cfg.Report.LogBounces = fl.logBounces
		case "stats-json":
			cfg.Report.StatsJSON = fl.statsJSON
		case "journal":
			cfg.Journal.Path = fl.journalPath
		case "mqtt-broker":
			cfg.MQTT.Broker = fl.mqttBroker
			cfg.MQTT.Enabled = fl.mqttBroker != ""
		case "verbose":
			if fl.verbose {
				cfg.Logging.Level = "debug"
			}
		}
	})
}

// setHighPriority raises scheduling priority so event forwarding stays
// responsive under load. Requires root or CAP_SYS_NICE.
func setHighPriority() {
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, -20); err != nil {
		logging.Warn("could not raise process priority (need root or CAP_SYS_NICE)", "error", err)
		return
	}
	logging.Info("process priority raised", "nice", -20)
}

// printHistory lists recent journal entries on stdout and exits. This is
// a utility mode: the filter itself never writes to stdout.
func printHistory(cfg *config.Config, n int) int {
	if cfg.Journal.Path == "" {
		fmt.Fprintln(os.Stderr, "Error: no journal configured (set journal.path or -journal)")
		return pipeline.ExitConfig
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return pipeline.ExitConfig
	}
	defer j.Close()

	runs, err := j.Recent(n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return pipeline.ExitConfig
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return pipeline.ExitOK
	}

	for _, run := range runs {
		pct := 0.0
		if run.Processed > 0 {
			pct = float64(run.Dropped) * 100.0 / float64(run.Processed)
		}
		runtime := "n/a"
		if run.RuntimeUS != nil {
			runtime = stats.FormatUS(*run.RuntimeUS)
		}
		fmt.Printf("%s  %-11s  %8d processed  %6d dropped (%.2f%%)  runtime %s\n",
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.ExitReason, run.Processed, run.Dropped, pct, runtime)
	}
	return pipeline.ExitOK
}
