// chatter-gen generates synthetic input_event streams with injected switch
// chatter for testing the debounce filter without needing a broken keyboard.
//
// Usage:
//
//	go run tools/chatter-gen.go -output stream.bin -count 200
//	go run tools/chatter-gen.go -output stream.bin -profile dying-switch
//	go run tools/chatter-gen.go -output /dev/stdout -count 50 | dechatter -stats-json
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"dechatter/internal/evdev"
)

// KeyboardProfile defines parameters for simulating switches in different
// states of decay.
type KeyboardProfile struct {
	Name                   string
	Description            string
	TypingIntervalMs       float64 // Median time between keystrokes
	IntervalStdDevMs       float64 // Standard deviation
	HoldMs                 float64 // Median press-to-release time
	HoldStdDevMs           float64
	ChatterProbability     float64 // Probability a contact bounces
	BounceDelayMsMin       float64 // Bounce echo delay range
	BounceDelayMsMax       float64
	MultiBounceProbability float64 // Probability a bounce echoes again
}

var profiles = map[string]KeyboardProfile{
	"healthy": {
		Name:               "Healthy Keyboard",
		Description:        "Clean switches, no chatter",
		TypingIntervalMs:   180,
		IntervalStdDevMs:   90,
		HoldMs:             85,
		HoldStdDevMs:       25,
		ChatterProbability: 0,
	},
	"worn-switch": {
		Name:                   "Worn Switch",
		Description:            "Occasional chatter on press",
		TypingIntervalMs:       180,
		IntervalStdDevMs:       90,
		HoldMs:                 85,
		HoldStdDevMs:           25,
		ChatterProbability:     0.08,
		BounceDelayMsMin:       2,
		BounceDelayMsMax:       12,
		MultiBounceProbability: 0.1,
	},
	"dying-switch": {
		Name:                   "Dying Switch",
		Description:            "Frequent chatter on press and release",
		TypingIntervalMs:       200,
		IntervalStdDevMs:       100,
		HoldMs:                 90,
		HoldStdDevMs:           30,
		ChatterProbability:     0.35,
		BounceDelayMsMin:       1,
		BounceDelayMsMax:       20,
		MultiBounceProbability: 0.3,
	},
	"chatter-storm": {
		Name:                   "Chatter Storm",
		Description:            "Pathological bouncing on every contact",
		TypingIntervalMs:       150,
		IntervalStdDevMs:       60,
		HoldMs:                 80,
		HoldStdDevMs:           20,
		ChatterProbability:     0.95,
		BounceDelayMsMin:       1,
		BounceDelayMsMax:       15,
		MultiBounceProbability: 0.6,
	},
}

// keyPool is a realistic spread of letter row codes (KEY_Q..KEY_M plus space).
var keyPool = []uint16{16, 17, 18, 19, 20, 30, 31, 32, 33, 34, 35, 36, 44, 45, 46, 47, 48, 49, 50, 57}

func main() {
	var (
		outputPath   = flag.String("output", "chatter.bin", "Output file path")
		pressCount   = flag.Int("count", 100, "Number of keystrokes to generate")
		profileName  = flag.String("profile", "worn-switch", "Keyboard profile to use")
		startTime    = flag.Int64("start", 0, "Start timestamp (seconds); 0 = now")
		seed         = flag.Int64("seed", 0, "Random seed; 0 = use current time")
		listProfiles = flag.Bool("list", false, "List available profiles")
	)
	flag.Parse()

	if *listProfiles {
		fmt.Println("Available profiles:")
		for name, p := range profiles {
			fmt.Printf("  %-16s %s\n", name, p.Description)
		}
		os.Exit(0)
	}

	profile, ok := profiles[*profileName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown profile: %s\n", *profileName)
		fmt.Fprintf(os.Stderr, "Use -list to see available profiles\n")
		os.Exit(1)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	if *startTime == 0 {
		*startTime = time.Now().Unix()
	}

	fmt.Fprintf(os.Stderr, "Generating %d keystrokes with profile: %s\n", *pressCount, profile.Name)
	fmt.Fprintf(os.Stderr, "Random seed: %d\n", *seed)

	events, bounces := generateStream(rng, profile, *pressCount, uint64(*startTime)*1_000_000)

	f, err := os.Create(*outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output: %v\n", err)
		os.Exit(1)
	}
	w := bufio.NewWriter(f)
	var rec [evdev.EventSize]byte
	for _, ev := range events {
		ev.Encode(rec[:])
		if _, err := w.Write(rec[:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			os.Exit(1)
		}
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing output: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Generated %d events (%d injected bounces) to %s\n",
		len(events), bounces, *outputPath)
	printStats(events, bounces)
}

// generateStream produces press/release pairs with SYN markers and injected
// bounce echoes. Returns the events and the number of injected bounces.
func generateStream(rng *rand.Rand, p KeyboardProfile, presses int, startUS uint64) ([]evdev.Event, int) {
	var events []evdev.Event
	bounces := 0
	clock := startUS
	last := startUS

	emit := func(us uint64, code uint16, value int32) {
		events = append(events, evdev.Event{
			Sec:   int64(us / 1_000_000),
			Usec:  int64(us % 1_000_000),
			Type:  evdev.EvKey,
			Code:  code,
			Value: value,
		})
		events = append(events, evdev.Event{
			Sec:  int64(us / 1_000_000),
			Usec: int64(us % 1_000_000),
			Type: evdev.EvSyn,
		})
		last = us
	}

	bounceAfter := func(us uint64, code uint16, value int32) uint64 {
		delay := p.BounceDelayMsMin + rng.Float64()*(p.BounceDelayMsMax-p.BounceDelayMsMin)
		at := us + uint64(delay*1000)
		emit(at, code, value)
		bounces++
		return at
	}

	for i := 0; i < presses; i++ {
		clock += positiveMs(rng, p.TypingIntervalMs, p.IntervalStdDevMs)
		if clock <= last {
			clock = last + 1_000
		}
		code := keyPool[rng.Intn(len(keyPool))]

		emit(clock, code, evdev.ValuePress)
		if rng.Float64() < p.ChatterProbability {
			at := bounceAfter(clock, code, evdev.ValuePress)
			if rng.Float64() < p.MultiBounceProbability {
				bounceAfter(at, code, evdev.ValuePress)
			}
		}

		// Keep timestamps monotonic: a bounce echo may outlast a short hold.
		release := clock + positiveMs(rng, p.HoldMs, p.HoldStdDevMs)
		if release <= last {
			release = last + 1_000
		}
		emit(release, code, evdev.ValueRelease)
		if rng.Float64() < p.ChatterProbability {
			bounceAfter(release, code, evdev.ValueRelease)
		}
		clock = last
	}
	return events, bounces
}

// positiveMs draws a normally distributed duration in milliseconds, clamped
// to at least 1ms, and returns it in microseconds.
func positiveMs(rng *rand.Rand, medianMs, stdDevMs float64) uint64 {
	ms := medianMs + rng.NormFloat64()*stdDevMs
	if ms < 1 {
		ms = 1
	}
	return uint64(ms * 1000)
}

func printStats(events []evdev.Event, bounces int) {
	if len(events) == 0 {
		return
	}
	keyEvents := 0
	for _, ev := range events {
		if ev.IsKey() {
			keyEvents++
		}
	}
	span := events[len(events)-1].Micros() - events[0].Micros()

	fmt.Fprintln(os.Stderr, "\nStream statistics:")
	fmt.Fprintf(os.Stderr, "  Total events:     %d (%d key, %d syn)\n",
		len(events), keyEvents, len(events)-keyEvents)
	fmt.Fprintf(os.Stderr, "  Injected bounces: %d\n", bounces)
	fmt.Fprintf(os.Stderr, "  Stream duration:  %.1fs\n", float64(span)/1e6)
	fmt.Fprintf(os.Stderr, "  Bytes:            %d\n", len(events)*evdev.EventSize)
}
