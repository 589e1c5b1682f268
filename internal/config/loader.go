package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration file. The format is chosen by
// file extension (.toml, .json, .yaml, .yml); unknown extensions are
// autodetected. Environment overrides are applied after parsing, and the
// result is validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := parseConfig(data, filepath.Ext(path), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads the configuration file at path, or returns the
// defaults (with env overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

func parseConfig(data []byte, ext string, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	case ".json":
		return json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return autodetect(data, cfg)
	}
}

// autodetect tries each supported format in turn. JSON is tried first
// since YAML would accept it too.
func autodetect(data []byte, cfg *Config) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, cfg); err == nil {
			return nil
		}
	}
	if err := toml.Unmarshal(data, cfg); err == nil {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err == nil {
		return nil
	}
	return fmt.Errorf("unrecognized config format")
}

// reloadDebounce coalesces the burst of fsnotify events most editors
// produce for a single save.
const reloadDebounce = 100 * time.Millisecond

// Loader watches a configuration file and reloads it on change. Invalid
// reloads are reported on Errors() and do not replace the current config.
type Loader struct {
	path    string
	watcher *fsnotify.Watcher

	mu        sync.RWMutex
	current   *Config
	onChange  []func(*Config)
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once
}

// NewLoader loads the config at path and begins watching it for changes.
func NewLoader(path string) (*Loader, error) {
	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}

	// Watch the directory, not the file: editors replace files on save,
	// which would drop a direct file watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config dir %s: %w", dir, err)
	}

	l := &Loader{
		path:    path,
		watcher: watcher,
		current: cfg,
		errs:    make(chan error, 8),
		done:    make(chan struct{}),
	}
	go l.watch()
	return l, nil
}

// Current returns the most recently loaded valid configuration.
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked with each successfully reloaded
// config. Callbacks run on the goroutine of the debounce timer, not the
// watcher's, and must not block.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Errors returns a channel delivering reload failures.
func (l *Loader) Errors() <-chan error {
	return l.errs
}

// Close stops watching the configuration file.
func (l *Loader) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.watcher.Close()
	})
	return err
}

func (l *Loader) watch() {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-l.done:
			return

		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(l.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, l.reload)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.reportError(fmt.Errorf("config watcher: %w", err))
		}
	}
}

func (l *Loader) reload() {
	cfg, err := Load(l.path)
	if err != nil {
		l.reportError(err)
		return
	}

	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*Config), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}

func (l *Loader) reportError(err error) {
	select {
	case l.errs <- err:
	default:
	}
}
