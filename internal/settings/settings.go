package settings

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
)

// EventSet is the name of the event published after a successful Set.
const EventSet = "set"

// ErrUnknownKey is returned by Set for keys the configuration does not define.
var ErrUnknownKey = errors.New("unknown setting")

// Validator vets a value before it is stored.
type Validator func(value interface{}) error

// Event describes one settings change.
type Event struct {
	Name     string
	Key      string
	Value    interface{}
	Previous interface{}
	// Config is the snapshot after the change
	Config *config.Config
}

// Listener receives settings events.
type Listener func(Event)

// Store is a hierarchical, runtime-mutable view of the configuration. Keys
// are dot separated yaml paths, e.g. "scheduler.search_interval".
type Store struct {
	mu        sync.RWMutex
	k         *koanf.Koanf
	listeners map[int]Listener
	nextID    int
	watched   *file.File
	log       *logger.Logger
}

// New creates a store seeded from cfg.
func New(cfg *config.Config, log *logger.Logger) (*Store, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.Get()
	}
	k := koanf.New(".")
	if err := k.Load(structs.Provider(cfg, "yaml"), nil); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return &Store{
		k:         k,
		listeners: make(map[int]Listener),
		log:       log.Component("settings"),
	}, nil
}

// Get returns the value at key, or nil.
func (s *Store) Get(key string) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.k.Get(key)
}

// Keys returns every leaf key, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.k.Keys()
}

// Snapshot decodes the current settings into a fresh Config.
func (s *Store) Snapshot() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, err := decode(s.k)
	if err != nil {
		// every stored state has been decoded once before it was committed
		s.log.Error("Failed to decode settings", map[string]interface{}{"error": err.Error()})
		return config.Default()
	}
	return cfg
}

// Set stores value at key after validate (if any) accepts it and the
// resulting configuration still validates. Subscribers then receive a
// "set" event.
func (s *Store) Set(key string, value interface{}, validate Validator) error {
	if validate != nil {
		if err := validate(value); err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
	}

	s.mu.Lock()
	if !s.k.Exists(key) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	previous := s.k.Get(key)

	candidate := s.k.Copy()
	if err := candidate.Set(key, value); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("setting %s: %w", key, err)
	}
	cfg, err := decode(candidate)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("setting %s: %w", key, err)
	}
	if err := cfg.Validate(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("setting %s: %w", key, err)
	}
	s.k = candidate
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	s.log.Info("Setting changed", map[string]interface{}{"key": key})

	ev := Event{Name: EventSet, Key: key, Value: value, Previous: previous, Config: cfg}
	for _, l := range listeners {
		l(ev)
	}
	return nil
}

// Subscribe registers fn for settings events and returns a function that
// removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) snapshotListeners() []Listener {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}
	return out
}

// ApplyFile reads the YAML file at path and sets every key whose value
// differs from the stored one. Keys that fail validation are logged and
// skipped. It returns the keys that changed.
func (s *Store) ApplyFile(path string) ([]string, error) {
	fk := koanf.New(".")
	if err := fk.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	var changed []string
	for _, key := range fk.Keys() {
		value := fk.Get(key)
		if fmt.Sprint(s.Get(key)) == fmt.Sprint(value) {
			continue
		}
		if err := s.Set(key, value, nil); err != nil {
			s.log.Warn("Ignoring setting from file", map[string]interface{}{
				"path":  path,
				"key":   key,
				"error": err.Error(),
			})
			continue
		}
		changed = append(changed, key)
	}
	return changed, nil
}

// WatchFile applies the file at path whenever it changes on disk.
func (s *Store) WatchFile(path string) error {
	f := file.Provider(path)
	err := f.Watch(func(event interface{}, err error) {
		if err != nil {
			s.log.Warn("Settings file watch failed", map[string]interface{}{"path": path, "error": err.Error()})
			return
		}
		changed, err := s.ApplyFile(path)
		if err != nil {
			s.log.Warn("Failed to reload settings file", map[string]interface{}{"path": path, "error": err.Error()})
			return
		}
		if len(changed) > 0 {
			s.log.Info("Reloaded settings file", map[string]interface{}{"path": path, "keys": changed})
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	s.mu.Lock()
	s.watched = f
	s.mu.Unlock()
	return nil
}

// Close stops watching the settings file.
func (s *Store) Close() error {
	s.mu.Lock()
	f := s.watched
	s.watched = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Unwatch()
}

func decode(k *koanf.Koanf) (*config.Config, error) {
	cfg := &config.Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return cfg, nil
}
