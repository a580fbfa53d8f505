package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/streamspace-dev/rangeweave/internal/eventbus"
	"github.com/streamspace-dev/rangeweave/internal/logging"
)

// Store holds the active configuration as a pointer-to-immutable snapshot
// (spec §5 "Shared mutable configuration"). Readers call
// Current(); Reload builds a fresh ServerConfig and atomically swaps the
// pointer. Old snapshots are simply dropped by the GC once their last
// reader (an in-flight request holding *ServerConfig) finishes — there is
// no reader-writer contention because readers never block a writer and
// vice versa.
type Store struct {
	ptr atomic.Pointer[ServerConfig]
	bus *eventbus.Bus
}

// NewStore wraps an already-loaded ServerConfig.
func NewStore(initial *ServerConfig, bus *eventbus.Bus) *Store {
	s := &Store{bus: bus}
	s.ptr.Store(initial)
	return s
}

// Current returns the active snapshot. Safe for concurrent use from any
// number of request goroutines.
func (s *Store) Current() *ServerConfig {
	return s.ptr.Load()
}

// Reload re-parses the path the store was built from and, if it parses and
// validates successfully, atomically replaces the active configuration. If
// it fails, the old configuration continues serving unaffected (spec
// §4.7) and the failure is published on the event bus for the error/
// access-log pathway to surface.
func (s *Store) Reload() error {
	path := s.Current().Path
	next, err := Load(path)
	if err != nil {
		logging.Component("config").Error().Err(err).Str("path", path).Msg("reload failed, keeping previous configuration")
		if s.bus != nil {
			s.bus.Publish(eventbus.EventConfigFailed, err.Error())
		}
		return err
	}
	s.ptr.Store(next)
	logging.Component("config").Info().Str("path", path).Msg("configuration reloaded")
	if s.bus != nil {
		s.bus.Publish(eventbus.EventConfigReloaded, path)
	}
	return nil
}

// WatchFile starts a background fsnotify watch on the config file's
// directory (watching the file itself misses editors that replace-via-
// rename) and calls Reload whenever the path is written or replaced. This
// is the supplementary hot-reload trigger alongside the reload signal
// ; it returns the watcher so the caller can Close it on
// shutdown. Errors starting the watch are non-fatal — signal-based reload
// still works without it.
func (s *Store) WatchFile() *fsnotify.Watcher {
	path := s.Current().Path
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Component("config").Warn().Err(err).Msg("fsnotify unavailable, relying on signal-driven reload only")
		return nil
	}
	dir := dirOf(path)
	if err := w.Add(dir); err != nil {
		logging.Component("config").Warn().Err(err).Str("dir", dir).Msg("could not watch config directory")
		w.Close()
		return nil
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					_ = s.Reload()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logging.Component("config").Warn().Err(err).Msg("fsnotify watch error")
			}
		}
	}()
	return w
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
