// Package plugin is the plugin loader (spec §4.2): a registry of built-in
// plugin factories resolved by name at pipeline-build time, plus the
// pipeline-building logic that turns a HostConfig's ordered PluginInstance
// list into a runnable pipeline.Pipeline.
//
// spec.md allows either a C-ABI dynamic-library mechanism or trait-object
// polymorphism over a closed built-in set with a narrower extension ABI
// (spec §9 "Dynamic plugin loading"). We take the latter, grounded on the
// auto-registration pattern in internal/plugins/registry.go:
// built-in plugins self-register via init() so adding one is "import the
// package," preserving the field-upgradable-pipeline capability without an
// unsafe dlopen/ABI boundary. A third-party extension author implements the
// same pipeline.Handler interface and registers it from their own init(),
// compiled into a custom rangeweave binary — the "narrower extension ABI"
// spec.md mentions as the alternative.
package plugin

import (
	"fmt"
	"sync"

	"github.com/streamspace-dev/rangeweave/internal/logging"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
)

// Factory builds one plugin instance from its pipeline position's
// configuration map. instanceName lets a factory give its Handler.Name() a
// position-specific label (useful when the same library appears twice in a
// pipeline with different config).
type Factory func(instanceName string, config map[string][]string) (pipeline.Handler, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register adds a plugin factory under name (the "library" microdata
// value). Called from each built-in plugin package's init(). Re-registering
// an existing name overwrites it and logs a warning, matching this package tree's
// tolerance for hot-reload-style re-registration.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		logging.Component("plugin").Warn().Str("plugin", name).Msg("already registered, overwriting")
	}
	registry[name] = factory
}

// Get resolves a registered factory by name.
func Get(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Names lists every registered plugin name, for diagnostics.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	return out
}

// errUnknown builds the error returned when a PluginInstance names a
// library the registry has no factory for.
func errUnknown(name string) error {
	return fmt.Errorf("plugin: no registered factory for library %q", name)
}
