package plugin

import (
	"fmt"

	"github.com/streamspace-dev/rangeweave/internal/config"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
)

// configReloadLibrary and authzLibrary name the two built-in plugins whose
// relative order the loader enforces (spec §4.7: "the config-reload plugin
// MUST sit after the authorization plugin in the request phase").
const (
	configReloadLibrary = "configreload"
	authzLibrary        = "authz"
)

// BuildHostPipeline instantiates every PluginInstance in host, in order,
// into a runnable pipeline.Pipeline. Per spec §4.1, "instantiation either
// succeeds fully or the host is rejected" — the first factory error aborts
// the whole host and is returned to the caller.
func BuildHostPipeline(host *config.HostConfig) (*pipeline.Pipeline, error) {
	if err := checkOrdering(host); err != nil {
		return nil, err
	}

	handlers := make([]pipeline.Handler, 0, len(host.Plugins))
	for i, pi := range host.Plugins {
		factory, ok := Get(pi.Library)
		if !ok {
			return nil, errUnknown(pi.Library)
		}
		instanceName := fmt.Sprintf("%s#%d", pi.Library, i)
		h, err := factory(instanceName, pi.Config)
		if err != nil {
			return nil, fmt.Errorf("plugin: instantiate %s: %w", pi.Library, err)
		}
		handlers = append(handlers, h)
	}

	return &pipeline.Pipeline{HostNames: host.Names, Plugins: handlers}, nil
}

// checkOrdering enforces the configreload-after-authz constraint at
// pipeline-build time, since detecting it only at request time would leave
// a misconfigured pipeline silently granting unauthenticated reloads.
func checkOrdering(host *config.HostConfig) error {
	authzIndex := -1
	for i, pi := range host.Plugins {
		if pi.Library == authzLibrary {
			authzIndex = i
		}
		if pi.Library == configReloadLibrary {
			if authzIndex == -1 || authzIndex > i {
				return fmt.Errorf("plugin: %s must sit after %s in the request phase", configReloadLibrary, authzLibrary)
			}
		}
	}
	return nil
}

// BuildServerPipelines builds a pipeline for every host in server. Per
// spec §4.1, an individual host's plugin-load failure is fatal for that
// host only: a host whose pipeline fails to build is left out of the
// returned map and its error is appended to errs, while every other host
// is still built.
func BuildServerPipelines(server *config.ServerConfig) (map[*config.HostConfig]*pipeline.Pipeline, []error) {
	out := make(map[*config.HostConfig]*pipeline.Pipeline, len(server.Hosts))
	var errs []error
	for _, host := range server.Hosts {
		p, err := BuildHostPipeline(host)
		if err != nil {
			errs = append(errs, fmt.Errorf("host %v: %w", host.Names, err))
			continue
		}
		out[host] = p
	}
	return out, errs
}
