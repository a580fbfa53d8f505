// Package configreload implements the PATCH-to-config-URL reload trigger
// (spec §4.7). The pipeline loader enforces that this plugin's instance
// always sits after an authz instance in a host's configured pipeline
// (internal/plugin.checkOrdering), since this endpoint can force a
// full configuration reparse.
package configreload

import (
	"net/http"
	"sync"

	"github.com/streamspace-dev/rangeweave/internal/apperr"
	"github.com/streamspace-dev/rangeweave/internal/config"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
	"github.com/streamspace-dev/rangeweave/internal/plugin"
)

func init() {
	plugin.Register("configreload", New)
}

var (
	mu    sync.RWMutex
	store *config.Store
)

// Bind registers the process-wide config.Store this plugin reloads. Called
// once from the CLI front door after the store is constructed; a plugin
// factory has no other way to reach process-wide state since its
// configuration is just a string map (spec §3 "PluginInstance").
func Bind(s *config.Store) {
	mu.Lock()
	defer mu.Unlock()
	store = s
}

func currentStore() *config.Store {
	mu.RLock()
	defer mu.RUnlock()
	return store
}

type Plugin struct {
	pipeline.Base
	path string
}

// New builds a configreload plugin instance. Recognized config key:
// "path", the request path that triggers a reload when PATCHed (default
// "/_rangeweave/config").
func New(instanceName string, cfg map[string][]string) (pipeline.Handler, error) {
	path := "/_rangeweave/config"
	if v := cfg["path"]; len(v) > 0 && v[0] != "" {
		path = v[0]
	}
	return &Plugin{Base: pipeline.Base{PluginName: instanceName}, path: path}, nil
}

func (p *Plugin) OnRequest(ctx *pipeline.Context) (*pipeline.Response, error) {
	if ctx.Req.Method != "PATCH" || ctx.Req.Path != p.path {
		return nil, nil
	}

	s := currentStore()
	if s == nil {
		return apperr.Internal(nil).Response(), nil
	}
	if err := s.Reload(); err != nil {
		return apperr.Internal(err).Response(), nil
	}

	resp := pipeline.NewResponse(http.StatusOK)
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	resp.Body = []byte("configuration reloaded")
	return resp, nil
}
