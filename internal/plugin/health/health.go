// Package health implements liveness/readiness endpoints plus a background
// self-check tick, grounded on this package tree's internal/plugins/scheduler.go
// for the cron-driven periodic-task pattern (github.com/robfig/cron/v3).
package health

import (
	"net/http"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/streamspace-dev/rangeweave/internal/logging"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
	"github.com/streamspace-dev/rangeweave/internal/plugin"
)

func init() {
	plugin.Register("health", New)
}

type Plugin struct {
	pipeline.Base
	livenessPath  string
	readinessPath string
	cronSchedule  string
	cronSched     *cron.Cron
	healthy       atomic.Bool
}

// New builds a health plugin instance. Recognized config keys:
// "livenessPath" (default "/healthz"), "readinessPath" (default "/readyz"),
// "cronSchedule" (default "@every 30s", a robfig/cron/v3 spec).
func New(instanceName string, cfg map[string][]string) (pipeline.Handler, error) {
	p := &Plugin{
		Base:          pipeline.Base{PluginName: instanceName},
		livenessPath:  first(cfg, "livenessPath", "/healthz"),
		readinessPath: first(cfg, "readinessPath", "/readyz"),
		cronSchedule:  first(cfg, "cronSchedule", "@every 30s"),
	}
	p.healthy.Store(true)

	p.cronSched = cron.New()
	if _, err := p.cronSched.AddFunc(p.cronSchedule, p.selfCheck); err != nil {
		return nil, err
	}
	p.cronSched.Start()

	return p, nil
}

func first(cfg map[string][]string, key, fallback string) string {
	if v := cfg[key]; len(v) > 0 && v[0] != "" {
		return v[0]
	}
	return fallback
}

func (p *Plugin) selfCheck() {
	// A real deployment would probe host roots, pending reload errors, or
	// event-bus connectivity here.
	p.healthy.Store(true)
	logging.Component("health").Debug().Msg("self-check tick")
}

func (p *Plugin) OnRequest(ctx *pipeline.Context) (*pipeline.Response, error) {
	switch ctx.Req.Path {
	case p.livenessPath:
		resp := pipeline.NewResponse(http.StatusOK)
		resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
		resp.Body = []byte("ok")
		return resp, nil
	case p.readinessPath:
		if !p.healthy.Load() {
			resp := pipeline.NewResponse(http.StatusServiceUnavailable)
			resp.Body = []byte("not ready")
			return resp, nil
		}
		resp := pipeline.NewResponse(http.StatusOK)
		resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
		resp.Body = []byte("ready")
		return resp, nil
	default:
		return nil, nil
	}
}
