// Package accesslog implements the structured per-request access-log line,
// grounded on internal/middleware/structured_logger.go and auditlog.go,
// adapted from Gin's c.Next()-wrapping hook style to the reverse-phase
// OnResponse hook.
package accesslog

import (
	"github.com/streamspace-dev/rangeweave/internal/logging"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
	"github.com/streamspace-dev/rangeweave/internal/plugin"
)

func init() {
	plugin.Register("accesslog", New)
}

type Plugin struct {
	pipeline.Base
}

func New(instanceName string, _ map[string][]string) (pipeline.Handler, error) {
	return &Plugin{Base: pipeline.Base{PluginName: instanceName}}, nil
}

func (p *Plugin) OnResponse(ctx *pipeline.Context, resp *pipeline.Response) (*pipeline.Response, error) {
	log := logging.Component("accesslog").Info().
		Str("request_id", ctx.RequestID).
		Str("method", ctx.Req.Method).
		Str("path", ctx.Req.Path).
		Str("remote", ctx.Req.Remote).
		Int("status", resp.Status).
		Dur("elapsed", ctx.Elapsed())

	if ctx.HasSelector {
		log = log.Str("selector", ctx.Selector)
	}
	if ctx.HasMutatedDocument {
		log = log.Bool("mutated", true)
	}
	if ctx.Principal != nil {
		log = log.Str("user_id", ctx.Principal.UserID)
	}
	log.Msg("request handled")

	return resp, nil
}
