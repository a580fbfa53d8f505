// Package cors implements the CORS plugin, grounded on corsMiddleware() in
// this package tree's cmd/main.go: answer preflight OPTIONS requests directly,
// and decorate every other response with the configured
// Access-Control-Allow-* headers in the reverse phase.
package cors

import (
	"net/http"
	"strings"

	"github.com/streamspace-dev/rangeweave/internal/pipeline"
	"github.com/streamspace-dev/rangeweave/internal/plugin"
)

func init() {
	plugin.Register("cors", New)
}

type Plugin struct {
	pipeline.Base
	allowOrigin      string
	allowMethods     string
	allowHeaders     string
	allowCredentials bool
}

func New(instanceName string, cfg map[string][]string) (pipeline.Handler, error) {
	p := &Plugin{
		Base:         pipeline.Base{PluginName: instanceName},
		allowOrigin:  "*",
		allowMethods: "GET, HEAD, PUT, POST, DELETE, OPTIONS",
		allowHeaders: "Authorization, Content-Type, Range",
	}
	if v := cfg["allowOrigin"]; len(v) > 0 {
		p.allowOrigin = strings.Join(v, ", ")
	}
	if v := cfg["allowMethods"]; len(v) > 0 {
		p.allowMethods = strings.Join(v, ", ")
	}
	if v := cfg["allowHeaders"]; len(v) > 0 {
		p.allowHeaders = strings.Join(v, ", ")
	}
	if v := cfg["allowCredentials"]; len(v) > 0 && v[0] == "true" {
		p.allowCredentials = true
	}
	return p, nil
}

func (p *Plugin) OnRequest(ctx *pipeline.Context) (*pipeline.Response, error) {
	if ctx.Req.Method != "OPTIONS" || ctx.Req.Header.Get("Access-Control-Request-Method") == "" {
		return nil, nil
	}
	resp := pipeline.NewResponse(http.StatusNoContent)
	p.decorate(resp)
	return resp, nil
}

func (p *Plugin) OnResponse(ctx *pipeline.Context, resp *pipeline.Response) (*pipeline.Response, error) {
	p.decorate(resp)
	return resp, nil
}

func (p *Plugin) decorate(resp *pipeline.Response) {
	resp.Header.Set("Access-Control-Allow-Origin", p.allowOrigin)
	resp.Header.Set("Access-Control-Allow-Methods", p.allowMethods)
	resp.Header.Set("Access-Control-Allow-Headers", p.allowHeaders)
	if p.allowCredentials {
		resp.Header.Set("Access-Control-Allow-Credentials", "true")
	}
}
