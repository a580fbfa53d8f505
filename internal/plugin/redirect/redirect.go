// Package redirect turns a host's config-driven RedirectRule items into
// 301/302 responses. It has no direct precedent elsewhere in this package
// tree — built in the same config-driven-middleware idiom (a plugin whose
// whole behavior is read off HostConfig rather than its own instance
// config).
package redirect

import (
	"github.com/streamspace-dev/rangeweave/internal/config"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
	"github.com/streamspace-dev/rangeweave/internal/plugin"
	"github.com/streamspace-dev/rangeweave/internal/router"
)

func init() {
	plugin.Register("redirect", New)
}

type Plugin struct {
	pipeline.Base
}

func New(instanceName string, _ map[string][]string) (pipeline.Handler, error) {
	return &Plugin{Base: pipeline.Base{PluginName: instanceName}}, nil
}

func (p *Plugin) OnRequest(ctx *pipeline.Context) (*pipeline.Response, error) {
	host, _ := ctx.Host.(*config.HostConfig)
	if host == nil {
		return nil, nil
	}

	path := router.NormalizePath(ctx.Req.Path)
	for _, rule := range host.Redirects {
		if rule.From != path {
			continue
		}
		code := rule.Code
		if code == 0 {
			code = 302
		}
		resp := pipeline.NewResponse(code)
		resp.Header.Set("Location", rule.To)
		return resp, nil
	}
	return nil, nil
}
