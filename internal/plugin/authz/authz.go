// Package authz implements the authorization plugin: a role/principal check
// grounded on this package tree's internal/middleware/team_rbac.go, extended
// with the selector-subset annotation the selector handler consumes.
package authz

import (
	"github.com/streamspace-dev/rangeweave/internal/apperr"
	"github.com/streamspace-dev/rangeweave/internal/config"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
	"github.com/streamspace-dev/rangeweave/internal/plugin"
)

func init() {
	plugin.Register("authz", New)
}

// Plugin consults the host's AuthorizationRule table and annotates
// ctx.Principal.AllowedSelectors, leaving it nil (meaning "unrestricted")
// when no rule names the principal or one of its roles.
type Plugin struct {
	pipeline.Base
	requireAuth bool
}

func New(instanceName string, cfg map[string][]string) (pipeline.Handler, error) {
	p := &Plugin{Base: pipeline.Base{PluginName: instanceName}}
	if v := cfg["requireAuth"]; len(v) > 0 && v[0] == "true" {
		p.requireAuth = true
	}
	return p, nil
}

func (p *Plugin) OnRequest(ctx *pipeline.Context) (*pipeline.Response, error) {
	if ctx.Principal == nil {
		if p.requireAuth {
			return apperr.Unauthorized("authentication required").Response(), nil
		}
		return nil, nil
	}

	host, _ := ctx.Host.(*config.HostConfig)
	if host == nil {
		return nil, nil
	}

	var allowed []string
	matched := false
	for _, rule := range host.AuthRules {
		if rule.Principal != "" && rule.Principal == ctx.Principal.UserID {
			allowed = append(allowed, rule.AllowedSelectors...)
			matched = true
		}
		if rule.Role != "" && ctx.Principal.HasRole(rule.Role) {
			allowed = append(allowed, rule.AllowedSelectors...)
			matched = true
		}
	}
	if matched {
		ctx.Principal.AllowedSelectors = dedupe(allowed)
	}
	return nil, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
