// Package errorplugin implements the reverse-phase-only error-rendering
// plugin, grounded on internal/errors/middleware.go: when a client prefers
// HTML, an error response (status 400 or above, typically AppError-backed
// JSON) is re-rendered as a small
// styled error page instead. It never changes the status code and never
// promotes an error response to 2xx (spec.md §7: "must never turn an error
// into a success response silently").
package errorplugin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/streamspace-dev/rangeweave/internal/pipeline"
	"github.com/streamspace-dev/rangeweave/internal/plugin"
)

func init() {
	plugin.Register("error", New)
}

type Plugin struct {
	pipeline.Base
}

func New(instanceName string, _ map[string][]string) (pipeline.Handler, error) {
	return &Plugin{Base: pipeline.Base{PluginName: instanceName}}, nil
}

type body struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (p *Plugin) OnResponse(ctx *pipeline.Context, resp *pipeline.Response) (*pipeline.Response, error) {
	if resp == nil || resp.Status < 400 {
		return resp, nil
	}
	if !strings.Contains(ctx.Req.Header.Get("Accept"), "text/html") {
		return resp, nil
	}

	var b body
	_ = json.Unmarshal(resp.Body, &b)
	if b.Message == "" {
		b.Message = http.StatusText(resp.Status)
	}

	resp.Body = []byte(fmt.Sprintf(pageTemplate, resp.Status, b.Message, resp.Status, b.Message, b.Code))
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return resp, nil
}

const pageTemplate = `<!DOCTYPE html>
<html><head><title>%d %s</title></head>
<body>
<h1>%d %s</h1>
<p>%s</p>
</body></html>
`
