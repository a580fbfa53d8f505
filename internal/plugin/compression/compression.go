// Package compression implements the gzip response-phase transform,
// grounded on internal/middleware/compression.go. It uses
// github.com/klauspost/compress/gzip, an API-compatible drop-in for the
// standard library's compress/gzip already pulled into the dependency
// graph transitively (nats.go); using it directly here keeps one gzip
// implementation in the binary instead of two.
package compression

import (
	"bytes"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/streamspace-dev/rangeweave/internal/pipeline"
	"github.com/streamspace-dev/rangeweave/internal/plugin"
)

func init() {
	plugin.Register("compression", New)
}

// minSize is the smallest body worth paying gzip's framing overhead for.
const minSize = 256

type Plugin struct {
	pipeline.Base
	level int
}

func New(instanceName string, cfg map[string][]string) (pipeline.Handler, error) {
	level := gzip.DefaultCompression
	if v := cfg["level"]; len(v) > 0 {
		switch v[0] {
		case "best":
			level = gzip.BestCompression
		case "fast":
			level = gzip.BestSpeed
		}
	}
	return &Plugin{Base: pipeline.Base{PluginName: instanceName}, level: level}, nil
}

func (p *Plugin) OnResponse(ctx *pipeline.Context, resp *pipeline.Response) (*pipeline.Response, error) {
	if resp == nil || len(resp.Body) < minSize {
		return resp, nil
	}
	if resp.Header.Get("Content-Encoding") != "" {
		return resp, nil
	}
	if !strings.Contains(ctx.Req.Header.Get("Accept-Encoding"), "gzip") {
		return resp, nil
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, p.level)
	if err != nil {
		return resp, nil
	}
	if _, err := w.Write(resp.Body); err != nil {
		return resp, nil
	}
	if err := w.Close(); err != nil {
		return resp, nil
	}

	resp.Body = buf.Bytes()
	resp.Header.Set("Content-Encoding", "gzip")
	resp.Header.Add("Vary", "Accept-Encoding")
	return resp, nil
}
