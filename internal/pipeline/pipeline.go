package pipeline

import (
	"fmt"
	"net/http"

	"github.com/streamspace-dev/rangeweave/internal/logging"
)

// Pipeline is the ordered plugin chain for one host (spec §3 "Pipeline").
// Identity is position + configuration: two pipelines built from the same
// config produce the same behavior, which is what makes a reload's
// atomic-swap safe mid-flight (spec §8 "Reload is atomic").
type Pipeline struct {
	HostNames []string
	Plugins   []Handler
}

// Executor drives the forward and reverse phases for a single request
// against a resolved Pipeline (spec §4.3).
type Executor struct {
	bus interface {
		Publish(event string, payload any)
	}
}

// NewExecutor builds an Executor. bus may be nil (events are simply not
// published, e.g. in unit tests that don't care about observability).
func NewExecutor(bus interface {
	Publish(event string, payload any)
}) *Executor {
	return &Executor{bus: bus}
}

// RequestFinishedEvent is published on the event bus after every request.
type RequestFinishedEvent struct {
	RequestID string
	Method    string
	Path      string
	Status    int
}

// Run executes the full forward-then-reverse cycle for ctx against p and
// returns the final response. It never panics: a panic or error in a
// plugin's OnRequest is recovered, logged, turned into a 500 Response, and
// the reverse phase still runs so observability plugins see the failure
// (spec §7.5); a panic or error in OnResponse is logged and the response
// passed to that plugin is carried on unchanged.
func (e *Executor) Run(ctx *Context, p *Pipeline) *Response {
	resp, forwardCount := e.forward(ctx, p)
	resp = e.reverse(ctx, p, resp, forwardCount)

	if e.bus != nil {
		e.bus.Publish("request.finished", RequestFinishedEvent{
			RequestID: ctx.RequestID,
			Method:    ctx.Req.Method,
			Path:      ctx.Req.Path,
			Status:    resp.Status,
		})
	}
	return resp
}

// forward walks plugins in configured order. The first non-nil response
// short-circuits; forwardCount is how many plugins actually ran. reverse
// receives it but does not use it: it walks the full pipeline in reverse
// regardless of how far the forward phase got (spec §4.3/§8).
func (e *Executor) forward(ctx *Context, p *Pipeline) (*Response, int) {
	for i, h := range p.Plugins {
		resp, err := e.safeOnRequest(h, ctx)
		if err != nil {
			logging.Component("pipeline").Error().Err(err).Str("plugin", h.Name()).Msg("plugin OnRequest failed")
			if e.bus != nil {
				e.bus.Publish("plugin.error", map[string]any{"plugin": h.Name(), "phase": "request", "error": err.Error()})
			}
			return internalErrorResponse(err), i + 1
		}
		if resp != nil {
			return resp, i + 1
		}
	}
	return notFoundResponse(), len(p.Plugins)
}

// reverse walks the full pipeline in reverse, regardless of how far forward
// got (spec §4.3 "Plugins that did not participate in the forward phase
// still participate in the reverse phase").
func (e *Executor) reverse(ctx *Context, p *Pipeline, resp *Response, _ int) *Response {
	for i := len(p.Plugins) - 1; i >= 0; i-- {
		h := p.Plugins[i]
		next, err := e.safeOnResponse(h, ctx, resp)
		if err != nil {
			logging.Component("pipeline").Error().Err(err).Str("plugin", h.Name()).Msg("plugin OnResponse failed")
			if e.bus != nil {
				e.bus.Publish("plugin.error", map[string]any{"plugin": h.Name(), "phase": "response", "error": err.Error()})
			}
			continue
		}
		resp = next
	}
	return resp
}

func (e *Executor) safeOnRequest(h Handler, ctx *Context) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s.OnRequest: %v", h.Name(), r)
		}
	}()
	return h.OnRequest(ctx)
}

func (e *Executor) safeOnResponse(h Handler, ctx *Context, resp *Response) (out *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s.OnResponse: %v", h.Name(), r)
			out = resp
		}
	}()
	return h.OnResponse(ctx, resp)
}

func notFoundResponse() *Response {
	r := NewResponse(http.StatusNotFound)
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	r.Body = []byte("404 Not Found")
	return r
}

func internalErrorResponse(err error) *Response {
	r := NewResponse(http.StatusInternalServerError)
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	r.Body = []byte("500 Internal Server Error")
	return r
}
