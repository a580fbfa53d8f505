// Package selector implements the selector handler: the core plugin that
// gives the server its name. It recognizes the selector-on-HTTP protocol
// (spec §4.5) on GET/PUT/POST/DELETE, scopes the request to the elements a
// CSS selector matches within a host's HTML documents, and mutates the DOM
// in place for the write verbs.
//
// Grounded on this package tree's plugin shape (internal/plugins/base_plugin.go,
// internal/plugins/registry.go) for the Handler/Base/init-registration
// pattern; the DOM work is grounded on internal/htmldoc, wrapping
// goquery/cascadia for CSS-selector-driven HTML mutation.
package selector

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/streamspace-dev/rangeweave/internal/apperr"
	"github.com/streamspace-dev/rangeweave/internal/config"
	"github.com/streamspace-dev/rangeweave/internal/fsroot"
	"github.com/streamspace-dev/rangeweave/internal/htmldoc"
	"github.com/streamspace-dev/rangeweave/internal/httprange"
	"github.com/streamspace-dev/rangeweave/internal/logging"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
	"github.com/streamspace-dev/rangeweave/internal/plugin"
	"github.com/streamspace-dev/rangeweave/internal/router"
)

func init() {
	plugin.Register("selector", New)
}

// Plugin is the selector handler. It carries no per-instance configuration;
// every decision it makes is derived from the request, the matched host,
// and the authenticated principal.
type Plugin struct {
	pipeline.Base
	sanitizer *bluemonday.Policy
}

// New builds a selector handler instance. config is accepted but unused
// (the selector handler has no tunables of its own, spec §4.5).
func New(instanceName string, _ map[string][]string) (pipeline.Handler, error) {
	return &Plugin{
		Base:      pipeline.Base{PluginName: instanceName},
		sanitizer: bluemonday.UGCPolicy(),
	}, nil
}

// OnRequest implements the full selector-on-HTTP protocol. Returning
// (nil, nil) means the request did not activate the protocol (no selector
// present) and falls through to the file handler for ordinary handling.
func (p *Plugin) OnRequest(ctx *pipeline.Context) (*pipeline.Response, error) {
	sel, ok := httprange.Extract(ctx.Req.Header.Get("Range"), ctx.Req.RawPath)
	if !ok {
		ctx.HasSelector = false
		return nil, nil
	}
	ctx.Selector = sel
	ctx.HasSelector = true

	host, ok := ctx.Host.(*config.HostConfig)
	if !ok || host == nil {
		return nil, errors.New("selector: no matched host on context")
	}

	if sel == "" {
		// Spec §4.5 edge case: an empty selector value matches nothing by
		// definition, reported the same way as "selector matched zero
		// elements" rather than as a syntax error.
		return apperr.SelectorNoMatch(sel).Response(), nil
	}

	normalized := router.NormalizePath(ctx.Req.Path)
	fsPath, err := fsroot.Resolve(host.Root, normalized)
	if err != nil {
		if errors.Is(err, fsroot.ErrEscapesRoot) {
			return apperr.NotFound("resource").Response(), nil
		}
		return nil, fmt.Errorf("selector: resolve path: %w", err)
	}

	if !fsroot.IsHTML(fsPath) {
		return apperr.SelectorNonHTML(sel).Response(), nil
	}

	var allowedSelectors []string
	if ctx.Principal != nil {
		allowedSelectors = ctx.Principal.AllowedSelectors
	}
	if !isAllowed(sel, allowedSelectors) {
		return apperr.SelectorForbidden(sel).Response(), nil
	}

	switch ctx.Req.Method {
	case "GET":
		return p.handleGet(fsPath, sel)
	case "PUT":
		return p.handleWrite(ctx, fsPath, sel, replaceMutation)
	case "POST":
		return p.handleWrite(ctx, fsPath, sel, appendMutation)
	case "DELETE":
		return p.handleWrite(ctx, fsPath, sel, removeMutation)
	default:
		return apperr.MethodNotAllowed(ctx.Req.Method + " not supported on a selector-scoped resource").Response(), nil
	}
}

func (p *Plugin) handleGet(fsPath, sel string) (*pipeline.Response, error) {
	unlock := fsroot.RLock(fsPath)
	defer unlock()

	body, err := os.ReadFile(fsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.NotFound("resource").Response(), nil
		}
		return nil, fmt.Errorf("selector: read %s: %w", fsPath, err)
	}

	doc, err := htmldoc.Parse(body)
	if err != nil {
		return apperr.Internal(err).Response(), nil
	}

	nodes, err := doc.Match(sel)
	if err != nil {
		return apperr.SelectorSyntax(sel, err).Response(), nil
	}
	if len(nodes) == 0 {
		return apperr.SelectorNoMatch(sel).Response(), nil
	}

	var parts []string
	for _, n := range nodes {
		html, err := htmldoc.OuterHTML(n)
		if err != nil {
			return nil, fmt.Errorf("selector: render match: %w", err)
		}
		parts = append(parts, html)
	}

	resp := pipeline.NewResponse(http.StatusPartialContent)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	resp.Header.Set("Content-Range", httprange.ContentRange(sel))
	resp.Header.Set("Accept-Ranges", httprange.AcceptRanges)
	resp.Body = []byte(strings.Join(parts, ""))
	return resp, nil
}

type mutationKind int

const (
	replaceMutation mutationKind = iota
	appendMutation
	removeMutation
)

// handleWrite performs the selector handler's read-modify-write sequence
// under a single held write lock (spec §9 "DOM mutation atomicity"): parse
// the current document, match the selector, apply the mutation to every
// match in document order, re-serialize, and persist atomically before
// releasing the lock. The handler persists the file itself rather than
// delegating to the file handler plugin, since the lock must cover the
// write too and a plugin-boundary handoff mid-lock would be fragile.
func (p *Plugin) handleWrite(ctx *pipeline.Context, fsPath, sel string, kind mutationKind) (*pipeline.Response, error) {
	unlock := fsroot.Lock(fsPath)
	defer unlock()

	body, err := os.ReadFile(fsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.NotFound("resource").Response(), nil
		}
		return nil, fmt.Errorf("selector: read %s: %w", fsPath, err)
	}

	doc, err := htmldoc.Parse(body)
	if err != nil {
		return apperr.Internal(err).Response(), nil
	}

	nodes, err := doc.Match(sel)
	if err != nil {
		return apperr.SelectorSyntax(sel, err).Response(), nil
	}
	if len(nodes) == 0 {
		return apperr.SelectorNoMatch(sel).Response(), nil
	}

	var status int
	var respBody []byte
	switch kind {
	case replaceMutation, appendMutation:
		sanitized := p.sanitizer.SanitizeBytes(ctx.Req.Body)
		frag, err := htmldoc.ParseFragment(sanitized)
		if err != nil {
			return apperr.BadRequest("invalid HTML fragment body").Response(), nil
		}
		for _, n := range nodes {
			if kind == replaceMutation {
				htmldoc.ReplaceWith(n, frag)
			} else {
				htmldoc.AppendChildren(n, frag)
			}
		}
		status = http.StatusPartialContent
		if kind == replaceMutation {
			// The response body is the replaced element(s), serialized the
			// same way a matching GET would render them.
			var parts []string
			for _, f := range frag {
				html, err := htmldoc.OuterHTML(f)
				if err != nil {
					return nil, fmt.Errorf("selector: render replacement: %w", err)
				}
				parts = append(parts, html)
			}
			respBody = []byte(strings.Join(parts, ""))
		} else {
			// POST echoes the posted fragment as sent.
			respBody = ctx.Req.Body
		}
	case removeMutation:
		for _, n := range nodes {
			htmldoc.Remove(n)
		}
		status = http.StatusNoContent
	}

	serialized, err := doc.Serialize()
	if err != nil {
		return nil, fmt.Errorf("selector: serialize: %w", err)
	}

	if err := fsroot.WriteAtomic(fsPath, serialized); err != nil {
		return nil, fmt.Errorf("selector: write %s: %w", fsPath, err)
	}

	ctx.ResolvedPath = fsPath
	ctx.MutatedDocument = serialized
	ctx.HasMutatedDocument = true
	logging.Component("selector").Info().
		Str("path", fsPath).Str("selector", sel).Int("matches", len(nodes)).Msg("selector mutation applied")

	resp := pipeline.NewResponse(status)
	resp.Header.Set("Content-Range", httprange.ContentRange(sel))
	resp.Header.Set("Accept-Ranges", httprange.AcceptRanges)
	if status != http.StatusNoContent {
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
		resp.Body = respBody
	}
	return resp, nil
}
