// Package file implements the file handler: the terminal plugin that
// serves and persists a host's documents straight off disk (spec §4.6).
// It is the fallback every request reaches when the selector handler
// (internal/plugin/selector) didn't recognize a selector-on-HTTP request,
// and the only plugin that actually touches the filesystem for ordinary
// (non-selector-scoped) GET/PUT/POST/DELETE.
//
// Follows the Handler/Base plugin shape used throughout this package tree
// (internal/plugins/base_plugin.go); the atomic-write and
// path-canonicalization logic lives in internal/fsroot so the selector
// handler can share it rather than reimplementing it.
package file

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/streamspace-dev/rangeweave/internal/apperr"
	"github.com/streamspace-dev/rangeweave/internal/config"
	"github.com/streamspace-dev/rangeweave/internal/fsroot"
	"github.com/streamspace-dev/rangeweave/internal/httprange"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
	"github.com/streamspace-dev/rangeweave/internal/plugin"
	"github.com/streamspace-dev/rangeweave/internal/router"
)

func init() {
	plugin.Register("file", New)
}

// Plugin is the file handler. Like the selector handler it has no
// per-instance configuration; its whole behavior is determined by the
// request and the matched host.
type Plugin struct {
	pipeline.Base
}

func New(instanceName string, _ map[string][]string) (pipeline.Handler, error) {
	return &Plugin{Base: pipeline.Base{PluginName: instanceName}}, nil
}

var allowedMethods = []string{"GET", "HEAD", "PUT", "POST", "DELETE", "OPTIONS"}

func (p *Plugin) OnRequest(ctx *pipeline.Context) (*pipeline.Response, error) {
	host, ok := ctx.Host.(*config.HostConfig)
	if !ok || host == nil {
		return nil, errors.New("file: no matched host on context")
	}

	if ctx.Req.Method == "OPTIONS" {
		return p.handleOptions(), nil
	}

	if host.Degraded {
		if _, err := os.Stat(host.Root); err != nil {
			return apperr.Unavailable(fmt.Sprintf("host root %s is unavailable", host.Root)).Response(), nil
		}
	}

	normalized := router.NormalizePath(ctx.Req.Path)
	fsPath, err := fsroot.Resolve(host.Root, normalized)
	if err != nil {
		if errors.Is(err, fsroot.ErrEscapesRoot) {
			return apperr.NotFound("resource").Response(), nil
		}
		return nil, fmt.Errorf("file: resolve path: %w", err)
	}
	ctx.ResolvedPath = fsPath

	// A selector mutation earlier in the pipeline leaves the re-serialized
	// document on the context; persist that instead of the request body.
	if ctx.HasMutatedDocument && ctx.Req.Method != "GET" && ctx.Req.Method != "HEAD" {
		unlock := fsroot.Lock(fsPath)
		defer unlock()
		if err := fsroot.WriteAtomic(fsPath, ctx.MutatedDocument); err != nil {
			return nil, fmt.Errorf("file: write %s: %w", fsPath, err)
		}
		return pipeline.NewResponse(http.StatusOK), nil
	}

	switch ctx.Req.Method {
	case "GET", "HEAD":
		return p.handleRead(fsPath, ctx.Req.Method == "HEAD")
	case "PUT":
		return p.handlePut(ctx, fsPath)
	case "POST":
		return p.handlePost(ctx, fsPath)
	case "DELETE":
		return p.handleDelete(fsPath)
	default:
		return apperr.MethodNotAllowed(ctx.Req.Method).Response(), nil
	}
}

func (p *Plugin) handleOptions() *pipeline.Response {
	resp := pipeline.NewResponse(http.StatusNoContent)
	resp.Header.Set("Allow", joinMethods())
	resp.Header.Set("Accept-Ranges", httprange.AcceptRanges)
	return resp
}

func joinMethods() string {
	out := allowedMethods[0]
	for _, m := range allowedMethods[1:] {
		out += ", " + m
	}
	return out
}

func (p *Plugin) handleRead(fsPath string, headOnly bool) (*pipeline.Response, error) {
	unlock := fsroot.RLock(fsPath)
	defer unlock()

	target := fsPath
	if fi, err := os.Stat(fsPath); err == nil && fi.IsDir() {
		target = filepath.Join(fsPath, "index.html")
	}

	fi, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.NotFound("resource").Response(), nil
		}
		return nil, fmt.Errorf("file: stat %s: %w", target, err)
	}
	if fi.IsDir() {
		return apperr.NotFound("resource").Response(), nil
	}

	resp := pipeline.NewResponse(http.StatusOK)
	resp.Header.Set("Content-Type", fsroot.ContentType(target))
	resp.Header.Set("Accept-Ranges", httprange.AcceptRanges)

	if headOnly {
		return resp, nil
	}

	body, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("file: read %s: %w", target, err)
	}
	resp.Body = body
	return resp, nil
}

func (p *Plugin) handlePut(ctx *pipeline.Context, fsPath string) (*pipeline.Response, error) {
	unlock := fsroot.Lock(fsPath)
	defer unlock()

	_, existedErr := os.Stat(fsPath)
	existed := existedErr == nil

	if err := fsroot.WriteAtomic(fsPath, ctx.Req.Body); err != nil {
		return nil, fmt.Errorf("file: write %s: %w", fsPath, err)
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	resp := pipeline.NewResponse(status)
	resp.Header.Set("Content-Type", fsroot.ContentType(fsPath))
	return resp, nil
}

func (p *Plugin) handlePost(ctx *pipeline.Context, fsPath string) (*pipeline.Response, error) {
	unlock := fsroot.Lock(fsPath)
	defer unlock()

	_, existedErr := os.Stat(fsPath)
	existed := existedErr == nil

	if err := fsroot.AppendAtomic(fsPath, ctx.Req.Body); err != nil {
		return nil, fmt.Errorf("file: append %s: %w", fsPath, err)
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	resp := pipeline.NewResponse(status)
	resp.Header.Set("Content-Type", fsroot.ContentType(fsPath))
	return resp, nil
}

func (p *Plugin) handleDelete(fsPath string) (*pipeline.Response, error) {
	unlock := fsroot.Lock(fsPath)
	defer unlock()

	fi, err := os.Stat(fsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.NotFound("resource").Response(), nil
		}
		return nil, fmt.Errorf("file: stat %s: %w", fsPath, err)
	}

	if fi.IsDir() {
		entries, err := os.ReadDir(fsPath)
		if err != nil {
			return nil, fmt.Errorf("file: read dir %s: %w", fsPath, err)
		}
		if len(entries) > 0 {
			return apperr.Conflict("directory is not empty").Response(), nil
		}
	}

	if err := os.Remove(fsPath); err != nil {
		return nil, fmt.Errorf("file: remove %s: %w", fsPath, err)
	}
	return pipeline.NewResponse(http.StatusNoContent), nil
}
