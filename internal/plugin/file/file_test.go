package file

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/rangeweave/internal/config"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
)

func newCtx(t *testing.T, method, path string, body []byte, host *config.HostConfig) *pipeline.Context {
	t.Helper()
	ctx := pipeline.NewContext(&pipeline.Request{
		Method: method,
		Path:   path,
		Header: make(http.Header),
		Body:   body,
	}, "req-1")
	ctx.Host = host
	return ctx
}

func TestFileHandler_GetMissing(t *testing.T) {
	root := t.TempDir()
	host := &config.HostConfig{Root: root}

	h, err := New("file#0", nil)
	require.NoError(t, err)

	resp, err := h.OnRequest(newCtx(t, "GET", "/missing.html", nil, host))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestFileHandler_PutThenGetRoundTrips(t *testing.T) {
	root := t.TempDir()
	host := &config.HostConfig{Root: root}

	h, err := New("file#0", nil)
	require.NoError(t, err)

	putResp, err := h.OnRequest(newCtx(t, "PUT", "/page.html", []byte("<h1>hi</h1>"), host))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, putResp.Status)

	getResp, err := h.OnRequest(newCtx(t, "GET", "/page.html", nil, host))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, getResp.Status)
	assert.Equal(t, "<h1>hi</h1>", string(getResp.Body))
	assert.Contains(t, getResp.Header.Get("Content-Type"), "text/html")
}

func TestFileHandler_DeleteNonEmptyDirConflicts(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "a.html"), []byte("x"), 0o644))
	host := &config.HostConfig{Root: root}

	h, err := New("file#0", nil)
	require.NoError(t, err)

	resp, err := h.OnRequest(newCtx(t, "DELETE", "/sub", nil, host))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Status)
}

func TestFileHandler_PathEscapeYields404(t *testing.T) {
	root := t.TempDir()
	host := &config.HostConfig{Root: root}

	h, err := New("file#0", nil)
	require.NoError(t, err)

	resp, err := h.OnRequest(newCtx(t, "GET", "/../../etc/passwd", nil, host))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestFileHandler_DegradedHostReturns503(t *testing.T) {
	host := &config.HostConfig{Root: "/does/not/exist", Degraded: true}

	h, err := New("file#0", nil)
	require.NoError(t, err)

	resp, err := h.OnRequest(newCtx(t, "GET", "/page.html", nil, host))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
}

func TestFileHandler_Options(t *testing.T) {
	root := t.TempDir()
	host := &config.HostConfig{Root: root}

	h, err := New("file#0", nil)
	require.NoError(t, err)

	resp, err := h.OnRequest(newCtx(t, "OPTIONS", "/", nil, host))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Equal(t, "selector", resp.Header.Get("Accept-Ranges"))
	assert.Contains(t, resp.Header.Get("Allow"), "DELETE")
}
