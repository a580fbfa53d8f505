package configreload

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/rangeweave/internal/config"
	"github.com/streamspace-dev/rangeweave/internal/eventbus"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
)

func writeMinimalConfig(t *testing.T, path string) {
	t.Helper()
	doc := `<!DOCTYPE html><html><body>
<div itemscope itemtype="ServerConfig">
  <span itemprop="bindAddress">127.0.0.1</span>
  <span itemprop="bindPort">8080</span>
  <div itemscope itemtype="HostConfig" itemprop="host">
    <span itemprop="hostname">example.com</span>
    <span itemprop="hostRoot">` + filepath.Dir(path) + `</span>
  </div>
</div>
</body></html>`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
}

func TestConfigReload_NotBoundReturns500(t *testing.T) {
	Bind(nil)
	h, err := New("configreload#0", nil)
	require.NoError(t, err)

	ctx := pipeline.NewContext(&pipeline.Request{Method: "PATCH", Path: "/_rangeweave/config"}, "r1")
	resp, err := h.OnRequest(ctx)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
}

func TestConfigReload_IgnoresNonMatchingRequests(t *testing.T) {
	Bind(nil)
	h, err := New("configreload#0", nil)
	require.NoError(t, err)

	ctx := pipeline.NewContext(&pipeline.Request{Method: "GET", Path: "/_rangeweave/config"}, "r1")
	resp, err := h.OnRequest(ctx)
	require.NoError(t, err)
	assert.Nil(t, resp)

	ctx = pipeline.NewContext(&pipeline.Request{Method: "PATCH", Path: "/other"}, "r2")
	resp, err = h.OnRequest(ctx)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestConfigReload_ReloadsBoundStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.html")
	writeMinimalConfig(t, path)

	initial, err := config.Load(path)
	require.NoError(t, err)
	store := config.NewStore(initial, eventbus.New(""))
	Bind(store)
	t.Cleanup(func() { Bind(nil) })

	h, err := New("configreload#0", nil)
	require.NoError(t, err)

	ctx := pipeline.NewContext(&pipeline.Request{Method: "PATCH", Path: "/_rangeweave/config"}, "r1")
	resp, err := h.OnRequest(ctx)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.NotNil(t, store.Current())
}

func TestConfigReload_CustomPath(t *testing.T) {
	Bind(nil)
	h, err := New("configreload#0", map[string][]string{"path": {"/admin/reload"}})
	require.NoError(t, err)

	ctx := pipeline.NewContext(&pipeline.Request{Method: "PATCH", Path: "/_rangeweave/config"}, "r1")
	resp, err := h.OnRequest(ctx)
	require.NoError(t, err)
	assert.Nil(t, resp, "default path must no longer match once a custom path is configured")
}
