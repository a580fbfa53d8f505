package redirect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/rangeweave/internal/config"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
)

func TestRedirect_MatchingRuleRedirects(t *testing.T) {
	h, err := New("redirect#0", nil)
	require.NoError(t, err)

	host := &config.HostConfig{Redirects: []*config.RedirectRule{{From: "/old", To: "/new", Code: 301}}}
	ctx := pipeline.NewContext(&pipeline.Request{Method: "GET", Path: "/old"}, "r1")
	ctx.Host = host

	resp, err := h.OnRequest(ctx)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 301, resp.Status)
	assert.Equal(t, "/new", resp.Header.Get("Location"))
}

func TestRedirect_DefaultsTo302(t *testing.T) {
	h, err := New("redirect#0", nil)
	require.NoError(t, err)

	host := &config.HostConfig{Redirects: []*config.RedirectRule{{From: "/old", To: "/new"}}}
	ctx := pipeline.NewContext(&pipeline.Request{Method: "GET", Path: "/old"}, "r1")
	ctx.Host = host

	resp, err := h.OnRequest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 302, resp.Status)
}

func TestRedirect_NoMatchFallsThrough(t *testing.T) {
	h, err := New("redirect#0", nil)
	require.NoError(t, err)

	host := &config.HostConfig{Redirects: []*config.RedirectRule{{From: "/old", To: "/new"}}}
	ctx := pipeline.NewContext(&pipeline.Request{Method: "GET", Path: "/elsewhere"}, "r1")
	ctx.Host = host

	resp, err := h.OnRequest(ctx)
	require.NoError(t, err)
	assert.Nil(t, resp)
}
