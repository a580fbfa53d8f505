package cors

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/rangeweave/internal/pipeline"
)

func TestCORS_PreflightAnsweredDirectly(t *testing.T) {
	h, err := New("cors#0", nil)
	require.NoError(t, err)

	header := http.Header{"Access-Control-Request-Method": []string{"PUT"}}
	ctx := pipeline.NewContext(&pipeline.Request{Method: "OPTIONS", Path: "/x", Header: header}, "r1")

	resp, err := h.OnRequest(ctx)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORS_NonPreflightOptionsFallsThrough(t *testing.T) {
	h, err := New("cors#0", nil)
	require.NoError(t, err)

	ctx := pipeline.NewContext(&pipeline.Request{Method: "OPTIONS", Path: "/x", Header: http.Header{}}, "r1")
	resp, err := h.OnRequest(ctx)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestCORS_DecoratesEveryResponseOnReverse(t *testing.T) {
	h, err := New("cors#0", map[string][]string{"allowOrigin": {"https://example.com"}, "allowCredentials": {"true"}})
	require.NoError(t, err)

	ctx := pipeline.NewContext(&pipeline.Request{Method: "GET", Path: "/x"}, "r1")
	resp, err := h.OnResponse(ctx, pipeline.NewResponse(200))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}
