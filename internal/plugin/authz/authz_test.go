package authz

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/rangeweave/internal/config"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
)

func TestAuthz_NoPrincipalNotRequiredPassesThrough(t *testing.T) {
	h, err := New("authz#0", nil)
	require.NoError(t, err)

	ctx := pipeline.NewContext(&pipeline.Request{Method: "GET", Path: "/"}, "r1")
	resp, err := h.OnRequest(ctx)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestAuthz_NoPrincipalRequiredIs401(t *testing.T) {
	h, err := New("authz#0", map[string][]string{"requireAuth": {"true"}})
	require.NoError(t, err)

	ctx := pipeline.NewContext(&pipeline.Request{Method: "GET", Path: "/"}, "r1")
	resp, err := h.OnRequest(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestAuthz_MatchingRoleRuleNarrowsAllowedSelectors(t *testing.T) {
	h, err := New("authz#0", nil)
	require.NoError(t, err)

	host := &config.HostConfig{AuthRules: []*config.AuthorizationRule{
		{Role: "editor", AllowedSelectors: []string{"h1", "p"}},
	}}
	ctx := pipeline.NewContext(&pipeline.Request{Method: "GET", Path: "/"}, "r1")
	ctx.Host = host
	ctx.Principal = &pipeline.Principal{UserID: "bob", Roles: []string{"editor"}}

	resp, err := h.OnRequest(ctx)
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.ElementsMatch(t, []string{"h1", "p"}, ctx.Principal.AllowedSelectors)
}

func TestAuthz_NoMatchingRuleLeavesUnrestricted(t *testing.T) {
	h, err := New("authz#0", nil)
	require.NoError(t, err)

	host := &config.HostConfig{AuthRules: []*config.AuthorizationRule{
		{Role: "editor", AllowedSelectors: []string{"h1"}},
	}}
	ctx := pipeline.NewContext(&pipeline.Request{Method: "GET", Path: "/"}, "r1")
	ctx.Host = host
	ctx.Principal = &pipeline.Principal{UserID: "bob", Roles: []string{"viewer"}}

	resp, err := h.OnRequest(ctx)
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Nil(t, ctx.Principal.AllowedSelectors)
}
