// Package auth implements the authentication plugin: it populates
// pipeline.Context.Principal from an Authorization header, and also serves
// three login endpoints that issue that bearer token in the first place —
// local username/password (+ optional TOTP) against a host's users.html
// record file, and an external OIDC authorization-code redirect/callback
// pair.
//
// Grounded on this package tree's internal/auth/jwt.go (HMAC bearer-token
// verification) for the primary path, and internal/auth/oidc.go for the
// OIDC login flow's shape (adapted from gin handlers to plugin dispatch).
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/streamspace-dev/rangeweave/internal/apperr"
	"github.com/streamspace-dev/rangeweave/internal/config"
	"github.com/streamspace-dev/rangeweave/internal/logging"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
	"github.com/streamspace-dev/rangeweave/internal/plugin"
)

func init() {
	plugin.Register("auth", New)
}

// Plugin verifies a bearer token on the forward phase. Unless "required" is
// set, absence of an Authorization header is not itself an error here: whether an
// unauthenticated request is allowed is the authz plugin's decision, later
// in the pipeline (spec §4.9 ordering).
type Plugin struct {
	pipeline.Base
	secret       []byte
	issuer       string
	audience     string
	required     bool
	oidcVerifier *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config

	loginPath        string
	oidcLoginPath    string
	oidcCallbackPath string
}

// New builds an auth plugin instance from its microdata configuration.
// Recognized keys: "secret" (HMAC signing key), "issuer", "audience",
// "required" ("true" forces a 401 when no token is present at all),
// "oidcIssuerUrl" + "oidcClientId" (+ "oidcClientSecret", "oidcRedirectUrl")
// makes OIDC discovery the primary verify path (tokens this plugin signed
// itself still verify against "secret" when one is set), and also enables the browser-redirect login flow at
// "oidcLoginPath"/"oidcCallbackPath". "loginPath" (default
// "/_rangeweave/login") serves local-credential (bcrypt + optional TOTP)
// logins against the host's users.html record file.
func New(instanceName string, cfg map[string][]string) (pipeline.Handler, error) {
	p := &Plugin{Base: pipeline.Base{PluginName: instanceName}}
	if v := first(cfg, "secret"); v != "" {
		p.secret = []byte(v)
	}
	p.issuer = first(cfg, "issuer")
	p.audience = first(cfg, "audience")
	p.required = first(cfg, "required") == "true"

	p.loginPath = first(cfg, "loginPath")
	if p.loginPath == "" {
		p.loginPath = "/_rangeweave/login"
	}
	p.oidcLoginPath = first(cfg, "oidcLoginPath")
	if p.oidcLoginPath == "" {
		p.oidcLoginPath = "/_rangeweave/oidc/login"
	}
	p.oidcCallbackPath = first(cfg, "oidcCallbackPath")
	if p.oidcCallbackPath == "" {
		p.oidcCallbackPath = "/_rangeweave/oidc/callback"
	}

	if issuerURL := first(cfg, "oidcIssuerUrl"); issuerURL != "" {
		provider, err := oidc.NewProvider(context.Background(), issuerURL)
		if err != nil {
			return nil, err
		}
		clientID := first(cfg, "oidcClientId")
		p.oidcVerifier = provider.Verifier(&oidc.Config{ClientID: clientID})
		p.oauth2Config = &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: first(cfg, "oidcClientSecret"),
			RedirectURL:  first(cfg, "oidcRedirectUrl"),
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		}
	}

	return p, nil
}

func first(cfg map[string][]string, key string) string {
	if v := cfg[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (p *Plugin) OnRequest(ctx *pipeline.Context) (*pipeline.Response, error) {
	switch {
	case ctx.Req.Path == p.loginPath && ctx.Req.Method == "POST":
		return p.handleLocalLogin(ctx)
	case ctx.Req.Path == p.oidcLoginPath && ctx.Req.Method == "GET" && p.oauth2Config != nil:
		return p.handleOIDCLoginRedirect(), nil
	case ctx.Req.Path == p.oidcCallbackPath && ctx.Req.Method == "GET" && p.oauth2Config != nil:
		return p.handleOIDCCallback(ctx)
	}

	token := bearerToken(ctx.Req.Header)
	if token == "" {
		if p.required {
			return apperr.Unauthorized("missing bearer token").Response(), nil
		}
		return nil, nil
	}

	var (
		userID string
		roles  []string
		err    error
	)
	if p.oidcVerifier != nil {
		userID, roles, err = p.verifyOIDC(token)
		if err != nil && len(p.secret) > 0 {
			userID, roles, err = p.verifyHMAC(token)
		}
	} else {
		userID, roles, err = p.verifyHMAC(token)
	}
	if err != nil {
		logging.Component("auth").Warn().Err(err).Msg("token verification failed")
		return apperr.Unauthorized("invalid bearer token").Response(), nil
	}

	ctx.Principal = &pipeline.Principal{UserID: userID, Roles: roles}
	return nil, nil
}

// handleLocalLogin verifies a username/password (and, if the user record
// carries one, a TOTP code) against the host's users.html credential file
// and, on success, issues a self-signed bearer token for use on subsequent
// requests. This is the plugin's only path that reads from ctx.Host's
// filesystem root; it only reads, and never writes there.
func (p *Plugin) handleLocalLogin(ctx *pipeline.Context) (*pipeline.Response, error) {
	host, ok := ctx.Host.(*config.HostConfig)
	if !ok {
		return apperr.Internal(errors.New("host not resolved")).Response(), nil
	}

	var form struct {
		Username string `json:"username"`
		Password string `json:"password"`
		TOTPCode string `json:"totp"`
	}
	if err := json.Unmarshal(ctx.Req.Body, &form); err != nil {
		return apperr.BadRequest("malformed login body").Response(), nil
	}

	users, err := loadUsers(host.Root)
	if err != nil {
		return apperr.Internal(err).Response(), nil
	}
	user, ok := findUser(users, form.Username)
	if !ok {
		return apperr.Unauthorized("invalid credentials").Response(), nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.passwordHash), []byte(form.Password)); err != nil {
		return apperr.Unauthorized("invalid credentials").Response(), nil
	}
	if user.totpSecret != "" && !totp.Validate(form.TOTPCode, user.totpSecret) {
		return apperr.Unauthorized("invalid or missing second factor").Response(), nil
	}

	token, err := p.signToken(user.username, user.roles)
	if err != nil {
		return apperr.Internal(err).Response(), nil
	}
	body, _ := json.Marshal(struct {
		Token string `json:"token"`
	}{Token: token})
	resp := pipeline.NewResponse(http.StatusOK)
	resp.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp.Body = body
	return resp, nil
}

// handleOIDCLoginRedirect starts the authorization-code flow by redirecting
// the caller to the external identity provider.
func (p *Plugin) handleOIDCLoginRedirect() *pipeline.Response {
	resp := pipeline.NewResponse(http.StatusFound)
	resp.Header.Set("Location", p.oauth2Config.AuthCodeURL(state()))
	return resp
}

// handleOIDCCallback exchanges the authorization code for tokens, verifies
// the ID token, and issues a self-signed bearer token scoped the same way
// the HMAC path's tokens are, so downstream requests don't need to care
// which login path a caller used.
func (p *Plugin) handleOIDCCallback(ctx *pipeline.Context) (*pipeline.Response, error) {
	code := ctx.Req.Query.Get("code")
	if code == "" {
		return apperr.BadRequest("missing authorization code").Response(), nil
	}

	oauth2Token, err := p.oauth2Config.Exchange(context.Background(), code)
	if err != nil {
		logging.Component("auth").Warn().Err(err).Msg("oidc code exchange failed")
		return apperr.Unauthorized("authorization code exchange failed").Response(), nil
	}
	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return apperr.Unauthorized("provider response carried no id_token").Response(), nil
	}
	idToken, err := p.oidcVerifier.Verify(context.Background(), rawIDToken)
	if err != nil {
		return apperr.Unauthorized("id token verification failed").Response(), nil
	}
	var claims struct {
		Subject string   `json:"sub"`
		Roles   []string `json:"roles"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return apperr.Internal(err).Response(), nil
	}

	token, err := p.signToken(claims.Subject, claims.Roles)
	if err != nil {
		return apperr.Internal(err).Response(), nil
	}
	body, _ := json.Marshal(struct {
		Token string `json:"token"`
	}{Token: token})
	resp := pipeline.NewResponse(http.StatusOK)
	resp.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp.Body = body
	return resp, nil
}

// signToken self-issues an HMAC bearer token for a principal that has
// already been authenticated, either locally or via an external IdP. It
// requires an HMAC secret to be configured even when the primary
// verification path is OIDC.
func (p *Plugin) signToken(subject string, roles []string) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": p.issuer,
		"aud": p.audience,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	if len(roles) > 0 {
		rs := make([]interface{}, len(roles))
		for i, r := range roles {
			rs[i] = r
		}
		claims["roles"] = rs
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

// state generates an opaque per-request CSRF token for the OIDC redirect
// flow. The value is not stored anywhere, and handleOIDCCallback does not
// check the state parameter it receives.
func state() string {
	return url.QueryEscape(uuid.NewString())
}

func bearerToken(h http.Header) string {
	auth := h.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

func (p *Plugin) verifyHMAC(raw string) (string, []string, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return p.secret, nil
	}, jwt.WithIssuer(p.issuer), jwt.WithAudience(p.audience))
	if err != nil || !parsed.Valid {
		return "", nil, jwt.ErrTokenInvalidClaims
	}
	return claimsToPrincipal(claims)
}

func (p *Plugin) verifyOIDC(raw string) (string, []string, error) {
	idToken, err := p.oidcVerifier.Verify(context.Background(), raw)
	if err != nil {
		return "", nil, err
	}
	var claims struct {
		Subject string   `json:"sub"`
		Roles   []string `json:"roles"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", nil, err
	}
	return claims.Subject, claims.Roles, nil
}

func claimsToPrincipal(claims jwt.MapClaims) (string, []string, error) {
	sub, _ := claims["sub"].(string)
	var roles []string
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	}
	return sub, roles, nil
}
