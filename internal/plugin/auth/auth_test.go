package auth

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/streamspace-dev/rangeweave/internal/config"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
)

func newCtx(method, path string, header http.Header, body []byte, host *config.HostConfig) *pipeline.Context {
	if header == nil {
		header = make(http.Header)
	}
	ctx := pipeline.NewContext(&pipeline.Request{
		Method: method,
		Path:   path,
		Header: header,
		Body:   body,
		Query:  map[string][]string{},
	}, "req-1")
	ctx.Host = host
	return ctx
}

func signHMAC(t *testing.T, secret []byte, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"iss": "rangeweave-test",
		"aud": "rangeweave-test",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestAuth_NoTokenNotRequiredPassesThrough(t *testing.T) {
	h, err := New("auth#0", map[string][]string{"secret": {"s3cr3t"}})
	require.NoError(t, err)

	resp, err := h.OnRequest(newCtx("GET", "/index.html", nil, nil, &config.HostConfig{}))
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestAuth_NoTokenRequiredIs401(t *testing.T) {
	h, err := New("auth#0", map[string][]string{"secret": {"s3cr3t"}, "required": {"true"}})
	require.NoError(t, err)

	resp, err := h.OnRequest(newCtx("GET", "/index.html", nil, nil, &config.HostConfig{}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestAuth_ValidHMACBearerSetsPrincipal(t *testing.T) {
	secret := []byte("s3cr3t")
	h, err := New("auth#0", map[string][]string{
		"secret":   {string(secret)},
		"issuer":   {"rangeweave-test"},
		"audience": {"rangeweave-test"},
	})
	require.NoError(t, err)
	p := h.(*Plugin)

	token := signHMAC(t, secret, "alice")
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	ctx := newCtx("GET", "/index.html", header, nil, &config.HostConfig{})

	resp, err := p.OnRequest(ctx)
	require.NoError(t, err)
	assert.Nil(t, resp)
	require.NotNil(t, ctx.Principal)
	assert.Equal(t, "alice", ctx.Principal.UserID)
}

func TestAuth_InvalidBearerIs401(t *testing.T) {
	h, err := New("auth#0", map[string][]string{"secret": {"s3cr3t"}})
	require.NoError(t, err)

	header := http.Header{"Authorization": []string{"Bearer not-a-real-token"}}
	resp, err := h.OnRequest(newCtx("GET", "/index.html", header, nil, &config.HostConfig{}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestAuth_LocalLoginSucceedsAndIssuesToken(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_rangeweave"), 0o755))

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.DefaultCost)
	require.NoError(t, err)

	usersHTML := `<!DOCTYPE html><html><body>
<div itemscope itemtype="UserRecord">
  <span itemprop="username">alice</span>
  <span itemprop="passwordHash">` + string(hash) + `</span>
  <span itemprop="role">editor</span>
</div>
</body></html>`
	require.NoError(t, os.WriteFile(filepath.Join(root, "_rangeweave", "users.html"), []byte(usersHTML), 0o644))

	h, err := New("auth#0", map[string][]string{"secret": {"s3cr3t"}})
	require.NoError(t, err)

	body, err := json.Marshal(struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{"alice", "hunter2"})
	require.NoError(t, err)

	ctx := newCtx("POST", "/_rangeweave/login", nil, body, &config.HostConfig{Root: root})
	resp, err := h.OnRequest(ctx)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &out))
	assert.NotEmpty(t, out.Token)
}

func TestAuth_LocalLoginWrongPasswordIs401(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_rangeweave"), 0o755))

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.DefaultCost)
	require.NoError(t, err)

	usersHTML := `<div itemscope itemtype="UserRecord">
  <span itemprop="username">alice</span>
  <span itemprop="passwordHash">` + string(hash) + `</span>
</div>`
	require.NoError(t, os.WriteFile(filepath.Join(root, "_rangeweave", "users.html"), []byte(usersHTML), 0o644))

	h, err := New("auth#0", map[string][]string{"secret": {"s3cr3t"}})
	require.NoError(t, err)

	body, _ := json.Marshal(struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{"alice", "wrong"})
	resp, err := h.OnRequest(newCtx("POST", "/_rangeweave/login", nil, body, &config.HostConfig{Root: root}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestAuth_LocalLoginRequiresTOTPWhenConfigured(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_rangeweave"), 0o755))

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.DefaultCost)
	require.NoError(t, err)
	secret := "JBSWY3DPEHPK3PXP"

	usersHTML := `<div itemscope itemtype="UserRecord">
  <span itemprop="username">alice</span>
  <span itemprop="passwordHash">` + string(hash) + `</span>
  <span itemprop="totpSecret">` + secret + `</span>
</div>`
	require.NoError(t, os.WriteFile(filepath.Join(root, "_rangeweave", "users.html"), []byte(usersHTML), 0o644))

	h, err := New("auth#0", map[string][]string{"secret": {"s3cr3t"}})
	require.NoError(t, err)

	badBody, _ := json.Marshal(struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{"alice", "hunter2"})
	resp, err := h.OnRequest(newCtx("POST", "/_rangeweave/login", nil, badBody, &config.HostConfig{Root: root}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Status, "missing TOTP code must be rejected")

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	goodBody, _ := json.Marshal(struct {
		Username string `json:"username"`
		Password string `json:"password"`
		TOTPCode string `json:"totp"`
	}{"alice", "hunter2", code})
	resp, err = h.OnRequest(newCtx("POST", "/_rangeweave/login", nil, goodBody, &config.HostConfig{Root: root}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}
