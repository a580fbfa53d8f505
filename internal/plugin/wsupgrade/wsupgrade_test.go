package wsupgrade

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/rangeweave/internal/pipeline"
)

func TestWSUpgrade_NonUpgradeRequestFallsThrough(t *testing.T) {
	h, err := New("wsupgrade#0", nil)
	require.NoError(t, err)

	ctx := pipeline.NewContext(&pipeline.Request{Method: "GET", Path: "/x", Header: http.Header{}}, "r1")
	resp, err := h.OnRequest(ctx)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestWSUpgrade_MissingRawContextIsAnError(t *testing.T) {
	h, err := New("wsupgrade#0", nil)
	require.NoError(t, err)

	header := http.Header{"Upgrade": {"websocket"}, "Connection": {"Upgrade"}}
	ctx := pipeline.NewContext(&pipeline.Request{Method: "GET", Path: "/ws", Header: header}, "r1")

	_, err = h.OnRequest(ctx)
	assert.Error(t, err)
}

func TestWSUpgrade_PerformsHandshakeAndHijacks(t *testing.T) {
	h, err := New("wsupgrade#0", nil)
	require.NoError(t, err)

	var serverErr error
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := pipeline.NewContext(&pipeline.Request{Method: r.Method, Path: r.URL.Path, Header: r.Header}, "r1")
		ctx.Set(ExtraResponseWriter, w)
		ctx.Set(ExtraRequest, r)

		_, serverErr = h.OnRequest(ctx)
		hijacked, _ := ctx.Get(ExtraHijacked)
		if hijacked != true {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, serverErr)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	conn.Close()
}
