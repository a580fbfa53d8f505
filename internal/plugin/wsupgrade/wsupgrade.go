// Package wsupgrade implements the websocket upgrade plugin, grounded on
// internal/websocket/hub.go. It performs only the HTTP-to-WebSocket
// handshake and hands the resulting connection off; frame semantics are an
// external collaborator's responsibility — this plugin satisfies the
// pipeline contract for the handoff only.
//
// The handshake needs the raw net/http ResponseWriter/Request, which the
// pipeline.Context abstraction otherwise hides from plugins; the HTTP
// front door (cmd/rangeweave) stashes both into the context extension bag
// under the keys below before running the pipeline.
package wsupgrade

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/streamspace-dev/rangeweave/internal/apperr"
	"github.com/streamspace-dev/rangeweave/internal/logging"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
	"github.com/streamspace-dev/rangeweave/internal/plugin"
)

func init() {
	plugin.Register("wsupgrade", New)
}

// Context extension-bag keys the HTTP front door must populate for this
// plugin to be reachable.
const (
	ExtraResponseWriter = "http.responseWriter"
	ExtraRequest        = "http.request"
	ExtraHijacked       = "websocket.hijacked"
)

type Plugin struct {
	pipeline.Base
	upgrader websocket.Upgrader
}

func New(instanceName string, _ map[string][]string) (pipeline.Handler, error) {
	return &Plugin{
		Base: pipeline.Base{PluginName: instanceName},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}, nil
}

func isUpgradeRequest(h http.Header) bool {
	return strings.EqualFold(h.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(h.Get("Connection")), "upgrade")
}

func (p *Plugin) OnRequest(ctx *pipeline.Context) (*pipeline.Response, error) {
	if !isUpgradeRequest(ctx.Req.Header) {
		return nil, nil
	}

	wRaw, ok1 := ctx.Get(ExtraResponseWriter)
	rRaw, ok2 := ctx.Get(ExtraRequest)
	if !ok1 || !ok2 {
		return nil, errors.New("wsupgrade: missing raw http context, front door did not populate it")
	}
	w, ok := wRaw.(http.ResponseWriter)
	if !ok {
		return nil, errors.New("wsupgrade: http.responseWriter has the wrong type")
	}
	r, ok := rRaw.(*http.Request)
	if !ok {
		return nil, errors.New("wsupgrade: http.request has the wrong type")
	}

	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return apperr.BadRequest("websocket upgrade failed").Response(), nil
	}

	// Upgrade() already wrote the 101 response and hijacked the
	// connection; tell the front door not to write anything further.
	ctx.Set(ExtraHijacked, true)

	go drain(conn)

	return &pipeline.Response{Status: http.StatusSwitchingProtocols}, nil
}

// drain keeps the hijacked connection read loop alive so the peer's close
// handshake completes cleanly; it does not interpret frame contents, since
// frame semantics belong to whatever external collaborator owns this
// websocket session.
func drain(conn *websocket.Conn) {
	defer conn.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			logging.Component("wsupgrade").Debug().Err(err).Msg("websocket connection closed")
			return
		}
	}
}
