package webserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/agusx1211/brood/internal/roster"
)

// Envelope types sent over the agent streams.
const (
	MsgAgents = "agents"
	MsgAgent  = "agent"
	MsgLog    = "log"
	MsgDone   = "done"
	MsgError  = "error"
)

type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// WireLog carries log text appended since Offset. Reset means the log was
// rewritten and Text replaces everything the client has.
type WireLog struct {
	Offset int    `json:"offset"`
	Text   string `json:"text"`
	Reset  bool   `json:"reset,omitempty"`
}

type wsConn struct {
	ws  *websocket.Conn
	ctx context.Context
}

// accept upgrades the request. The Origin host must match the dashboard's
// own unless an auth token is configured.
func (srv *Server) accept(w http.ResponseWriter, r *http.Request) (*wsConn, bool) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: srv.authToken != ""})
	if err != nil {
		return nil, false
	}
	// Clients never send; CloseRead makes ctx end when they go away.
	return &wsConn{ws: ws, ctx: ws.CloseRead(r.Context())}, true
}

func (c *wsConn) send(msg wsEnvelope) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.ctx, 15*time.Second)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) fail(err error) {
	_ = c.send(wsEnvelope{Type: MsgError, Data: errorResponse{Error: err.Error()}})
	c.ws.Close(websocket.StatusInternalError, "stream failed")
}

// handleAgentsWebSocket pushes the agent list whenever it changes.
func (srv *Server) handleAgentsWebSocket(w http.ResponseWriter, r *http.Request) {
	c, ok := srv.accept(w, r)
	if !ok {
		return
	}
	defer c.ws.CloseNow()

	ticker := time.NewTicker(srv.interval)
	defer ticker.Stop()
	var last []byte
	for {
		agents, err := srv.src.List()
		if err != nil {
			c.fail(err)
			return
		}
		if agents == nil {
			agents = []roster.Agent{}
		}
		snapshot, _ := json.Marshal(agents)
		if !bytes.Equal(snapshot, last) {
			if err := c.send(wsEnvelope{Type: MsgAgents, Data: json.RawMessage(snapshot)}); err != nil {
				return
			}
			last = snapshot
		}
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// handleAgentWebSocket streams one agent's status and log growth, then
// closes once the agent is finished and its log fully sent.
func (srv *Server) handleAgentWebSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if _, err := srv.src.Get(id); errors.Is(err, roster.ErrUnknownAgent) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	c, ok := srv.accept(w, r)
	if !ok {
		return
	}
	defer c.ws.CloseNow()

	ticker := time.NewTicker(srv.interval)
	defer ticker.Stop()
	var (
		sent       string
		lastStatus string
		lastAlive  = true
	)
	for {
		a, err := srv.src.Get(id)
		if err != nil {
			c.fail(err)
			return
		}
		if string(a.Status) != lastStatus || a.Alive != lastAlive {
			if err := c.send(wsEnvelope{Type: MsgAgent, Data: a}); err != nil {
				return
			}
			lastStatus, lastAlive = string(a.Status), a.Alive
		}

		body, _ := srv.src.Body(id)
		if msg, changed := logDelta(sent, body); changed {
			if err := c.send(wsEnvelope{Type: MsgLog, Data: msg}); err != nil {
				return
			}
			sent = body
		}

		if a.Status.Terminal() || a.Dead() {
			_ = c.send(wsEnvelope{Type: MsgDone, Data: a})
			c.ws.Close(websocket.StatusNormalClosure, "agent finished")
			return
		}
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// logDelta describes how body differs from what the client already has.
func logDelta(sent, body string) (WireLog, bool) {
	if body == sent {
		return WireLog{}, false
	}
	if strings.HasPrefix(body, sent) {
		return WireLog{Offset: len(sent), Text: body[len(sent):]}, true
	}
	return WireLog{Text: body, Reset: true}, true
}
