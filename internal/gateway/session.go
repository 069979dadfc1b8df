package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haasonsaas/relay/internal/protocol"
	"github.com/haasonsaas/relay/internal/registry"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsWriteWait       = 10 * time.Second
)

// wsSender adapts a websocket connection to the registry's Sender. A
// mutex serializes writes; gorilla connections allow only one
// concurrent writer.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSSender(conn *websocket.Conn) *wsSender {
	return &wsSender{conn: conn}
}

func (s *wsSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSender) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (s *wsSender) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait)) //nolint:errcheck
	return s.conn.Close()
}

// handleWS upgrades the request and runs the connection to completion.
// Authentication happens after the upgrade so a failure can be reported
// with a policy-violation close code instead of a bare HTTP error.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	sender := newWSSender(conn)

	identity, err := s.auth.Verify(r.URL.Query().Get("token"))
	if err != nil {
		s.logger.Warn("connection rejected", "error", err, "remote", r.RemoteAddr)
		_ = sender.Close(websocket.ClosePolicyViolation, "Authentication failed") //nolint:errcheck
		return
	}

	entry := &registry.Conn{
		ID:       uuid.NewString(),
		UserID:   identity.UserID,
		UserName: identity.Name,
		Sender:   sender,
	}
	s.runSession(r.Context(), conn, entry)
}

// runSession registers the connection, reads frames until the socket
// dies, and deregisters on the way out. Frames are handled strictly in
// arrival order for the connection.
func (s *Server) runSession(ctx context.Context, conn *websocket.Conn, entry *registry.Conn) {
	now := time.Now()
	entry.Touch(now)
	first := s.registry.Add(entry)
	if s.metrics != nil {
		s.metrics.ActiveConnections.Inc()
	}
	s.logger.Info("connection established",
		"connection_id", entry.ID, "user_id", entry.UserID, "first", first)

	s.presence.OnConnect(ctx, entry.UserID, entry.ID, first)
	s.sendEvent(entry, protocol.NewConnectionEstablished(entry.ID, entry.UserID, now))

	defer s.teardown(ctx, entry)

	conn.SetReadLimit(wsMaxPayloadBytes)
	conn.SetPongHandler(func(string) error {
		entry.Touch(time.Now())
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("connection read error",
					"connection_id", entry.ID, "user_id", entry.UserID, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		entry.Touch(time.Now())
		s.dispatcher.Dispatch(ctx, entry, data)
	}
}

// teardown runs the single deregistration path shared by normal closes,
// read errors, and liveness evictions. The request context is already
// canceled by the time the socket dies, so the offline write runs on a
// detached context.
func (s *Server) teardown(ctx context.Context, entry *registry.Conn) {
	ctx = context.WithoutCancel(ctx)
	removed, last := s.registry.Remove(entry.ID)
	if removed == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.ActiveConnections.Dec()
	}
	s.logger.Info("connection closed",
		"connection_id", entry.ID, "user_id", entry.UserID, "last", last)
	s.presence.OnDisconnect(ctx, entry.UserID, last)
	_ = entry.Sender.Close(websocket.CloseNormalClosure, "") //nolint:errcheck
}

func (s *Server) sendEvent(entry *registry.Conn, event protocol.Event) {
	data, err := event.Marshal()
	if err != nil {
		s.logger.Error("failed to marshal event", "type", event.Type, "error", err)
		return
	}
	if err := entry.Sender.Send(data); err != nil {
		s.logger.Debug("failed to write event",
			"connection_id", entry.ID, "type", event.Type, "error", err)
	}
}

