package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
	writeWait  = 5 * time.Second
)

// ReleaseStreamHandler handles /v1/releases/stream: every released batch is
// written as one JSON text message. Client messages are ignored.
func (s *Server) ReleaseStreamHandler(w http.ResponseWriter, r *http.Request) {
	if s.Stream == nil {
		writeProblem(w, http.StatusNotFound, "No release stream", "no stream sink configured", r.URL.Path)
		return
	}
	ch := s.Stream.Subscribe()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Stream.Unsubscribe(ch)
		return
	}
	defer func() { _ = conn.Close() }()

	// Read loop: keeps pong handling alive and notices the client leaving.
	gone := make(chan struct{})
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.Stream.Unsubscribe(ch)
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case rel, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(rel); err != nil {
				log.Debug().Err(err).Msg("release stream write")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
