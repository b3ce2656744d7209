package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"yanode/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Clients only send control frames.
	maxMessageSize = 512

	eventBuffer = 64
)

// handleEvents upgrades to a websocket and pushes every status and job change.
// The current status and job are sent first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	s.stream(conn)
}

func (s *Server) stream(conn *websocket.Conn) {
	defer conn.Close()

	statuses, stopStatus := s.backend.SubscribeStatus(eventBuffer)
	defer stopStatus()
	jobs, stopJobs := s.backend.SubscribeJob(eventBuffer)
	defer stopJobs()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		var evt Event
		select {
		case <-gone:
			return
		case <-s.closing:
			s.closeStream(conn, websocket.CloseGoingAway)
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case u, ok := <-statuses:
			if !ok {
				s.closeStream(conn, websocket.CloseGoingAway)
				return
			}
			evt = Event{Kind: EventStatus, Seq: u.Seq, At: formatTime(u.At), Status: u.Value.String()}
		case u, ok := <-jobs:
			if !ok {
				s.closeStream(conn, websocket.CloseGoingAway)
				return
			}
			evt = Event{Kind: EventJob, Seq: u.Seq, At: formatTime(u.At), Job: FromJob(u.Value)}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(evt); err != nil {
			s.logger.Debug("event stream write failed", logging.Error(err))
			return
		}
	}
}

func (s *Server) closeStream(conn *websocket.Conn, code int) {
	msg := websocket.FormatCloseMessage(code, "node shutting down")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
