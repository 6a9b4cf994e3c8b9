package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Subscriber auth is out of scope; the feed is advisory.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleAlertFeed upgrades the request and streams alert events to the
// client for the life of the connection. Each connection holds exactly one
// hub subscription; the subscription's buffer decouples this client from the
// publisher and from other clients.
func (s *Server) handleAlertFeed(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Alert feed upgrade failed")
		return
	}

	sub := s.hub.Subscribe()
	logger := s.logger.With().Str("remote", ws.RemoteAddr().String()).Logger()
	logger.Info().Msg("Alert subscriber connected")

	// Reader goroutine: the feed is server-to-client only, but reading is
	// required to process control frames and observe the peer closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		s.hub.Unsubscribe(sub)
		ws.Close()
		logger.Info().Msg("Alert subscriber disconnected")
	}()

	ping := time.NewTicker(s.config.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			ws.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-sub.C:
			if !ok {
				// Hub shut down.
				ws.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			ws.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := ws.WriteJSON(event.Message()); err != nil {
				logger.Warn().Err(err).Msg("Alert write failed")
				return
			}
		}
	}
}
