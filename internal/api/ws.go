package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const statusPushInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStatusWS pushes the aggregate status snapshot to the client on
// connect and every two seconds after. The read pump exists only to notice
// the client going away.
func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.logger.Info("status websocket connected", zap.String("remote", r.RemoteAddr))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statusPushInterval)
	defer ticker.Stop()

	for {
		if err := s.pushStatus(conn); err != nil {
			s.logger.Debug("status push failed", zap.Error(err))
			return
		}
		select {
		case <-closed:
			s.logger.Info("status websocket disconnected", zap.String("remote", r.RemoteAddr))
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) pushStatus(conn *websocket.Conn) error {
	payload := s.statusSnapshot()
	payload["type"] = "source_status"

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(payload)
}
