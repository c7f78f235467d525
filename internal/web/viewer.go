package web

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Viewers only talk to us in control frames.
	maxMessageSize = 512
)

// viewer is one websocket subscriber. The hub owns send and closes it when
// the viewer is removed.
type viewer struct {
	conn   *websocket.Conn
	send   chan []byte
	remote string
	logger *log.Logger
}

func newViewer(conn *websocket.Conn, logger *log.Logger) *viewer {
	return &viewer{
		conn:   conn,
		send:   make(chan []byte, viewerBacklog),
		remote: conn.RemoteAddr().String(),
		logger: logger,
	}
}

// readPump discards anything the viewer sends and keeps the read deadline
// fresh on pongs. It returns when the connection fails or closes.
func (v *viewer) readPump(h *Hub) {
	defer func() {
		h.leave(v)
		_ = v.conn.Close()
	}()

	v.conn.SetReadLimit(maxMessageSize)
	_ = v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		_ = v.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				v.logger.Warn("websocket error", "remote", v.remote, "error", err)
			}
			return
		}
	}
}

// writePump writes snapshots and pings until send is closed.
func (v *viewer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = v.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = v.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				v.logger.Debug("write failed", "remote", v.remote, "error", err)
				return
			}

		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
