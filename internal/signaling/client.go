package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Outbound messages buffered per client before drops start.
	outboundQueueSize = 32
	// Deadline applied to each websocket write.
	wsWriteWait = 10 * time.Second
)

// clientConn owns the write side of one websocket connection. All
// writes go through the send queue and a single writePump goroutine,
// which keeps gorilla's one-writer rule intact.
type clientConn struct {
	id  string
	ws  *websocket.Conn
	log *slog.Logger

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClientConn(id string, ws *websocket.Conn, log *slog.Logger) *clientConn {
	return &clientConn{
		id:     id,
		ws:     ws,
		log:    log,
		sendCh: make(chan []byte, outboundQueueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue queues data for delivery. It never blocks: a full queue or
// closed connection drops the message and reports why.
func (c *clientConn) Enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrClientGone
	default:
	}
	select {
	case c.sendCh <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// writePump drains the send queue onto the wire and keeps the
// connection alive with pings. It owns closing the underlying socket.
func (c *clientConn) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case data := <-c.sendCh:
			c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("websocket write failed", "client_id", c.id, "err", err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// close signals writePump to finish. Safe to call more than once.
func (c *clientConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
