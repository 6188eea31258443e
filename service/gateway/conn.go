package gateway

import (
	"sync"
	"time"

	"MedLink/logger"

	"github.com/gorilla/websocket"
)

// Conn is the delivery handle the registry and the components push
// through. ClientConn implements it over a websocket; tests substitute
// a recording fake.
type Conn interface {
	ID() string
	UserID() string
	Role() string
	Push(evt Outbound)
	CloseWith(evt Outbound)
}

const (
	writeWait      = 5 * time.Second
	pongWait       = 75 * time.Second
	pingEvery      = 25 * time.Second
	sendQueueDepth = 256
)

// ClientConn is one live websocket. Owned by the supervisor for its
// lifetime; all writes go through the single write pump, since
// gorilla/websocket does not allow concurrent writers.
type ClientConn struct {
	id            string
	userID        string
	role          string
	establishedAt time.Time

	ws        *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func NewClientConn(id, userID, role string, ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		id:            id,
		userID:        userID,
		role:          role,
		establishedAt: time.Now(),
		ws:            ws,
		send:          make(chan []byte, sendQueueDepth),
		done:          make(chan struct{}),
	}
}

func (c *ClientConn) ID() string     { return c.id }
func (c *ClientConn) UserID() string { return c.userID }
func (c *ClientConn) Role() string   { return c.role }

// Push enqueues an event for the write pump. Delivery is best effort:
// a client that cannot drain its queue loses the frame and the
// authoritative state is reconciled from the durable store on next
// fetch.
func (c *ClientConn) Push(evt Outbound) {
	data, err := evt.Marshal()
	if err != nil {
		logger.Errorf("[conn] marshal outbound: conn=%s type=%s err=%v", c.id, evt.Type, err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		logger.Warnf("[conn] send queue full, dropping frame conn=%s user=%s type=%s", c.id, c.userID, evt.Type)
	}
}

// CloseWith pushes a final event and then tears the connection down.
func (c *ClientConn) CloseWith(evt Outbound) {
	c.Push(evt)
	// give the pump a moment to flush the terminal frame
	time.Sleep(50 * time.Millisecond)
	c.Close()
}

func (c *ClientConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// WritePump is the single writer goroutine. It also owns the ping
// ticker; the read side resets its deadline in the pong handler.
func (c *ClientConn) WritePump() {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Infof("[conn] write failed conn=%s user=%s err=%v", c.id, c.userID, err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
