package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"MedLink/logger"
	"MedLink/tools/errs"
	"MedLink/tools/ids"
	"MedLink/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway is the per-process supervisor: it owns the registry, the
// router, the call coordinator and the fanout, and drives one
// connection lifecycle per websocket. Constructed once in main and
// passed around by handle — no ambient globals.
type Gateway struct {
	auth     *Authenticator
	registry *Registry
	router   *MessageRouter
	calls    *Coordinator
	fanout   *NotificationFanout
}

func New(auth *Authenticator, registry *Registry, router *MessageRouter, calls *Coordinator, fanout *NotificationFanout) *Gateway {
	return &Gateway{
		auth:     auth,
		registry: registry,
		router:   router,
		calls:    calls,
		fanout:   fanout,
	}
}

func (g *Gateway) Registry() *Registry         { return g.registry }
func (g *Gateway) Fanout() *NotificationFanout { return g.fanout }

// Routes mounts the websocket endpoint and the health probe.
func (g *Gateway) Routes(r *gin.Engine) {
	r.GET("/ws", g.HandleWS)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// bearerToken reads the handshake credential: Authorization header
// first, ?token= fallback for browser websocket clients that cannot
// set headers.
func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

// HandleWS upgrades, authenticates, and runs the connection until its
// transport dies. Authentication runs before anything else; a failed
// handshake gets exactly one error event and then the close.
func (g *Gateway) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade failed: %v", err)
		return
	}

	identity, err := g.auth.Authenticate(bearerToken(c))
	if err != nil {
		logger.Infof("[ws] auth rejected remote=%s err=%v", ws.RemoteAddr(), err)
		conn := NewClientConn(ids.GenerateString(), "", "", ws)
		safe.Go(conn.WritePump)
		conn.CloseWith(BuildError(err))
		return
	}

	conn := NewClientConn(ids.GenerateString(), identity.UserID, identity.Role, ws)
	safe.Go(conn.WritePump)
	g.serve(c.Request.Context(), conn)
}

// serve is the per-connection read loop. The deferred block is the
// only cleanup path: it runs the same way for a clean close, a read
// error, or a panic inside a handler, so presence never leaks and any
// owned call room is force-ended.
func (g *Gateway) serve(ctx context.Context, conn *ClientConn) {
	g.registry.Register(ctx, conn)
	logger.Infof("[ws] connected user=%s role=%s conn=%s", conn.UserID(), conn.Role(), conn.ID())

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[ws] handler panic user=%s conn=%s: %v", conn.UserID(), conn.ID(), errs.ErrPanic(r))
		}
		cleanupCtx := context.Background()
		g.registry.Deregister(cleanupCtx, conn.UserID(), conn.ID())
		g.calls.ConnectionClosed(conn.UserID(), conn.ID())
		conn.Close()
		logger.Infof("[ws] disconnected user=%s conn=%s", conn.UserID(), conn.ID())
	}()

	ws := conn.ws
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s", conn.ID())
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout conn=%s", conn.ID())
			} else {
				logger.Infof("[ws] read err conn=%s err=%v", conn.ID(), rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		ev, perr := DecodeInbound(data)
		if perr != nil {
			conn.Push(BuildError(perr))
			continue
		}
		g.dispatch(ctx, conn, ev)
	}
}

// dispatch routes one decoded event to its component. Validation and
// persistence failures go back as error events and the connection
// stays open; signaling authorization failures are swallowed inside
// the coordinator.
func (g *Gateway) dispatch(ctx context.Context, conn *ClientConn, ev Inbound) {
	switch e := ev.(type) {
	case SendMessage:
		if _, err := g.router.Send(ctx, conn, e.ReceiverID, e.Text); err != nil {
			conn.Push(BuildError(err))
		}
	case MarkRead:
		if err := g.router.MarkRead(ctx, e.MessageID, conn.UserID()); err != nil {
			conn.Push(BuildError(err))
		}
	case DeleteMessage:
		if err := g.router.Delete(ctx, e.MessageID, conn.UserID()); err != nil {
			conn.Push(BuildError(err))
		}
	case StartCall:
		if _, err := g.calls.StartCall(ctx, conn, e.ReceiverID, e.AppointmentID); err != nil {
			conn.Push(BuildError(err))
		}
	case AcceptCall:
		if err := g.calls.AcceptCall(conn, e.RoomID); err != nil {
			conn.Push(BuildError(err))
		}
	case DeclineCall:
		if err := g.calls.DeclineCall(conn, e.RoomID); err != nil {
			conn.Push(BuildError(err))
		}
	case Signal:
		g.calls.Relay(conn, e.Kind, e.RoomID, e.Payload)
	case EndCall:
		g.calls.End(conn, e.RoomID)
	}
}
