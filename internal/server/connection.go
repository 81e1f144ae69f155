package server

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/cardroom/internal/errors"
	"github.com/lox/cardroom/internal/protocol"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 256
)

var (
	ErrConnectionClosed = stderrors.New("connection closed")
	ErrSendBufferFull   = stderrors.New("send buffer full")
)

// Connection is one WebSocket client. Its session id is the identity rooms
// know it by.
type Connection struct {
	id        string
	conn      *websocket.Conn
	send      chan *protocol.Message
	limiter   *rate.Limiter
	service   *Service
	readLimit int64
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConnection(id string, conn *websocket.Conn, service *Service, cfg Config, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		id:        id,
		conn:      conn,
		send:      make(chan *protocol.Message, sendBuffer),
		limiter:   rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.Burst),
		service:   service,
		readLimit: cfg.MaxMessageBytes,
		logger:    logger.WithPrefix("conn").With("session", id),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ID returns the session id.
func (c *Connection) ID() string { return c.id }

// Close closes the connection. It is safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message without blocking. A client that cannot keep
// up is disconnected.
func (c *Connection) SendMessage(msg *protocol.Message) error {
	if c.ctx.Err() != nil {
		return ErrConnectionClosed
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrSendBufferFull
	}
}

// readPump handles incoming messages until the peer goes away.
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(c.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		if c.ctx.Err() != nil {
			return
		}
		c.handleFrame(raw)
	}
}

func (c *Connection) handleFrame(raw []byte) {
	msg, err := protocol.ParseMessage(raw)
	if err != nil {
		c.sendError(nil, err)
		return
	}
	if !c.limiter.Allow() {
		c.sendError(msg, errors.New(errors.CodeRateLimited, "too many messages, slow down"))
		return
	}
	if !msg.Type.Inbound() {
		c.sendError(msg, errors.Newf(errors.CodeUnknownEvent, "unknown event %q", msg.Type))
		return
	}

	reply, err := c.service.Handle(c.id, msg)
	if err != nil {
		c.sendError(msg, err)
		return
	}
	if reply != nil {
		_ = c.SendMessage(reply)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Debug("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// sendError reports a failed request to the client.
func (c *Connection) sendError(req *protocol.Message, err error) {
	code, message := errors.PublicMessage(err)
	data := protocol.ErrorData{
		Code:     string(code),
		Message:  message,
		Metadata: errors.GetMetadata(err),
	}
	if req != nil {
		data.Event = req.Type
	}
	if code.Kind() == errors.KindInternal {
		c.logger.Error("Request failed", "event", data.Event, "error", err)
	} else {
		c.logger.Debug("Request rejected", "event", data.Event, "code", code, "error", err)
	}

	msg, merr := protocol.Reply(req, protocol.TypeError, data)
	if merr != nil {
		c.logger.Error("Failed to create error message", "error", merr)
		return
	}
	_ = c.SendMessage(msg)
}
