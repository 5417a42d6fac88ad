package gorillaws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/modelsync/modelsync/internal/codec"
	"github.com/modelsync/modelsync/pkg/connection"
	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/logger"

	gorilla "github.com/gorilla/websocket"
)

// DefaultDialer is the default gorilla dialer with compression enabled.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

// Connection is a websocket Transport. Send only queues the message; a
// writer goroutine encodes and writes it, logging any failure.
type Connection struct {
	Conn *gorilla.Conn

	codec     codec.Codec
	logger    logger.Logger
	onMessage func(*connection.Message)

	// connLock serializes writes to Conn.
	connLock sync.Mutex

	queue   chan *connection.Message
	closeCh chan struct{}
	done    sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

var _ connection.Transport = (*Connection)(nil)

// Dial connects to cfg.URL and starts the read and write goroutines. Failed
// attempts are retried as long as cfg.Retryer allows and ctx is live.
func Dial(ctx context.Context, cfg *connection.Config) (*Connection, error) {
	dialer := *DefaultDialer
	dialer.Subprotocols = []string{cfg.Codec.Name}

	l := cfg.Logger
	if l == nil {
		l = logger.Default()
	}

	var conn *gorilla.Conn
	for attempt := 0; ; attempt++ {
		var (
			res *http.Response
			err error
		)
		conn, res, err = dialer.DialContext(ctx, cfg.URL.String(), nil)
		if res != nil {
			res.Body.Close()
		}
		if err == nil {
			break
		}
		if cfg.Retryer == nil {
			return nil, err
		}
		delay, ok := cfg.Retryer.NextDelay(attempt, err)
		if !ok {
			return nil, fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}
		l.Warn("dial failed, retrying", "url", cfg.URL.Redacted(), "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = constants.DefaultQueueSize
	}

	c := &Connection{
		Conn:      conn,
		codec:     cfg.Codec,
		logger:    l,
		onMessage: cfg.OnMessage,
		queue:     make(chan *connection.Message, queueSize),
		closeCh:   make(chan struct{}),
	}

	c.done.Add(2)
	go c.writeLoop()
	go c.readLoop()

	return c, nil
}

// Send queues msg for delivery. A full queue or a closed connection drops
// the message with an error log.
func (c *Connection) Send(msg *connection.Message) {
	select {
	case <-c.closeCh:
		c.logger.Error("dropping message", "id", msg.ID, "error", constants.ErrConnectionClosed)
		return
	default:
	}

	select {
	case c.queue <- msg:
	default:
		c.logger.Error("dropping message", "id", msg.ID, "error", constants.ErrQueueFull)
	}
}

func (c *Connection) writeLoop() {
	defer c.done.Done()
	for {
		select {
		case <-c.closeCh:
			return
		case msg := <-c.queue:
			if err := c.write(msg); err != nil {
				c.logger.Error("failed to write message", "id", msg.ID, "error", err)
				if errors.Is(err, gorilla.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
					c.closeWithError(err)
					return
				}
			}
		}
	}
}

func (c *Connection) write(msg *connection.Message) error {
	data, err := c.codec.Marshal(msg)
	if err != nil {
		return err
	}

	frame := gorilla.TextMessage
	if c.codec.Binary {
		frame = gorilla.BinaryMessage
	}

	c.connLock.Lock()
	defer c.connLock.Unlock()
	return c.Conn.WriteMessage(frame, data)
}

func (c *Connection) readLoop() {
	defer c.done.Done()
	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !gorilla.IsCloseError(err, constants.CloseMessageCode) {
				c.logger.Error("read failed", "error", err)
			}
			c.closeWithError(err)
			return
		}

		var msg connection.Message
		if err := c.codec.Unmarshal(data, &msg); err != nil {
			c.logger.Error("failed to decode message", "error", err)
			continue
		}
		if c.onMessage != nil {
			c.onMessage(&msg)
		}
	}
}

func (c *Connection) closeWithError(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.closeCh)
	})
}

// IsClosed reports whether the connection stopped accepting messages.
func (c *Connection) IsClosed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

// Err returns the error that closed the connection, if any.
func (c *Connection) Err() error {
	if !c.IsClosed() {
		return nil
	}
	return c.closeErr
}

// Close sends a close frame, bounded by ctx, then closes the socket and
// waits for the goroutines to exit. Queued messages not yet written are
// discarded.
func (c *Connection) Close(ctx context.Context) error {
	c.closeWithError(constants.ErrConnectionClosed)

	c.connLock.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.Conn.SetWriteDeadline(deadline); err != nil {
			c.connLock.Unlock()
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	err := c.Conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(constants.CloseMessageCode, ""))
	c.connLock.Unlock()
	if err != nil && !errors.Is(err, gorilla.ErrCloseSent) {
		// the socket is closed below regardless
		c.logger.Error("failed to write close message", "error", err)
	}

	closeErr := c.Conn.Close()

	waited := make(chan struct{})
	go func() {
		c.done.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second):
	}
	return closeErr
}
