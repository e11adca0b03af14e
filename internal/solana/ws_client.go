package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"moonshot-watcher/internal/observability"
)

// ErrSubscriptionRejected is returned when the node answers a subscribe request with an error.
var ErrSubscriptionRejected = errors.New("subscription rejected")

// ErrClientClosed is returned when the client is used after Close.
var ErrClientClosed = errors.New("websocket client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// MaxReconnects bounds consecutive reconnect attempts; 0 means unlimited.
	MaxReconnects int
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// FrameBuffer is the notification channel capacity.
	FrameBuffer int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		MaxReconnects:     10,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		FrameBuffer:       10000,
	}
}

// WSClientImpl implements WSClient using gorilla/websocket.
// It carries a single transaction subscription and restores it after reconnects.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   logrus.FieldLogger

	conn      *websocket.Conn
	connMu    sync.Mutex
	writeMu   sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	subscribed atomic.Bool
	filter     TransactionFilter
	opts       TransactionOptions
	subID      atomic.Int64

	frames chan []byte

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig, logger logrus.FieldLogger) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &WSClientImpl{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger.WithField("component", "ws"),
		frames:   make(chan []byte, cfg.FrameBuffer),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// connect establishes WebSocket connection, replacing any previous one.
func (c *WSClientImpl) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	readTimeout := c.config.ReadTimeout
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	c.connMu.Lock()
	if c.closed.Load() {
		// Close already ran and will not see this connection.
		c.connMu.Unlock()
		conn.Close()
		return ErrClientClosed
	}
	old := c.conn
	c.conn = conn
	c.connMu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

func (c *WSClientImpl) currentConn() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

func (c *WSClientImpl) writeJSON(conn *websocket.Conn, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return conn.WriteJSON(v)
}

// SubscribeTransactions subscribes to transactions matching the filter.
func (c *WSClientImpl) SubscribeTransactions(ctx context.Context, filter TransactionFilter, opts TransactionOptions) (<-chan []byte, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}
	if c.subscribed.Swap(true) {
		return nil, fmt.Errorf("already subscribed")
	}

	c.filter = filter
	c.opts = opts

	subID, err := c.handshake(ctx, c.currentConn())
	if err != nil {
		c.subscribed.Store(false)
		return nil, err
	}
	c.subID.Store(subID)
	c.logger.WithField("subscription", subID).Info("transaction subscription confirmed")

	// Start reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	// Start ping goroutine
	c.wg.Add(1)
	go c.pingLoop()

	return c.frames, nil
}

// handshake sends the subscribe request on conn and reads until the matching reply.
// It must only run while no other goroutine reads from conn.
func (c *WSClientImpl) handshake(ctx context.Context, conn *websocket.Conn) (int64, error) {
	if conn == nil {
		return 0, fmt.Errorf("not connected")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "transactionSubscribe",
		Params:  []interface{}{c.filter, c.opts},
	}

	if err := c.writeJSON(conn, req); err != nil {
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	deadline := time.Now().Add(c.config.SubscribeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("read subscribe response: %w", err)
		}

		var resp wsResponse
		if err := json.Unmarshal(msg, &resp); err != nil || resp.ID != reqID {
			continue
		}

		if resp.Error != nil {
			return 0, fmt.Errorf("%w: %v", ErrSubscriptionRejected, resp.Error)
		}

		var subID int64
		if err := json.Unmarshal(resp.Result, &subID); err != nil {
			return 0, fmt.Errorf("%w: unexpected result %s", ErrSubscriptionRejected, string(resp.Result))
		}
		return subID, nil
	}
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	if conn := c.currentConn(); conn != nil {
		c.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
	}

	c.wg.Wait()
	return nil
}

// readLoop reads messages from WebSocket and forwards notifications.
// The frames channel is closed when the stream ends.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()
	defer close(c.frames)

	for !c.closed.Load() {
		conn := c.currentConn()
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.WithError(err).Info("stream closed by server")
				return
			}

			c.logger.WithError(err).Warn("websocket read failed")
			if !c.reconnect() {
				return
			}
			continue
		}

		c.handleMessage(message)
	}
}

// reconnect dials again with exponential backoff and restores the subscription.
func (c *WSClientImpl) reconnect() bool {
	delay := c.config.ReconnectDelay

	for attempt := 1; c.config.MaxReconnects <= 0 || attempt <= c.config.MaxReconnects; attempt++ {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		delay = delay * 2
		if delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}

		observability.RecordWSReconnect()
		log := c.logger.WithField("attempt", attempt)

		ctx, cancel := context.WithTimeout(context.Background(), c.config.SubscribeTimeout)
		subID, err := c.redial(ctx)
		cancel()

		if err != nil {
			if errors.Is(err, ErrClientClosed) {
				return false
			}
			if errors.Is(err, ErrSubscriptionRejected) {
				log.WithError(err).Error("resubscribe rejected")
				return false
			}
			log.WithError(err).Warn("reconnect failed")
			continue
		}

		c.subID.Store(subID)
		log.WithField("subscription", subID).Info("reconnected and resubscribed")
		return true
	}

	c.logger.WithField("max_reconnects", c.config.MaxReconnects).Error("giving up on reconnect")
	return false
}

func (c *WSClientImpl) redial(ctx context.Context) (int64, error) {
	if err := c.connect(ctx); err != nil {
		return 0, err
	}
	return c.handshake(ctx, c.currentConn())
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	var msg wsNotification
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.WithError(err).Debug("ignoring non-JSON frame")
		return
	}

	if msg.Error != nil {
		// Log error but don't crash
		c.logger.WithFields(logrus.Fields{
			"code": msg.Error.Code,
			"msg":  msg.Error.Message,
		}).Warn("error response")
		return
	}

	if msg.Method != "transactionNotification" {
		return
	}

	observability.RecordFrameReceived()

	// Block until we can send - never drop frames
	select {
	case c.frames <- message:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			conn := c.currentConn()
			if conn == nil {
				continue
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				// Connection might be dead, reader will handle reconnect
				c.logger.WithError(err).Debug("ping failed")
			}
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

type wsNotification struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Error   *RPCError `json:"error"`
}
