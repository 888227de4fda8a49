package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/aethalometer/errors"
	"github.com/c360/aethalometer/health"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Connection states
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client errors
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrClosed       = stderrors.New("client is closed")
)

// Client manages a single NATS connection used for publishing
type Client struct {
	url    string
	status atomic.Value // stores ConnectionStatus
	logger *slog.Logger

	conn *nats.Conn

	maxReconnects        int
	reconnectWait        time.Duration
	pingInterval         time.Duration
	timeout              time.Duration
	drainTimeout         time.Duration
	retryOnFailedConnect bool

	username string
	password string
	token    string

	clientName string

	reconnects atomic.Int32
	failures   atomic.Int32

	onHealthChange func(bool)

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a new NATS client with optional configuration
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.Wrap(errors.ErrMissingConfig, "Client", "NewClient", "url validation")
	}

	c := &Client{
		url:           url,
		logger:        slog.Default(),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  5 * time.Second,
		clientName:    "aethalometer",
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "Client", "NewClient", "apply option")
		}
	}

	c.logger = c.logger.With("component", "nats", "url", url)
	c.status.Store(StatusDisconnected)

	return c, nil
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
}

// Reconnects returns how many times the connection was re-established
func (c *Client) Reconnects() int32 {
	return c.reconnects.Load()
}

// Failures returns the number of failed connection attempts
func (c *Client) Failures() int32 {
	return c.failures.Load()
}

// buildConnectionOptions builds NATS connection options from client configuration
func (c *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.ConnectHandler(c.handleConnect),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}

	if c.retryOnFailedConnect {
		opts = append(opts, nats.RetryOnFailedConnect(true))
	}
	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}

	return opts
}

// Connect establishes the connection to the NATS server.
//
// With WithRetryOnFailedConnect the call succeeds while the server is still
// unreachable and the connection is established in the background.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS")

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.buildConnectionOptions()...)
		done <- result{conn, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			c.failures.Add(1)
			c.setStatus(StatusDisconnected)
			return errors.WrapTransient(res.err, "Client", "Connect", "establish connection")
		}

		c.mu.Lock()
		c.conn = res.conn
		c.mu.Unlock()

		if !res.conn.IsConnected() {
			// handleConnect may already have seen the background connect succeed
			if c.status.CompareAndSwap(StatusConnecting, StatusReconnecting) {
				c.logger.Warn("NATS unreachable, retrying in background")
			}
			return nil
		}
	case <-ctx.Done():
		c.failures.Add(1)
		c.setStatus(StatusDisconnected)
		// the dial goroutine may still succeed; close what it returns
		go func() {
			if res := <-done; res.conn != nil {
				res.conn.Close()
			}
		}()
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	c.markConnected()
	return nil
}

// markConnected records an established connection and reports it once
func (c *Client) markConnected() {
	if c.closed.Load() {
		return
	}
	if previous := c.status.Swap(StatusConnected); previous == StatusConnected {
		return
	}
	c.logger.Info("Connected to NATS")
	c.notifyHealth(true)
}

// Publish publishes data to a NATS subject
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}

	return conn.Publish(subject, data)
}

// Health returns the connection status as a health status for name
func (c *Client) Health(name string) health.Status {
	var status health.Status
	switch c.Status() {
	case StatusConnected:
		status = health.NewHealthy(name, "Connected to "+c.url)
	case StatusClosed:
		status = health.NewUnhealthy(name, "NATS client closed")
	default:
		status = health.NewDegraded(name, fmt.Sprintf("NATS %s (%d reconnects)", c.Status(), c.Reconnects()))
	}
	return status.WithMetrics(&health.Metrics{ErrorCount: int(c.Failures())})
}

// Close drains pending messages and closes the connection
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	defer c.setStatus(StatusClosed)

	if conn == nil {
		return nil
	}

	if !conn.IsConnected() {
		conn.Close()
		return nil
	}

	if err := conn.FlushWithContext(ctx); err != nil {
		c.logger.Warn("Flush before close failed", "error", err)
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return errors.Wrap(err, "Client", "Close", "drain connection")
	}

	return nil
}

func (c *Client) notifyHealth(healthy bool) {
	c.mu.RLock()
	fn := c.onHealthChange
	c.mu.RUnlock()

	if fn != nil {
		go fn(healthy)
	}
}

// Event handlers for NATS connection

// handleConnect runs when the first connection is established, including one
// made in the background after a failed initial attempt
func (c *Client) handleConnect(_ *nats.Conn) {
	c.markConnected()
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusReconnecting)
	c.logger.Warn("Disconnected from NATS", "error", err)
	c.notifyHealth(false)
}

func (c *Client) handleReconnect(conn *nats.Conn) {
	c.reconnects.Add(1)
	c.setStatus(StatusConnected)
	c.logger.Info("Reconnected to NATS", "server", conn.ConnectedUrl())
	c.notifyHealth(true)
}

func (c *Client) handleClosed(_ *nats.Conn) {
	if !c.closed.Load() {
		c.setStatus(StatusDisconnected)
	}
	c.notifyHealth(false)
}

func (c *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	c.logger.Error("NATS error", "error", err)
}
