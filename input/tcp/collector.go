package tcp

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/aethalometer/config"
	"github.com/c360/aethalometer/errors"
	"github.com/c360/aethalometer/health"
	"github.com/c360/aethalometer/metric"
	"github.com/c360/aethalometer/pkg/retry"
)

const componentName = "collector"

// defaultMaxLineLength is the longest line accepted, terminator included,
// when Config.MaxLineLength is zero
const defaultMaxLineLength = 64 * 1024

// Sink receives decoded measurement lines, one at a time and in order.
//
// Process returns a corrupted-data error for a line that should be dropped
// and an unrecoverable error when collection must stop.
type Sink interface {
	Process(line string) error
}

// Config holds the connection settings for one instrument
type Config struct {
	Host            string
	Port            int
	ReconnectPeriod time.Duration // wait between a disconnect and the next dial
	MessagePeriod   time.Duration // longest silence tolerated on an open connection
	DialTimeout     time.Duration // defaults to MessagePeriod
	MaxLineLength   int           // bytes, terminator included; defaults to 64 KiB
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.Wrap(fmt.Errorf("%w: host", errors.ErrMissingConfig), "Config", "Validate", "host validation")
	}
	if err := config.ValidatePort(c.Port); err != nil {
		return errors.Wrap(err, "Config", "Validate", "port validation")
	}
	if c.ReconnectPeriod <= 0 {
		return errors.Wrap(fmt.Errorf("%w: reconnect period must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "reconnect period validation")
	}
	if c.MessagePeriod <= 0 {
		return errors.Wrap(fmt.Errorf("%w: message period must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "message period validation")
	}
	if c.DialTimeout < 0 {
		return errors.Wrap(fmt.Errorf("%w: dial timeout cannot be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "dial timeout validation")
	}
	if c.MaxLineLength < 0 {
		return errors.Wrap(fmt.Errorf("%w: max line length cannot be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "max line length validation")
	}
	return nil
}

// Address returns host:port of the instrument
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Metrics holds Prometheus metrics for the collector
type Metrics struct {
	linesReceived prometheus.Counter
	linesDropped  prometheus.Counter
	bytesReceived prometheus.Counter
	reconnects    prometheus.Counter
	connected     prometheus.Gauge
}

// newMetrics creates and registers collector metrics, or returns nil without a registry
func newMetrics(registry metric.MetricsRegistrar) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	metrics := &Metrics{
		linesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aethalometer",
			Subsystem: "collector",
			Name:      "lines_received_total",
			Help:      "Lines received from the instrument",
		}),
		linesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aethalometer",
			Subsystem: "collector",
			Name:      "lines_dropped_total",
			Help:      "Lines dropped as corrupted or undecodable",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aethalometer",
			Subsystem: "collector",
			Name:      "bytes_received_total",
			Help:      "Bytes received from the instrument",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aethalometer",
			Subsystem: "collector",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts after a failed or lost connection",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aethalometer",
			Subsystem: "collector",
			Name:      "connected",
			Help:      "1 while connected to the instrument",
		}),
	}

	if err := metric.Register(registry, componentName, map[string]prometheus.Collector{
		"lines_received": metrics.linesReceived,
		"lines_dropped":  metrics.linesDropped,
		"bytes_received": metrics.bytesReceived,
		"reconnects":     metrics.reconnects,
		"connected":      metrics.connected,
	}); err != nil {
		return nil, err
	}

	return metrics, nil
}

// CollectorDeps holds the runtime dependencies of a Collector
type CollectorDeps struct {
	Config          Config
	Sink            Sink
	Logger          *slog.Logger            // optional
	MetricsRegistry metric.MetricsRegistrar // optional
	HealthMonitor   *health.Monitor         // optional
}

// Collector keeps a connection to one instrument open and forwards every
// received line to its Sink, reconnecting after a fixed delay for as long as
// it runs.
type Collector struct {
	config  Config
	sink    Sink
	logger  *slog.Logger
	metrics *Metrics
	monitor *health.Monitor

	// logger of the current connection, carrying its session id
	sessionLogger atomic.Pointer[slog.Logger]

	startTime     time.Time
	connected     atomic.Bool
	sessions      atomic.Int64
	linesReceived atomic.Int64
	linesDropped  atomic.Int64
	bytesReceived atomic.Int64
	lastActivity  atomic.Int64 // unix nanoseconds
}

// NewCollector creates a collector from deps
func NewCollector(deps CollectorDeps) (*Collector, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, errors.Wrap(err, "Collector", "NewCollector", "config validation")
	}
	if deps.Sink == nil {
		return nil, errors.Wrap(fmt.Errorf("%w: sink", errors.ErrMissingConfig),
			"Collector", "NewCollector", "sink validation")
	}

	cfg := deps.Config
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = cfg.MessagePeriod
	}
	if cfg.MaxLineLength == 0 {
		cfg.MaxLineLength = defaultMaxLineLength
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "Collector", "NewCollector", "register metrics")
	}

	c := &Collector{
		config:    cfg,
		sink:      deps.Sink,
		logger:    logger.With("component", componentName, "address", cfg.Address()),
		metrics:   metrics,
		monitor:   deps.HealthMonitor,
		startTime: time.Now(),
	}
	c.sessionLogger.Store(c.logger)
	c.publishHealth()

	return c, nil
}

// Run connects to the instrument and forwards lines until ctx is cancelled or
// the sink reports an unrecoverable error. Lost connections, read timeouts
// and undecodable data close the connection and trigger a reconnect after
// ReconnectPeriod, with no limit on the number of attempts.
//
// Run returns nil when ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("Collector starting",
		"reconnect_period", c.config.ReconnectPeriod,
		"message_period", c.config.MessagePeriod)

	policy := retry.Fixed(c.config.ReconnectPeriod)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		if c.metrics != nil {
			c.metrics.reconnects.Inc()
		}
		c.logger.Warn("Connection unavailable, reconnecting",
			"attempt", attempt,
			"error", err,
			"delay", delay)
	}

	err := retry.Do(ctx, policy, func() error {
		err := c.session(ctx)
		if errors.IsUnrecoverable(err) {
			return retry.NonRetryable(err)
		}
		return err
	})

	var stop *retry.NonRetryableError
	if stderrors.As(err, &stop) {
		c.logger.Error("Collector stopped", "error", stop.Err)
		return stop.Err
	}

	if ctx.Err() != nil {
		c.logger.Info("Collector stopped")
		return nil
	}

	return err
}

// session dials the instrument and reads lines until the connection fails.
// It always returns a non-nil error.
func (c *Collector) session(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sessionID := uuid.NewString()
	logger := c.logger.With("session", sessionID)

	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Address())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrNoConnection, err),
			"Collector", "session", "dial instrument")
	}
	defer conn.Close()

	// unblock the pending read on shutdown
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	c.sessionLogger.Store(logger)
	c.sessions.Add(1)
	c.setConnected(true)
	logger.Info("Connected to instrument", "local_address", conn.LocalAddr().String())
	defer c.setConnected(false)

	// a full buffer without a terminator means the line is too long
	reader := bufio.NewReaderSize(conn, c.config.MaxLineLength)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.config.MessagePeriod)); err != nil {
			return errors.WrapTransient(err, "Collector", "session", "set read deadline")
		}

		data, err := reader.ReadSlice('\n')
		if err != nil {
			return c.readFailed(ctx, logger, data, err)
		}

		if err := c.OnData(data); err != nil {
			if errors.IsTransient(err) {
				logger.Warn("Closing connection", "error", err)
			}
			return err
		}
	}
}

// readFailed turns a failed read into the error that ends the session
func (c *Collector) readFailed(ctx context.Context, logger *slog.Logger, data []byte, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if stderrors.Is(err, bufio.ErrBufferFull) {
		c.dropped()
		logger.Warn("Line exceeds maximum length, closing connection", "max_bytes", c.config.MaxLineLength)
		return errors.WrapTransient(fmt.Errorf("%w: no terminator within %d bytes",
			errors.ErrLineTooLong, c.config.MaxLineLength), "Collector", "session", "read line")
	}

	if len(data) > 0 {
		logger.Warn("Discarding incomplete line", "bytes", len(data))
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		logger.Warn("No data received within message period", "message_period", c.config.MessagePeriod)
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrConnectionTimeout, err),
			"Collector", "session", "read line")
	}

	logger.Warn("Connection lost", "error", err)
	return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrConnectionLost, err),
		"Collector", "session", "read line")
}

// OnData handles one received line. The trailing "\n" and a "\r" before it
// are removed, the rest is decoded as UTF-8 and passed to the sink unchanged.
//
// Lines the sink rejects as corrupted are logged and dropped, and OnData
// returns nil. Data that is not valid UTF-8 returns a transient error so the
// caller reconnects. Any other sink error is returned as unrecoverable.
func (c *Collector) OnData(data []byte) error {
	logger := c.sessionLogger.Load()

	c.bytesReceived.Add(int64(len(data)))
	c.lastActivity.Store(time.Now().UnixNano())
	if c.metrics != nil {
		c.metrics.bytesReceived.Add(float64(len(data)))
	}

	raw := trimTerminator(data)
	if !utf8.Valid(raw) {
		c.dropped()
		logger.Warn("Received data is not valid text", "bytes", len(data))
		return errors.WrapTransient(errors.ErrDecode, "Collector", "OnData", "decode line")
	}

	line := string(raw)
	c.linesReceived.Add(1)
	if c.metrics != nil {
		c.metrics.linesReceived.Inc()
	}
	logger.Debug("Received line", "line", line)

	err := c.sink.Process(line)
	if err == nil {
		return nil
	}

	if errors.Classify(err) == errors.ErrorCorrupted {
		c.dropped()
		logger.Warn("Dropping corrupted line", "error", err, "line", line)
		return nil
	}

	// anything else the sink reports, transient or unknown, stops collection
	if !errors.IsUnrecoverable(err) {
		err = errors.WrapUnrecoverable(err, "Collector", "OnData", "process line")
	}
	logger.Error("Failed to process line", "error", err)
	return err
}

func trimTerminator(data []byte) []byte {
	data = bytes.TrimSuffix(data, []byte("\n"))
	return bytes.TrimSuffix(data, []byte("\r"))
}

func (c *Collector) dropped() {
	c.linesDropped.Add(1)
	if c.metrics != nil {
		c.metrics.linesDropped.Inc()
	}
}

func (c *Collector) setConnected(connected bool) {
	c.connected.Store(connected)
	if c.metrics != nil {
		if connected {
			c.metrics.connected.Set(1)
		} else {
			c.metrics.connected.Set(0)
		}
	}
	c.publishHealth()
}

func (c *Collector) publishHealth() {
	if c.monitor != nil {
		c.monitor.Update(componentName, c.Health())
	}
}

// Connected reports whether a connection to the instrument is open
func (c *Collector) Connected() bool {
	return c.connected.Load()
}

// Health reports healthy while connected and degraded otherwise
func (c *Collector) Health() health.Status {
	var status health.Status
	switch {
	case c.connected.Load():
		status = health.NewHealthy(componentName, "Connected to "+c.config.Address())
	case c.sessions.Load() == 0:
		status = health.NewDegraded(componentName, "Not yet connected to "+c.config.Address())
	default:
		status = health.NewDegraded(componentName, "Reconnecting to "+c.config.Address())
	}

	metrics := &health.Metrics{
		Uptime:         time.Since(c.startTime),
		ErrorCount:     int(c.linesDropped.Load()),
		LinesProcessed: c.linesReceived.Load(),
	}
	if last := c.lastActivity.Load(); last != 0 {
		metrics.LastActivity = time.Unix(0, last)
	}

	return status.WithMetrics(metrics)
}

// Stats returns the number of lines received and dropped and bytes received
func (c *Collector) Stats() (received, dropped, bytesReceived int64) {
	return c.linesReceived.Load(), c.linesDropped.Load(), c.bytesReceived.Load()
}
