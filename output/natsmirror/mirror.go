package natsmirror

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/aethalometer/errors"
	"github.com/c360/aethalometer/health"
	"github.com/c360/aethalometer/metric"
)

const componentName = "mirror"

// defaultPublishTimeout bounds a single publish
const defaultPublishTimeout = 2 * time.Second

// Sink stores a measurement line
type Sink interface {
	Process(line string) error
}

// Publisher sends data to a message subject
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Metrics holds Prometheus metrics for the mirror
type Metrics struct {
	published      prometheus.Counter
	publishFailed  prometheus.Counter
	publishLatency prometheus.Histogram
}

func newMetrics(registry metric.MetricsRegistrar) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	metrics := &Metrics{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aethalometer",
			Subsystem: "mirror",
			Name:      "published_total",
			Help:      "Stored lines published to NATS",
		}),
		publishFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aethalometer",
			Subsystem: "mirror",
			Name:      "publish_failures_total",
			Help:      "Stored lines that could not be published",
		}),
		publishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aethalometer",
			Subsystem: "mirror",
			Name:      "publish_duration_seconds",
			Help:      "Time to publish one line",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}

	if err := metric.Register(registry, componentName, map[string]prometheus.Collector{
		"published":        metrics.published,
		"publish_failures": metrics.publishFailed,
		"publish_latency":  metrics.publishLatency,
	}); err != nil {
		return nil, err
	}

	return metrics, nil
}

// MirrorDeps holds the runtime dependencies of a Mirror
type MirrorDeps struct {
	Sink            Sink
	Publisher       Publisher
	Subject         string
	PublishTimeout  time.Duration           // defaults to 2s
	Logger          *slog.Logger            // optional
	MetricsRegistry metric.MetricsRegistrar // optional
	HealthMonitor   *health.Monitor         // optional
}

// Mirror stores each line with its Sink and then publishes it.
//
// Publishing is best effort: a failed publish is logged and counted but never
// reported to the caller, so the stored file stays the source of truth.
type Mirror struct {
	sink      Sink
	publisher Publisher
	subject   string
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *Metrics
	monitor   *health.Monitor

	published atomic.Int64
	failed    atomic.Int64
	lastErr   atomic.Pointer[string]
}

// NewMirror creates a mirror publishing to deps.Subject
func NewMirror(deps MirrorDeps) (*Mirror, error) {
	if deps.Sink == nil || deps.Publisher == nil {
		return nil, errors.Wrap(fmt.Errorf("%w: sink and publisher", errors.ErrMissingConfig),
			"Mirror", "NewMirror", "dependency validation")
	}
	if deps.Subject == "" {
		return nil, errors.Wrap(fmt.Errorf("%w: subject", errors.ErrMissingConfig),
			"Mirror", "NewMirror", "subject validation")
	}

	timeout := deps.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "Mirror", "NewMirror", "register metrics")
	}

	m := &Mirror{
		sink:      deps.Sink,
		publisher: deps.Publisher,
		subject:   deps.Subject,
		timeout:   timeout,
		logger:    logger.With("component", componentName, "subject", deps.Subject),
		metrics:   metrics,
		monitor:   deps.HealthMonitor,
	}
	m.publishHealth()

	return m, nil
}

// Process stores line and, once stored, publishes it. Errors from the sink
// are returned unchanged and nothing is published for that line.
func (m *Mirror) Process(line string) error {
	if err := m.sink.Process(line); err != nil {
		return err
	}
	if line == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	start := time.Now()
	err := m.publisher.Publish(ctx, m.subject, []byte(line))
	if m.metrics != nil {
		m.metrics.publishLatency.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		m.failed.Add(1)
		msg := err.Error()
		m.lastErr.Store(&msg)
		if m.metrics != nil {
			m.metrics.publishFailed.Inc()
		}
		m.logger.Warn("Failed to publish line", "error", err)
		m.publishHealth()
		return nil
	}

	m.published.Add(1)
	m.lastErr.Store(nil)
	if m.metrics != nil {
		m.metrics.published.Inc()
	}
	m.publishHealth()
	return nil
}

func (m *Mirror) publishHealth() {
	if m.monitor != nil {
		m.monitor.Update(componentName, m.Health())
	}
}

// Stats returns the number of published and failed lines
func (m *Mirror) Stats() (published, failed int64) {
	return m.published.Load(), m.failed.Load()
}

// Health reports degraded while the last publish failed
func (m *Mirror) Health() health.Status {
	status := health.NewHealthy(componentName, "Publishing to "+m.subject)
	if msg := m.lastErr.Load(); msg != nil {
		status = health.NewDegraded(componentName, *msg)
	}
	return status.WithMetrics(&health.Metrics{
		ErrorCount:     int(m.failed.Load()),
		LinesProcessed: m.published.Load(),
	})
}
