package dailyfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/aethalometer/errors"
	"github.com/c360/aethalometer/health"
	"github.com/c360/aethalometer/metric"
)

const componentName = "storage"

// minFields is the smallest number of comma separated values in a valid line
const minFields = 3

// Metrics holds Prometheus metrics for the daily file writer
type Metrics struct {
	linesWritten  prometheus.Counter
	bytesWritten  prometheus.Counter
	linesRejected prometheus.Counter
	writeFailures prometheus.Counter
	lastWrite     prometheus.Gauge
}

// newMetrics creates and registers writer metrics, or returns nil without a registry
func newMetrics(registry metric.MetricsRegistrar) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	metrics := &Metrics{
		linesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aethalometer",
			Subsystem: "storage",
			Name:      "lines_written_total",
			Help:      "Lines appended to daily files",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aethalometer",
			Subsystem: "storage",
			Name:      "bytes_written_total",
			Help:      "Bytes appended to daily files, newlines included",
		}),
		linesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aethalometer",
			Subsystem: "storage",
			Name:      "lines_rejected_total",
			Help:      "Lines rejected as corrupted before writing",
		}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aethalometer",
			Subsystem: "storage",
			Name:      "write_failures_total",
			Help:      "Failed attempts to append to a daily file",
		}),
		lastWrite: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aethalometer",
			Subsystem: "storage",
			Name:      "last_write_timestamp",
			Help:      "Unix timestamp of the last successful append",
		}),
	}

	if err := metric.Register(registry, componentName, map[string]prometheus.Collector{
		"lines_written":  metrics.linesWritten,
		"bytes_written":  metrics.bytesWritten,
		"lines_rejected": metrics.linesRejected,
		"write_failures": metrics.writeFailures,
		"last_write":     metrics.lastWrite,
	}); err != nil {
		return nil, err
	}

	return metrics, nil
}

// WriterDeps holds the runtime dependencies of a Writer
type WriterDeps struct {
	Directory       string                  // existing directory holding the daily files
	Logger          *slog.Logger            // optional
	MetricsRegistry metric.MetricsRegistrar // optional
	HealthMonitor   *health.Monitor         // optional
}

// Writer appends measurement lines to one file per day.
//
// Process is not safe for concurrent use. A single collector drives it, and
// appends to the same file from several processes are not coordinated.
type Writer struct {
	directory string
	logger    *slog.Logger
	metrics   *Metrics
	monitor   *health.Monitor

	startTime    time.Time
	linesWritten atomic.Int64
	failures     atomic.Int64
	lastWrite    atomic.Int64 // unix nanoseconds
	lastErr      atomic.Pointer[string]
}

// NewWriter creates a writer for deps.Directory. The directory is expected to
// exist; NewWriter does not create it.
func NewWriter(deps WriterDeps) (*Writer, error) {
	if deps.Directory == "" {
		return nil, errors.Wrap(fmt.Errorf("%w: storage directory", errors.ErrMissingConfig),
			"Writer", "NewWriter", "config validation")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "Writer", "NewWriter", "register metrics")
	}

	w := &Writer{
		directory: deps.Directory,
		logger:    logger.With("component", componentName),
		metrics:   metrics,
		monitor:   deps.HealthMonitor,
		startTime: time.Now(),
	}
	w.publishHealth()

	return w, nil
}

// Process validates line, derives its daily file from the date in the first
// field and appends the unmodified line followed by a newline.
//
// An empty line is ignored. A line with fewer than three fields or an
// unparseable date returns a corrupted-data error and nothing is written.
// Failing to open or append to the file returns an unrecoverable error.
func (w *Writer) Process(line string) error {
	if line == "" {
		return nil
	}

	fields := strings.Split(line, ",")
	if len(fields) < minFields {
		w.rejected()
		return errors.WrapCorrupted(errors.ErrTooFewValues, "Writer", "Process", "split line")
	}

	name, err := Filename(strings.TrimSpace(fields[0]))
	if err != nil {
		w.rejected()
		return err
	}

	path := filepath.Join(w.directory, name)
	n, err := appendLine(path, line)
	if err != nil {
		w.failed(err)
		return errors.WrapUnrecoverable(fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err),
			"Writer", "Process", fmt.Sprintf("append to %s", path))
	}

	w.linesWritten.Add(1)
	w.lastWrite.Store(time.Now().UnixNano())
	if w.metrics != nil {
		w.metrics.linesWritten.Inc()
		w.metrics.bytesWritten.Add(float64(n))
		w.metrics.lastWrite.SetToCurrentTime()
	}

	w.logger.Info("Data stored", "file", name)
	w.logger.Debug("Stored line", "file", name, "line", line)

	return nil
}

// appendLine writes line and a newline to the end of path with a single write,
// creating the file if needed.
func appendLine(path, line string) (int, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}

	n, err := f.WriteString(line + "\n")
	if err != nil {
		_ = f.Close()
		return n, err
	}

	return n, f.Close()
}

func (w *Writer) rejected() {
	if w.metrics != nil {
		w.metrics.linesRejected.Inc()
	}
}

func (w *Writer) failed(err error) {
	msg := err.Error()
	w.lastErr.Store(&msg)
	w.failures.Add(1)
	if w.metrics != nil {
		w.metrics.writeFailures.Inc()
	}
	w.publishHealth()
}

func (w *Writer) publishHealth() {
	if w.monitor != nil {
		w.monitor.Update(componentName, w.Health())
	}
}

// Health reports unhealthy once an append has failed
func (w *Writer) Health() health.Status {
	var status health.Status
	if msg := w.lastErr.Load(); msg != nil {
		status = health.NewUnhealthy(componentName, *msg)
	} else {
		status = health.NewHealthy(componentName, "Writing to "+w.directory)
	}

	metrics := &health.Metrics{
		Uptime:         time.Since(w.startTime),
		ErrorCount:     int(w.failures.Load()),
		LinesProcessed: w.linesWritten.Load(),
	}
	if last := w.lastWrite.Load(); last != 0 {
		metrics.LastActivity = time.Unix(0, last)
	}

	return status.WithMetrics(metrics)
}
