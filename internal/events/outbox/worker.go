package outbox

//go:generate mockgen -source=worker.go -destination=mocks/mocks.go -package=mocks Publisher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"visitorbook/pkg/platform/circuit"
)

// Publisher delivers one outbox entry downstream.
type Publisher interface {
	Publish(ctx context.Context, entry Entry) error
}

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// Metrics tracks relay progress.
type Metrics struct {
	Published      prometheus.Counter
	PublishErrors  prometheus.Counter
	BatchLatency   prometheus.Histogram
	LastBatchCount prometheus.Gauge
}

// NewMetrics registers the outbox metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "visitorbook_outbox_published_total",
			Help: "Total outbox entries relayed downstream",
		}),
		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "visitorbook_outbox_publish_errors_total",
			Help: "Total failed outbox publish attempts",
		}),
		BatchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "visitorbook_outbox_batch_duration_seconds",
			Help:    "Duration of outbox relay batches",
			Buckets: prometheus.DefBuckets,
		}),
		LastBatchCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "visitorbook_outbox_last_batch_size",
			Help: "Number of entries picked up by the last relay batch",
		}),
	}
}

// Worker polls the store and relays pending entries in order. An entry that
// fails to publish stops the batch, so later entries never overtake it. While
// the publisher circuit is open each batch probes with a single entry.
type Worker struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics
	breaker   *circuit.Breaker
	now       func() time.Time
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) WorkerOption {
	return func(w *Worker) {
		if b != nil {
			w.breaker = b
		}
	}
}

func NewWorker(store Store, publisher Publisher, opts ...WorkerOption) (*Worker, error) {
	if store == nil {
		return nil, errors.New("outbox store is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	w := &Worker{
		store:     store,
		publisher: publisher,
		interval:  defaultPollInterval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
		breaker:   circuit.New("outbox-publisher"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run relays until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
			w.logger.WarnContext(ctx, "outbox relay batch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessBatch relays one batch and returns how many entries were published.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	start := w.now()
	limit := w.batchSize
	if w.breaker.IsOpen() {
		limit = 1
	}
	entries, err := w.store.Pending(ctx, limit)
	if err != nil {
		return 0, err
	}
	if w.metrics != nil {
		w.metrics.LastBatchCount.Set(float64(len(entries)))
	}
	if len(entries) == 0 {
		return 0, nil
	}

	published := make([]uuid.UUID, 0, len(entries))
	var publishErr error
	for _, entry := range entries {
		if err := w.publisher.Publish(ctx, entry); err != nil {
			if w.metrics != nil {
				w.metrics.PublishErrors.Inc()
			}
			w.logger.WarnContext(ctx, "failed to publish outbox entry",
				"entry_id", entry.ID.String(),
				"event_type", entry.EventType,
				"error", err,
			)
			publishErr = err
			if _, change := w.breaker.RecordFailure(); change.Opened {
				w.logger.WarnContext(ctx, "outbox publisher circuit opened", "breaker", w.breaker.Name())
			}
			break
		}
		if _, change := w.breaker.RecordSuccess(); change.Closed {
			w.logger.InfoContext(ctx, "outbox publisher circuit closed", "breaker", w.breaker.Name())
		}
		published = append(published, entry.ID)
	}

	if err := w.store.MarkPublished(ctx, published, w.now()); err != nil {
		return 0, err
	}
	if w.metrics != nil {
		w.metrics.Published.Add(float64(len(published)))
		w.metrics.BatchLatency.Observe(time.Since(start).Seconds())
	}
	return len(published), publishErr
}
