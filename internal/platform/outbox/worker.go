package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"certledger/internal/platform/kafka/producer"
	"certledger/internal/platform/outbox/metrics"
)

// Producer is the subset of the Kafka producer the worker needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Worker polls the store and publishes pending entries.
type Worker struct {
	store        Store
	producer     Producer
	topic        string
	batchSize    int
	pollInterval time.Duration
	retention    time.Duration
	maintenance  time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WorkerOption configures the Worker.
type WorkerOption func(*Worker)

func WithTopic(topic string) WorkerOption {
	return func(w *Worker) {
		w.topic = topic
	}
}

// WithBatchSize sets the maximum number of entries fetched per poll.
func WithBatchSize(size int) WorkerOption {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithRetention deletes published entries older than d. Zero keeps them.
func WithRetention(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.retention = d
	}
}

// WithMaintenanceInterval sets how often pending depth is sampled and
// retention applied.
func WithMaintenanceInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.maintenance = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// NewWorker creates an outbox worker. Call Start to begin polling.
func NewWorker(store Store, prod Producer, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		store:        store,
		producer:     prod,
		topic:        "credential-events",
		batchSize:    100,
		pollInterval: 200 * time.Millisecond,
		maintenance:  30 * time.Second,
		logger:       slog.Default(),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the polling loop in a background goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *Worker) run() {
	defer w.wg.Done()

	poll := time.NewTicker(w.pollInterval)
	defer poll.Stop()
	maintain := time.NewTicker(w.maintenance)
	defer maintain.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case <-poll.C:
			w.poll(w.ctx)
		case <-maintain.C:
			w.maintain(w.ctx)
		}
	}
}

// poll publishes one batch and reports how many entries it published.
// Entries are published oldest first. Once an entry for an aggregate fails,
// later entries of that aggregate wait for the next poll so consumers keyed
// by aggregate never see events out of order.
func (w *Worker) poll(ctx context.Context) int {
	start := time.Now()

	entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("failed to fetch outbox entries", "error", err)
			w.incFailures()
		}
		return 0
	}
	if len(entries) == 0 {
		return 0
	}
	if w.metrics != nil {
		w.metrics.ObserveBatchSize(len(entries))
	}

	published := 0
	blocked := make(map[string]bool)
	for _, entry := range entries {
		if blocked[entry.AggregateID] {
			continue
		}
		if err := w.publishEntry(ctx, entry); err != nil {
			w.logger.Error("failed to publish outbox entry",
				"id", entry.ID,
				"aggregate_id", entry.AggregateID,
				"event_type", entry.EventType,
				"error", err,
			)
			w.incFailures()
			blocked[entry.AggregateID] = true
			continue
		}

		// A publish that is not marked will be re-published; consumers dedupe on event content.
		if err := w.store.MarkProcessed(ctx, entry.ID, time.Now().UTC()); err != nil {
			w.logger.Error("failed to mark outbox entry as processed", "id", entry.ID, "error", err)
			continue
		}
		published++
		if w.metrics != nil {
			w.metrics.IncPublished()
		}
	}

	if w.metrics != nil {
		w.metrics.ObservePollDuration(time.Since(start).Seconds())
	}
	return published
}

func (w *Worker) publishEntry(ctx context.Context, entry *Entry) error {
	start := time.Now()
	err := w.producer.Produce(ctx, &producer.Message{
		Topic: w.topic,
		Key:   []byte(entry.AggregateID),
		Value: entry.Payload,
		Headers: map[string]string{
			"aggregate_type": entry.AggregateType,
			"aggregate_id":   entry.AggregateID,
			"event_type":     entry.EventType,
			"outbox_id":      entry.ID.String(),
		},
	})
	if err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.ObservePublishDuration(time.Since(start).Seconds())
	}
	return nil
}

func (w *Worker) maintain(ctx context.Context) {
	if err := w.UpdateMetrics(ctx); err != nil && ctx.Err() == nil {
		w.logger.Warn("failed to sample outbox depth", "error", err)
	}
	if w.retention <= 0 {
		return
	}
	n, err := w.store.DeleteProcessedBefore(ctx, time.Now().Add(-w.retention))
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("failed to apply outbox retention", "error", err)
		}
		return
	}
	if n > 0 {
		w.logger.Debug("deleted published outbox entries", "count", n)
		if w.metrics != nil {
			w.metrics.AddDeleted(n)
		}
	}
}

// drain publishes what is left during shutdown, bounded by a short timeout.
// It stops at the first batch that makes no progress.
func (w *Worker) drain() {
	w.logger.Info("draining outbox worker")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for ctx.Err() == nil {
		if w.poll(ctx) == 0 {
			return
		}
	}
}

// Stop cancels polling, drains and waits for the loop to exit.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateMetrics samples the pending depth gauge.
func (w *Worker) UpdateMetrics(ctx context.Context) error {
	if w.metrics == nil {
		return nil
	}
	count, err := w.store.CountPending(ctx)
	if err != nil {
		return err
	}
	w.metrics.SetPendingDepth(count)
	return nil
}

func (w *Worker) incFailures() {
	if w.metrics != nil {
		w.metrics.IncPublishFailures()
	}
}
