// Package worker drains the audit outbox table into Kafka. Rows are claimed
// with FOR UPDATE SKIP LOCKED so multiple replicas never double-publish a
// batch, and a row is deleted only after the broker acknowledges it, giving
// at-least-once delivery.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = time.Second
	maxBackoff          = 30 * time.Second
)

// Worker polls the outbox and publishes claimed rows to a Kafka topic.
type Worker struct {
	db     *sql.DB
	client *kgo.Client
	topic  string
	logger *slog.Logger

	batchSize    int
	pollInterval time.Duration

	metrics Metrics
}

// Metrics receives publish outcomes. A nil sink is replaced with a no-op.
type Metrics interface {
	ObservePublished(count int)
	ObservePublishError()
	ObserveOutboxLag(pending int)
}

type noopMetrics struct{}

func (noopMetrics) ObservePublished(int) {}
func (noopMetrics) ObservePublishError() {}
func (noopMetrics) ObserveOutboxLag(int) {}

type Option func(*Worker)

func WithBatchSize(n int) Option {
	return func(w *Worker) { w.batchSize = n }
}

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.pollInterval = d }
}

func WithMetrics(m Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func New(db *sql.DB, client *kgo.Client, topic string, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		db:           db,
		client:       client,
		topic:        topic,
		logger:       logger,
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
		metrics:      noopMetrics{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// EnsureTopic creates the audit topic if the broker does not have it yet.
func (w *Worker) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(w.client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, w.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", w.topic, err)
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

// Run drains the outbox until the context is cancelled. Publish failures back
// off exponentially; rows stay in the outbox until the broker acknowledges
// them.
func (w *Worker) Run(ctx context.Context) error {
	backoff := w.pollInterval
	for {
		published, err := w.drainBatch(ctx)
		switch {
		case err != nil:
			w.metrics.ObservePublishError()
			w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			backoff = min(backoff*2, maxBackoff)
		case published == 0:
			backoff = w.pollInterval
		default:
			backoff = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

type outboxRow struct {
	id          string
	aggregateID string
	eventType   string
	payload     []byte
}

// drainBatch claims one batch, publishes it, and deletes the acknowledged
// rows inside the claiming transaction.
func (w *Worker) drainBatch(ctx context.Context) (int, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload
		FROM outbox
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim outbox rows: %w", err)
	}

	var batch []outboxRow
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.id, &row.aggregateID, &row.eventType, &row.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate outbox rows: %w", err)
	}
	rows.Close()

	if len(batch) == 0 {
		return 0, nil
	}

	records := make([]*kgo.Record, 0, len(batch))
	for _, row := range batch {
		records = append(records, &kgo.Record{
			Topic: w.topic,
			// Keyed by document so one document's trail stays ordered
			// within a partition.
			Key:   []byte(row.aggregateID),
			Value: row.payload,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(row.eventType)},
			},
		})
	}

	if err := w.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return 0, fmt.Errorf("produce audit batch: %w", err)
	}

	ids := make([]string, 0, len(batch))
	for _, row := range batch {
		ids = append(ids, row.id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM outbox WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return 0, fmt.Errorf("delete published rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}

	w.metrics.ObservePublished(len(batch))
	w.reportLag(ctx)
	return len(batch), nil
}

func (w *Worker) reportLag(ctx context.Context) {
	var pending int
	if err := w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&pending); err != nil {
		return
	}
	w.metrics.ObserveOutboxLag(pending)
}
