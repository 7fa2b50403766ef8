package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/prometheus/client_golang/prometheus"

	"herald/internal/networks"
	"herald/internal/store"
	"herald/pkg/kafka"
	"herald/pkg/logging"
	"herald/pkg/models"
)

// DLQProducer is the slice of the Kafka producer the worker needs for dead
// lettering.
type DLQProducer interface {
	ProduceMessage(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// Config controls the worker's retry behavior.
type Config struct {
	// MaxRetries bounds transient-failure retries per job. The first call is
	// not counted, so a job makes at most MaxRetries+1 publish calls.
	MaxRetries int

	// RetryDelay is the fixed wait between retries.
	RetryDelay time.Duration

	// DLQTopic receives jobs whose attempt ended failed.
	DLQTopic string

	// ConsumerName tags DLQ payloads with the worker that gave up.
	ConsumerName string
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		RetryDelay:   60 * time.Second,
		DLQTopic:     "publish-jobs-dlq",
		ConsumerName: "herald-worker",
	}
}

// Worker consumes publish jobs and drives publication attempts to a terminal
// state. Each job is one (attempt, network) pair; transient failures are
// retried in-process with the retry count persisted, permanent failures and
// exhausted retries end the attempt as failed and dead-letter the job.
type Worker struct {
	store    *store.Store
	registry *networks.Registry
	producer DLQProducer
	cfg      Config
	logger   logging.Logger

	attempts *prometheus.CounterVec
	retries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func New(st *store.Store, registry *networks.Registry, producer DLQProducer, cfg Config, logger logging.Logger) *Worker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 60 * time.Second
	}
	return &Worker{store: st, registry: registry, producer: producer, cfg: cfg, logger: logger}
}

// SetMetrics wires the publication counters. Optional; nil metrics are skipped.
func (w *Worker) SetMetrics(attempts, retries *prometheus.CounterVec, duration *prometheus.HistogramVec) {
	w.attempts = attempts
	w.retries = retries
	w.duration = duration
}

// HandleJob is the Kafka handler for the publish-jobs topic. A returned error
// blocks the partition so the job is redelivered; malformed payloads and
// duplicate deliveries return nil so their offsets commit.
func (w *Worker) HandleJob(ctx context.Context, msg kafka.Message) error {
	var job kafka.PublishJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		w.logger.WithFields(map[string]interface{}{
			"topic":  msg.Topic,
			"offset": msg.Offset,
			"error":  err.Error(),
		}).Error("Dropping malformed publish job")
		return nil
	}

	log := w.logger.WithFields(map[string]interface{}{
		"job_id":     job.JobID,
		"attempt_id": job.AttemptID,
		"network":    job.Network,
	})

	attempt, err := w.store.GetAttempt(ctx, job.AttemptID)
	if err == models.ErrNotFound {
		log.Warn("Publish job references a deleted attempt, dropping")
		return nil
	}
	if err != nil {
		return err
	}

	// The dispatcher moves attempts to processing at enqueue time. At-least-
	// once delivery means a job can arrive for an attempt that already
	// reached a terminal state (redelivery of finished work) or was rolled
	// back; both are no-ops.
	if attempt.Status != models.AttemptProcessing {
		log.WithField("status", attempt.Status).Info("Attempt not in flight, skipping delivery")
		return nil
	}

	w.execute(ctx, job, attempt.ContentItemID, log)
	return nil
}

// execute runs the publish with bounded retry and finalizes the attempt.
func (w *Worker) execute(ctx context.Context, job kafka.PublishJob, contentID string, log logging.Entry) {
	start := time.Now()
	result, retryCount, err := w.publishWithRetry(ctx, job)

	if w.duration != nil {
		w.duration.WithLabelValues(job.Network).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		w.finalizeFailure(ctx, job, retryCount, err, log)
	} else {
		w.finalizeSuccess(ctx, job, result, log)
	}

	if _, recErr := w.store.RecomputeContentStatus(ctx, contentID); recErr != nil {
		log.WithField("error", recErr.Error()).Error("Failed to recompute content status")
	}
}

// publishWithRetry makes the network call under a fixed-delay retry policy.
// Only transient failures are retried; every retry persists the counter so it
// survives a worker restart.
func (w *Worker) publishWithRetry(ctx context.Context, job kafka.PublishJob) (*networks.PublishResult, int, error) {
	publisher, err := w.registry.Get(models.Network(job.Network))
	if err != nil {
		return nil, 0, networks.NewPermanentError(models.Network(job.Network), 0, err.Error())
	}

	retryCount := 0
	policy := retrypolicy.NewBuilder[*networks.PublishResult]().
		HandleIf(func(_ *networks.PublishResult, err error) bool {
			return err != nil && networks.IsTransient(err)
		}).
		WithDelay(w.cfg.RetryDelay).
		WithMaxRetries(w.cfg.MaxRetries).
		OnRetry(func(e failsafe.ExecutionEvent[*networks.PublishResult]) {
			msg := ""
			if lastErr := e.LastError(); lastErr != nil {
				msg = lastErr.Error()
			}
			count, dbErr := w.store.IncrementRetryCount(ctx, job.AttemptID)
			if dbErr != nil {
				w.logger.WithFields(map[string]interface{}{
					"attempt_id": job.AttemptID,
					"error":      dbErr.Error(),
				}).Error("Failed to persist retry count")
				retryCount++
			} else {
				retryCount = count
			}
			if w.retries != nil {
				w.retries.WithLabelValues(job.Network).Inc()
			}
			w.logger.WithFields(map[string]interface{}{
				"attempt_id":  job.AttemptID,
				"network":     job.Network,
				"retry_count": retryCount,
				"error":       msg,
			}).Warn("Retrying publish after transient failure")
		}).
		Build()

	result, err := failsafe.Get(func() (*networks.PublishResult, error) {
		return publisher.Publish(ctx, networks.PublishInput{
			Content:  job.Content,
			ImageURL: job.ImageURL,
		})
	}, policy)

	return result, retryCount, err
}

func (w *Worker) finalizeSuccess(ctx context.Context, job kafka.PublishJob, result *networks.PublishResult, log logging.Entry) {
	metadata := result.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	if result.PostID != "" {
		metadata["post_id"] = result.PostID
	}

	applied, err := w.store.MarkAttemptPublished(ctx, job.AttemptID, metadata)
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to mark attempt published")
		return
	}
	if !applied {
		log.Warn("Attempt left processing before completion could be recorded")
		return
	}

	if w.attempts != nil {
		w.attempts.WithLabelValues(job.Network, "published").Inc()
	}
	log.WithField("post_id", result.PostID).Info("Publication succeeded")
}

func (w *Worker) finalizeFailure(ctx context.Context, job kafka.PublishJob, retryCount int, pubErr error, log logging.Entry) {
	applied, err := w.store.MarkAttemptFailed(ctx, job.AttemptID, models.AttemptProcessing, pubErr.Error())
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to mark attempt failed")
		return
	}
	if !applied {
		log.Warn("Attempt left processing before failure could be recorded")
		return
	}

	if w.attempts != nil {
		w.attempts.WithLabelValues(job.Network, "failed").Inc()
	}
	log.WithFields(map[string]interface{}{
		"retry_count": retryCount,
		"error":       pubErr.Error(),
	}).Error("Publication failed")

	w.deadLetter(ctx, job, retryCount, pubErr, log)
}

// deadLetter parks the exhausted job for offline inspection. DLQ failures are
// logged, not propagated: the attempt is already terminal in the database.
func (w *Worker) deadLetter(ctx context.Context, job kafka.PublishJob, retryCount int, pubErr error, log logging.Entry) {
	if w.producer == nil || w.cfg.DLQTopic == "" {
		return
	}

	payload, err := kafka.EncodeDLQJob(job, pubErr, retryCount, w.cfg.ConsumerName)
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to encode DLQ payload")
		return
	}

	headers := map[string]string{
		"job_id":  job.JobID,
		"network": job.Network,
	}
	if err := w.producer.ProduceMessage(ctx, w.cfg.DLQTopic, []byte(job.AttemptID), payload, headers); err != nil {
		log.WithField("error", err.Error()).Error("Failed to produce DLQ message")
	}
}
