package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"herald/internal/store"
	"herald/pkg/kafka"
	"herald/pkg/logging"
	"herald/pkg/models"
)

// Enqueuer is the slice of the Kafka producer the coordinator needs.
type Enqueuer interface {
	EnqueuePublishJob(ctx context.Context, topic string, job kafka.PublishJob) error
}

// Coordinator turns pending publication attempts into queued work units. The
// coordinator owns the pending -> processing transition: an attempt goes in
// flight at enqueue time, so status reads reflect the dispatch immediately,
// before any worker picks the job up.
type Coordinator struct {
	store    *store.Store
	producer Enqueuer
	topic    string
	logger   logging.Logger
}

func NewCoordinator(st *store.Store, producer Enqueuer, topic string, logger logging.Logger) *Coordinator {
	return &Coordinator{store: st, producer: producer, topic: topic, logger: logger}
}

// Publish enqueues every pending attempt of a content item. Attempts already
// past pending are not selected, which makes a repeated publish call an
// idempotent no-op; a content item with nothing pending yields an empty
// result list. Each attempt is dispatched independently: one enqueue failure
// does not stop the rest of the fan-out.
func (c *Coordinator) Publish(ctx context.Context, contentID, imageURL string) (*models.PublishResponse, error) {
	item, err := c.store.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}

	attempts, err := c.store.ListAttempts(ctx, contentID)
	if err != nil {
		return nil, err
	}

	response := &models.PublishResponse{
		ContentItemID:     item.ID,
		TotalPublications: len(attempts),
		Results:           []models.DispatchResult{},
	}

	enqueued := 0
	for _, attempt := range attempts {
		if attempt.Status != models.AttemptPending {
			continue
		}
		result := c.dispatchAttempt(ctx, attempt, imageURL, false)
		if result.Status == "queued" {
			enqueued++
		}
		response.Results = append(response.Results, result)
	}

	if enqueued > 0 {
		if _, err := c.store.RecomputeContentStatus(ctx, contentID); err != nil {
			c.logger.WithFields(map[string]interface{}{
				"content_item_id": contentID,
				"error":           err.Error(),
			}).Error("Failed to recompute content status after dispatch")
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"content_item_id": contentID,
		"attempts":        len(attempts),
		"enqueued":        enqueued,
	}).Info("Publication dispatched")

	return response, nil
}

// Retry re-enqueues a single failed attempt. The attempt moves straight back
// to processing with a fresh retry budget; its previous error message stays
// visible until the new execution reaches a terminal state.
func (c *Coordinator) Retry(ctx context.Context, attemptID string) (*models.RetryResponse, error) {
	attempt, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	reset, err := c.store.ResetAttemptForRetry(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !reset {
		return nil, fmt.Errorf("%w: attempt is %s, only failed attempts can be retried", models.ErrConflict, attempt.Status)
	}

	imageURL, _ := attempt.Metadata["image_url"].(string)
	job := c.buildJob(*attempt, imageURL, true)

	if err := c.producer.EnqueuePublishJob(ctx, c.topic, job); err != nil {
		// put the attempt back where we found it
		if _, rbErr := c.store.TransitionAttempt(ctx, attemptID, models.AttemptProcessing, models.AttemptFailed); rbErr != nil {
			c.logger.WithFields(map[string]interface{}{
				"attempt_id": attemptID,
				"error":      rbErr.Error(),
			}).Error("Failed to roll back attempt after retry enqueue failure")
		}
		return nil, fmt.Errorf("re-enqueue attempt %s: %w", attemptID, err)
	}

	c.stampJob(ctx, attemptID, job.JobID, imageURL)

	if _, err := c.store.RecomputeContentStatus(ctx, attempt.ContentItemID); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"content_item_id": attempt.ContentItemID,
			"error":           err.Error(),
		}).Error("Failed to recompute content status after retry")
	}

	return &models.RetryResponse{
		AttemptID: attempt.ID,
		Network:   attempt.Network,
		JobID:     job.JobID,
		Status:    "queued",
	}, nil
}

// dispatchAttempt moves one pending attempt in flight and enqueues its job.
// If the enqueue fails, the status transition is rolled back to pending so
// the attempt never sits in processing with no job behind it.
func (c *Coordinator) dispatchAttempt(ctx context.Context, attempt models.PublicationAttempt, imageURL string, retry bool) models.DispatchResult {
	result := models.DispatchResult{
		AttemptID: attempt.ID,
		Network:   attempt.Network,
	}

	claimed, err := c.store.TransitionAttempt(ctx, attempt.ID, models.AttemptPending, models.AttemptProcessing)
	if err != nil {
		result.Status = "error"
		result.Error = err.Error()
		return result
	}
	if !claimed {
		// a concurrent publish call got here first
		result.Status = "skipped"
		result.Error = "attempt already dispatched"
		return result
	}

	job := c.buildJob(attempt, imageURL, retry)

	if err := c.producer.EnqueuePublishJob(ctx, c.topic, job); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"attempt_id": attempt.ID,
			"network":    attempt.Network,
			"error":      err.Error(),
		}).Error("Failed to enqueue publish job")

		if _, rbErr := c.store.TransitionAttempt(ctx, attempt.ID, models.AttemptProcessing, models.AttemptPending); rbErr != nil {
			c.logger.WithFields(map[string]interface{}{
				"attempt_id": attempt.ID,
				"error":      rbErr.Error(),
			}).Error("Failed to roll back attempt after enqueue failure")
		}

		result.Status = "error"
		result.Error = err.Error()
		return result
	}

	c.stampJob(ctx, attempt.ID, job.JobID, imageURL)

	result.JobID = job.JobID
	result.Status = "queued"
	return result
}

func (c *Coordinator) buildJob(attempt models.PublicationAttempt, imageURL string, retry bool) kafka.PublishJob {
	content := ""
	if attempt.AdaptedContent != nil {
		content = *attempt.AdaptedContent
	}
	return kafka.PublishJob{
		JobID:      uuid.New().String(),
		AttemptID:  attempt.ID,
		Network:    string(attempt.Network),
		Content:    content,
		ImageURL:   imageURL,
		Retry:      retry,
		EnqueuedAt: time.Now().UTC(),
	}
}

func (c *Coordinator) stampJob(ctx context.Context, attemptID, jobID, imageURL string) {
	if _, err := c.store.MarkAttemptQueued(ctx, attemptID, jobID, imageURL); err != nil {
		// job is already on the wire; losing the metadata stamp is not fatal
		c.logger.WithFields(map[string]interface{}{
			"attempt_id": attemptID,
			"job_id":     jobID,
			"error":      err.Error(),
		}).Warn("Failed to stamp job id on attempt")
	}
}
