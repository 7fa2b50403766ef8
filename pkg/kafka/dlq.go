package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// DLQPayload captures enough context to replay or inspect a publish job whose
// attempt exhausted its retries or failed permanently.
type DLQPayload struct {
	JobID      string    `json:"job_id"`
	AttemptID  string    `json:"attempt_id"`
	Network    string    `json:"network"`
	Content    string    `json:"content"`
	ImageURL   string    `json:"image_url,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	FailedAt   time.Time `json:"failed_at"`
	RetryCount int       `json:"retry_count"`
	Error      string    `json:"error"`
	Consumer   string    `json:"consumer"`
}

// EncodeDLQJob serializes a failed publish job into a DLQ-safe payload.
func EncodeDLQJob(job PublishJob, err error, retryCount int, consumer string) ([]byte, error) {
	payload := DLQPayload{
		JobID:      job.JobID,
		AttemptID:  job.AttemptID,
		Network:    job.Network,
		Content:    job.Content,
		ImageURL:   job.ImageURL,
		EnqueuedAt: job.EnqueuedAt,
		FailedAt:   time.Now().UTC(),
		RetryCount: retryCount,
		Consumer:   consumer,
	}

	if err != nil {
		payload.Error = err.Error()
	}

	b, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return nil, fmt.Errorf("marshal dlq payload: %w", marshalErr)
	}

	return b, nil
}
