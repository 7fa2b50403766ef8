package kafka

import "time"

// PublishJob is one independent unit of publication work: exactly one
// (attempt, network) pair. Delivery is at-least-once; workers must treat a
// duplicate job for an already-terminal attempt as a no-op.
type PublishJob struct {
	JobID      string    `json:"job_id"`
	AttemptID  string    `json:"attempt_id"`
	Network    string    `json:"network"`
	Content    string    `json:"content"`
	ImageURL   string    `json:"image_url,omitempty"`
	Retry      bool      `json:"retry,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
