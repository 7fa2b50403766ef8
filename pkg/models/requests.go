package models

// CreateContentRequest creates a new content item.
type CreateContentRequest struct {
	Title string `json:"title" binding:"required"`
	Body  string `json:"body" binding:"required"`
}

// AdaptRequest asks for per-network adaptation of a content item. The
// network list must be non-empty.
type AdaptRequest struct {
	Networks    []string `json:"networks"`
	PreviewOnly bool     `json:"preview_only"`
}

// PublishRequest triggers the asynchronous fan-out of all pending attempts.
type PublishRequest struct {
	ImageURL string `json:"image_url,omitempty"`
}

// NetworkAdaptation is the generated adaptation for one network. Error is set
// when generation failed for that network; the other networks are unaffected.
type NetworkAdaptation struct {
	Network         Network  `json:"network"`
	AdaptedText     string   `json:"adapted_text"`
	Hashtags        []string `json:"hashtags,omitempty"`
	ImageSuggestion string   `json:"image_suggestion,omitempty"`
	CharacterCount  int      `json:"character_count"`
	Tone            string   `json:"tone,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// AdaptResponse is returned by the adapt operation. Attempts is only set in
// commit mode; Previews carries the transient per-network results.
type AdaptResponse struct {
	ContentItemID string               `json:"content_item_id"`
	PreviewOnly   bool                 `json:"preview_only"`
	Previews      []NetworkAdaptation  `json:"previews"`
	Attempts      []PublicationAttempt `json:"attempts,omitempty"`
}

// DispatchResult acknowledges one enqueued unit of work. JobID is the opaque
// work-unit handle for traceability.
type DispatchResult struct {
	AttemptID string  `json:"attempt_id"`
	Network   Network `json:"network"`
	JobID     string  `json:"job_id,omitempty"`
	Status    string  `json:"status"`
	Error     string  `json:"error,omitempty"`
}

// PublishResponse is returned by the publish operation. The caller learns only
// that work was enqueued; outcomes are observable through the status surface.
type PublishResponse struct {
	ContentItemID     string           `json:"content_item_id"`
	TotalPublications int              `json:"total_publications"`
	Results           []DispatchResult `json:"results"`
}

// RetryResponse acknowledges the re-enqueue of a failed attempt.
type RetryResponse struct {
	AttemptID string  `json:"attempt_id"`
	Network   Network `json:"network"`
	JobID     string  `json:"job_id"`
	Status    string  `json:"status"`
}
