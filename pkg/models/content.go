package models

import (
	"time"
)

// ContentStatus is the lifecycle status of a content item.
type ContentStatus string

const (
	ContentDraft      ContentStatus = "draft"
	ContentProcessing ContentStatus = "processing"
	ContentPublished  ContentStatus = "published"
	ContentFailed     ContentStatus = "failed"
)

// AttemptStatus is the lifecycle status of a publication attempt.
type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "pending"
	AttemptProcessing AttemptStatus = "processing"
	AttemptPublished  AttemptStatus = "published"
	AttemptFailed     AttemptStatus = "failed"
)

// Network identifies a target social network. The enumeration is closed.
type Network string

const (
	NetworkFacebook  Network = "facebook"
	NetworkInstagram Network = "instagram"
	NetworkLinkedIn  Network = "linkedin"
	NetworkTikTok    Network = "tiktok"
	NetworkWhatsApp  Network = "whatsapp"
)

// AllNetworks lists every supported network, in stable order.
var AllNetworks = []Network{
	NetworkFacebook,
	NetworkInstagram,
	NetworkLinkedIn,
	NetworkTikTok,
	NetworkWhatsApp,
}

// CharacterLimit returns the maximum adapted-text length for the network.
func (n Network) CharacterLimit() int {
	switch n {
	case NetworkFacebook:
		return 63206
	case NetworkInstagram:
		return 2200
	case NetworkLinkedIn:
		return 3000
	case NetworkTikTok:
		return 2200
	case NetworkWhatsApp:
		return 4096
	default:
		return 0
	}
}

// Valid reports whether the network is a member of the closed enumeration.
func (n Network) Valid() bool {
	switch n {
	case NetworkFacebook, NetworkInstagram, NetworkLinkedIn, NetworkTikTok, NetworkWhatsApp:
		return true
	default:
		return false
	}
}

// ContentItem is the source material to be adapted and published.
type ContentItem struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Body      string        `json:"body"`
	Status    ContentStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// PublicationAttempt is one network-specific publishing record owned by a
// content item.
type PublicationAttempt struct {
	ID             string                 `json:"id"`
	ContentItemID  string                 `json:"content_item_id"`
	Network        Network                `json:"network"`
	AdaptedContent *string                `json:"adapted_content"`
	Status         AttemptStatus          `json:"status"`
	RetryCount     int                    `json:"retry_count"`
	PublishedAt    *time.Time             `json:"published_at"`
	ErrorMessage   *string                `json:"error_message"`
	Metadata       map[string]interface{} `json:"metadata"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// AttemptCounts is the status multiset of a content item's attempts.
type AttemptCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Published  int `json:"published"`
	Failed     int `json:"failed"`
}

// Total returns the number of attempts counted.
func (c AttemptCounts) Total() int {
	return c.Pending + c.Processing + c.Published + c.Failed
}

// AggregateContentStatus derives a content item's status from its attempt
// counts. The content status is a deterministic function of the attempt
// multiset: in-flight attempts keep the item processing, at least one success
// makes it published, and it is failed only when every attempt failed. An
// item with no attempts keeps its current status.
func AggregateContentStatus(current ContentStatus, counts AttemptCounts) ContentStatus {
	if counts.Total() == 0 {
		return current
	}
	if counts.Pending > 0 || counts.Processing > 0 {
		return ContentProcessing
	}
	if counts.Published > 0 {
		return ContentPublished
	}
	return ContentFailed
}

// StatusSummary is the aggregated point-in-time view clients poll until all
// attempts are terminal.
type StatusSummary struct {
	ContentItemID     string               `json:"content_item_id"`
	ContentStatus     ContentStatus        `json:"content_status"`
	TotalPublications int                  `json:"total_publications"`
	ByStatus          AttemptCounts        `json:"by_status"`
	Attempts          []PublicationAttempt `json:"attempts"`
}

// Terminal reports whether no attempt remains pending or processing.
func (s StatusSummary) Terminal() bool {
	return s.ByStatus.Pending == 0 && s.ByStatus.Processing == 0
}
