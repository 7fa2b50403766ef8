package networks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"herald/pkg/config"
	"herald/pkg/models"
)

// tiktokTitleLimit is the platform's caption cutoff; longer text is truncated
// rather than rejected.
const tiktokTitleLimit = 150

// TikTokPublisher delegates to a companion upload backend that owns the
// TikTok OAuth flow and chunked video upload. Video is mandatory.
type TikTokPublisher struct {
	client *http.Client
	apiURL string
}

func NewTikTokPublisher() *TikTokPublisher {
	return &TikTokPublisher{
		client: newHTTPClient(),
		apiURL: config.GetEnv("TIKTOK_API_URL", "http://localhost:8001"),
	}
}

func (p *TikTokPublisher) Network() models.Network {
	return models.NetworkTikTok
}

func (p *TikTokPublisher) Publish(ctx context.Context, input PublishInput) (*PublishResult, error) {
	if input.ImageURL == "" {
		return nil, NewPermanentError(models.NetworkTikTok, 0, "tiktok requires a video")
	}

	title := input.Content
	if len([]rune(title)) > tiktokTitleLimit {
		title = string([]rune(title)[:tiktokTitleLimit])
	}

	payload, err := json.Marshal(map[string]interface{}{
		"title":           title,
		"video_url":       input.ImageURL,
		"privacy_level":   "PUBLIC_TO_EVERYONE",
		"disable_comment": false,
	})
	if err != nil {
		return nil, NewPermanentError(models.NetworkTikTok, 0, fmt.Sprintf("marshal payload: %v", err))
	}

	endpoint := strings.TrimRight(p.apiURL, "/") + "/api/tiktok/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, NewPermanentError(models.NetworkTikTok, 0, fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, NewTransientError(models.NetworkTikTok, 0, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode < http.StatusMultipleChoices {
		return nil, NewPermanentError(models.NetworkTikTok, resp.StatusCode, fmt.Sprintf("decode response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &PublishError{
			Network:        models.NetworkTikTok,
			StatusCode:     resp.StatusCode,
			Message:        apiErrorMessage(body, resp.Status),
			Classification: ClassifyStatus(resp.StatusCode),
		}
	}

	postID, _ := body["publish_id"].(string)
	return &PublishResult{
		PostID: postID,
		Metadata: map[string]interface{}{
			"platform": "tiktok",
			"response": body,
		},
	}, nil
}
