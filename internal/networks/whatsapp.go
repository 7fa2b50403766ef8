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

// WhatsAppPublisher posts stories through the Whapi gateway. Media is
// mandatory.
type WhatsAppPublisher struct {
	client *http.Client
	apiURL string
	token  string
}

func NewWhatsAppPublisher() *WhatsAppPublisher {
	return &WhatsAppPublisher{
		client: newHTTPClient(),
		apiURL: config.GetEnv("WHATSAPP_API_URL", "https://gate.whapi.cloud"),
		token:  config.GetEnv("WHATSAPP_TOKEN", ""),
	}
}

func (p *WhatsAppPublisher) Network() models.Network {
	return models.NetworkWhatsApp
}

func (p *WhatsAppPublisher) Publish(ctx context.Context, input PublishInput) (*PublishResult, error) {
	if p.token == "" {
		return nil, NewPermanentError(models.NetworkWhatsApp, 0, "token not configured")
	}
	if input.ImageURL == "" {
		return nil, NewPermanentError(models.NetworkWhatsApp, 0, "whatsapp requires an image or video")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"media":   input.ImageURL,
		"caption": input.Content,
	})
	if err != nil {
		return nil, NewPermanentError(models.NetworkWhatsApp, 0, fmt.Sprintf("marshal payload: %v", err))
	}

	endpoint := strings.TrimRight(p.apiURL, "/") + "/stories/send/media"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, NewPermanentError(models.NetworkWhatsApp, 0, fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, NewTransientError(models.NetworkWhatsApp, 0, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode < http.StatusMultipleChoices {
		return nil, NewPermanentError(models.NetworkWhatsApp, resp.StatusCode, fmt.Sprintf("decode response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &PublishError{
			Network:        models.NetworkWhatsApp,
			StatusCode:     resp.StatusCode,
			Message:        apiErrorMessage(body, resp.Status),
			Classification: ClassifyStatus(resp.StatusCode),
		}
	}

	postID, _ := body["id"].(string)
	return &PublishResult{
		PostID: postID,
		Metadata: map[string]interface{}{
			"platform": "whatsapp",
			"response": body,
		},
	}, nil
}
