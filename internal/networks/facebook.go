package networks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"herald/pkg/config"
	"herald/pkg/models"
)

// FacebookPublisher posts to a page feed via the Graph API. Text-only posts go
// to /feed, posts with an image to /photos.
type FacebookPublisher struct {
	client      *http.Client
	apiURL      string
	pageID      string
	accessToken string
}

func NewFacebookPublisher() *FacebookPublisher {
	return &FacebookPublisher{
		client:      newHTTPClient(),
		apiURL:      config.GetEnv("FACEBOOK_API_URL", "https://graph.facebook.com/v19.0"),
		pageID:      config.GetEnv("FACEBOOK_PAGE_ID", ""),
		accessToken: config.GetEnv("FACEBOOK_PAGE_ACCESS_TOKEN", ""),
	}
}

func (p *FacebookPublisher) Network() models.Network {
	return models.NetworkFacebook
}

func (p *FacebookPublisher) Publish(ctx context.Context, input PublishInput) (*PublishResult, error) {
	if p.pageID == "" || p.accessToken == "" {
		return nil, NewPermanentError(models.NetworkFacebook, 0, "page id or access token not configured")
	}

	form := url.Values{}
	form.Set("access_token", p.accessToken)

	var endpoint string
	if input.ImageURL != "" {
		endpoint = fmt.Sprintf("%s/%s/photos", strings.TrimRight(p.apiURL, "/"), p.pageID)
		form.Set("url", input.ImageURL)
		form.Set("caption", input.Content)
	} else {
		endpoint = fmt.Sprintf("%s/%s/feed", strings.TrimRight(p.apiURL, "/"), p.pageID)
		form.Set("message", input.Content)
	}

	body, err := postForm(ctx, p.client, models.NetworkFacebook, endpoint, form)
	if err != nil {
		return nil, err
	}

	postID, _ := body["id"].(string)
	if postID == "" {
		return nil, NewPermanentError(models.NetworkFacebook, 0, "response missing post id")
	}

	return &PublishResult{
		PostID: postID,
		Metadata: map[string]interface{}{
			"platform": "facebook",
			"post_id":  postID,
		},
	}, nil
}

// postForm sends a form-encoded POST and decodes the JSON body, classifying
// failures along the way.
func postForm(ctx context.Context, client *http.Client, network models.Network, endpoint string, form url.Values) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, NewPermanentError(network, 0, fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, NewTransientError(network, 0, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode < http.StatusMultipleChoices {
		return nil, NewPermanentError(network, resp.StatusCode, fmt.Sprintf("decode response: %v", err))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &PublishError{
			Network:        network,
			StatusCode:     resp.StatusCode,
			Message:        apiErrorMessage(body, resp.Status),
			Classification: ClassifyStatus(resp.StatusCode),
		}
	}
	return body, nil
}

// apiErrorMessage digs a human-readable message out of a Graph-style error
// body, falling back to the HTTP status line.
func apiErrorMessage(body map[string]interface{}, fallback string) string {
	if body == nil {
		return fallback
	}
	if errObj, ok := body["error"].(map[string]interface{}); ok {
		if msg, ok := errObj["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if msg, ok := body["message"].(string); ok && msg != "" {
		return msg
	}
	return fallback
}
