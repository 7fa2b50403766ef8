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

// LinkedInPublisher creates UGC posts on behalf of a member or organization
// URN.
type LinkedInPublisher struct {
	client      *http.Client
	apiURL      string
	authorURN   string
	accessToken string
}

func NewLinkedInPublisher() *LinkedInPublisher {
	return &LinkedInPublisher{
		client:      newHTTPClient(),
		apiURL:      config.GetEnv("LINKEDIN_API_URL", "https://api.linkedin.com/v2"),
		authorURN:   config.GetEnv("LINKEDIN_AUTHOR_URN", ""),
		accessToken: config.GetEnv("LINKEDIN_ACCESS_TOKEN", ""),
	}
}

func (p *LinkedInPublisher) Network() models.Network {
	return models.NetworkLinkedIn
}

func (p *LinkedInPublisher) Publish(ctx context.Context, input PublishInput) (*PublishResult, error) {
	if p.authorURN == "" || p.accessToken == "" {
		return nil, NewPermanentError(models.NetworkLinkedIn, 0, "author urn or access token not configured")
	}

	media := "NONE"
	shareContent := map[string]interface{}{
		"shareCommentary": map[string]string{"text": input.Content},
	}
	if input.ImageURL != "" {
		media = "ARTICLE"
		shareContent["media"] = []map[string]interface{}{
			{"status": "READY", "originalUrl": input.ImageURL},
		}
	}
	shareContent["shareMediaCategory"] = media

	payload, err := json.Marshal(map[string]interface{}{
		"author":         p.authorURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": shareContent,
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	})
	if err != nil {
		return nil, NewPermanentError(models.NetworkLinkedIn, 0, fmt.Sprintf("marshal payload: %v", err))
	}

	endpoint := strings.TrimRight(p.apiURL, "/") + "/ugcPosts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, NewPermanentError(models.NetworkLinkedIn, 0, fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, NewTransientError(models.NetworkLinkedIn, 0, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode < http.StatusMultipleChoices {
		return nil, NewPermanentError(models.NetworkLinkedIn, resp.StatusCode, fmt.Sprintf("decode response: %v", err))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &PublishError{
			Network:        models.NetworkLinkedIn,
			StatusCode:     resp.StatusCode,
			Message:        apiErrorMessage(body, resp.Status),
			Classification: ClassifyStatus(resp.StatusCode),
		}
	}

	postID, _ := body["id"].(string)
	if postID == "" {
		postID = resp.Header.Get("X-RestLi-Id")
	}
	if postID == "" {
		return nil, NewPermanentError(models.NetworkLinkedIn, 0, "response missing post id")
	}

	return &PublishResult{
		PostID: postID,
		Metadata: map[string]interface{}{
			"platform": "linkedin",
			"post_id":  postID,
		},
	}, nil
}
