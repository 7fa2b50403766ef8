package networks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"herald/pkg/config"
	"herald/pkg/models"
)

// InstagramPublisher uses the two-step Graph API flow: create a media
// container, then publish it. An image is mandatory.
type InstagramPublisher struct {
	client      *http.Client
	apiURL      string
	userID      string
	accessToken string
}

func NewInstagramPublisher() *InstagramPublisher {
	return &InstagramPublisher{
		client:      newHTTPClient(),
		apiURL:      config.GetEnv("INSTAGRAM_API_URL", "https://graph.facebook.com/v19.0"),
		userID:      config.GetEnv("INSTAGRAM_USER_ID", ""),
		accessToken: config.GetEnv("INSTAGRAM_ACCESS_TOKEN", ""),
	}
}

func (p *InstagramPublisher) Network() models.Network {
	return models.NetworkInstagram
}

func (p *InstagramPublisher) Publish(ctx context.Context, input PublishInput) (*PublishResult, error) {
	if p.userID == "" || p.accessToken == "" {
		return nil, NewPermanentError(models.NetworkInstagram, 0, "user id or access token not configured")
	}
	if input.ImageURL == "" {
		return nil, NewPermanentError(models.NetworkInstagram, 0, "instagram requires an image")
	}

	base := strings.TrimRight(p.apiURL, "/")

	createForm := url.Values{}
	createForm.Set("image_url", input.ImageURL)
	createForm.Set("caption", input.Content)
	createForm.Set("access_token", p.accessToken)

	creation, err := postForm(ctx, p.client, models.NetworkInstagram, fmt.Sprintf("%s/%s/media", base, p.userID), createForm)
	if err != nil {
		return nil, err
	}
	creationID, _ := creation["id"].(string)
	if creationID == "" {
		return nil, NewPermanentError(models.NetworkInstagram, 0, "media container response missing id")
	}

	publishForm := url.Values{}
	publishForm.Set("creation_id", creationID)
	publishForm.Set("access_token", p.accessToken)

	published, err := postForm(ctx, p.client, models.NetworkInstagram, fmt.Sprintf("%s/%s/media_publish", base, p.userID), publishForm)
	if err != nil {
		return nil, err
	}
	postID, _ := published["id"].(string)
	if postID == "" {
		return nil, NewPermanentError(models.NetworkInstagram, 0, "publish response missing id")
	}

	return &PublishResult{
		PostID: postID,
		Metadata: map[string]interface{}{
			"platform":    "instagram",
			"post_id":     postID,
			"creation_id": creationID,
		},
	}, nil
}
