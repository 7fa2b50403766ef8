package networks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"herald/pkg/models"
)

func TestFacebookPublishText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/page-1/feed" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.Form.Get("message") != "hello world" {
			t.Errorf("unexpected message: %s", r.Form.Get("message"))
		}
		if r.Form.Get("access_token") != "tok" {
			t.Errorf("missing access token")
		}
		w.Write([]byte(`{"id":"page-1_999"}`))
	}))
	defer server.Close()

	p := &FacebookPublisher{client: server.Client(), apiURL: server.URL, pageID: "page-1", accessToken: "tok"}

	result, err := p.Publish(context.Background(), PublishInput{Content: "hello world"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.PostID != "page-1_999" {
		t.Errorf("unexpected post id: %s", result.PostID)
	}
}

func TestFacebookPublishImageUsesPhotos(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/page-1/photos" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.Form.Get("url") != "https://img.example/pic.png" {
			t.Errorf("unexpected image url: %s", r.Form.Get("url"))
		}
		w.Write([]byte(`{"id":"photo-1"}`))
	}))
	defer server.Close()

	p := &FacebookPublisher{client: server.Client(), apiURL: server.URL, pageID: "page-1", accessToken: "tok"}

	result, err := p.Publish(context.Background(), PublishInput{Content: "caption", ImageURL: "https://img.example/pic.png"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.PostID != "photo-1" {
		t.Errorf("unexpected post id: %s", result.PostID)
	}
}

func TestFacebookPublishClassifiesGraphError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token"}}`))
	}))
	defer server.Close()

	p := &FacebookPublisher{client: server.Client(), apiURL: server.URL, pageID: "page-1", accessToken: "bad"}

	_, err := p.Publish(context.Background(), PublishInput{Content: "x"})
	var pubErr *PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("expected PublishError, got %v", err)
	}
	if pubErr.Classification != Permanent {
		t.Errorf("expected permanent classification for 400")
	}
	if pubErr.Message != "Invalid OAuth access token" {
		t.Errorf("unexpected message: %s", pubErr.Message)
	}
}

func TestFacebookPublishServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":{"message":"upstream down"}}`))
	}))
	defer server.Close()

	p := &FacebookPublisher{client: server.Client(), apiURL: server.URL, pageID: "page-1", accessToken: "tok"}

	_, err := p.Publish(context.Background(), PublishInput{Content: "x"})
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestInstagramTwoStepPublish(t *testing.T) {
	var step int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		step++
		switch r.URL.Path {
		case "/ig-1/media":
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if r.Form.Get("image_url") == "" {
				t.Error("expected image_url in container request")
			}
			w.Write([]byte(`{"id":"container-7"}`))
		case "/ig-1/media_publish":
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if r.Form.Get("creation_id") != "container-7" {
				t.Errorf("unexpected creation_id: %s", r.Form.Get("creation_id"))
			}
			w.Write([]byte(`{"id":"ig-post-7"}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	p := &InstagramPublisher{client: server.Client(), apiURL: server.URL, userID: "ig-1", accessToken: "tok"}

	result, err := p.Publish(context.Background(), PublishInput{Content: "caption", ImageURL: "https://img.example/pic.png"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if step != 2 {
		t.Fatalf("expected 2 requests, got %d", step)
	}
	if result.PostID != "ig-post-7" {
		t.Errorf("unexpected post id: %s", result.PostID)
	}
	if result.Metadata["creation_id"] != "container-7" {
		t.Errorf("missing creation id in metadata: %+v", result.Metadata)
	}
}

func TestInstagramRequiresImage(t *testing.T) {
	p := &InstagramPublisher{client: newHTTPClient(), apiURL: "http://unused", userID: "ig-1", accessToken: "tok"}

	_, err := p.Publish(context.Background(), PublishInput{Content: "no image"})
	var pubErr *PublishError
	if !errors.As(err, &pubErr) || pubErr.Classification != Permanent {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestLinkedInPublishReadsRestliHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ugcPosts" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization: %s", got)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["author"] != "urn:li:person:abc" {
			t.Errorf("unexpected author: %v", body["author"])
		}
		w.Header().Set("X-RestLi-Id", "urn:li:share:42")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	p := &LinkedInPublisher{client: server.Client(), apiURL: server.URL, authorURN: "urn:li:person:abc", accessToken: "tok"}

	result, err := p.Publish(context.Background(), PublishInput{Content: "professional update"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.PostID != "urn:li:share:42" {
		t.Errorf("unexpected post id: %s", result.PostID)
	}
}

func TestTikTokTruncatesTitle(t *testing.T) {
	long := make([]rune, 300)
	for i := range long {
		long[i] = 'a'
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		title, _ := body["title"].(string)
		if len([]rune(title)) != tiktokTitleLimit {
			t.Errorf("expected title truncated to %d runes, got %d", tiktokTitleLimit, len([]rune(title)))
		}
		w.Write([]byte(`{"publish_id":"tt-1"}`))
	}))
	defer server.Close()

	p := &TikTokPublisher{client: server.Client(), apiURL: server.URL}

	result, err := p.Publish(context.Background(), PublishInput{Content: string(long), ImageURL: "https://img.example/clip.mp4"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.PostID != "tt-1" {
		t.Errorf("unexpected post id: %s", result.PostID)
	}
}

func TestWhatsAppRateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"rate limited"}`))
	}))
	defer server.Close()

	p := &WhatsAppPublisher{client: server.Client(), apiURL: server.URL, token: "tok"}

	_, err := p.Publish(context.Background(), PublishInput{Content: "story", ImageURL: "https://img.example/pic.png"})
	if !IsTransient(err) {
		t.Fatalf("expected transient error for 429, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	fb := &FacebookPublisher{}
	wa := &WhatsAppPublisher{}
	r := NewRegistry(fb, wa)

	got, err := r.Get(models.NetworkFacebook)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != fb {
		t.Error("wrong publisher returned")
	}
	if _, err := r.Get(models.NetworkTikTok); err == nil {
		t.Fatal("expected error for unregistered network")
	}

	networks := r.Networks()
	if len(networks) != 2 {
		t.Fatalf("expected 2 networks, got %d", len(networks))
	}
	// stable order follows AllNetworks
	if networks[0] != models.NetworkFacebook || networks[1] != models.NetworkWhatsApp {
		t.Errorf("unexpected order: %v", networks)
	}
}

func TestIsTransientUnclassified(t *testing.T) {
	if !IsTransient(errors.New("connection reset by peer")) {
		t.Fatal("unclassified errors should be retryable")
	}
}
