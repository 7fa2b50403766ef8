package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"herald/pkg/config"
)

// Provider is the generative adaptation capability. A single call transforms
// source content into one network-tailored variant.
type Provider interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// Request describes one network adaptation.
type Request struct {
	Title          string
	Body           string
	Network        string
	CharacterLimit int
}

// Result is the structured model output for one network.
type Result struct {
	Text            string   `json:"text"`
	Hashtags        []string `json:"hashtags"`
	ImageSuggestion string   `json:"suggested_image_prompt"`
	CharacterCount  int      `json:"character_count"`
	Tone            string   `json:"tone"`
}

// Config holds provider configuration
type Config struct {
	Provider string
	Model    string
	APIKey   string
	APIURL   string
}

// LoadConfig loads provider configuration from LLM_* env vars.
func LoadConfig() Config {
	return Config{
		Provider: config.GetEnv("LLM_PROVIDER", "openai"),
		Model:    config.GetEnv("LLM_MODEL", "gpt-4o-mini"),
		APIKey:   config.GetEnv("LLM_API_KEY", ""),
		APIURL:   config.GetEnv("LLM_API_URL", ""),
	}
}

// NewProvider builds a provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "ollama":
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

const systemPrompt = "You are a social media copywriter. Adapt the given content " +
	"for the requested network and answer with a single JSON object with keys: " +
	"text, hashtags (array of strings without the # prefix), " +
	"suggested_image_prompt, character_count, tone."

func buildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Network: %s\n", req.Network)
	if req.CharacterLimit > 0 {
		fmt.Fprintf(&b, "Maximum length: %d characters\n", req.CharacterLimit)
	}
	fmt.Fprintf(&b, "Title: %s\n\n%s", req.Title, req.Body)
	return b.String()
}

// decodeResult parses the model's JSON answer. Models occasionally wrap the
// object in a markdown fence; strip it before decoding.
func decodeResult(raw string) (Result, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
		raw = strings.TrimSpace(raw)
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return Result{}, fmt.Errorf("decode generation result: %w", err)
	}
	if result.CharacterCount == 0 {
		result.CharacterCount = len([]rune(result.Text))
	}
	return result, nil
}
