package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"herald/internal/store"
	"herald/pkg/llm"
	"herald/pkg/logging"
	"herald/pkg/models"
)

// Adapter turns a content item into per-network variants. Generation runs
// concurrently per network; each network succeeds or fails independently.
type Adapter struct {
	store    *store.Store
	provider llm.Provider
	logger   logging.Logger

	adaptations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

func New(st *store.Store, provider llm.Provider, logger logging.Logger) *Adapter {
	return &Adapter{store: st, provider: provider, logger: logger}
}

// SetMetrics wires the adaptation counters. Optional; nil metrics are skipped.
func (a *Adapter) SetMetrics(adaptations *prometheus.CounterVec, duration *prometheus.HistogramVec) {
	a.adaptations = adaptations
	a.duration = duration
}

// Adapt generates network variants for a content item. In preview mode the
// results are returned without touching storage. In commit mode each variant
// becomes a pending publication attempt; a network whose generation failed
// falls back to the unmodified source text so one bad generation cannot block
// the fan-out.
func (a *Adapter) Adapt(ctx context.Context, contentID string, req models.AdaptRequest) (*models.AdaptResponse, error) {
	targets, err := resolveNetworks(req.Networks)
	if err != nil {
		return nil, err
	}

	item, err := a.store.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}

	if !req.PreviewOnly {
		inFlight, err := a.store.HasInFlightAttempts(ctx, contentID)
		if err != nil {
			return nil, err
		}
		if inFlight {
			return nil, fmt.Errorf("%w: content item has in-flight publication attempts", models.ErrConflict)
		}
	}

	previews := a.generateAll(ctx, item, targets)

	response := &models.AdaptResponse{
		ContentItemID: item.ID,
		PreviewOnly:   req.PreviewOnly,
		Previews:      previews,
	}
	if req.PreviewOnly {
		return response, nil
	}

	for i, preview := range previews {
		text := preview.AdaptedText
		generated := preview.Error == ""
		if !generated {
			text = fallbackText(item, preview.Network)
			previews[i].AdaptedText = text
			previews[i].CharacterCount = len([]rune(text))
		}

		metadata := map[string]interface{}{
			"generated": generated,
		}
		if len(preview.Hashtags) > 0 {
			metadata["hashtags"] = preview.Hashtags
		}
		if preview.ImageSuggestion != "" {
			metadata["image_suggestion"] = preview.ImageSuggestion
		}
		if preview.Tone != "" {
			metadata["tone"] = preview.Tone
		}
		if !generated {
			metadata["generation_error"] = preview.Error
		}

		attempt, err := a.store.UpsertAttempt(ctx, item.ID, preview.Network, text, metadata)
		if err != nil {
			return nil, err
		}
		response.Attempts = append(response.Attempts, *attempt)
	}

	// the freshly committed pending attempts move a draft item to processing
	if _, err := a.store.RecomputeContentStatus(ctx, item.ID); err != nil {
		return nil, err
	}

	a.logger.WithFields(map[string]interface{}{
		"content_item_id": item.ID,
		"networks":        len(targets),
	}).Info("Content adapted")

	return response, nil
}

// generateAll fans generation out across the target networks and collects the
// results in the callers' network order.
func (a *Adapter) generateAll(ctx context.Context, item *models.ContentItem, targets []models.Network) []models.NetworkAdaptation {
	results := make([]models.NetworkAdaptation, len(targets))

	var wg sync.WaitGroup
	for i, network := range targets {
		wg.Add(1)
		go func(i int, network models.Network) {
			defer wg.Done()
			results[i] = a.generateOne(ctx, item, network)
		}(i, network)
	}
	wg.Wait()

	return results
}

func (a *Adapter) generateOne(ctx context.Context, item *models.ContentItem, network models.Network) models.NetworkAdaptation {
	start := time.Now()
	limit := network.CharacterLimit()

	result, err := a.provider.Generate(ctx, llm.Request{
		Title:          item.Title,
		Body:           item.Body,
		Network:        string(network),
		CharacterLimit: limit,
	})

	if a.duration != nil {
		a.duration.WithLabelValues(string(network)).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		if a.adaptations != nil {
			a.adaptations.WithLabelValues(string(network), "error").Inc()
		}
		a.logger.WithFields(map[string]interface{}{
			"content_item_id": item.ID,
			"network":         network,
			"error":           err.Error(),
		}).Warn("Adaptation generation failed")
		return models.NetworkAdaptation{Network: network, Error: err.Error()}
	}

	text := result.Text
	if limit > 0 && len([]rune(text)) > limit {
		text = string([]rune(text)[:limit])
	}

	if a.adaptations != nil {
		a.adaptations.WithLabelValues(string(network), "ok").Inc()
	}

	return models.NetworkAdaptation{
		Network:         network,
		AdaptedText:     text,
		Hashtags:        result.Hashtags,
		ImageSuggestion: result.ImageSuggestion,
		CharacterCount:  len([]rune(text)),
		Tone:            result.Tone,
	}
}

// resolveNetworks validates the requested networks. The set must be
// non-empty and every member must belong to the closed enumeration.
func resolveNetworks(requested []string) ([]models.Network, error) {
	if len(requested) == 0 {
		return nil, fmt.Errorf("%w: networks must not be empty", models.ErrValidation)
	}

	seen := make(map[models.Network]bool, len(requested))
	targets := make([]models.Network, 0, len(requested))
	for _, raw := range requested {
		network := models.Network(raw)
		if !network.Valid() {
			return nil, fmt.Errorf("%w: %q", models.ErrInvalidNetwork, raw)
		}
		if seen[network] {
			continue
		}
		seen[network] = true
		targets = append(targets, network)
	}
	return targets, nil
}

// fallbackText is the unmodified source used when generation fails in commit
// mode, clipped to the network's limit.
func fallbackText(item *models.ContentItem, network models.Network) string {
	text := item.Title + "\n\n" + item.Body
	if limit := network.CharacterLimit(); limit > 0 && len([]rune(text)) > limit {
		text = string([]rune(text)[:limit])
	}
	return text
}
