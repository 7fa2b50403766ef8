package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"herald/internal/adapter"
	"herald/internal/dispatch"
	"herald/internal/store"
	"herald/pkg/logging"
	"herald/pkg/middleware"
	"herald/pkg/models"
)

var (
	contentStore *store.Store
	contentAdapt *adapter.Adapter
	dispatcher   *dispatch.Coordinator
	logger       logging.Logger
)

// Init initializes the handlers with their dependencies
func Init(st *store.Store, a *adapter.Adapter, d *dispatch.Coordinator, log logging.Logger) {
	contentStore = st
	contentAdapt = a
	dispatcher = d
	logger = log
}

// RegisterRoutes mounts the content API under /api.
func RegisterRoutes(router middleware.Engine) {
	api := router.Group("/api")
	{
		api.POST("/content", CreateContent)
		api.GET("/content", ListContent)
		api.GET("/content/:id", GetContent)
		api.DELETE("/content/:id", DeleteContent)
		api.POST("/content/:id/adapt", AdaptContent)
		api.POST("/content/:id/publish", PublishContent)
		api.GET("/content/:id/status", GetContentStatus)
		api.POST("/attempts/:id/retry", RetryAttempt)
	}
}

// CreateContent creates a draft content item
func CreateContent(c middleware.Context) {
	var req models.CreateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, middleware.H{"error": err.Error()})
		return
	}

	item, err := contentStore.CreateContent(c.Request.Context(), req.Title, req.Body)
	if err != nil {
		respondError(c, err, "Failed to create content item")
		return
	}

	c.JSON(http.StatusCreated, item)
}

// ListContent returns content items, newest first, optionally filtered by
// status
func ListContent(c middleware.Context) {
	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	status := models.ContentStatus(c.Query("status"))
	switch status {
	case "", models.ContentDraft, models.ContentProcessing, models.ContentPublished, models.ContentFailed:
	default:
		c.JSON(http.StatusBadRequest, middleware.H{"error": "unknown status filter"})
		return
	}

	items, err := contentStore.ListContent(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, err, "Failed to list content items")
		return
	}

	c.JSON(http.StatusOK, middleware.H{
		"items": items,
		"count": len(items),
	})
}

// GetContent returns one content item with its publication attempts
func GetContent(c middleware.Context) {
	id := c.Param("id")

	item, err := contentStore.GetContent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to get content item")
		return
	}
	attempts, err := contentStore.ListAttempts(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to list attempts")
		return
	}

	c.JSON(http.StatusOK, middleware.H{
		"content":  item,
		"attempts": attempts,
	})
}

// DeleteContent removes a content item and its attempts
func DeleteContent(c middleware.Context) {
	if err := contentStore.DeleteContent(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, "Failed to delete content item")
		return
	}
	c.Status(http.StatusNoContent)
}

// AdaptContent generates per-network variants
func AdaptContent(c middleware.Context) {
	var req models.AdaptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, middleware.H{"error": err.Error()})
		return
	}

	resp, err := contentAdapt.Adapt(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err, "Failed to adapt content")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// PublishContent enqueues every pending attempt for asynchronous publication.
// It acknowledges the fan-out; outcomes are observable via the status route.
func PublishContent(c middleware.Context) {
	var req models.PublishRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, middleware.H{"error": err.Error()})
			return
		}
	}

	resp, err := dispatcher.Publish(c.Request.Context(), c.Param("id"), req.ImageURL)
	if err != nil {
		respondError(c, err, "Failed to dispatch publication")
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// GetContentStatus returns the aggregated publication status
func GetContentStatus(c middleware.Context) {
	summary, err := contentStore.GetStatusSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get content status")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// RetryAttempt re-enqueues a failed publication attempt
func RetryAttempt(c middleware.Context) {
	resp, err := dispatcher.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to retry attempt")
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c middleware.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, middleware.H{"error": "not found"})
	case errors.Is(err, models.ErrInvalidNetwork), errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, middleware.H{"error": err.Error()})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, middleware.H{"error": err.Error()})
	default:
		logger.WithError(err).Error(logMsg)
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "internal server error"})
	}
}

func parseIntQuery(c middleware.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
