package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"herald/pkg/logging"
	"herald/pkg/models"
)

// Store owns all persistence for content items and publication attempts.
// Status transitions are compare-and-swap updates so concurrent workers and
// duplicate queue deliveries cannot double-apply them.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

func New(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

const attemptColumns = `id, content_item_id, network, adapted_content, status, retry_count, published_at, error_message, metadata, created_at, updated_at`

// CreateContent inserts a new draft content item.
func (s *Store) CreateContent(ctx context.Context, title, body string) (*models.ContentItem, error) {
	var item models.ContentItem
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO content_items (title, body, status)
		VALUES ($1, $2, 'draft')
		RETURNING id, title, body, status, created_at, updated_at`,
		title, body,
	).Scan(&item.ID, &item.Title, &item.Body, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert content item: %w", err)
	}
	return &item, nil
}

// GetContent fetches a content item by id.
func (s *Store) GetContent(ctx context.Context, id string) (*models.ContentItem, error) {
	var item models.ContentItem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, body, status, created_at, updated_at
		FROM content_items WHERE id = $1`,
		id,
	).Scan(&item.ID, &item.Title, &item.Body, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select content item: %w", err)
	}
	return &item, nil
}

// ListContent returns content items ordered newest first. An empty status
// lists every item.
func (s *Store) ListContent(ctx context.Context, status models.ContentStatus, limit, offset int) ([]models.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, body, status, created_at, updated_at
		FROM content_items
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		string(status), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer rows.Close()

	items := []models.ContentItem{}
	for rows.Next() {
		var item models.ContentItem
		if err := rows.Scan(&item.ID, &item.Title, &item.Body, &item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteContent removes a content item. Attempts go with it via the FK cascade.
func (s *Store) DeleteContent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM content_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete content item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete content item: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetContentStatus updates a content item's status unconditionally.
func (s *Store) SetContentStatus(ctx context.Context, id string, status models.ContentStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE content_items SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("update content status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update content status: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetAttempt fetches a publication attempt by id.
func (s *Store) GetAttempt(ctx context.Context, id string) (*models.PublicationAttempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM publication_attempts WHERE id = $1`, id)
	attempt, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select attempt: %w", err)
	}
	return attempt, nil
}

// ListAttempts returns every attempt owned by a content item, oldest first.
func (s *Store) ListAttempts(ctx context.Context, contentID string) ([]models.PublicationAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM publication_attempts WHERE content_item_id = $1 ORDER BY created_at ASC`,
		contentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := []models.PublicationAttempt{}
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, *attempt)
	}
	return attempts, rows.Err()
}

// CountAttempts returns the attempt status multiset for a content item.
func (s *Store) CountAttempts(ctx context.Context, contentID string) (models.AttemptCounts, error) {
	var counts models.AttemptCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'published'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM publication_attempts WHERE content_item_id = $1`,
		contentID,
	).Scan(&counts.Pending, &counts.Processing, &counts.Published, &counts.Failed)
	if err != nil {
		return models.AttemptCounts{}, fmt.Errorf("count attempts: %w", err)
	}
	return counts, nil
}

// HasInFlightAttempts reports whether any attempt is pending or processing.
func (s *Store) HasInFlightAttempts(ctx context.Context, contentID string) (bool, error) {
	counts, err := s.CountAttempts(ctx, contentID)
	if err != nil {
		return false, err
	}
	return counts.Pending > 0 || counts.Processing > 0, nil
}

// UpsertAttempt records an adaptation for (content item, network). A fresh row
// is inserted when none exists; a terminal row is superseded in place, its
// retry count and error cleared. In-flight rows must be rejected by the caller
// before reaching here.
func (s *Store) UpsertAttempt(ctx context.Context, contentID string, network models.Network, adaptedContent string, metadata map[string]interface{}) (*models.PublicationAttempt, error) {
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO publication_attempts (content_item_id, network, adapted_content, status, metadata)
		VALUES ($1, $2, $3, 'pending', $4)
		ON CONFLICT (content_item_id, network) DO UPDATE SET
			adapted_content = EXCLUDED.adapted_content,
			status = 'pending',
			retry_count = 0,
			published_at = NULL,
			error_message = NULL,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING `+attemptColumns,
		contentID, network, adaptedContent, meta,
	)
	attempt, err := scanAttempt(row)
	if err != nil {
		return nil, fmt.Errorf("upsert attempt: %w", err)
	}
	return attempt, nil
}

// TransitionAttempt performs a compare-and-swap status move. It reports false
// when the attempt was not in the expected state, which callers treat as a
// lost race rather than an error.
func (s *Store) TransitionAttempt(ctx context.Context, id string, from, to models.AttemptStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE publication_attempts
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("transition attempt %s -> %s: %w", from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition attempt %s -> %s: %w", from, to, err)
	}
	return n == 1, nil
}

// MarkAttemptQueued stamps the queue job id (and the image url the job
// carries, so a later manual retry can rebuild the job) into the metadata of
// a freshly dispatched attempt.
func (s *Store) MarkAttemptQueued(ctx context.Context, id, jobID, imageURL string) (bool, error) {
	stamp := map[string]interface{}{"job_id": jobID}
	if imageURL != "" {
		stamp["image_url"] = imageURL
	}
	meta, err := marshalMetadata(stamp)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE publication_attempts
		SET metadata = metadata || $2::jsonb, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`,
		id, meta,
	)
	if err != nil {
		return false, fmt.Errorf("mark attempt queued: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark attempt queued: %w", err)
	}
	return n == 1, nil
}

// MarkAttemptPublished completes a processing attempt. The network's response
// details land in metadata alongside whatever is already there.
func (s *Store) MarkAttemptPublished(ctx context.Context, id string, metadata map[string]interface{}) (bool, error) {
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE publication_attempts
		SET status = 'published', published_at = NOW(), error_message = NULL,
		    metadata = metadata || $2::jsonb, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`,
		id, meta,
	)
	if err != nil {
		return false, fmt.Errorf("mark attempt published: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark attempt published: %w", err)
	}
	return n == 1, nil
}

// MarkAttemptFailed moves an attempt from the given state to failed and
// records the terminal error.
func (s *Store) MarkAttemptFailed(ctx context.Context, id string, from models.AttemptStatus, errMsg string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE publication_attempts
		SET status = 'failed', error_message = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, from, errMsg,
	)
	if err != nil {
		return false, fmt.Errorf("mark attempt failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark attempt failed: %w", err)
	}
	return n == 1, nil
}

// IncrementRetryCount persists the retry counter after a transient failure so
// the count survives worker restarts. Only the counter moves; error_message
// is written on the terminal transition, never mid-flight.
func (s *Store) IncrementRetryCount(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE publication_attempts
		SET retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING retry_count`,
		id,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, models.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment retry count: %w", err)
	}
	return count, nil
}

// ResetAttemptForRetry re-arms a failed attempt for a manual retry, moving it
// straight back in flight with a fresh retry budget. The old error message is
// kept until the next terminal transition overwrites it.
func (s *Store) ResetAttemptForRetry(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE publication_attempts
		SET status = 'processing', retry_count = 0, published_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'failed'`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("reset attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset attempt: %w", err)
	}
	return n == 1, nil
}

// RecomputeContentStatus re-derives a content item's status from its attempt
// multiset and persists it. Called after every attempt state change so the
// aggregate can never drift from the attempts.
func (s *Store) RecomputeContentStatus(ctx context.Context, contentID string) (models.ContentStatus, error) {
	item, err := s.GetContent(ctx, contentID)
	if err != nil {
		return "", err
	}
	counts, err := s.CountAttempts(ctx, contentID)
	if err != nil {
		return "", err
	}

	next := models.AggregateContentStatus(item.Status, counts)
	if next == item.Status {
		return next, nil
	}
	if err := s.SetContentStatus(ctx, contentID, next); err != nil {
		return "", err
	}
	s.logger.WithFields(map[string]interface{}{
		"content_item_id": contentID,
		"from":            item.Status,
		"to":              next,
	}).Info("Content status recomputed")
	return next, nil
}

// GetStatusSummary assembles the aggregated view clients poll.
func (s *Store) GetStatusSummary(ctx context.Context, contentID string) (*models.StatusSummary, error) {
	item, err := s.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.ListAttempts(ctx, contentID)
	if err != nil {
		return nil, err
	}

	var counts models.AttemptCounts
	for _, a := range attempts {
		switch a.Status {
		case models.AttemptPending:
			counts.Pending++
		case models.AttemptProcessing:
			counts.Processing++
		case models.AttemptPublished:
			counts.Published++
		case models.AttemptFailed:
			counts.Failed++
		}
	}

	return &models.StatusSummary{
		ContentItemID:     item.ID,
		ContentStatus:     item.Status,
		TotalPublications: len(attempts),
		ByStatus:          counts,
		Attempts:          attempts,
	}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAttempt(row rowScanner) (*models.PublicationAttempt, error) {
	var attempt models.PublicationAttempt
	var meta []byte
	err := row.Scan(
		&attempt.ID,
		&attempt.ContentItemID,
		&attempt.Network,
		&attempt.AdaptedContent,
		&attempt.Status,
		&attempt.RetryCount,
		&attempt.PublishedAt,
		&attempt.ErrorMessage,
		&meta,
		&attempt.CreatedAt,
		&attempt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &attempt.Metadata); err != nil {
			return nil, fmt.Errorf("decode attempt metadata: %w", err)
		}
	}
	return &attempt, nil
}

func marshalMetadata(metadata map[string]interface{}) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode attempt metadata: %w", err)
	}
	return b, nil
}
