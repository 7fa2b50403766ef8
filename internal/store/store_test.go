package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"

	"herald/pkg/models"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(db, logger), mock, func() { db.Close() }
}

func TestCreateContent(t *testing.T) {
	s, mock, done := newTestStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO content_items").
		WithArgs("Launch day", "We are live.").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "body", "status", "created_at", "updated_at"}).
			AddRow("c1", "Launch day", "We are live.", "draft", now, now))

	item, err := s.CreateContent(context.Background(), "Launch day", "We are live.")
	if err != nil {
		t.Fatalf("create content: %v", err)
	}
	if item.Status != models.ContentDraft {
		t.Errorf("expected draft status, got %s", item.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetContentNotFound(t *testing.T) {
	s, mock, done := newTestStore(t)
	defer done()

	mock.ExpectQuery("SELECT id, title, body, status").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "body", "status", "created_at", "updated_at"}))

	_, err := s.GetContent(context.Background(), "missing")
	if err != models.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListContentStatusFilter(t *testing.T) {
	s, mock, done := newTestStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery("SELECT id, title, body, status").
		WithArgs("failed", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "body", "status", "created_at", "updated_at"}).
			AddRow("c2", "t", "b", "failed", now, now))

	items, err := s.ListContent(context.Background(), models.ContentFailed, 50, 0)
	if err != nil {
		t.Fatalf("list content: %v", err)
	}
	if len(items) != 1 || items[0].Status != models.ContentFailed {
		t.Fatalf("unexpected items: %+v", items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeleteContentNotFound(t *testing.T) {
	s, mock, done := newTestStore(t)
	defer done()

	mock.ExpectExec("DELETE FROM content_items").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.DeleteContent(context.Background(), "missing"); err != models.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionAttemptCAS(t *testing.T) {
	s, mock, done := newTestStore(t)
	defer done()

	mock.ExpectExec("UPDATE publication_attempts").
		WithArgs("a1", string(models.AttemptPending), string(models.AttemptProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.TransitionAttempt(context.Background(), "a1", models.AttemptPending, models.AttemptProcessing)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !ok {
		t.Fatal("expected transition to apply")
	}
}

func TestTransitionAttemptLostRace(t *testing.T) {
	s, mock, done := newTestStore(t)
	defer done()

	// another worker already claimed it; zero rows updated is not an error
	mock.ExpectExec("UPDATE publication_attempts").
		WithArgs("a1", string(models.AttemptPending), string(models.AttemptProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.TransitionAttempt(context.Background(), "a1", models.AttemptPending, models.AttemptProcessing)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if ok {
		t.Fatal("expected transition to be skipped")
	}
}

func TestIncrementRetryCount(t *testing.T) {
	s, mock, done := newTestStore(t)
	defer done()

	mock.ExpectQuery("UPDATE publication_attempts").
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"retry_count"}).AddRow(2))

	count, err := s.IncrementRetryCount(context.Background(), "a1")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected retry count 2, got %d", count)
	}
}

func TestResetAttemptForRetryOnlyFailed(t *testing.T) {
	s, mock, done := newTestStore(t)
	defer done()

	mock.ExpectExec("UPDATE publication_attempts").
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.ResetAttemptForRetry(context.Background(), "a1")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if ok {
		t.Fatal("expected reset to be rejected for non-failed attempt")
	}
}

func TestRecomputeContentStatusTransition(t *testing.T) {
	s, mock, done := newTestStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery("SELECT id, title, body, status").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "body", "status", "created_at", "updated_at"}).
			AddRow("c1", "t", "b", "processing", now, now))
	mock.ExpectQuery("SELECT").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"pending", "processing", "published", "failed"}).
			AddRow(0, 0, 2, 1))
	mock.ExpectExec("UPDATE content_items").
		WithArgs("c1", string(models.ContentPublished)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	status, err := s.RecomputeContentStatus(context.Background(), "c1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if status != models.ContentPublished {
		t.Fatalf("expected published, got %s", status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecomputeContentStatusNoChange(t *testing.T) {
	s, mock, done := newTestStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery("SELECT id, title, body, status").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "body", "status", "created_at", "updated_at"}).
			AddRow("c1", "t", "b", "processing", now, now))
	mock.ExpectQuery("SELECT").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"pending", "processing", "published", "failed"}).
			AddRow(1, 0, 1, 0))

	// no UPDATE expected: the aggregate did not move
	status, err := s.RecomputeContentStatus(context.Background(), "c1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if status != models.ContentProcessing {
		t.Fatalf("expected processing, got %s", status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetStatusSummary(t *testing.T) {
	s, mock, done := newTestStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery("SELECT id, title, body, status").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "body", "status", "created_at", "updated_at"}).
			AddRow("c1", "t", "b", "processing", now, now))

	attemptRows := sqlmock.NewRows([]string{
		"id", "content_item_id", "network", "adapted_content", "status",
		"retry_count", "published_at", "error_message", "metadata", "created_at", "updated_at",
	}).
		AddRow("a1", "c1", "facebook", "fb text", "published", 0, now, nil, []byte(`{"post_id":"123"}`), now, now).
		AddRow("a2", "c1", "linkedin", "li text", "pending", 0, nil, nil, []byte(`{}`), now, now)

	mock.ExpectQuery("SELECT .* FROM publication_attempts").
		WithArgs("c1").
		WillReturnRows(attemptRows)

	summary, err := s.GetStatusSummary(context.Background(), "c1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalPublications != 2 {
		t.Fatalf("expected 2 attempts, got %d", summary.TotalPublications)
	}
	if summary.ByStatus.Published != 1 || summary.ByStatus.Pending != 1 {
		t.Fatalf("unexpected counts: %+v", summary.ByStatus)
	}
	if summary.Terminal() {
		t.Fatal("expected non-terminal summary with a pending attempt")
	}
	if summary.Attempts[0].Metadata["post_id"] != "123" {
		t.Fatalf("metadata not decoded: %+v", summary.Attempts[0].Metadata)
	}
}
