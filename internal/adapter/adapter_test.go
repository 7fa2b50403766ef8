package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"

	"herald/internal/store"
	"herald/pkg/llm"
	"herald/pkg/models"
)

type fakeProvider struct {
	results map[string]llm.Result
	errs    map[string]error
}

func (f *fakeProvider) Generate(_ context.Context, req llm.Request) (llm.Result, error) {
	if err, ok := f.errs[req.Network]; ok {
		return llm.Result{}, err
	}
	if result, ok := f.results[req.Network]; ok {
		return result, nil
	}
	return llm.Result{Text: "generated for " + req.Network, CharacterCount: 14}, nil
}

func newTestAdapter(t *testing.T, provider llm.Provider) (*Adapter, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(store.New(db, logger), provider, logger), mock, func() { db.Close() }
}

func expectGetContent(mock sqlmock.Sqlmock, id, status string) {
	now := time.Now()
	mock.ExpectQuery("SELECT id, title, body, status").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "body", "status", "created_at", "updated_at"}).
			AddRow(id, "Launch day", "We are live.", status, now, now))
}

func attemptRow(id, contentID, network, text string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "content_item_id", "network", "adapted_content", "status",
		"retry_count", "published_at", "error_message", "metadata", "created_at", "updated_at",
	}).AddRow(id, contentID, network, text, "pending", 0, nil, nil, []byte(`{}`), now, now)
}

func TestAdaptPreviewDoesNotPersist(t *testing.T) {
	provider := &fakeProvider{results: map[string]llm.Result{
		"facebook": {Text: "fb variant", Hashtags: []string{"launch"}, CharacterCount: 10, Tone: "casual"},
	}}
	a, mock, done := newTestAdapter(t, provider)
	defer done()

	expectGetContent(mock, "c1", "draft")

	resp, err := a.Adapt(context.Background(), "c1", models.AdaptRequest{
		Networks:    []string{"facebook"},
		PreviewOnly: true,
	})
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	if len(resp.Previews) != 1 {
		t.Fatalf("expected 1 preview, got %d", len(resp.Previews))
	}
	if resp.Previews[0].AdaptedText != "fb variant" {
		t.Errorf("unexpected text: %q", resp.Previews[0].AdaptedText)
	}
	if len(resp.Attempts) != 0 {
		t.Error("preview must not create attempts")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAdaptCommitCreatesAttempts(t *testing.T) {
	provider := &fakeProvider{results: map[string]llm.Result{
		"facebook": {Text: "fb variant"},
		"linkedin": {Text: "li variant"},
	}}
	a, mock, done := newTestAdapter(t, provider)
	defer done()

	expectGetContent(mock, "c1", "draft")
	mock.ExpectQuery("SELECT").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"pending", "processing", "published", "failed"}).
			AddRow(0, 0, 0, 0))
	mock.ExpectQuery("INSERT INTO publication_attempts").
		WithArgs("c1", "facebook", "fb variant", sqlmock.AnyArg()).
		WillReturnRows(attemptRow("a1", "c1", "facebook", "fb variant"))
	mock.ExpectQuery("INSERT INTO publication_attempts").
		WithArgs("c1", "linkedin", "li variant", sqlmock.AnyArg()).
		WillReturnRows(attemptRow("a2", "c1", "linkedin", "li variant"))
	// recompute: the new pending attempts move the item to processing
	expectGetContent(mock, "c1", "draft")
	mock.ExpectQuery("SELECT").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"pending", "processing", "published", "failed"}).
			AddRow(2, 0, 0, 0))
	mock.ExpectExec("UPDATE content_items").
		WithArgs("c1", string(models.ContentProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp, err := a.Adapt(context.Background(), "c1", models.AdaptRequest{
		Networks: []string{"facebook", "linkedin"},
	})
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	if len(resp.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(resp.Attempts))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAdaptCommitConflictOnInFlight(t *testing.T) {
	a, mock, done := newTestAdapter(t, &fakeProvider{})
	defer done()

	expectGetContent(mock, "c1", "processing")
	mock.ExpectQuery("SELECT").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"pending", "processing", "published", "failed"}).
			AddRow(1, 1, 0, 0))

	_, err := a.Adapt(context.Background(), "c1", models.AdaptRequest{Networks: []string{"facebook"}})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAdaptCommitFallsBackOnGenerationFailure(t *testing.T) {
	provider := &fakeProvider{errs: map[string]error{
		"whatsapp": errors.New("model unavailable"),
	}}
	a, mock, done := newTestAdapter(t, provider)
	defer done()

	expectGetContent(mock, "c1", "draft")
	mock.ExpectQuery("SELECT").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"pending", "processing", "published", "failed"}).
			AddRow(0, 0, 0, 0))
	mock.ExpectQuery("INSERT INTO publication_attempts").
		WithArgs("c1", "whatsapp", "Launch day\n\nWe are live.", sqlmock.AnyArg()).
		WillReturnRows(attemptRow("a1", "c1", "whatsapp", "Launch day\n\nWe are live."))
	expectGetContent(mock, "c1", "draft")
	mock.ExpectQuery("SELECT").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"pending", "processing", "published", "failed"}).
			AddRow(1, 0, 0, 0))
	mock.ExpectExec("UPDATE content_items").
		WithArgs("c1", string(models.ContentProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp, err := a.Adapt(context.Background(), "c1", models.AdaptRequest{Networks: []string{"whatsapp"}})
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	if resp.Previews[0].Error == "" {
		t.Error("expected generation error surfaced in preview")
	}
	if resp.Previews[0].AdaptedText != "Launch day\n\nWe are live." {
		t.Errorf("expected fallback text, got %q", resp.Previews[0].AdaptedText)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAdaptInvalidNetwork(t *testing.T) {
	a, _, done := newTestAdapter(t, &fakeProvider{})
	defer done()

	_, err := a.Adapt(context.Background(), "c1", models.AdaptRequest{Networks: []string{"myspace"}})
	if !errors.Is(err, models.ErrInvalidNetwork) {
		t.Fatalf("expected ErrInvalidNetwork, got %v", err)
	}
}

func TestAdaptTruncatesOverLimitText(t *testing.T) {
	provider := &fakeProvider{results: map[string]llm.Result{
		"instagram": {Text: strings.Repeat("x", 5000)},
	}}
	a, mock, done := newTestAdapter(t, provider)
	defer done()

	expectGetContent(mock, "c1", "draft")

	resp, err := a.Adapt(context.Background(), "c1", models.AdaptRequest{
		Networks:    []string{"instagram"},
		PreviewOnly: true,
	})
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	limit := models.NetworkInstagram.CharacterLimit()
	if resp.Previews[0].CharacterCount != limit {
		t.Fatalf("expected text clipped to %d, got %d", limit, resp.Previews[0].CharacterCount)
	}
}

func TestResolveNetworksDeduplicates(t *testing.T) {
	targets, err := resolveNetworks([]string{"facebook", "facebook", "linkedin"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
}

func TestResolveNetworksRejectsEmptySet(t *testing.T) {
	_, err := resolveNetworks(nil)
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
