package sqlstore

import (
	"context"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/aisaas/backend/internal/app/domain/creation"
	"github.com/aisaas/backend/internal/platform/migrations"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { raw.Close() })

	store := New(sqlx.NewDb(raw, "postgres"))
	store.now = func() time.Time { return fixedNow }
	return store, mock
}

func TestCreateCreationPostgres(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO creations")).
		WithArgs("user_1", "a topic", "body", "article", false, fixedNow, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	got, err := store.CreateCreation(context.Background(), creation.Creation{
		UserID:  "user_1",
		Prompt:  "a topic",
		Content: "body",
		Type:    creation.TypeArticle,
	})
	if err != nil {
		t.Fatalf("create creation: %v", err)
	}
	if got.ID != 42 {
		t.Fatalf("expected id 42, got %d", got.ID)
	}
	if !got.CreatedAt.Equal(fixedNow) || !got.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("timestamps not set: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateCreationRejectsInvalid(t *testing.T) {
	store, mock := newMockStore(t)

	if _, err := store.CreateCreation(context.Background(), creation.Creation{UserID: "u"}); err == nil {
		t.Fatal("expected validation error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no query should run: %v", err)
	}
}

func TestListUserCreationsUsesDollarPlaceholders(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "user_id", "prompt", "content", "type", "publish", "created_at", "updated_at"}).
		AddRow(2, "user_1", "p2", "c2", "image", true, fixedNow, fixedNow).
		AddRow(1, "user_1", "p1", "c1", "article", false, fixedNow.Add(-time.Hour), fixedNow.Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1")).
		WithArgs("user_1").
		WillReturnRows(rows)

	got, err := store.ListUserCreations(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != 2 || got[0].Type != creation.TypeImage || !got[0].Publish {
		t.Fatalf("unexpected rows: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListPublishedCreationsEmpty(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE publish = $1")).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "prompt", "content", "type", "publish", "created_at", "updated_at"}))

	got, err := store.ListPublishedCreations(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestStoreSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	if err := migrations.Apply(ctx, db.DB); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	store := New(db)
	clock := fixedNow
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	inputs := []creation.Creation{
		{UserID: "alice", Prompt: "first", Content: "one", Type: creation.TypeArticle},
		{UserID: "alice", Prompt: "second", Content: "https://img/2", Type: creation.TypeImage, Publish: true},
		{UserID: "bob", Prompt: "third", Content: "https://img/3", Type: creation.TypeImage, Publish: true},
	}
	for _, in := range inputs {
		if _, err := store.CreateCreation(ctx, in); err != nil {
			t.Fatalf("create %q: %v", in.Prompt, err)
		}
	}

	mine, err := store.ListUserCreations(ctx, "alice")
	if err != nil {
		t.Fatalf("list user: %v", err)
	}
	if len(mine) != 2 || mine[0].Prompt != "second" || mine[1].Prompt != "first" {
		t.Fatalf("unexpected user creations: %+v", mine)
	}
	if mine[0].ID == 0 || mine[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to round-trip: %+v", mine[0])
	}

	published, err := store.ListPublishedCreations(ctx)
	if err != nil {
		t.Fatalf("list published: %v", err)
	}
	if len(published) != 2 || published[0].UserID != "bob" || published[1].UserID != "alice" {
		t.Fatalf("unexpected published creations: %+v", published)
	}

	none, err := store.ListUserCreations(ctx, "carol")
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no creations, got %d", len(none))
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "dsn"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestStorePostgresIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	db, err := Open(ctx, "postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := migrations.Up(db.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := New(db)
	created, err := store.CreateCreation(ctx, creation.Creation{
		UserID: "integration", Prompt: "p", Content: "c", Type: creation.TypeBlogTitle,
	})
	if err != nil {
		t.Fatalf("create creation: %v", err)
	}
	list, err := store.ListUserCreations(ctx, "integration")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) == 0 || list[0].ID != created.ID {
		t.Fatalf("expected newest creation first, got %+v", list)
	}
}
