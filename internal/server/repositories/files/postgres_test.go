package files

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophshare/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var columns = []string{"id", "user_id", "channel_id", "name", "mime_type", "size", "storage_key", "created_at"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+files\b`).
		WithArgs("f1", "u1", "c1", "a.txt", "text/plain", int64(5), "files/k", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.File{
		ID: "f1", UserID: "u1", ChannelID: "c1", Name: "a.txt",
		MimeType: "text/plain", Size: 5, StorageKey: "files/k", CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+files`).WillReturnError(errors.New("boom"))

	if err := repo.Create(context.Background(), &models.File{ID: "f1"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestGet_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT\s+id,.*FROM\s+files\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("f1", "u1", "c1", "a.txt", "text/plain", int64(5), "files/k", now))

	f, err := repo.Get(context.Background(), "f1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f == nil || f.UserID != "u1" || f.StorageKey != "files/k" || f.Size != 5 {
		t.Fatalf("unexpected file: %+v", f)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+files`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	f, err := repo.Get(context.Background(), "nope")
	if err != nil || f != nil {
		t.Fatalf("want (nil, nil), got (%v, %v)", f, err)
	}
}

func TestAttached(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `SELECT\s+count\(\*\)\s+FROM\s+post_files\s+WHERE\s+file_id\s*=\s*\$1`
	mock.ExpectQuery(q).WithArgs("f1").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(q).WithArgs("f2").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	got, err := repo.Attached(context.Background(), []string{"f1", "f2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got["f1"] || got["f2"] {
		t.Fatalf("unexpected attachment map: %v", got)
	}
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	if f, err := repo.Get(ctx, "f1"); err != nil || f != nil {
		t.Fatalf("want (nil, nil), got (%v, %v)", f, err)
	}
	if err := repo.Create(ctx, &models.File{ID: "f1", UserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	f, err := repo.Get(ctx, "f1")
	if err != nil || f.UserID != "u1" {
		t.Fatalf("got (%v, %v)", f, err)
	}

	repo.MarkAttached([]string{"f1"})
	got, _ := repo.Attached(ctx, []string{"f1", "f2"})
	if !got["f1"] || got["f2"] {
		t.Fatalf("unexpected attachment map: %v", got)
	}
}
