package migrate

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	dir := t.TempDir()
	writeMigration(t, dir, "0002_later.up.sql", "create table later (id text)")
	writeMigration(t, dir, "0001_first.up.sql", "create table first (id text);\ncreate index first_idx on first (id)")

	mock.ExpectExec(`create table if not exists schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	// 0001 first, both statements in one tx
	mock.ExpectBegin()
	mock.ExpectExec(`create table first`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`create index first_idx`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(`insert into schema_migrations`).
		WithArgs("0001_first.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectBegin()
	mock.ExpectExec(`create table later`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(`insert into schema_migrations`).
		WithArgs("0002_later.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewManager(db, dir).Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpSkipsExecuted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	dir := t.TempDir()
	writeMigration(t, dir, "0001_first.up.sql", "create table first (id text)")

	mock.ExpectExec(`create table if not exists schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_first.up.sql"))

	if err := NewManager(db, dir).Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStatusListsHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`create table if not exists audit_schema`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name from audit_schema order by applied_at`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("0001_first.up.sql").
			AddRow("0002_later.up.sql"))

	got, err := NewManager(db, "", WithMigrationsTable("audit_schema")).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	want := []string{"0001_first.up.sql", "0002_later.up.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSplitStatements(t *testing.T) {
	parts := splitStatements("a;\nb;\n\n")
	var nonEmpty int
	for _, p := range parts {
		if p != "" && p != "\n" && p != "\n\n" {
			nonEmpty++
		}
	}
	if nonEmpty != 2 {
		t.Fatalf("got %d statements, want 2: %q", nonEmpty, parts)
	}
}
