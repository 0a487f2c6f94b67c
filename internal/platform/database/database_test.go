package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/taqastore/storefront/internal/config"
)

func TestHealthProbesConnection(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer raw.Close()
	db := sqlx.NewDb(raw, "sqlmock")

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

	if err := Health(context.Background(), db); err != nil {
		t.Fatalf("health probe failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestHealthWithoutDatabase(t *testing.T) {
	if err := Health(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil database")
	}
}

func TestMigrateAbsentWithoutDatabase(t *testing.T) {
	res := Migrate(config.DatabaseConfig{MigrationsDir: "migrations"})
	if res.Outcome != MigrationAbsent {
		t.Fatalf("expected absent outcome, got %s (err=%v)", res.Outcome, res.Err)
	}
	if res.Reason == "" {
		t.Fatal("absent outcome must carry a reason")
	}
}

func TestMigrateAbsentWhenDirectoryMissing(t *testing.T) {
	res := Migrate(config.DatabaseConfig{
		URL:           "postgres://localhost:5432/store?sslmode=disable",
		MigrationsDir: filepath.Join(t.TempDir(), "no-such-dir"),
	})
	if res.Outcome != MigrationAbsent {
		t.Fatalf("expected absent outcome, got %s (err=%v)", res.Outcome, res.Err)
	}
}

func TestMigrateAbsentWhenDirectoryHasNoSQL(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("placeholder"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	res := Migrate(config.DatabaseConfig{
		URL:           "postgres://localhost:5432/store?sslmode=disable",
		MigrationsDir: dir,
	})
	if res.Outcome != MigrationAbsent {
		t.Fatalf("expected absent outcome, got %s (err=%v)", res.Outcome, res.Err)
	}
}
