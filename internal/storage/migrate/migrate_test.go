package migrate

import (
	"context"
	"strings"
	"testing"
)

func TestExtractUpMigration(t *testing.T) {
	t.Parallel()

	content := "-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n"
	got := ExtractUpMigration(content)
	if !strings.Contains(got, "CREATE TABLE a") {
		t.Fatalf("up section missing create: %q", got)
	}
	if strings.Contains(got, "DROP TABLE") {
		t.Fatalf("up section leaked down migration: %q", got)
	}
}

func TestExtractUpMigrationWithoutMarkers(t *testing.T) {
	t.Parallel()

	content := "CREATE TABLE b (id INTEGER);"
	if got := ExtractUpMigration(content); got != content {
		t.Fatalf("ExtractUpMigration() = %q, want %q", got, content)
	}
}

func TestApplyRequiresDB(t *testing.T) {
	t.Parallel()

	if err := Apply(context.Background(), nil, nil, "", nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}
