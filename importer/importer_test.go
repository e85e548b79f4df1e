package importer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pogoaccountserver/backend/logging"
	"github.com/pogoaccountserver/backend/store"
)

func TestImportUpsertsValidLinesAndSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.txt")
	content := "alice,pw1\nbob,pw2\nmalformed,too,many,commas\n\ncarol,pw3\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	s := store.NewFake()
	logger := logging.NewLogger(logging.INFO, io.Discard)

	if err := Import(context.Background(), s, path, logger); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	for _, want := range []string{"alice", "bob", "carol"} {
		if _, ok, _ := s.FindByUsername(context.Background(), want); !ok {
			t.Errorf("expected account %q to be imported", want)
		}
	}
	if _, ok, _ := s.FindByUsername(context.Background(), "malformed"); ok {
		t.Error("malformed line should not have been imported")
	}
}

func TestImportMissingFileIsNotFatal(t *testing.T) {
	s := store.NewFake()
	logger := logging.NewLogger(logging.INFO, io.Discard)

	if err := Import(context.Background(), s, "/nonexistent/accounts.txt", logger); err != nil {
		t.Fatalf("Import should not fail on missing file: %v", err)
	}
}
