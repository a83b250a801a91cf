package cmd

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/strand-ai/strand/internal/ingest"
	"github.com/strand-ai/strand/internal/knowledge"
	"github.com/strand-ai/strand/internal/log"
)

type fakeIngestStore struct {
	mu    sync.Mutex
	added []knowledge.Document
}

func (s *fakeIngestStore) Add(ctx context.Context, doc knowledge.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, doc)
	return nil
}

func (s *fakeIngestStore) DeleteBySource(ctx context.Context, source string) (int64, error) {
	return 0, nil
}

func TestIsURL(t *testing.T) {
	t.Parallel()

	urls := []string{"http://example.com", "https://example.com/docs"}
	for _, s := range urls {
		if !isURL(s) {
			t.Errorf("isURL(%q) = false, want true", s)
		}
	}

	paths := []string{"docs/readme.md", "/var/data", "ftp://example.com", "httpdocs"}
	for _, s := range paths {
		if isURL(s) {
			t.Errorf("isURL(%q) = true, want false", s)
		}
	}
}

func TestIndexTarget_RoutesFilesAndDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "notes.md")
	content := "# Runbook\n\nRestart the worker before the broker, never after.\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store := &fakeIngestStore{}
	ing, err := ingest.New(store, ingest.Config{}, log.NewNop())
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}

	ctx := context.Background()

	res, err := indexTarget(ctx, ing, file)
	if err != nil {
		t.Fatalf("index file: %v", err)
	}
	if res.SourcesIndexed != 1 || res.ChunksAdded < 1 {
		t.Errorf("file result = %+v, want 1 source and chunks", res)
	}

	res, err = indexTarget(ctx, ing, dir)
	if err != nil {
		t.Fatalf("index directory: %v", err)
	}
	if res.SourcesIndexed != 1 {
		t.Errorf("directory result = %+v, want 1 source", res)
	}

	if _, err := indexTarget(ctx, ing, filepath.Join(dir, "missing.md")); err == nil {
		t.Error("missing path should error")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.added) == 0 {
		t.Error("no chunks reached the store")
	}
}
