package gitarchive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestArchiveLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	seed, err := svc.Init("doc-1", "The Supplier shall deliver.", "Avery", "v1.0: Document uploaded and analyzed")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if seed.Hash == "" {
		t.Fatal("expected seed commit hash")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "doc-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	commit, err := svc.CommitVersion("doc-1", "The Supplier shall deliver within 30 days.", "Avery", "v1.1: Accepted safer alternative for 'Delivery'")
	if err != nil {
		t.Fatalf("CommitVersion() error = %v", err)
	}
	if commit.Hash == "" || commit.Hash == seed.Hash {
		t.Fatalf("expected a new commit hash, got %q (seed %q)", commit.Hash, seed.Hash)
	}

	history, err := svc.History("doc-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(history))
	}
	if !strings.HasPrefix(history[0].Message, "v1.1:") {
		t.Fatalf("expected newest commit first, got %q", history[0].Message)
	}

	snapshot, err := svc.SnapshotByHash("doc-1", commit.Hash)
	if err != nil {
		t.Fatalf("SnapshotByHash() error = %v", err)
	}
	if snapshot != "The Supplier shall deliver within 30 days." {
		t.Fatalf("unexpected snapshot: %q", snapshot)
	}

	original, err := svc.SnapshotByHash("doc-1", seed.Hash)
	if err != nil {
		t.Fatalf("SnapshotByHash() seed error = %v", err)
	}
	if original != "The Supplier shall deliver." {
		t.Fatalf("unexpected seed snapshot: %q", original)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first, err := svc.Init("doc-1", "Text A.", "Avery", "v1.0: Document uploaded and analyzed")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	second, err := svc.Init("doc-1", "Text B.", "Avery", "v1.0: Document uploaded and analyzed")
	if err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	if first.Hash != second.Hash {
		t.Fatalf("expected second Init to return the existing head, got %q vs %q", first.Hash, second.Hash)
	}
}

func TestConcurrentCommitsSameDocument(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if _, err := svc.Init("doc-1", "Base text.", "Avery", "v1.0: Document uploaded and analyzed"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			snapshot := fmt.Sprintf("Revised text %02d.", idx)
			message := fmt.Sprintf("v1.%d: concurrent revision", idx+1)
			if _, err := svc.CommitVersion("doc-1", snapshot, "Avery", message); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("CommitVersion() concurrent error = %v", err)
		}
	}

	history, err := svc.History("doc-1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers+1 {
		t.Fatalf("expected %d commits, got %d", writers+1, len(history))
	}
}
