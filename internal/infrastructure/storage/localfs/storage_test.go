package localfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
)

func TestSaveStatOpen(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "doc-1_gtd.pdf", strings.NewReader("declaration body")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	size, err := store.Stat(ctx, "doc-1_gtd.pdf")
	if err != nil || size != int64(len("declaration body")) {
		t.Fatalf("Stat() = %d, %v", size, err)
	}

	rc, err := store.Open(ctx, "doc-1_gtd.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	if string(raw) != "declaration body" {
		t.Fatalf("unexpected contents %q", raw)
	}
}

func TestMissingObjectIsFileMissing(t *testing.T) {
	store, _ := New(t.TempDir())

	if _, err := store.Stat(context.Background(), "nope.pdf"); !domain.IsKind(err, domain.ErrDocumentFileMissing) {
		t.Fatalf("expected ErrDocumentFileMissing from Stat, got %v", err)
	}
	if _, err := store.Open(context.Background(), "nope.pdf"); !domain.IsKind(err, domain.ErrDocumentFileMissing) {
		t.Fatalf("expected ErrDocumentFileMissing from Open, got %v", err)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	store, _ := New(t.TempDir())
	for _, key := range []string{"", "../secret", "/etc/passwd", "."} {
		if err := store.Save(context.Background(), key, strings.NewReader("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("Save(%q) expected ErrInvalidInput, got %v", key, err)
		}
	}
}
