package textlayer

import (
	"context"
	"strings"
	"testing"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
	"github.com/joseffiran/SilkRouteHelper-1/internal/infrastructure/storage/localfs"
)

func newStore(t *testing.T) *localfs.Storage {
	t.Helper()
	store, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	return store
}

func TestRecognizePrefersSidecar(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_ = store.Save(ctx, "doc-1_scan.png", strings.NewReader("\x89PNG\r\n\x1a\n"))
	_ = store.Save(ctx, "doc-1_scan.png"+SidecarSuffix, strings.NewReader(
		`{"text":"Валюта: USD","words":[{"text":"Валюта:","confidence":1},{"text":"USD","confidence":0.5}]}`,
	))

	text, err := NewRecognizer(store).Recognize(ctx, &domain.Document{
		Filename: "scan.png", MimeType: "image/png", StoragePath: "doc-1_scan.png",
	})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text.Text != "Валюта: USD" || len(text.Words) != 2 || text.MeanConfidence() != 0.75 {
		t.Fatalf("unexpected recognized text: %+v", text)
	}
}

func TestRecognizePlainText(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_ = store.Save(ctx, "doc-2_gtd.txt", strings.NewReader("  ДЕКЛАРАЦИЯ НА ТОВАРЫ\n"))

	text, err := NewRecognizer(store).Recognize(ctx, &domain.Document{
		Filename: "gtd.txt", MimeType: "text/plain", StoragePath: "doc-2_gtd.txt",
	})
	if err != nil || text.Text != "ДЕКЛАРАЦИЯ НА ТОВАРЫ" {
		t.Fatalf("Recognize() = %+v, %v", text, err)
	}
}

func TestRecognizeBinaryWithoutTextLayer(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_ = store.Save(ctx, "doc-3_scan.png", strings.NewReader("\x89PNG\r\n\x1a\n\xff\xfe"))

	_, err := NewRecognizer(store).Recognize(ctx, &domain.Document{
		Filename: "scan.png", MimeType: "image/png", StoragePath: "doc-3_scan.png",
	})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRecognizeMissingFile(t *testing.T) {
	_, err := NewRecognizer(newStore(t)).Recognize(context.Background(), &domain.Document{
		Filename: "gone.pdf", StoragePath: "gone.pdf",
	})
	if !domain.IsKind(err, domain.ErrDocumentFileMissing) {
		t.Fatalf("expected ErrDocumentFileMissing, got %v", err)
	}
}

func TestRecognizeCorruptPDF(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_ = store.Save(ctx, "doc-4.pdf", strings.NewReader("%PDF-1.4 truncated"))

	_, err := NewRecognizer(store).Recognize(ctx, &domain.Document{
		Filename: "doc-4.pdf", MimeType: "application/pdf", StoragePath: "doc-4.pdf",
	})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unreadable pdf, got %v", err)
	}
}
