// Package textlayer turns stored documents into recognized text without an
// OCR engine: it reads OCR sidecar files written next to the upload, the text
// layer of PDFs, and plain UTF-8 text.
package textlayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/ports"
)

// SidecarSuffix is appended to a document's storage key to find OCR output
// produced by an external engine.
const SidecarSuffix = ".ocr.json"

type Recognizer struct {
	storage ports.ObjectStorage
}

func NewRecognizer(storage ports.ObjectStorage) *Recognizer {
	return &Recognizer{storage: storage}
}

type sidecar struct {
	Text  string                  `json:"text"`
	Words []domain.WordConfidence `json:"words"`
}

func (r *Recognizer) Recognize(ctx context.Context, doc *domain.Document) (domain.RecognizedText, error) {
	if text, ok, err := r.fromSidecar(ctx, doc); err != nil || ok {
		return text, err
	}

	reader, err := r.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return domain.RecognizedText{}, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return domain.RecognizedText{}, fmt.Errorf("read source document: %w", err)
	}

	switch {
	case isPDF(doc, raw):
		text, err := pdfText(raw)
		if err != nil {
			return domain.RecognizedText{}, err
		}
		return domain.RecognizedText{Text: text}, nil
	case utf8.Valid(raw):
		return domain.RecognizedText{Text: strings.TrimSpace(string(raw))}, nil
	default:
		return domain.RecognizedText{}, domain.WrapError(
			domain.ErrInvalidInput,
			"recognize document",
			fmt.Errorf("%s has no text layer and no %s sidecar", doc.Filename, SidecarSuffix),
		)
	}
}

func (r *Recognizer) fromSidecar(ctx context.Context, doc *domain.Document) (domain.RecognizedText, bool, error) {
	reader, err := r.storage.Open(ctx, doc.StoragePath+SidecarSuffix)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentFileMissing) {
			return domain.RecognizedText{}, false, nil
		}
		return domain.RecognizedText{}, false, fmt.Errorf("open ocr sidecar: %w", err)
	}
	defer reader.Close()

	var sc sidecar
	if err := json.NewDecoder(reader).Decode(&sc); err != nil {
		return domain.RecognizedText{}, false, domain.WrapError(domain.ErrInvalidInput, "decode ocr sidecar", err)
	}
	return domain.RecognizedText{Text: sc.Text, Words: sc.Words}, true, nil
}

func isPDF(doc *domain.Document, raw []byte) bool {
	if doc.MimeType == "application/pdf" || strings.EqualFold(filepath.Ext(doc.Filename), ".pdf") {
		return true
	}
	return bytes.HasPrefix(raw, []byte("%PDF-"))
}

// pdfText joins the plain text of every page, one page per block.
func pdfText(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "open pdf", err)
	}
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", domain.WrapError(domain.ErrInvalidInput, "read pdf page", fmt.Errorf("page %d: %w", i, err))
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimSpace(text))
	}
	return b.String(), nil
}
