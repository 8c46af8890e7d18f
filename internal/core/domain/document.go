package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusError      DocumentStatus = "error"
)

// Reprocessable reports whether a new extraction run may start from this status.
func (s DocumentStatus) Reprocessable() bool {
	return s == StatusUploaded || s == StatusCompleted || s == StatusError
}

type DocumentType string

const (
	DocumentTypeInvoice            DocumentType = "invoice"
	DocumentTypePackingList        DocumentType = "packing_list"
	DocumentTypeQualityCertificate DocumentType = "certificate_of_quality"
	DocumentTypeCustomsDeclaration DocumentType = "customs_declaration"
	DocumentTypeBillOfLading       DocumentType = "bill_of_lading"
	DocumentTypeOriginCertificate  DocumentType = "origin_certificate"
	DocumentTypeUnspecified        DocumentType = ""
)

func ParseDocumentType(raw string) (DocumentType, bool) {
	switch t := DocumentType(raw); t {
	case DocumentTypeInvoice, DocumentTypePackingList, DocumentTypeQualityCertificate,
		DocumentTypeCustomsDeclaration, DocumentTypeBillOfLading, DocumentTypeOriginCertificate,
		DocumentTypeUnspecified:
		return t, true
	default:
		return DocumentTypeUnspecified, false
	}
}

type ProcessingMode string

const (
	ModeSync       ProcessingMode = "sync"
	ModeBackground ProcessingMode = "background"
)

// ErrorDetail is stored next to a document that ended in StatusError.
type ErrorDetail struct {
	Message       string    `json:"message"`
	FailedAt      time.Time `json:"failed_at"`
	CleanupReason string    `json:"cleanup_reason,omitempty"`
}

type Document struct {
	ID           string            `json:"id"`
	Filename     string            `json:"filename"`
	MimeType     string            `json:"mime_type"`
	StoragePath  string            `json:"storage_path"`
	DocumentType DocumentType      `json:"document_type,omitempty"`
	Status       DocumentStatus    `json:"status"`
	Mode         ProcessingMode    `json:"processing_mode,omitempty"`
	JobID        string            `json:"job_id,omitempty"`
	RunSeq       int64             `json:"run_seq"`
	Report       *ExtractionReport `json:"extracted_data,omitempty"`
	Error        *ErrorDetail      `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// RunTicket identifies one extraction pass over a document. Writes that carry
// an outdated RunSeq are rejected with ErrStaleRun.
type RunTicket struct {
	DocumentID string         `json:"document_id"`
	RunSeq     int64          `json:"run_seq"`
	Mode       ProcessingMode `json:"mode"`
	JobID      string         `json:"job_id,omitempty"`
}

// RunOutcome is the single atomic write that ends a run.
type RunOutcome struct {
	Ticket RunTicket
	Status DocumentStatus
	Report *ExtractionReport
	Error  *ErrorDetail
}

// RecognizedText is the opaque OCR output consumed by extraction.
type RecognizedText struct {
	Text  string           `json:"text"`
	Words []WordConfidence `json:"words,omitempty"`
}

type WordConfidence struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// MeanConfidence averages per-word confidences; zero when none were supplied.
func (r RecognizedText) MeanConfidence() float64 {
	if len(r.Words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range r.Words {
		sum += w.Confidence
	}
	return sum / float64(len(r.Words))
}

// UploadOptions carries the per-upload choices made by the caller.
type UploadOptions struct {
	DocumentType    DocumentType
	ForceBackground bool
}
