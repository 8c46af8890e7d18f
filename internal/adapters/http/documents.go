package httpadapter

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
)

const multipartMemory = 32 << 20

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload exceeds size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form is required"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	force, err := parseForceBackground(r.FormValue("force_background"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	docType, ok := domain.ParseDocumentType(strings.TrimSpace(r.FormValue("document_type")))
	if !ok {
		writeError(w, r, domain.WrapError(
			domain.ErrInvalidInput,
			"upload document",
			fmt.Errorf("unknown document type %q", r.FormValue("document_type")),
		), nil)
		return
	}

	doc, result, err := rt.svc.Ingest.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		domain.UploadOptions{DocumentType: docType, ForceBackground: force},
		file,
	)
	if err != nil {
		extra := map[string]any{}
		if doc != nil {
			extra["document"] = doc
		}
		if result != nil {
			extra["processing"] = result
		}
		writeError(w, r, err, extra)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"document":   doc,
		"processing": result,
	})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.svc.Documents.GetByID(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) dispatchDocument(w http.ResponseWriter, r *http.Request) {
	force, err := parseForceBackground(r.URL.Query().Get("force_background"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	result, err := rt.svc.Dispatcher.Dispatch(r.Context(), chi.URLParam(r, "documentID"), force)
	writeDispatchResult(w, r, result, err)
}

func (rt *Router) reprocessDocument(w http.ResponseWriter, r *http.Request) {
	force, err := parseForceBackground(r.URL.Query().Get("force_background"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	result, err := rt.svc.Dispatcher.Reprocess(r.Context(), chi.URLParam(r, "documentID"), force)
	writeDispatchResult(w, r, result, err)
}

func writeDispatchResult(w http.ResponseWriter, r *http.Request, result *domain.DispatchResult, err error) {
	if err != nil {
		var extra map[string]any
		if result != nil {
			extra = map[string]any{"processing": result}
		}
		writeError(w, r, err, extra)
		return
	}
	status := http.StatusOK
	if result.Mode == domain.ModeBackground {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func (rt *Router) processingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := rt.svc.Dispatcher.Status(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) processingHealth(w http.ResponseWriter, r *http.Request) {
	health, err := rt.svc.Dispatcher.Health(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	code := http.StatusOK
	if !health.QueueConnected {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

func (rt *Router) extractText(w http.ResponseWriter, r *http.Request) {
	var req domain.RecognizedText
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	report, err := rt.svc.Extractor.ExtractText(r.Context(), req)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func parseForceBackground(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.WrapError(domain.ErrInvalidInput, "parse force_background", err)
	}
	return v, nil
}
