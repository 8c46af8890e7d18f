package httpadapter

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
)

func (rt *Router) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := rt.svc.Templates.List(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (rt *Router) createTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl domain.Template
	if err := decodeJSON(r, &tpl); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := rt.svc.Templates.Create(r.Context(), &tpl); err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

func (rt *Router) activeTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := rt.svc.Templates.ActiveTemplate(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (rt *Router) getTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := rt.svc.Templates.Get(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (rt *Router) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := rt.svc.Templates.Delete(r.Context(), chi.URLParam(r, "templateID")); err != nil {
		writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) activateTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := rt.svc.Templates.SetActive(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (rt *Router) listFields(w http.ResponseWriter, r *http.Request) {
	fields, err := rt.svc.Templates.ListFields(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
}

func (rt *Router) addField(w http.ResponseWriter, r *http.Request) {
	var field domain.FieldDefinition
	if err := decodeJSON(r, &field); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := rt.svc.Templates.AddField(r.Context(), chi.URLParam(r, "templateID"), &field); err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, field)
}

func (rt *Router) updateField(w http.ResponseWriter, r *http.Request) {
	var field domain.FieldDefinition
	if err := decodeJSON(r, &field); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	field.Name = chi.URLParam(r, "fieldName")
	if err := rt.svc.Templates.UpdateField(r.Context(), chi.URLParam(r, "templateID"), &field); err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, field)
}

func (rt *Router) deleteField(w http.ResponseWriter, r *http.Request) {
	err := rt.svc.Templates.DeleteField(r.Context(), chi.URLParam(r, "templateID"), chi.URLParam(r, "fieldName"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
