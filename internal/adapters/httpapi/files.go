package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"btxclinic/internal/core"
	"btxclinic/pkg/domain"
)

type galleryItem struct {
	Rx          domain.RxMeta `json:"rx"`
	ContentType string        `json:"contentType,omitempty"`
	DataURL     string        `json:"dataURL,omitempty"`
	Missing     bool          `json:"missing"`
}

func (h *handler) gallery(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Gallery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]galleryItem, 0, len(items))
	for _, item := range items {
		out = append(out, galleryItem{Rx: item.Rx, ContentType: item.ContentType, DataURL: item.DataURL(), Missing: item.Missing})
	}
	writeJSON(w, http.StatusOK, out)
}

// attachRx accepts multipart uploads under the "files" field.
func (h *handler) attachRx(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		badRequest(w, "invalid multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var uploads []core.Upload
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			h.fail(w, r, fmt.Errorf("open upload %s: %w", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			h.fail(w, r, fmt.Errorf("read upload %s: %w", fh.Filename, err))
			return
		}
		mime := fh.Header.Get("Content-Type")
		if mime == "application/octet-stream" {
			mime = ""
		}
		uploads = append(uploads, core.Upload{Name: fh.Filename, Mime: mime, Data: data})
	}

	rows, _, err := h.svc.AttachRx(r.Context(), chi.URLParam(r, "id"), uploads)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rows)
}

func (h *handler) openRx(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.OpenRx(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if item.ContentType != "" {
		w.Header().Set("Content-Type", item.ContentType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(item.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(item.Data)
}

func (h *handler) deleteRx(w http.ResponseWriter, r *http.Request) {
	_, err := h.svc.DeleteRx(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if ids, ok := h.cleanupWarning(r, err); ok {
			writeJSON(w, http.StatusOK, map[string]any{"orphanedBlobs": ids})
			return
		}
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type draftResponse struct {
	Type  domain.DocumentType `json:"type"`
	Saved bool                `json:"saved"`
	Draft domain.Draft        `json:"draft"`
}

func (h *handler) getDraft(w http.ResponseWriter, r *http.Request) {
	t := domain.DocumentType(chi.URLParam(r, "type"))
	d, ok, err := h.svc.Draft(t)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draftResponse{Type: t, Saved: ok, Draft: d})
}

func (h *handler) putDraft(w http.ResponseWriter, r *http.Request) {
	t, err := domain.ParseDocumentType(chi.URLParam(r, "type"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		badRequest(w, "unreadable body")
		return
	}
	d, err := domain.DecodeDraft(t, body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.SaveDraft(r.Context(), d); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draftResponse{Type: t, Saved: true, Draft: d})
}

func (h *handler) documentContext(w http.ResponseWriter, r *http.Request) {
	dc, err := h.svc.DocumentContext(domain.DocumentType(chi.URLParam(r, "type")), r.URL.Query().Get("patientId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dc)
}

func (h *handler) exportBackup(w http.ResponseWriter, r *http.Request) {
	name, body, err := h.svc.ExportJSON(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *handler) importBackup(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "backup too large"})
			return
		}
		badRequest(w, "unreadable body")
		return
	}
	report, err := h.svc.Import(r.Context(), body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) wipe(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Wipe(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
