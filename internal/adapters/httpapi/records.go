package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"btxclinic/internal/core"
	"btxclinic/pkg/domain"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "bad json")
		return false
	}
	return true
}

func (h *handler) summary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Summary())
}

func (h *handler) getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Settings())
}

func (h *handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var in domain.Settings
	if !decodeJSON(w, r, &in) {
		return
	}
	saved, err := h.svc.SaveSettings(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *handler) listPatients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ListPatients(r.URL.Query().Get("q")))
}

func (h *handler) getPatient(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Patient(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) createPatient(w http.ResponseWriter, r *http.Request) {
	var in domain.Patient
	if !decodeJSON(w, r, &in) {
		return
	}
	p, _, err := h.svc.CreatePatient(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handler) updatePatient(w http.ResponseWriter, r *http.Request) {
	var in domain.Patient
	if !decodeJSON(w, r, &in) {
		return
	}
	p, _, err := h.svc.UpdatePatient(r.Context(), chi.URLParam(r, "id"), func(p *domain.Patient) error {
		*p = in
		return nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type cascadeResponse struct {
	core.CascadeResult
	OrphanedBlobs []string `json:"orphanedBlobs,omitempty"`
}

func (h *handler) deletePatient(w http.ResponseWriter, r *http.Request) {
	cascade, _, err := h.svc.DeletePatient(r.Context(), chi.URLParam(r, "id"))
	resp := cascadeResponse{CascadeResult: cascade}
	if err != nil {
		ids, ok := h.cleanupWarning(r, err)
		if !ok {
			h.fail(w, r, err)
			return
		}
		resp.OrphanedBlobs = ids
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) record(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Record(chi.URLParam(r, "id")))
}

func (h *handler) patientAppointments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Appointments(chi.URLParam(r, "id")))
}

func (h *handler) agenda(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Agenda(r.URL.Query().Get("date")))
}

func (h *handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	var in domain.Appointment
	if !decodeJSON(w, r, &in) {
		return
	}
	a, _, err := h.svc.CreateAppointment(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *handler) updateAppointment(w http.ResponseWriter, r *http.Request) {
	var in domain.Appointment
	if !decodeJSON(w, r, &in) {
		return
	}
	a, _, err := h.svc.UpdateAppointment(r.Context(), chi.URLParam(r, "id"), func(a *domain.Appointment) error {
		*a = in
		return nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handler) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.DeleteAppointment(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var in domain.Entry
	if !decodeJSON(w, r, &in) {
		return
	}
	e, _, err := h.svc.CreateEntry(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *handler) updateEntry(w http.ResponseWriter, r *http.Request) {
	var in domain.Entry
	if !decodeJSON(w, r, &in) {
		return
	}
	e, _, err := h.svc.UpdateEntry(r.Context(), chi.URLParam(r, "id"), func(e *domain.Entry) error {
		*e = in
		return nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.DeleteEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
