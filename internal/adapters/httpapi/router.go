// Package httpapi exposes the coordinator over a local JSON HTTP surface.
package httpapi

import (
	"expvar"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"btxclinic/internal/core"
)

// Options configures optional router features.
type Options struct {
	AllowedOrigins []string
	Logger         core.Logger
	Gatherer       prometheus.Gatherer // mounts /metrics when set
	Expvar         bool                // mounts /debug/vars
	MaxUploadBytes int64               // bounds multipart and backup bodies; zero means 64 MiB
}

const defaultMaxUploadBytes = 64 << 20

type handler struct {
	svc       *core.Service
	logger    core.Logger
	maxUpload int64
}

// NewRouter wires every route onto a chi router.
func NewRouter(svc *core.Service, opts Options) http.Handler {
	h := &handler{svc: svc, logger: opts.Logger, maxUpload: opts.MaxUploadBytes}
	if h.logger == nil {
		h.logger = nopLogger{}
	}
	if h.maxUpload <= 0 {
		h.maxUpload = defaultMaxUploadBytes
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			ExposedHeaders: []string{"X-Request-Id", "Content-Disposition"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", h.health)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.Expvar {
		r.Handle("/debug/vars", expvar.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/summary", h.summary)
		r.Get("/settings", h.getSettings)
		r.Put("/settings", h.putSettings)

		r.Route("/patients", func(r chi.Router) {
			r.Get("/", h.listPatients)
			r.Post("/", h.createPatient)
			r.Get("/{id}", h.getPatient)
			r.Put("/{id}", h.updatePatient)
			r.Delete("/{id}", h.deletePatient)
			r.Get("/{id}/record", h.record)
			r.Get("/{id}/appointments", h.patientAppointments)
			r.Get("/{id}/gallery", h.gallery)
			r.Post("/{id}/rx", h.attachRx)
		})

		r.Get("/rx/{id}", h.openRx)
		r.Delete("/rx/{id}", h.deleteRx)

		r.Get("/agenda", h.agenda)
		r.Post("/appointments", h.createAppointment)
		r.Put("/appointments/{id}", h.updateAppointment)
		r.Delete("/appointments/{id}", h.deleteAppointment)

		r.Post("/entries", h.createEntry)
		r.Put("/entries/{id}", h.updateEntry)
		r.Delete("/entries/{id}", h.deleteEntry)

		r.Get("/drafts/{type}", h.getDraft)
		r.Put("/drafts/{type}", h.putDraft)
		r.Get("/documents/{type}", h.documentContext)

		r.Get("/backup", h.exportBackup)
		r.Post("/backup", h.importBackup)
		r.Delete("/state", h.wipe)
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
