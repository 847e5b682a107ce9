package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	maxJSONBodyBytes = 1 << 20
	multipartSlack   = 1 << 20
)

// RouterConfig holds settings for the API router.
// Passed from main.go so the router can configure CORS and static files from env vars.
type RouterConfig struct {
	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string

	// StaticDir holds the browser client. Not served when empty or missing.
	StaticDir string

	MaxUploadBytes int64
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (applied to all routes including /health)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// CORS: restrict origins when configured, otherwise allow all (dev mode)
	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		// The browser client reads these off the audio response.
		ExposedHeaders: []string{"X-Request-ID", "X-Seed", "X-Reference-Text-Source", "X-Speed-Applied"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	// Synthesis
	r.With(MaxBodySize(maxJSONBodyBytes)).Post("/tts", h.Synthesize)
	r.With(MaxBodySize(maxJSONBodyBytes)).Post("/tts/", h.Synthesize)

	// Jobs
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{requestId}", h.GetJob)
	r.Post("/jobs/{requestId}/cancel", h.CancelJob)
	r.Delete("/jobs/{requestId}", h.CancelJob)

	// Reference audio
	r.Route("/references", func(r chi.Router) {
		r.Get("/", h.ListReferences)
		r.With(MaxBodySize(cfg.MaxUploadBytes+multipartSlack)).Post("/", h.UploadReference)
		r.Get("/{collection}/{filename}", h.GetReference)
		r.Delete("/custom/{filename}", h.DeleteReference)
	})

	mountStatic(r, cfg.StaticDir)

	return r
}

// mountStatic serves index.html at / and the rest of dir under /static/.
func mountStatic(r chi.Router, dir string) {
	if dir == "" {
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return
	}

	index := filepath.Join(dir, "index.html")
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		if _, err := os.Stat(index); err != nil {
			respondError(w, http.StatusNotFound, "Not found")
			return
		}
		http.ServeFile(w, req, index)
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
}
