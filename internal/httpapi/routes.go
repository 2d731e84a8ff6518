package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Routes wires chi's router over api. authRequired gates /prompt, /stream,
// and /resume behind RequireAuth; /healthz is always open.
func Routes(api *API, authRequired bool, jwtSecret, jwtIssuer string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/healthz", api.HandleHealth)

	r.Group(func(r chi.Router) {
		if authRequired {
			r.Use(RequireAuth(jwtSecret, jwtIssuer, logger))
		}
		r.Post("/prompt", api.HandlePrompt)
		r.Get("/stream", api.HandleStream)
		r.Get("/resume", api.HandleResume)
	})

	return r
}
