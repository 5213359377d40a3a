package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/almanac/internal/memoservice"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events behind the same auth.
func NewRouter(svc *memoservice.Service, sessions *Sessions, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, sessions)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/windows", func(r chi.Router) {
		r.Get("/", h.ListWindows)
		r.Post("/", h.CreateWindow)
		r.Put("/{id}", h.UpdateWindow)
		r.Delete("/{id}", h.DeleteWindow)
	})

	// windowID may be a window id, "all" or "combined".
	r.Get("/memos/{year}/{windowID}", h.GetMemo)
	r.Put("/memos/{year}/{windowID}", h.PutMemo)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.OpenSession)
		r.Get("/{id}", h.GetSession)
		r.Put("/{id}/draft", h.EditDraft)
		r.Post("/{id}/switch", h.SwitchWindow)
		r.Delete("/{id}", h.CloseSession)
	})

	r.Route("/plans", func(r chi.Router) {
		r.Get("/", h.ListPlans)
		r.Post("/", h.CreatePlan)
		r.Put("/{id}", h.UpdatePlan)
		r.Delete("/{id}", h.DeletePlan)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
