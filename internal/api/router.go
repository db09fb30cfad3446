package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shepelt/davmark/internal/localstore"
	"github.com/shepelt/davmark/internal/session"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *session.Controller, store *localstore.Store, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, store)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Tree mirror.
	r.Get("/tree", h.Tree)
	r.Post("/tree/expand", h.ExpandDir)
	r.Post("/tree/collapse", h.CollapseDir)
	r.Post("/tree/reveal", h.RevealPath)

	// Files.
	r.Post("/files", h.CreateFile)
	r.Post("/files/move", h.MoveFile)
	r.Get("/files/*", h.OpenFile)
	r.Put("/files/*", h.SaveFile)
	r.Delete("/files/*", h.DeleteFile)
	r.Post("/directories", h.CreateDirectory)

	// Session state.
	r.Post("/session/history", h.UpdateHistory)
	r.Post("/session/preview", h.StorePreview)

	// Settings.
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

// NewProxyRouter mounts the image proxy under its own router. The same auth
// middleware applies; image tags authenticate with the token query form.
func NewProxyRouter(proxy *ProxyHandler, authEnabled bool, token string) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))
	r.Get("/ext/{ref}", proxy.ServeExternal)
	r.Get("/*", proxy.ServeRemote)
	return r
}
