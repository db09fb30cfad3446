package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shepelt/davmark/internal/apperr"
	"github.com/shepelt/davmark/internal/localstore"
	"github.com/shepelt/davmark/internal/session"
	"github.com/shepelt/davmark/internal/tree"
)

// Handler holds API route handlers over the session controller.
type Handler struct {
	svc   *session.Controller
	store *localstore.Store
}

// NewHandler creates a new Handler.
func NewHandler(svc *session.Controller, store *localstore.Store) *Handler {
	return &Handler{svc: svc, store: store}
}

// filePath extracts the rooted file path from the URL (everything after the
// route prefix). Supports encoded slashes from OpenAPI clients
// (e.g. Notes%2Fdraft.md).
func filePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return "/" + raw
}

// writeServiceError maps domain errors onto HTTP statuses. Remote transport
// failures surface as 502: the gateway is fine, the WebDAV server is not.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, apperr.ErrSaveInFlight):
		writeJSON(w, http.StatusConflict, errorBody("save already in flight"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("conflict"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("upstream error"))
	}
}

// Tree handles GET /api/tree.
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dir := q.Get("dir")
	if dir == "" {
		dir = "/"
	}
	refresh, _ := strconv.ParseBool(q.Get("refresh"))

	order := h.svc.SortOrder()
	if raw := q.Get("sort"); raw != "" {
		parsed, err := tree.ParseSort(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid sort"))
			return
		}
		order = parsed
	}

	nodes, err := h.svc.ListDirSorted(r.Context(), dir, refresh, order)
	if err != nil {
		writeServiceError(w, "list "+dir, err)
		return
	}
	if nodes == nil {
		nodes = []tree.Node{}
	}
	writeJSON(w, http.StatusOK, TreeResponse{Dir: dir, Nodes: nodes})
}

// ExpandDir handles POST /api/tree/expand.
func (h *Handler) ExpandDir(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dir string `json:"dir"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Dir == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("dir is required"))
		return
	}
	if err := h.svc.Expand(r.Context(), req.Dir); err != nil {
		writeServiceError(w, "expand "+req.Dir, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CollapseDir handles POST /api/tree/collapse.
func (h *Handler) CollapseDir(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dir string `json:"dir"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Dir == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("dir is required"))
		return
	}
	h.svc.Collapse(req.Dir)
	w.WriteHeader(http.StatusNoContent)
}

// RevealPath handles POST /api/tree/reveal.
func (h *Handler) RevealPath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.Reveal(r.Context(), req.Path); err != nil {
		writeServiceError(w, "reveal "+req.Path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OpenFile handles GET /api/files/*.
func (h *Handler) OpenFile(w http.ResponseWriter, r *http.Request) {
	p := filePath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	res, err := h.svc.Open(r.Context(), p)
	if err != nil {
		writeServiceError(w, "open "+p, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SaveFile handles PUT /api/files/*.
func (h *Handler) SaveFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	p := filePath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req SaveFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.Save(r.Context(), p, req.Content, req.UndoLen, req.RedoLen); err != nil {
		writeServiceError(w, "save "+p, err)
		return
	}
	writeJSON(w, http.StatusOK, DirtyResponse{Dirty: h.svc.Dirty()})
}

// CreateFile handles POST /api/files.
func (h *Handler) CreateFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.CreateFile(r.Context(), req.Path, req.Content); err != nil {
		writeServiceError(w, "create "+req.Path, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": req.Path})
}

// CreateDirectory handles POST /api/directories.
func (h *Handler) CreateDirectory(w http.ResponseWriter, r *http.Request) {
	var req CreateDirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.CreateDirectory(r.Context(), req.Path); err != nil {
		writeServiceError(w, "mkdir "+req.Path, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": req.Path})
}

// MoveFile handles POST /api/files/move.
func (h *Handler) MoveFile(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return
	}
	if err := h.svc.Rename(r.Context(), req.From, req.To); err != nil {
		writeServiceError(w, "move "+req.From, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteFile handles DELETE /api/files/*.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	p := filePath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.Delete(r.Context(), p); err != nil {
		writeServiceError(w, "delete "+p, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateHistory handles POST /api/session/history.
func (h *Handler) UpdateHistory(w http.ResponseWriter, r *http.Request) {
	var req HistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	writeJSON(w, http.StatusOK, DirtyResponse{Dirty: h.svc.UpdateHistory(req.UndoLen, req.RedoLen)})
}

// StorePreview handles POST /api/session/preview.
func (h *Handler) StorePreview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.EditorReady(req.Path, req.HTML); err != nil {
		slog.Error("store preview failed", slog.String("path", req.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings handles GET /api/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	lastOpened, err := h.store.GetSetting(localstore.KeyLastOpened)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	restoreRaw, _ := h.store.GetSetting(localstore.KeyRestoreLast)
	restore, _ := strconv.ParseBool(restoreRaw)
	writeJSON(w, http.StatusOK, SettingsResponse{
		LastOpened:  lastOpened,
		RestoreLast: restore,
		SortOrder:   h.svc.SortOrder().String(),
	})
}

// UpdateSettings handles PUT /api/settings. Absent fields are untouched.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.SortOrder != nil {
		order, err := tree.ParseSort(*req.SortOrder)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid sort order"))
			return
		}
		if err := h.svc.SetSortOrder(order); err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
	}
	if req.RestoreLast != nil {
		if err := h.store.PutSetting(localstore.KeyRestoreLast, strconv.FormatBool(*req.RestoreLast)); err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
	}
	h.GetSettings(w, r)
}
