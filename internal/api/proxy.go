package api

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shepelt/davmark/internal/apperr"
	"github.com/shepelt/davmark/internal/remote"
)

const maxProxyBytes = 50 << 20 // 50 MB

// ProxyHandler serves image bytes referenced from display-form markdown:
// same-origin references are read from the remote, external references
// (base64url of the original URL) are fetched outbound.
type ProxyHandler struct {
	remote remote.Client
	client *http.Client
}

// NewProxyHandler creates a handler over the remote client.
func NewProxyHandler(rc remote.Client) *ProxyHandler {
	return &ProxyHandler{
		remote: rc,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// ServeRemote handles GET /proxy/* for files under the WebDAV root.
func (h *ProxyHandler) ServeRemote(w http.ResponseWriter, r *http.Request) {
	p := filePath(r)
	if p == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}
	res, err := h.remote.Read(r.Context(), p, remote.Conditional{})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		slog.Error("proxy read failed", slog.String("path", p), slog.String("error", err.Error()))
		http.Error(w, "upstream error", http.StatusBadGateway)
		return
	}

	ct := mime.TypeByExtension(path.Ext(p))
	if ct == "" {
		ct = http.DetectContentType(res.Content)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "max-age=300")
	_, _ = w.Write(res.Content)
}

// ServeExternal handles GET /proxy/ext/{ref} where ref is the base64url
// encoding of the original absolute URL.
func (h *ProxyHandler) ServeExternal(w http.ResponseWriter, r *http.Request) {
	raw, err := base64.RawURLEncoding.DecodeString(chi.URLParam(r, "ref"))
	if err != nil {
		http.Error(w, "invalid reference", http.StatusBadRequest)
		return
	}
	target, err := url.Parse(string(raw))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		http.Error(w, "invalid reference", http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		http.Error(w, "invalid reference", http.StatusBadRequest)
		return
	}
	resp, err := h.client.Do(req)
	if err != nil {
		slog.Warn("external proxy fetch failed", slog.String("url", target.String()), slog.String("error", err.Error()))
		http.Error(w, "upstream error", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "upstream error", http.StatusBadGateway)
		return
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" || strings.HasPrefix(ct, "text/html") {
		// Never reflect upstream HTML into the editor origin.
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "max-age=300")
	_, _ = io.Copy(w, io.LimitReader(resp.Body, maxProxyBytes))
}
