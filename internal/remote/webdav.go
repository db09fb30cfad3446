package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/studio-b12/gowebdav"

	"github.com/shepelt/davmark/internal/apperr"
)

// DAV implements Client against a WebDAV server. Structural operations
// (list, write, delete, move, mkdir) go through gowebdav; reads use a plain
// HTTP GET so the cache validators can be sent as conditional headers.
type DAV struct {
	dav      *gowebdav.Client
	httpc    *http.Client
	base     *url.URL
	username string
	password string
}

// NewDAV creates a WebDAV client rooted at baseURL. Credentials may be
// empty for unauthenticated servers.
func NewDAV(baseURL, username, password string) (*DAV, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", u.Scheme)
	}
	c := gowebdav.NewClient(baseURL, username, password)
	return &DAV{
		dav:      c,
		httpc:    &http.Client{Timeout: 30 * time.Second},
		base:     u,
		username: username,
		password: password,
	}, nil
}

// fileURL resolves a remote path against the base URL. Path segments are
// escaped individually so slashes survive.
func (d *DAV) fileURL(remotePath string) string {
	u := *d.base
	segments := strings.Split(strings.TrimPrefix(remotePath, "/"), "/")
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	joined := strings.TrimSuffix(u.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	u.RawPath = ""
	u.Path = ""
	u.Opaque = ""
	return u.Scheme + "://" + u.Host + joined
}

// List returns the direct children of dir.
func (d *DAV) List(ctx context.Context, dir string) ([]Entry, error) {
	infos, err := d.dav.ReadDir(dir)
	if err != nil {
		if gowebdav.IsErrNotFound(err) {
			return nil, fmt.Errorf("remote: list %s: %w", dir, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("remote: list %s: %w", dir, err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, Entry{
			Filename:     path.Join("/", dir, fi.Name()),
			Basename:     fi.Name(),
			IsDir:        fi.IsDir(),
			Size:         fi.Size(),
			LastModified: fi.ModTime(),
		})
	}
	return entries, nil
}

// Read fetches a file with a conditional GET. A 304 response maps to
// ReadResult{NotModified: true}.
func (d *DAV) Read(ctx context.Context, remotePath string, cond Conditional) (*ReadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.fileURL(remotePath), nil)
	if err != nil {
		return nil, fmt.Errorf("remote: read %s: %w", remotePath, err)
	}
	if d.username != "" || d.password != "" {
		req.SetBasicAuth(d.username, d.password)
	}
	if cond.ETag != "" {
		req.Header.Set("If-None-Match", cond.ETag)
	}
	if cond.LastModified != "" {
		req.Header.Set("If-Modified-Since", cond.LastModified)
	}

	resp, err := d.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: read %s: %w", remotePath, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &ReadResult{NotModified: true}, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("remote: read %s: %w", remotePath, apperr.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("remote: read %s: status %d", remotePath, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: read %s: %w", remotePath, err)
	}
	return &ReadResult{
		Content:      body,
		ETag:         resp.Header.Get("Etag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

// Write stores content at path, overwriting any existing file.
func (d *DAV) Write(_ context.Context, remotePath string, content []byte) error {
	if err := d.dav.Write(remotePath, content, 0o644); err != nil {
		return fmt.Errorf("remote: write %s: %w", remotePath, err)
	}
	return nil
}

// Delete removes a file or directory subtree.
func (d *DAV) Delete(_ context.Context, remotePath string) error {
	if err := d.dav.RemoveAll(remotePath); err != nil {
		if gowebdav.IsErrNotFound(err) {
			return fmt.Errorf("remote: delete %s: %w", remotePath, apperr.ErrNotFound)
		}
		return fmt.Errorf("remote: delete %s: %w", remotePath, err)
	}
	return nil
}

// Move renames from to to without overwrite. A 412 from the server means
// the destination exists.
func (d *DAV) Move(_ context.Context, from, to string) error {
	if err := d.dav.Rename(from, to, false); err != nil {
		if gowebdav.IsErrCode(err, http.StatusPreconditionFailed) {
			return fmt.Errorf("remote: move %s to %s: %w", from, to, apperr.ErrAlreadyExists)
		}
		if gowebdav.IsErrNotFound(err) {
			return fmt.Errorf("remote: move %s: %w", from, apperr.ErrNotFound)
		}
		return fmt.Errorf("remote: move %s to %s: %w", from, to, err)
	}
	return nil
}

// CreateFile creates a new file, refusing to clobber an existing one.
func (d *DAV) CreateFile(ctx context.Context, remotePath string, content []byte) error {
	if _, err := d.dav.Stat(remotePath); err == nil {
		return fmt.Errorf("remote: create %s: %w", remotePath, apperr.ErrAlreadyExists)
	}
	return d.Write(ctx, remotePath, content)
}

// CreateDirectory creates a single directory. A 405 from the server means
// the collection already exists.
func (d *DAV) CreateDirectory(_ context.Context, remotePath string) error {
	if err := d.dav.Mkdir(remotePath, 0o755); err != nil {
		if gowebdav.IsErrCode(err, http.StatusMethodNotAllowed) {
			return fmt.Errorf("remote: mkdir %s: %w", remotePath, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("remote: mkdir %s: %w", remotePath, err)
	}
	return nil
}

// Verify DAV satisfies Client at compile time.
var _ Client = (*DAV)(nil)
