// Package session orchestrates the editor session: cache-first opens with
// background revalidation, serialized saves, reference rewriting, and the
// mutations that keep the tree mirror consistent with the remote.
package session

import (
	"context"
	"log/slog"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shepelt/davmark/internal/apperr"
	"github.com/shepelt/davmark/internal/checksum"
	"github.com/shepelt/davmark/internal/dirty"
	"github.com/shepelt/davmark/internal/localstore"
	"github.com/shepelt/davmark/internal/preview"
	"github.com/shepelt/davmark/internal/refrewrite"
	"github.com/shepelt/davmark/internal/remote"
	"github.com/shepelt/davmark/internal/tree"
)

// NotifyFunc receives broadcast-worthy events (file.updated, file.saved,
// tree.changed) with the affected path.
type NotifyFunc func(event, path string)

// Controller is the single active editor session and the only writer of
// the cache and tree mirror.
type Controller struct {
	remote   remote.Client
	store    *localstore.Store
	tree     *tree.Store
	renderer *preview.Renderer
	rewrite  refrewrite.Options
	logger   *slog.Logger
	notify   NotifyFunc

	// Collapses concurrent revalidations for the same path.
	reval singleflight.Group

	mu      sync.Mutex
	current string
	tracker *dirty.Tracker
	saving  bool
}

// New creates a controller. notify may be nil.
func New(rc remote.Client, store *localstore.Store, ts *tree.Store, r *preview.Renderer, rewrite refrewrite.Options, logger *slog.Logger, notify NotifyFunc) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if notify == nil {
		notify = func(string, string) {}
	}
	return &Controller{
		remote:   rc,
		store:    store,
		tree:     ts,
		renderer: r,
		rewrite:  rewrite,
		logger:   logger,
		notify:   notify,
		tracker:  dirty.New(),
	}
}

// OpenResult is everything the UI needs to show a file.
type OpenResult struct {
	Path      string `json:"path"`
	Content   string `json:"content"` // display form, ready for the editor
	FromCache bool   `json:"from_cache"`
	Preview   string `json:"preview,omitempty"` // markup for the dimmed placeholder
}

// Open makes path the active file. On a cache hit the cached content is
// returned immediately and a revalidation runs in the background; on a
// miss the remote read blocks so the UI never mounts an empty editor for
// a file that has content.
func (c *Controller) Open(ctx context.Context, p string) (*OpenResult, error) {
	c.mu.Lock()
	c.current = p
	c.tracker = dirty.New()
	c.mu.Unlock()

	if err := c.store.PutSetting(localstore.KeyLastOpened, p); err != nil {
		c.logger.Warn("persist last opened failed", slog.String("error", err.Error()))
	}

	entry, ok, err := c.store.GetEntry(p)
	if err != nil {
		// A broken cache read degrades to a miss.
		c.logger.Warn("cache read failed", slog.String("path", p), slog.String("error", err.Error()))
		ok = false
	}

	if ok {
		go c.revalidate(p, remote.Conditional{ETag: entry.ETag, LastModified: entry.LastModified})
		return &OpenResult{
			Path:      p,
			Content:   refrewrite.Forward(entry.Content, path.Dir(p), c.rewrite),
			FromCache: true,
			Preview:   c.previewFor(p, entry.Content),
		}, nil
	}

	res, err := c.remote.Read(ctx, p, remote.Conditional{})
	if err != nil {
		return nil, err
	}
	if err := c.store.PutEntry(localstore.CacheEntry{
		Path:         p,
		Content:      string(res.Content),
		ETag:         res.ETag,
		LastModified: res.LastModified,
	}); err != nil {
		c.logger.Warn("cache write failed", slog.String("path", p), slog.String("error", err.Error()))
	}
	return &OpenResult{
		Path:    p,
		Content: refrewrite.Forward(string(res.Content), path.Dir(p), c.rewrite),
		Preview: c.previewFor(p, string(res.Content)),
	}, nil
}

// previewFor returns the stored editor snapshot for p, falling back to a
// server-side render of the cached markdown. Best effort only.
func (c *Controller) previewFor(p, content string) string {
	if html, ok, err := c.store.GetPreview(p); err == nil && ok {
		return html
	}
	if c.renderer == nil || content == "" {
		return ""
	}
	display := refrewrite.Forward(content, path.Dir(p), c.rewrite)
	html, err := c.renderer.Render(display)
	if err != nil {
		c.logger.Warn("preview render failed", slog.String("path", p), slog.String("error", err.Error()))
		return ""
	}
	return html
}

// revalidate runs the conditional background read for p. A response that
// arrives after the user switched files is discarded by comparing p with
// the session's current path at completion time; no cancellation is used.
func (c *Controller) revalidate(p string, cond remote.Conditional) {
	_, _, _ = c.reval.Do(p, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		res, err := c.remote.Read(ctx, p, cond)

		c.mu.Lock()
		current := c.current
		c.mu.Unlock()
		if current != p {
			c.logger.Debug("revalidation discarded, file switched",
				slog.String("path", p), slog.String("current", current))
			return nil, nil
		}
		if err != nil {
			// Background failure: keep showing cached content.
			c.logger.Warn("revalidation failed", slog.String("path", p), slog.String("error", err.Error()))
			return nil, nil
		}
		if res.NotModified {
			return nil, nil
		}

		entry, ok, err := c.store.GetEntry(p)
		if err == nil && ok && checksum.Sum(res.Content) == checksum.Sum([]byte(entry.Content)) {
			// Changed validators, identical bytes: update metadata only so
			// the editor's cursor and selection are not disturbed.
			if err := c.store.TouchEntryValidators(p, res.ETag, res.LastModified); err != nil {
				c.logger.Warn("cache touch failed", slog.String("path", p), slog.String("error", err.Error()))
			}
			return nil, nil
		}

		if err := c.store.PutEntry(localstore.CacheEntry{
			Path:         p,
			Content:      string(res.Content),
			ETag:         res.ETag,
			LastModified: res.LastModified,
		}); err != nil {
			c.logger.Warn("cache write failed", slog.String("path", p), slog.String("error", err.Error()))
			return nil, nil
		}
		c.notify("file.updated", p)
		return nil, nil
	})
}

// DisplayContent returns the freshest cached content of p in display form,
// for the UI's re-render after a file.updated event.
func (c *Controller) DisplayContent(p string) (string, bool, error) {
	entry, ok, err := c.store.GetEntry(p)
	if err != nil || !ok {
		return "", false, err
	}
	return refrewrite.Forward(entry.Content, path.Dir(p), c.rewrite), true, nil
}

// Save reverse-rewrites the display-form text and writes it to the remote.
// Saves are serialized: a second save while one is in flight fails with
// apperr.ErrSaveInFlight. A failed save leaves the dirty state and the
// cache untouched so the user can retry without data loss.
func (c *Controller) Save(ctx context.Context, p, displayText string, undoLen, redoLen int) error {
	c.mu.Lock()
	if c.saving {
		c.mu.Unlock()
		return apperr.ErrSaveInFlight
	}
	c.saving = true
	tracker := c.tracker
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.saving = false
		c.mu.Unlock()
	}()

	storageText := refrewrite.Reverse(displayText, path.Dir(p), c.rewrite)
	if err := c.remote.Write(ctx, p, []byte(storageText)); err != nil {
		return err
	}

	// Validators are unknown until the next conditional read, so the next
	// open revalidates unconditionally.
	if err := c.store.PutEntry(localstore.CacheEntry{Path: p, Content: storageText}); err != nil {
		c.logger.Warn("cache write failed", slog.String("path", p), slog.String("error", err.Error()))
	}
	c.tree.Touch(p, time.Now())
	tracker.MarkClean(undoLen, redoLen)
	c.notify("file.saved", p)
	return nil
}

// UpdateHistory recomputes the dirty signal from the editor's history
// stack lengths. Every undo/redo entry point must route through this.
func (c *Controller) UpdateHistory(undoLen, redoLen int) bool {
	c.mu.Lock()
	tracker := c.tracker
	c.mu.Unlock()
	return tracker.Update(undoLen, redoLen)
}

// Dirty returns the last computed dirty signal.
func (c *Controller) Dirty() bool {
	c.mu.Lock()
	tracker := c.tracker
	c.mu.Unlock()
	return tracker.Dirty()
}

// EditorReady stores the editor's rendered snapshot for p, to paint the
// next open of p before the editor finishes initializing.
func (c *Controller) EditorReady(p, html string) error {
	return c.store.PutPreview(p, html)
}

// CurrentPath returns the session's active file path.
func (c *Controller) CurrentPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
