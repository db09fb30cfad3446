package session

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/shepelt/davmark/internal/localstore"
	"github.com/shepelt/davmark/internal/remote"
	"github.com/shepelt/davmark/internal/tree"
)

func toNodes(entries []remote.Entry) []tree.Node {
	nodes := make([]tree.Node, 0, len(entries))
	for _, e := range entries {
		t := tree.File
		if e.IsDir {
			t = tree.Directory
		}
		nodes = append(nodes, tree.Node{
			Filename:     e.Filename,
			Basename:     e.Basename,
			Type:         t,
			LastModified: e.LastModified,
		})
	}
	return nodes
}

// ListDir returns dir's children from the mirror, fetching and reconciling
// a remote listing first when the directory is unloaded or refresh is set.
func (c *Controller) ListDir(ctx context.Context, dir string, refresh bool) ([]tree.Node, error) {
	return c.ListDirSorted(ctx, dir, refresh, c.SortOrder())
}

// ListDirSorted is ListDir with an explicit sort order, for callers that
// override the persisted one per request.
func (c *Controller) ListDirSorted(ctx context.Context, dir string, refresh bool, order tree.Sort) ([]tree.Node, error) {
	if refresh || !c.tree.Loaded(dir) {
		entries, err := c.remote.List(ctx, dir)
		if err != nil {
			return nil, err
		}
		c.tree.Reconcile(dir, toNodes(entries))
	}
	return c.tree.Children(dir, order), nil
}

// Expand marks dir expanded, loading its children first when needed. The
// loading tri-state is visible to readers while the fetch is in flight.
func (c *Controller) Expand(ctx context.Context, dir string) error {
	if c.tree.Loaded(dir) {
		c.tree.Expand(dir)
		return nil
	}
	c.tree.SetLoading(dir)
	entries, err := c.remote.List(ctx, dir)
	if err != nil {
		c.tree.Collapse(dir)
		return err
	}
	c.tree.Reconcile(dir, toNodes(entries))
	c.tree.Expand(dir)
	return nil
}

// Collapse removes dir's expansion marker, keeping its mirrored children.
func (c *Controller) Collapse(dir string) {
	c.tree.Collapse(dir)
}

// Reveal sequentially loads and expands every ancestor directory between
// the root and p, once per distinct active path.
func (c *Controller) Reveal(ctx context.Context, p string) error {
	if !c.tree.MarkAutoRevealed(p) {
		return nil
	}
	if !c.tree.Loaded("/") {
		if _, err := c.ListDir(ctx, "/", false); err != nil {
			return err
		}
	}
	for _, dir := range ancestorsOf(p) {
		if err := c.Expand(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

// ancestorsOf returns the directories between the root (exclusive) and p
// (exclusive), outermost first.
func ancestorsOf(p string) []string {
	var out []string
	for dir := path.Dir(p); dir != "/" && dir != "."; dir = path.Dir(dir) {
		out = append([]string{dir}, out...)
	}
	return out
}

// CreateFile creates a file optimistically: the node appears in the mirror
// immediately and is rolled back when the remote create fails.
func (c *Controller) CreateFile(ctx context.Context, p, content string) error {
	c.tree.InsertOptimistic(tree.Node{
		Filename:     p,
		Basename:     path.Base(p),
		Type:         tree.File,
		LastModified: time.Now(),
	})
	if err := c.remote.CreateFile(ctx, p, []byte(content)); err != nil {
		c.tree.Remove(p, false)
		return err
	}
	if err := c.store.PutEntry(localstore.CacheEntry{Path: p, Content: content}); err != nil {
		c.logger.Warn("cache write failed", slog.String("path", p), slog.String("error", err.Error()))
	}
	c.notify("tree.changed", path.Dir(p))
	return nil
}

// CreateDirectory creates a directory optimistically, mirroring the
// create-file policy.
func (c *Controller) CreateDirectory(ctx context.Context, p string) error {
	c.tree.InsertOptimistic(tree.Node{
		Filename:     p,
		Basename:     path.Base(p),
		Type:         tree.Directory,
		LastModified: time.Now(),
	})
	if err := c.remote.CreateDirectory(ctx, p); err != nil {
		c.tree.Remove(p, false)
		return err
	}
	c.notify("tree.changed", path.Dir(p))
	return nil
}

// Delete removes p remotely, then drops it (and, for directories, every
// mirrored descendant) from the mirror and the local stores. The mirror is
// only mutated after remote confirmation: a failed delete must not
// diverge the visible tree from reality.
func (c *Controller) Delete(ctx context.Context, p string) error {
	if err := c.remote.Delete(ctx, p); err != nil {
		return err
	}
	node, known := c.tree.Get(p)
	c.tree.Remove(p, true)
	if known && node.Type == tree.File {
		_ = c.store.DeleteEntry(p)
		_ = c.store.DeletePreview(p)
	} else {
		// A directory, or a path the mirror never loaded. Clear the whole
		// subtree so no descendant rows go stale.
		if err := c.store.DeleteSubtree(p); err != nil {
			c.logger.Warn("cache cleanup failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}

	c.mu.Lock()
	if c.current == p || strings.HasPrefix(c.current, p+"/") {
		c.current = ""
	}
	c.mu.Unlock()

	c.notify("tree.changed", path.Dir(p))
	return nil
}

// Rename moves from to to remotely, then re-keys the mirror and the cache.
// When the open file is (or sits under) the renamed path, the session's
// current path follows the rename so no dangling reference remains.
func (c *Controller) Rename(ctx context.Context, from, to string) error {
	if err := c.remote.Move(ctx, from, to); err != nil {
		return err
	}
	c.tree.Rename(from, to)
	if err := c.store.RenameEntry(from, to); err != nil {
		c.logger.Warn("cache rename failed", slog.String("path", from), slog.String("error", err.Error()))
	}
	_ = c.store.DeletePreview(from)

	c.mu.Lock()
	switch {
	case c.current == from:
		c.current = to
	case strings.HasPrefix(c.current, from+"/"):
		c.current = to + "/" + strings.TrimPrefix(c.current, from+"/")
	}
	current := c.current
	c.mu.Unlock()

	if current == to {
		if err := c.store.PutSetting(localstore.KeyLastOpened, to); err != nil {
			c.logger.Warn("persist last opened failed", slog.String("error", err.Error()))
		}
	}
	c.notify("tree.changed", path.Dir(to))
	return nil
}

// SortOrder returns the persisted tree sort order, defaulting on any
// missing or malformed value.
func (c *Controller) SortOrder() tree.Sort {
	raw, err := c.store.GetSetting(localstore.KeySortOrder)
	if err != nil {
		return tree.DefaultSort
	}
	order, err := tree.ParseSort(raw)
	if err != nil {
		return tree.DefaultSort
	}
	return order
}

// SetSortOrder persists the tree sort order.
func (c *Controller) SetSortOrder(order tree.Sort) error {
	return c.store.PutSetting(localstore.KeySortOrder, order.String())
}
