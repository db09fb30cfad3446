// Package tree maintains a locally mirrored, incrementally loaded copy of
// the remote directory hierarchy. The mirror is a flat map keyed by full
// path with parent pointers; children are queried by filter rather than
// stored as nested arrays, which keeps partial updates cheap.
package tree

import (
	"path"
	"strings"
	"sync"
	"time"
)

// NodeType distinguishes files from directories.
type NodeType string

const (
	File      NodeType = "file"
	Directory NodeType = "directory"
)

// Node is one mirrored entry of the remote hierarchy.
type Node struct {
	Filename     string    `json:"filename"` // full remote path, unique key
	Basename     string    `json:"basename"`
	Type         NodeType  `json:"type"`
	LastModified time.Time `json:"last_modified"` // zero when unknown
	Parent       string    `json:"parent"`        // containing directory, "/" for root
	Loaded       bool      `json:"loaded"`        // directories only: children fetched at least once
}

// ExpandState is the tri-state expansion marker for a directory. Absence
// from the store means collapsed and unloaded.
type ExpandState int

const (
	Loading ExpandState = iota + 1
	Expanded
)

// Store is the mirror. All methods are safe for concurrent use; writes
// happen under one lock so multi-step mutations (reset, reconcile) appear
// atomic to readers.
type Store struct {
	mu           sync.RWMutex
	nodes        map[string]*Node
	loaded       map[string]bool // includes the root "/", which has no node
	expansion    map[string]ExpandState
	autoRevealed string // active path already auto-expanded for
}

// New creates an empty mirror.
func New() *Store {
	return &Store{
		nodes:     make(map[string]*Node),
		loaded:    make(map[string]bool),
		expansion: make(map[string]ExpandState),
	}
}

// Get returns a copy of the node at p.
func (s *Store) Get(p string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[p]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Loaded reports whether dir's children have been fetched at least once.
// A directory's children are only trustworthy once this is true.
func (s *Store) Loaded(dir string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded[dir]
}

// Reconcile merges a fresh listing of dir into the mirror: every returned
// entry is upserted, dir is marked loaded, and previously mirrored
// children absent from the listing are removed together with their
// descendants. Entries with a hidden-file basename are dropped before
// reconciliation.
func (s *Store) Reconcile(dir string, children []Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(children))
	for _, c := range children {
		if strings.HasPrefix(c.Basename, ".") {
			continue
		}
		c.Parent = dir
		seen[c.Filename] = struct{}{}
		if prev, ok := s.nodes[c.Filename]; ok {
			// Preserve the loaded marker across refreshes of the parent.
			c.Loaded = prev.Loaded
		}
		node := c
		s.nodes[c.Filename] = &node
	}

	s.loaded[dir] = true
	if n, ok := s.nodes[dir]; ok {
		n.Loaded = true
	}

	var gone []string
	for p, n := range s.nodes {
		if n.Parent == dir {
			if _, ok := seen[p]; !ok {
				gone = append(gone, p)
			}
		}
	}
	for _, p := range gone {
		s.removeLocked(p, true)
	}
}

// Children returns dir's mirrored children ordered by the given sort.
// The sort is computed at read time; nothing is stored sorted.
func (s *Store) Children(dir string, order Sort) []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Node
	for _, n := range s.nodes {
		if n.Parent == dir {
			out = append(out, *n)
		}
	}
	sortNodes(out, order)
	return out
}

// Expand marks dir as expanded and loaded-for-expansion.
func (s *Store) Expand(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expansion[dir] = Expanded
}

// SetLoading marks dir as having an expansion fetch in flight.
func (s *Store) SetLoading(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expansion[dir] = Loading
}

// Collapse removes dir's expansion marker. Already fetched children stay
// mirrored for instant re-expansion.
func (s *Store) Collapse(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expansion, dir)
}

// Expansion returns dir's tri-state expansion marker; ok is false when the
// directory is collapsed.
func (s *Store) Expansion(dir string) (ExpandState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.expansion[dir]
	return st, ok
}

// InsertOptimistic adds a node before remote confirmation so a newly
// created entry appears instantly, touching its ancestors' timestamps.
func (s *Store) InsertOptimistic(n Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.Parent == "" {
		n.Parent = parentOf(n.Filename)
	}
	node := n
	s.nodes[n.Filename] = &node
	s.touchAncestorsLocked(n.Filename, time.Now())
}

// Rename re-keys the node at from (and every mirrored descendant) to to.
// Callers invoke this only after the remote move has been confirmed.
func (s *Store) Rename(from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[from]
	if !ok {
		return
	}
	delete(s.nodes, from)
	n.Filename = to
	n.Basename = path.Base(to)
	n.Parent = parentOf(to)
	n.LastModified = time.Now()
	s.nodes[to] = n

	prefix := from + "/"
	var moved []string
	for p := range s.nodes {
		if strings.HasPrefix(p, prefix) {
			moved = append(moved, p)
		}
	}
	for _, p := range moved {
		d := s.nodes[p]
		delete(s.nodes, p)
		np := to + "/" + strings.TrimPrefix(p, prefix)
		d.Filename = np
		d.Parent = parentOf(np)
		s.nodes[np] = d
	}

	if s.loaded[from] {
		delete(s.loaded, from)
		s.loaded[to] = true
	}
	if st, ok := s.expansion[from]; ok {
		delete(s.expansion, from)
		s.expansion[to] = st
	}
	s.touchAncestorsLocked(to, time.Now())
}

// Remove deletes the node at p. With recursive set, every mirrored
// descendant is cascade-removed as well. Callers invoke this only after
// the remote delete has been confirmed.
func (s *Store) Remove(p string, recursive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(p, recursive)
}

func (s *Store) removeLocked(p string, recursive bool) {
	delete(s.nodes, p)
	delete(s.loaded, p)
	delete(s.expansion, p)
	if !recursive {
		return
	}
	prefix := p + "/"
	for q := range s.nodes {
		if strings.HasPrefix(q, prefix) {
			delete(s.nodes, q)
			delete(s.loaded, q)
			delete(s.expansion, q)
		}
	}
}

// Touch bumps the modification time of the node at p and of every
// mirrored ancestor directory.
func (s *Store) Touch(p string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[p]; ok {
		n.LastModified = t
	}
	s.touchAncestorsLocked(p, t)
}

// TouchAncestors bumps the modification time of every mirrored ancestor
// directory of p, supporting most-recently-modified ordering without a
// remote round trip.
func (s *Store) TouchAncestors(p string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchAncestorsLocked(p, t)
}

func (s *Store) touchAncestorsLocked(p string, t time.Time) {
	for dir := parentOf(p); dir != "/" && dir != "."; dir = parentOf(dir) {
		if n, ok := s.nodes[dir]; ok {
			n.LastModified = t
		}
	}
}

// MarkAutoRevealed records that ancestors of the active path p have been
// auto-expanded. It returns false when p was already marked, so the
// sequential reveal runs exactly once per distinct active path.
func (s *Store) MarkAutoRevealed(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.autoRevealed == p {
		return false
	}
	s.autoRevealed = p
	return true
}

// Reset clears the whole mirror in one step, for a root-path change.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]*Node)
	s.loaded = make(map[string]bool)
	s.expansion = make(map[string]ExpandState)
	s.autoRevealed = ""
}

func parentOf(p string) string {
	return path.Dir(p)
}
