// Package dirty derives the unsaved-changes signal from the editor's
// undo/redo history stack lengths, anchored at the last successful save.
// Stack identity, not content equality, is the source of truth: undoing
// back to a previously seen content state is still dirty unless the stack
// lengths match the clean point exactly.
package dirty

import "sync"

// Tracker holds the clean-point snapshot for one editor session.
type Tracker struct {
	mu        sync.Mutex
	cleanUndo int
	cleanRedo int
	dirty     bool
}

// New creates a tracker whose clean point is empty stacks.
func New() *Tracker {
	return &Tracker{}
}

// Update recomputes the dirty signal from the editor's current stack
// lengths and returns it.
func (t *Tracker) Update(undoLen, redoLen int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty = undoLen != t.cleanUndo || redoLen != t.cleanRedo
	return t.dirty
}

// MarkClean re-anchors the clean point at the current stack lengths,
// typically right after a successful save or an initial load.
func (t *Tracker) MarkClean(undoLen, redoLen int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanUndo = undoLen
	t.cleanRedo = redoLen
	t.dirty = false
}

// Dirty returns the last computed signal.
func (t *Tracker) Dirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}
