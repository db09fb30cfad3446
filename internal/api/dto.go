package api

import (
	"github.com/shepelt/davmark/internal/session"
	"github.com/shepelt/davmark/internal/tree"
)

// CreateFileRequest is the request body for creating a file.
type CreateFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// CreateDirectoryRequest is the request body for creating a directory.
type CreateDirectoryRequest struct {
	Path string `json:"path"`
}

// SaveFileRequest is the request body for saving a file. Content is in
// display form; the history lengths let the session mark a clean point.
type SaveFileRequest struct {
	Content string `json:"content"`
	UndoLen int    `json:"undo_len"`
	RedoLen int    `json:"redo_len"`
}

// MoveRequest is the request body for renaming or moving a file.
type MoveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// HistoryRequest carries the editor's undo/redo stack lengths.
type HistoryRequest struct {
	UndoLen int `json:"undo_len"`
	RedoLen int `json:"redo_len"`
}

// DirtyResponse reports the recomputed dirty signal.
type DirtyResponse struct {
	Dirty bool `json:"dirty"`
}

// PreviewRequest carries the editor's rendered snapshot for a path.
type PreviewRequest struct {
	Path string `json:"path"`
	HTML string `json:"html"`
}

// TreeResponse wraps a directory listing from the mirror.
type TreeResponse struct {
	Dir   string      `json:"dir"`
	Nodes []tree.Node `json:"nodes"`
}

// OpenResponse is the full open result (aliased from the session layer).
type OpenResponse = session.OpenResult

// SettingsResponse is the persisted UI state.
type SettingsResponse struct {
	LastOpened  string `json:"last_opened"`
	RestoreLast bool   `json:"restore_last"`
	SortOrder   string `json:"sort_order"`
}

// SettingsRequest updates persisted UI state; nil fields are left unchanged.
type SettingsRequest struct {
	RestoreLast *bool   `json:"restore_last,omitempty"`
	SortOrder   *string `json:"sort_order,omitempty"`
}
