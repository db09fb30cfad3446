// Package remote defines the contract with the WebDAV server that holds
// the authoritative copy of every file.
package remote

import (
	"context"
	"time"
)

// Entry is one item of a remote directory listing.
type Entry struct {
	Filename     string // full remote path, starting with /
	Basename     string
	IsDir        bool
	Size         int64
	LastModified time.Time
}

// Conditional carries the cache validators for a conditional read.
// Zero values mean an unconditional read.
type Conditional struct {
	ETag         string
	LastModified string // HTTP-date string as previously returned by the server
}

// ReadResult is the outcome of a read. NotModified is a normal outcome,
// not an error: the cached content is still current.
type ReadResult struct {
	NotModified  bool
	Content      []byte
	ETag         string
	LastModified string
}

// Client is the interface for remote file operations. All paths are
// absolute within the remote root (leading slash).
type Client interface {
	// List returns the direct children of dir.
	List(ctx context.Context, dir string) ([]Entry, error)
	// Read fetches a file, honouring the conditional validators.
	Read(ctx context.Context, path string, cond Conditional) (*ReadResult, error)
	// Write stores content at path, overwriting any existing file.
	Write(ctx context.Context, path string, content []byte) error
	// Delete removes a file or directory (recursively).
	Delete(ctx context.Context, path string) error
	// Move renames from to to. Fails with apperr.ErrAlreadyExists when the
	// destination exists (overwrite is never requested).
	Move(ctx context.Context, from, to string) error
	// CreateFile creates a new file. Fails with apperr.ErrAlreadyExists
	// when path is already present.
	CreateFile(ctx context.Context, path string, content []byte) error
	// CreateDirectory creates a single directory.
	CreateDirectory(ctx context.Context, path string) error
}
