// Package testutil provides shared test helpers: a temporary local store
// and an in-memory fake of the remote WebDAV contract.
package testutil

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shepelt/davmark/internal/apperr"
	"github.com/shepelt/davmark/internal/localstore"
	"github.com/shepelt/davmark/internal/remote"
)

// TestStore creates a temporary localstore that is cleaned up with the test.
func TestStore(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(t.TempDir() + "/state.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeFile struct {
	content  []byte
	etag     string
	modified time.Time
}

// FakeRemote is an in-memory remote.Client. Reads can be gated per path so
// tests can hold a response in flight while the session moves on.
type FakeRemote struct {
	mu    sync.Mutex
	files map[string]*fakeFile
	dirs  map[string]struct{}
	rev   int

	// Gates block the next Read of a path until the channel is closed.
	gates map[string]chan struct{}

	// Injected failures, checked before any state change.
	FailRead   error
	FailWrite  error
	FailList   error
	FailDelete error
	FailMove   error
	FailCreate error

	ReadCount map[string]int
	ListCount map[string]int
}

// NewFakeRemote creates an empty fake with a root directory.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		files:     make(map[string]*fakeFile),
		dirs:      map[string]struct{}{"/": {}},
		gates:     make(map[string]chan struct{}),
		ReadCount: make(map[string]int),
		ListCount: make(map[string]int),
	}
}

// AddFile seeds a file, creating parent directories implicitly.
func (f *FakeRemote) AddFile(p, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rev++
	f.files[p] = &fakeFile{
		content:  []byte(content),
		etag:     fmt.Sprintf(`"v%d"`, f.rev),
		modified: time.Now(),
	}
	f.addParentsLocked(p)
}

// AddDir seeds a directory.
func (f *FakeRemote) AddDir(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs[p] = struct{}{}
	f.addParentsLocked(p)
}

func (f *FakeRemote) addParentsLocked(p string) {
	for dir := path.Dir(p); dir != "/" && dir != "."; dir = path.Dir(dir) {
		f.dirs[dir] = struct{}{}
	}
}

// GateRead returns a channel that blocks the next Read of p until closed.
func (f *FakeRemote) GateRead(p string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[p] = ch
	return ch
}

// ETag returns the current etag for p, or "" when absent.
func (f *FakeRemote) ETag(p string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[p]; ok {
		return file.etag
	}
	return ""
}

// Content returns the current content of p, or "" when absent.
func (f *FakeRemote) Content(p string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[p]; ok {
		return string(file.content)
	}
	return ""
}

// List implements remote.Client.
func (f *FakeRemote) List(_ context.Context, dir string) ([]remote.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCount[dir]++
	if f.FailList != nil {
		return nil, f.FailList
	}
	if _, ok := f.dirs[dir]; !ok {
		return nil, fmt.Errorf("fake: list %s: %w", dir, apperr.ErrNotFound)
	}
	var out []remote.Entry
	for p, file := range f.files {
		if path.Dir(p) == dir {
			out = append(out, remote.Entry{
				Filename:     p,
				Basename:     path.Base(p),
				Size:         int64(len(file.content)),
				LastModified: file.modified,
			})
		}
	}
	for p := range f.dirs {
		if p != "/" && path.Dir(p) == dir {
			out = append(out, remote.Entry{Filename: p, Basename: path.Base(p), IsDir: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// Read implements remote.Client with conditional semantics on the etag.
func (f *FakeRemote) Read(ctx context.Context, p string, cond remote.Conditional) (*remote.ReadResult, error) {
	f.mu.Lock()
	gate := f.gates[p]
	delete(f.gates, p)
	f.ReadCount[p]++
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailRead != nil {
		return nil, f.FailRead
	}
	file, ok := f.files[p]
	if !ok {
		return nil, fmt.Errorf("fake: read %s: %w", p, apperr.ErrNotFound)
	}
	if cond.ETag != "" && cond.ETag == file.etag {
		return &remote.ReadResult{NotModified: true}, nil
	}
	return &remote.ReadResult{
		Content:      append([]byte(nil), file.content...),
		ETag:         file.etag,
		LastModified: file.modified.UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT"),
	}, nil
}

// Write implements remote.Client.
func (f *FakeRemote) Write(_ context.Context, p string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWrite != nil {
		return f.FailWrite
	}
	f.rev++
	f.files[p] = &fakeFile{
		content:  append([]byte(nil), content...),
		etag:     fmt.Sprintf(`"v%d"`, f.rev),
		modified: time.Now(),
	}
	f.addParentsLocked(p)
	return nil
}

// Delete implements remote.Client.
func (f *FakeRemote) Delete(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDelete != nil {
		return f.FailDelete
	}
	if _, ok := f.files[p]; ok {
		delete(f.files, p)
		return nil
	}
	if _, ok := f.dirs[p]; ok {
		delete(f.dirs, p)
		for q := range f.files {
			if strings.HasPrefix(q, p+"/") {
				delete(f.files, q)
			}
		}
		for q := range f.dirs {
			if strings.HasPrefix(q, p+"/") {
				delete(f.dirs, q)
			}
		}
		return nil
	}
	return fmt.Errorf("fake: delete %s: %w", p, apperr.ErrNotFound)
}

// Move implements remote.Client, refusing to overwrite.
func (f *FakeRemote) Move(_ context.Context, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailMove != nil {
		return f.FailMove
	}
	if _, ok := f.files[to]; ok {
		return fmt.Errorf("fake: move to %s: %w", to, apperr.ErrAlreadyExists)
	}
	if _, ok := f.dirs[to]; ok {
		return fmt.Errorf("fake: move to %s: %w", to, apperr.ErrAlreadyExists)
	}
	if file, ok := f.files[from]; ok {
		delete(f.files, from)
		f.files[to] = file
		f.addParentsLocked(to)
		return nil
	}
	if _, ok := f.dirs[from]; ok {
		delete(f.dirs, from)
		f.dirs[to] = struct{}{}
		prefix := from + "/"
		for q, file := range f.files {
			if strings.HasPrefix(q, prefix) {
				delete(f.files, q)
				f.files[to+"/"+strings.TrimPrefix(q, prefix)] = file
			}
		}
		for q := range f.dirs {
			if strings.HasPrefix(q, prefix) {
				delete(f.dirs, q)
				f.dirs[to+"/"+strings.TrimPrefix(q, prefix)] = struct{}{}
			}
		}
		return nil
	}
	return fmt.Errorf("fake: move %s: %w", from, apperr.ErrNotFound)
}

// CreateFile implements remote.Client.
func (f *FakeRemote) CreateFile(ctx context.Context, p string, content []byte) error {
	f.mu.Lock()
	if f.FailCreate != nil {
		err := f.FailCreate
		f.mu.Unlock()
		return err
	}
	if _, ok := f.files[p]; ok {
		f.mu.Unlock()
		return fmt.Errorf("fake: create %s: %w", p, apperr.ErrAlreadyExists)
	}
	f.mu.Unlock()
	return f.Write(ctx, p, content)
}

// CreateDirectory implements remote.Client.
func (f *FakeRemote) CreateDirectory(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreate != nil {
		return f.FailCreate
	}
	if _, ok := f.dirs[p]; ok {
		return fmt.Errorf("fake: mkdir %s: %w", p, apperr.ErrAlreadyExists)
	}
	f.dirs[p] = struct{}{}
	f.addParentsLocked(p)
	return nil
}

// Verify FakeRemote satisfies remote.Client at compile time.
var _ remote.Client = (*FakeRemote)(nil)
