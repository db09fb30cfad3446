package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shepelt/davmark/internal/localstore"
	"github.com/shepelt/davmark/internal/preview"
	"github.com/shepelt/davmark/internal/refrewrite"
	"github.com/shepelt/davmark/internal/session"
	"github.com/shepelt/davmark/internal/testutil"
	"github.com/shepelt/davmark/internal/tree"
)

// testEnv sets up a fake remote, temp local store, session controller, and
// router. An empty token means auth disabled.
func testEnv(t *testing.T, token string) (*testutil.FakeRemote, *localstore.Store, http.Handler) {
	t.Helper()
	rc := testutil.NewFakeRemote()
	store := testutil.TestStore(t)
	svc := session.New(rc, store, tree.New(), preview.NewRenderer(),
		refrewrite.Options{ProxyRoot: "/proxy", AuthToken: token}, slog.Default(), nil)
	router := NewRouter(svc, store, token != "", token, nil)
	return rc, store, router
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestOpenFile(t *testing.T) {
	rc, _, router := testEnv(t, "")
	rc.AddFile("/Notes/a.md", "hi ![i](./img.png)")

	w := doJSON(t, router, http.MethodGet, "/files/Notes/a.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("open = %d, body = %s", w.Code, w.Body.String())
	}
	var res OpenResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Path != "/Notes/a.md" {
		t.Errorf("path = %q", res.Path)
	}
	if res.Content != "hi ![i](/proxy/Notes/img.png)" {
		t.Errorf("content = %q, want display form", res.Content)
	}
}

func TestOpenFile_NotFound(t *testing.T) {
	_, _, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/files/nope.md", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing file = %d, want 404", w.Code)
	}
}

func TestSaveFile(t *testing.T) {
	rc, _, router := testEnv(t, "")
	rc.AddFile("/Notes/a.md", "old")
	if w := doJSON(t, router, http.MethodGet, "/files/Notes/a.md", nil); w.Code != http.StatusOK {
		t.Fatalf("open = %d", w.Code)
	}

	w := doJSON(t, router, http.MethodPut, "/files/Notes/a.md", SaveFileRequest{
		Content: "new ![i](/proxy/Notes/img.png)",
		UndoLen: 2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	var res DirtyResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Dirty {
		t.Error("save should report clean")
	}
	if got := rc.Content("/Notes/a.md"); got != "new ![i](./img.png)" {
		t.Errorf("remote content = %q, want storage form", got)
	}
}

func TestSaveFile_UpstreamFailure(t *testing.T) {
	rc, _, router := testEnv(t, "")
	rc.AddFile("/a.md", "old")
	if w := doJSON(t, router, http.MethodGet, "/files/a.md", nil); w.Code != http.StatusOK {
		t.Fatalf("open = %d", w.Code)
	}
	rc.FailWrite = errors.New("connection refused")

	w := doJSON(t, router, http.MethodPut, "/files/a.md", SaveFileRequest{Content: "x"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("failed save = %d, want 502", w.Code)
	}
}

func TestCreateFileAndDuplicate(t *testing.T) {
	rc, _, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/files", CreateFileRequest{Path: "/new.md", Content: "# New"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	if rc.Content("/new.md") != "# New" {
		t.Error("file not created on remote")
	}

	w = doJSON(t, router, http.MethodPost, "/files", CreateFileRequest{Path: "/new.md", Content: "again"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestCreateDirectory(t *testing.T) {
	_, _, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/directories", CreateDirectoryRequest{Path: "/Projects"})
	if w.Code != http.StatusCreated {
		t.Fatalf("mkdir = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestMoveFileAndConflict(t *testing.T) {
	rc, _, router := testEnv(t, "")
	rc.AddFile("/a.md", "content")
	rc.AddFile("/b.md", "taken")

	w := doJSON(t, router, http.MethodPost, "/files/move", MoveRequest{From: "/a.md", To: "/c.md"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("move = %d, body = %s", w.Code, w.Body.String())
	}
	if rc.Content("/c.md") != "content" {
		t.Error("file not moved on remote")
	}

	rc.AddFile("/d.md", "x")
	w = doJSON(t, router, http.MethodPost, "/files/move", MoveRequest{From: "/d.md", To: "/b.md"})
	if w.Code != http.StatusConflict {
		t.Errorf("move onto existing = %d, want 409", w.Code)
	}
}

func TestDeleteFile(t *testing.T) {
	rc, _, router := testEnv(t, "")
	rc.AddFile("/bye.md", "gone")
	if w := doJSON(t, router, http.MethodGet, "/tree?dir=/", nil); w.Code != http.StatusOK {
		t.Fatalf("tree = %d", w.Code)
	}

	w := doJSON(t, router, http.MethodDelete, "/files/bye.md", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/files/bye.md", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("open after delete = %d, want 404", w.Code)
	}
}

func TestTreeListing(t *testing.T) {
	rc, _, router := testEnv(t, "")
	rc.AddFile("/b.md", "b")
	rc.AddFile("/a.md", "a")
	rc.AddDir("/sub")

	w := doJSON(t, router, http.MethodGet, "/tree?dir=/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tree = %d, body = %s", w.Code, w.Body.String())
	}
	var res TreeResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if len(res.Nodes) != 3 {
		t.Fatalf("nodes = %d, want 3", len(res.Nodes))
	}
	// Directories sort first regardless of key.
	if res.Nodes[0].Filename != "/sub" {
		t.Errorf("first node = %q, want /sub", res.Nodes[0].Filename)
	}
}

func TestTreeInvalidSort(t *testing.T) {
	_, _, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodGet, "/tree?sort=bogus", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid sort = %d, want 400", w.Code)
	}
}

func TestExpandCollapse(t *testing.T) {
	rc, _, router := testEnv(t, "")
	rc.AddFile("/sub/x.md", "x")

	w := doJSON(t, router, http.MethodPost, "/tree/expand", map[string]string{"dir": "/sub"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expand = %d, body = %s", w.Code, w.Body.String())
	}
	w = doJSON(t, router, http.MethodPost, "/tree/collapse", map[string]string{"dir": "/sub"})
	if w.Code != http.StatusNoContent {
		t.Errorf("collapse = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodPost, "/tree/expand", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expand without dir = %d, want 400", w.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	rc, _, router := testEnv(t, "")
	rc.AddFile("/a.md", "x")
	if w := doJSON(t, router, http.MethodGet, "/files/a.md", nil); w.Code != http.StatusOK {
		t.Fatalf("open = %d", w.Code)
	}

	w := doJSON(t, router, http.MethodPost, "/session/history", HistoryRequest{UndoLen: 1})
	var res DirtyResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Dirty {
		t.Error("an edit should report dirty")
	}

	w = doJSON(t, router, http.MethodPost, "/session/history", HistoryRequest{})
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Dirty {
		t.Error("undo back to clean point should report clean")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	rc, _, router := testEnv(t, "")
	rc.AddFile("/a.md", "x")
	if w := doJSON(t, router, http.MethodGet, "/files/a.md", nil); w.Code != http.StatusOK {
		t.Fatalf("open = %d", w.Code)
	}

	restore := true
	sort := "mtime:desc"
	w := doJSON(t, router, http.MethodPut, "/settings", SettingsRequest{RestoreLast: &restore, SortOrder: &sort})
	if w.Code != http.StatusOK {
		t.Fatalf("put settings = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/settings", nil)
	var res SettingsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.LastOpened != "/a.md" || !res.RestoreLast || res.SortOrder != "mtime:desc" {
		t.Errorf("settings = %+v", res)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, _, router := testEnv(t, "secret123")

	w := doJSON(t, router, http.MethodGet, "/tree", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_BearerToken(t *testing.T) {
	_, _, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/tree", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed tree = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	// Image tags cannot set headers; the token query form must pass.
	_, _, router := testEnv(t, "secret123")

	w := doJSON(t, router, http.MethodGet, "/tree?token=secret123", nil)
	if w.Code != http.StatusOK {
		t.Errorf("query token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, _, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/tree", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// Proxy tests.

func proxyEnv(t *testing.T) (*testutil.FakeRemote, http.Handler) {
	t.Helper()
	rc := testutil.NewFakeRemote()
	return rc, NewProxyRouter(NewProxyHandler(rc), false, "")
}

func TestProxyRemoteImage(t *testing.T) {
	rc, router := proxyEnv(t)
	rc.AddFile("/Notes/img.png", "\x89PNG fake bytes")

	req := httptest.NewRequest(http.MethodGet, "/Notes/img.png", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("proxy = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if w.Body.String() != "\x89PNG fake bytes" {
		t.Error("body mismatch")
	}
}

func TestProxyRemoteImage_NotFound(t *testing.T) {
	_, router := proxyEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/nope.png", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing image = %d, want 404", w.Code)
	}
}

func TestProxyExternal(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg bytes"))
	}))
	defer upstream.Close()

	_, router := proxyEnv(t)
	ref := base64.RawURLEncoding.EncodeToString([]byte(upstream.URL + "/pic.jpg"))

	req := httptest.NewRequest(http.MethodGet, "/ext/"+ref, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("ext proxy = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %q", ct)
	}
	if w.Body.String() != "jpeg bytes" {
		t.Error("body mismatch")
	}
}

func TestProxyExternal_BadReference(t *testing.T) {
	_, router := proxyEnv(t)

	for _, ref := range []string{
		"!!!not-base64",
		base64.RawURLEncoding.EncodeToString([]byte("file:///etc/passwd")),
	} {
		req := httptest.NewRequest(http.MethodGet, "/ext/"+ref, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("ref %q = %d, want 400", ref, w.Code)
		}
	}
}
