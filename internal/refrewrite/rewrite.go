// Package refrewrite transforms embedded image references between their
// storage form (relative or root-relative paths as written in markdown)
// and their display form (proxy URLs the browser can dereference
// directly). Both directions operate on markdown image syntax only.
package refrewrite

import (
	"encoding/base64"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var imageRe = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)((?:\s+"[^"]*")?)\)`)

// Options configure the proxy scheme.
type Options struct {
	// ProxyRoot is the URL prefix the browser resolves proxied images
	// under, e.g. "/proxy".
	ProxyRoot string
	// AuthToken, when non-empty, is appended as a token query parameter so
	// the proxy endpoint can authenticate image fetches.
	AuthToken string
}

// Forward rewrites every image reference in text from storage form to
// display form. dir is the absolute storage directory containing the file
// the text belongs to. References already in proxy form are left alone
// apart from normalization to an absolute path.
func Forward(text, dir string, o Options) string {
	return rewriteTargets(text, func(target string) string {
		return forwardRef(target, dir, o)
	})
}

// Reverse rewrites every image reference in text from display form back to
// storage form. References not recognized as proxy form pass through
// unchanged.
func Reverse(text, dir string, o Options) string {
	return rewriteTargets(text, func(target string) string {
		return reverseRef(target, dir, o)
	})
}

func rewriteTargets(text string, fn func(string) string) string {
	return imageRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := imageRe.FindStringSubmatch(m)
		return "![" + sub[1] + "](" + fn(sub[2]) + sub[3] + ")"
	})
}

func forwardRef(target, dir string, o Options) string {
	// Already proxy form: never rewrite twice, only normalize to an
	// absolute path so the browser can embed it.
	if isProxyForm(target, o.ProxyRoot) {
		return target
	}
	if trimmed := strings.TrimPrefix(o.ProxyRoot, "/"); trimmed != "" && isProxyForm(target, trimmed) {
		return "/" + target
	}

	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return o.ProxyRoot + "/ext/" + base64.RawURLEncoding.EncodeToString([]byte(target)) + tokenQuery(o)
	}

	decoded, err := url.PathUnescape(target)
	if err != nil {
		decoded = target
	}
	decoded = strings.TrimPrefix(decoded, "./")
	var abs string
	if strings.HasPrefix(decoded, "/") {
		abs = path.Clean(decoded)
	} else {
		abs = path.Join(dir, decoded)
	}
	return o.ProxyRoot + escapeSegments(abs) + tokenQuery(o)
}

func reverseRef(target, dir string, o Options) string {
	extPrefix := o.ProxyRoot + "/ext/"
	if strings.HasPrefix(target, extPrefix) {
		enc := stripQuery(strings.TrimPrefix(target, extPrefix))
		raw, err := base64.RawURLEncoding.DecodeString(enc)
		if err != nil {
			return target
		}
		return string(raw)
	}

	// Legacy query-string encoding of an external URL.
	if rest, ok := strings.CutPrefix(target, o.ProxyRoot+"?url="); ok {
		if i := strings.IndexByte(rest, '&'); i >= 0 {
			rest = rest[:i]
		}
		if raw, err := url.QueryUnescape(rest); err == nil {
			return raw
		}
		return target
	}

	if strings.HasPrefix(target, o.ProxyRoot+"/") {
		p := stripQuery(strings.TrimPrefix(target, o.ProxyRoot))
		decoded, err := url.PathUnescape(p)
		if err != nil {
			decoded = p
		}
		dirPrefix := dir
		if dir != "/" {
			dirPrefix = dir + "/"
		}
		if rel, ok := strings.CutPrefix(decoded, dirPrefix); ok {
			return "./" + rel
		}
		return decoded
	}

	// Assumed already a valid storage-form reference.
	return target
}

// isProxyForm reports whether target sits under root at a path boundary.
// A bare prefix match is not enough: "proxy-pic.png" is a legal storage
// name, not a proxy reference.
func isProxyForm(target, root string) bool {
	return target == root ||
		strings.HasPrefix(target, root+"/") ||
		strings.HasPrefix(target, root+"?")
}

func tokenQuery(o Options) string {
	if o.AuthToken == "" {
		return ""
	}
	return "?token=" + url.QueryEscape(o.AuthToken)
}

func stripQuery(s string) string {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[:i]
	}
	return s
}

// escapeSegments percent-encodes each path segment without touching the
// separating slashes.
func escapeSegments(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
