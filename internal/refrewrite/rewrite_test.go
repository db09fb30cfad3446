package refrewrite

import (
	"encoding/base64"
	"testing"
)

var opts = Options{ProxyRoot: "/proxy", AuthToken: "tok"}

func TestForwardRelative(t *testing.T) {
	got := Forward("![a](./img.png)", "/Notes", opts)
	want := "![a](/proxy/Notes/img.png?token=tok)"
	if got != want {
		t.Errorf("Forward = %q, want %q", got, want)
	}
}

func TestForwardResolvesAgainstDir(t *testing.T) {
	cases := []struct {
		name, in, dir, want string
	}{
		{"bare relative", "![](img.png)", "/Notes", "![](/proxy/Notes/img.png?token=tok)"},
		{"nested", "![](./sub/img.png)", "/Notes", "![](/proxy/Notes/sub/img.png?token=tok)"},
		{"root dir", "![](./img.png)", "/", "![](/proxy/img.png?token=tok)"},
		{"root relative", "![](/other/img.png)", "/Notes", "![](/proxy/other/img.png?token=tok)"},
		{"percent encoded", "![](caf%C3%A9.png)", "/Notes", "![](/proxy/Notes/caf%C3%A9.png?token=tok)"},
		{"proxy-lookalike name", "![a](proxy-pic.png)", "/Notes", "![a](/proxy/Notes/proxy-pic.png?token=tok)"},
		{"proxy-lookalike root relative", "![](/proxy-assets/img.png)", "/Notes", "![](/proxy/proxy-assets/img.png?token=tok)"},
		{"with title", `![a](./i.png "cap")`, "/Notes", `![a](/proxy/Notes/i.png?token=tok "cap")`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Forward(tc.in, tc.dir, opts); got != tc.want {
				t.Errorf("Forward(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestForwardExternal(t *testing.T) {
	u := "https://example.com/pic.png?size=2"
	got := Forward("![x]("+u+")", "/Notes", opts)
	want := "![x](/proxy/ext/" + base64.RawURLEncoding.EncodeToString([]byte(u)) + "?token=tok)"
	if got != want {
		t.Errorf("Forward = %q, want %q", got, want)
	}
}

func TestForwardIdempotent(t *testing.T) {
	once := Forward("![a](./img.png)", "/Notes", opts)
	twice := Forward(once, "/Notes", opts)
	if once != twice {
		t.Errorf("second Forward changed output: %q vs %q", once, twice)
	}
}

func TestForwardNormalizesBareProxyPath(t *testing.T) {
	got := Forward("![](proxy/Notes/img.png)", "/Notes", opts)
	want := "![](/proxy/Notes/img.png)"
	if got != want {
		t.Errorf("Forward = %q, want %q", got, want)
	}
}

func TestReverseInsideDir(t *testing.T) {
	got := Reverse("![a](/proxy/Notes/img.png?token=tok)", "/Notes", opts)
	want := "![a](./img.png)"
	if got != want {
		t.Errorf("Reverse = %q, want %q", got, want)
	}
}

func TestReverseOutsideDir(t *testing.T) {
	got := Reverse("![](/proxy/other/img.png?token=tok)", "/Notes", opts)
	want := "![](/other/img.png)"
	if got != want {
		t.Errorf("Reverse = %q, want %q", got, want)
	}
}

func TestReverseLegacyQueryForm(t *testing.T) {
	got := Reverse("![](/proxy?url=https%3A%2F%2Fexample.com%2Fa.png&token=tok)", "/Notes", opts)
	want := "![](https://example.com/a.png)"
	if got != want {
		t.Errorf("Reverse = %q, want %q", got, want)
	}
}

func TestReversePassThrough(t *testing.T) {
	in := "![](./already-storage.png)"
	if got := Reverse(in, "/Notes", opts); got != in {
		t.Errorf("Reverse = %q, want unchanged", got)
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name, ref, dir string
	}{
		{"root markdown image", "./img.png", "/"},
		{"relative in folder", "./img.png", "/Notes"},
		{"nested folder image", "./sub/deep/img.png", "/Notes"},
		{"outside current dir", "/assets/img.png", "/Notes"},
		{"proxy-lookalike name", "./proxy-pic.png", "/Notes"},
		{"proxy-lookalike folder", "/proxy-assets/img.png", "/Notes"},
		{"external url", "https://example.com/pic.png?v=1", "/Notes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := "![alt](" + tc.ref + ")"
			out := Reverse(Forward(in, tc.dir, opts), tc.dir, opts)
			if out != in {
				t.Errorf("round trip = %q, want %q", out, in)
			}
		})
	}
}

func TestNoTokenOmitsQuery(t *testing.T) {
	got := Forward("![](./a.png)", "/Notes", Options{ProxyRoot: "/proxy"})
	want := "![](/proxy/Notes/a.png)"
	if got != want {
		t.Errorf("Forward = %q, want %q", got, want)
	}
}

func TestNonImageLinksUntouched(t *testing.T) {
	in := "see [doc](./other.md) and ![i](./a.png)"
	got := Forward(in, "/Notes", Options{ProxyRoot: "/proxy"})
	want := "see [doc](./other.md) and ![i](/proxy/Notes/a.png)"
	if got != want {
		t.Errorf("Forward = %q, want %q", got, want)
	}
}
