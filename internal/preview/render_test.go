package preview

import (
	"strings"
	"testing"
)

func TestRenderHeading(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("# Title\n\nbody")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "<h1>Title</h1>") {
		t.Errorf("output = %q", out)
	}
}

func TestRenderGFMTable(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("| a | b |\n|---|---|\n| 1 | 2 |\n")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "<table>") {
		t.Errorf("GFM tables should render, got %q", out)
	}
}
