package dirty

import "testing"

func TestCleanAfterMarkClean(t *testing.T) {
	tr := New()
	tr.Update(3, 0)
	tr.MarkClean(3, 0)
	if tr.Dirty() {
		t.Error("should be clean immediately after MarkClean")
	}
}

func TestDirtyAfterEdit(t *testing.T) {
	tr := New()
	tr.MarkClean(3, 0)
	if !tr.Update(4, 0) {
		t.Error("extra undo entry should be dirty")
	}
}

func TestRedoBackToCleanPoint(t *testing.T) {
	tr := New()
	tr.MarkClean(3, 1)

	// Undo: one entry moves from the undo stack to the redo stack.
	if !tr.Update(2, 2) {
		t.Error("undo past clean point should be dirty")
	}
	// Redo restores the exact clean stack lengths.
	if tr.Update(3, 1) {
		t.Error("redo back to clean lengths should be clean")
	}
}

func TestRedoLenAloneFlagsDirty(t *testing.T) {
	tr := New()
	tr.MarkClean(3, 0)
	// Same undo length, different redo length: still dirty. This is the
	// case content hashing would miss.
	if !tr.Update(3, 1) {
		t.Error("redo stack growth should be dirty")
	}
}

func TestZeroValueIsClean(t *testing.T) {
	tr := New()
	if tr.Dirty() {
		t.Error("fresh tracker should be clean")
	}
	if tr.Update(0, 0) {
		t.Error("empty stacks match the initial clean point")
	}
}
