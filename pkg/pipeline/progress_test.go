package pipeline

import (
	"bytes"
	"strings"
	"testing"
)

func TestProgressBar_Phases(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf)

	bar.PageCompleted(1, 4)
	bar.PageCompleted(3, 4)

	phase, n := bar.Value()
	if phase != "Downloading pages" || n != 3 {
		t.Errorf("Value = %q, %d; want Downloading pages, 3", phase, n)
	}

	bar.PageWritten(2, 5)
	phase, n = bar.Value()
	if phase != "Writing PDF" || n != 2 {
		t.Errorf("Value = %q, %d; want Writing PDF, 2", phase, n)
	}

	if err := bar.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if phase, _ := bar.Value(); phase != "" {
		t.Errorf("phase after Close = %q, want empty", phase)
	}
	if !strings.Contains(buf.String(), "Downloading pages") {
		t.Error("output should mention the download phase")
	}
}

func TestProgressBar_CloseWithoutUse(t *testing.T) {
	if err := NewProgressBar(&bytes.Buffer{}).Close(); err != nil {
		t.Errorf("Close on unused bar: %v", err)
	}
}

func TestNopObserver(t *testing.T) {
	var obs Observer = NopObserver{}
	obs.PageCompleted(1, 1)
	obs.PageWritten(1, 1)
}
