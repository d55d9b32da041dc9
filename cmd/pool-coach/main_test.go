package main

import (
	"testing"

	"github.com/menta2k/pool-coach/pkg/processing"
)

func TestMaxDimensionFlag(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, -1},
		{-5, -1},
		{512, 512},
	}
	for _, tt := range tests {
		if got := maxDimensionFlag(tt.in); got != tt.want {
			t.Errorf("maxDimensionFlag(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}

	// An explicit 0 must survive the library defaults and keep the size
	if w, h := processing.TargetSize(3000, 2000, maxDimensionFlag(0)); w != 3000 || h != 2000 {
		t.Errorf("expected original size, got %dx%d", w, h)
	}
}

func TestNormalizeFormat(t *testing.T) {
	tests := map[string]string{
		"JPG":  processing.FormatJPEG,
		"jpeg": processing.FormatJPEG,
		"WebP": processing.FormatWebP,
		"gif":  "gif",
	}
	for in, want := range tests {
		if got := normalizeFormat(in); got != want {
			t.Errorf("normalizeFormat(%q) = %q, want %q", in, got, want)
		}
	}
}
