package transcode

import (
	"strings"
	"testing"
)

func TestBuildArgsWebp(t *testing.T) {
	args := buildArgs("/tmp/a.in", "/tmp/a.webp", "webp", 75)
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-quality 75") {
		t.Fatalf("webp args missing quality: %v", args)
	}
	if args[len(args)-1] != "/tmp/a.webp" {
		t.Fatalf("output path must be last arg: %v", args)
	}
}

func TestBuildArgsWebpDefaultQuality(t *testing.T) {
	args := buildArgs("/tmp/a.in", "/tmp/a.webp", "webp", 0)
	if !strings.Contains(strings.Join(args, " "), "-quality 80") {
		t.Fatalf("expected default quality 80: %v", args)
	}
}

func TestBuildArgsJpegScaleClamped(t *testing.T) {
	for _, quality := range []int{0, 50, 100} {
		args := buildArgs("/tmp/a.in", "/tmp/a.jpg", "jpg", quality)
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, "-q:v ") {
			t.Fatalf("jpeg args missing -q:v: %v", args)
		}
	}
}
