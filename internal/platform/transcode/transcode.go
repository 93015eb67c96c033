package transcode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studiomoa/assetpipe/internal/pkg/ctxutil"
	"github.com/studiomoa/assetpipe/internal/platform/logger"
)

// Transcoder converts a media payload to a target format. The executor treats
// a conversion failure as a per-task failure, never as a batch abort.
type Transcoder interface {
	Convert(ctx context.Context, data []byte, targetFormat string, quality int) ([]byte, error)
}

// ffmpegTranscoder shells out to the ffmpeg binary. ffmpeg sniffs the input
// container from content, so the source format never needs declaring.
//
// REQUIRED BINARY in worker runtime: ffmpeg.
type ffmpegTranscoder struct {
	log *logger.Logger

	ffmpegPath     string
	workRoot       string
	defaultTimeout time.Duration
}

func New(log *logger.Logger) Transcoder {
	return &ffmpegTranscoder{
		log:            log.With("service", "Transcoder"),
		ffmpegPath:     "ffmpeg",
		workRoot:       filepath.Join(os.TempDir(), "assetpipe-transcode"),
		defaultTimeout: 5 * time.Minute,
	}
}

// AssertReady verifies ffmpeg is reachable and the work dir exists.
func AssertReady(ctx context.Context) error {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", "ffmpeg", err)
	}
	if err := exec.CommandContext(ctx, "ffmpeg", "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg not runnable: %w", err)
	}
	return nil
}

func (t *ffmpegTranscoder) Convert(ctx context.Context, data []byte, targetFormat string, quality int) ([]byte, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, t.defaultTimeout)
	defer cancel()

	targetFormat = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(targetFormat), "."))
	if targetFormat == "" {
		return nil, fmt.Errorf("empty target format")
	}

	if err := os.MkdirAll(t.workRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create workRoot: %w", err)
	}

	base := uuid.NewString()
	inPath := filepath.Join(t.workRoot, base+".in")
	outPath := filepath.Join(t.workRoot, base+"."+targetFormat)
	defer func() {
		_ = os.Remove(inPath)
		_ = os.Remove(outPath)
	}()

	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("write transcode input: %w", err)
	}

	args := buildArgs(inPath, outPath, targetFormat, quality)
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.log.Warn("ffmpeg failed",
			"target_format", targetFormat,
			"stderr_tail", tail(string(out), 400),
		)
		return nil, fmt.Errorf("ffmpeg convert to %s: %w", targetFormat, err)
	}

	result, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read transcode output: %w", err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("ffmpeg produced empty output for %s", targetFormat)
	}
	return result, nil
}

// buildArgs maps our quality knob onto the per-codec ffmpeg flags.
func buildArgs(inPath, outPath, targetFormat string, quality int) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", inPath}
	switch targetFormat {
	case "webp":
		if quality <= 0 || quality > 100 {
			quality = 80
		}
		args = append(args, "-quality", strconv.Itoa(quality))
	case "jpg", "jpeg":
		// ffmpeg jpeg scale is 2 (best) .. 31 (worst).
		q := 31 - (quality*29)/100
		if q < 2 {
			q = 2
		}
		if q > 31 {
			q = 31
		}
		args = append(args, "-q:v", strconv.Itoa(q))
	case "mp4":
		args = append(args, "-c:v", "libx264", "-preset", "medium", "-movflags", "+faststart")
	}
	args = append(args, outPath)
	return args
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
