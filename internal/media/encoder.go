package media

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
)

// Encoder re-encodes media files and extracts frames using an external
// encoding tool invoked as a black box.
type Encoder interface {
	// Available reports whether the encoding tool can be invoked at all.
	Available() bool

	// Encode re-encodes inPath into outPath with the given tool arguments
	// inserted between input and output.
	Encode(ctx context.Context, inPath string, args []string, outPath string) error

	// PipeFrame extracts a single frame at the given offset as an
	// in-memory JPEG.
	PipeFrame(ctx context.Context, inPath string, offset time.Duration) ([]byte, error)
}

// FFmpegEncoder is the subprocess-backed Encoder implementation.
type FFmpegEncoder struct {
	// Timeout bounds each ffmpeg invocation. Zero means no bound.
	Timeout time.Duration
}

// NewFFmpegEncoder returns an Encoder backed by the ffmpeg binary, with
// each invocation bounded by timeout.
func NewFFmpegEncoder(timeout time.Duration) *FFmpegEncoder {
	return &FFmpegEncoder{Timeout: timeout}
}

// Available reports whether ffmpeg is present in PATH.
func (f *FFmpegEncoder) Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// Encode runs ffmpeg -y -i inPath <args> outPath.
func (f *FFmpegEncoder) Encode(ctx context.Context, inPath string, args []string, outPath string) error {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	full := append([]string{"-y", "-i", inPath}, args...)
	full = append(full, outPath)

	log.Debug().Strs("args", full).Msg("Running ffmpeg")

	start := time.Now()
	cmd := exec.CommandContext(ctx, ffmpegPath, full...)
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)
	if err != nil {
		return fmt.Errorf("ffmpeg failed after %s: %w\nOutput: %s", elapsed, err, output)
	}

	log.Debug().Dur("duration", elapsed).Str("output", outPath).Msg("ffmpeg encode complete")
	return nil
}

// PipeFrame runs ffmpeg with image2pipe/mjpeg output and captures the
// frame bytes from stdout.
func (f *FFmpegEncoder) PipeFrame(ctx context.Context, inPath string, offset time.Duration) ([]byte, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-i", inPath,
		"-ss", formatOffset(offset),
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)
	frame, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction failed: %w", err)
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("ffmpeg produced an empty frame for %s", inPath)
	}
	return frame, nil
}

// formatOffset renders a duration as HH:MM:SS for ffmpeg's -ss flag.
func formatOffset(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
