package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Encode targets for Reddit playback.
const (
	// TrimDurationSeconds caps the output duration when the source runs long.
	TrimDurationSeconds = 840

	// TargetShrinkBytes is the size aimed for when re-encoding an
	// oversized source; kept well under the 1 GB ceiling.
	TargetShrinkBytes = 700_000_000
)

// Transcoder re-encodes video artifacts to satisfy target constraints
// using the external encoding tool.
type Transcoder struct {
	enc       Encoder
	validator *Validator
	tempDir   string
}

// NewTranscoder returns a Transcoder writing intermediate files to
// tempDir (system temp dir when empty).
func NewTranscoder(enc Encoder, prober Prober, tempDir string) *Transcoder {
	return &Transcoder{
		enc:       enc,
		validator: NewValidator(prober),
		tempDir:   tempDir,
	}
}

// Resize re-encodes the artifact to the orientation-appropriate target
// resolution (1280x720 landscape, 720x1280 portrait) with letterbox
// padding and fixed H.264/AAC encode parameters.
//
// Resize never fails: on any error the original artifact is returned
// unmodified. On success the input artifact is consumed and a new one
// returned.
func (t *Transcoder) Resize(ctx context.Context, a *Artifact) *Artifact {
	if !t.enc.Available() {
		log.Warn().Msg("Encoding tool not found, skipping video conversion")
		return a
	}

	inPath, inCleanup, err := a.Materialize(t.tempDir)
	if err != nil {
		log.Error().Err(err).Str("name", a.Name).Msg("Video conversion failed")
		return a
	}
	defer inCleanup()

	info, skip, err := t.validator.probe(ctx, inPath)
	if err != nil || skip {
		log.Error().Err(err).Str("name", a.Name).Msg("Video conversion failed: could not probe dimensions")
		return a
	}
	width, height := info.Dimensions()
	if width == 0 || height == 0 {
		log.Error().Str("name", a.Name).Msg("Video conversion failed: no video dimensions")
		return a
	}

	out, err := t.encodeToArtifact(ctx, inPath, a.Name, buildResizeArgs(width, height))
	if err != nil {
		log.Error().Err(err).Str("name", a.Name).Msg("Video conversion failed, keeping original")
		return a
	}

	log.Info().Str("name", a.Name).Int("width", width).Int("height", height).Msg("Video conversion successful")
	a.Release()
	return out
}

// ConstrainForUpload applies the constraint-trim policy: cap duration at
// 840 s and re-encode oversized files at a computed bitrate. When neither
// constraint is violated the artifact passes through unchanged.
//
// Unlike Resize, a failure here yields no usable output and the caller
// must abort the artifact.
func (t *Transcoder) ConstrainForUpload(ctx context.Context, a *Artifact) (*Artifact, error) {
	inPath, inCleanup, err := a.Materialize(t.tempDir)
	if err != nil {
		return nil, err
	}
	defer inCleanup()

	info, skip, err := t.validator.probe(ctx, inPath)
	if err != nil {
		return nil, err
	}
	if skip {
		// No probe tool means no way to judge constraints; pass through.
		return a, nil
	}

	var extra []string
	if info.Duration > TrimDurationSeconds {
		log.Warn().Float64("duration", info.Duration).Msg("Video duration exceeds cap, trimming")
		extra = append(extra, "-t", strconv.Itoa(TrimDurationSeconds))
	}
	if info.Size > MaxFileSizeBytes {
		if info.Duration <= 0 {
			return nil, fmt.Errorf("cannot shrink %s: probe reported no duration", a.Name)
		}
		targetBitrate := int64(float64(TargetShrinkBytes*8) / info.Duration)
		log.Warn().Int64("size", info.Size).Int64("targetBitrate", targetBitrate).Msg("File size exceeds cap, re-encoding")
		extra = append(extra, "-b:v", strconv.FormatInt(targetBitrate, 10))
	}
	if len(extra) == 0 {
		return a, nil
	}

	out, err := t.encodeToArtifact(ctx, inPath, a.Name, buildConstraintArgs(extra))
	if err != nil {
		return nil, fmt.Errorf("constraint transcode: %w", err)
	}

	log.Info().Str("name", a.Name).Msg("Video converted successfully")
	a.Release()
	return out, nil
}

// encodeToArtifact runs the encoder into a temp file, re-validates the
// output, and loads it into a new memory-backed artifact.
func (t *Transcoder) encodeToArtifact(ctx context.Context, inPath, name string, args []string) (*Artifact, error) {
	dir := t.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	outPath := filepath.Join(dir, "encode-"+uuid.NewString()+".mp4")
	defer os.Remove(outPath)

	if err := t.enc.Encode(ctx, inPath, args, outPath); err != nil {
		return nil, err
	}

	// Output of either policy is never trusted without re-validation.
	if err := t.validator.CheckPlayable(ctx, outPath); err != nil {
		return nil, fmt.Errorf("converted video failed validation: %w", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read converted video: %w", err)
	}

	outName := strings.TrimSuffix(name, filepath.Ext(name)) + ".mp4"
	return FromBytes(outName, "video/mp4", data), nil
}

// buildResizeArgs constructs the resize-policy encode arguments for the
// given source dimensions.
func buildResizeArgs(width, height int) []string {
	var scale string
	if width > height {
		scale = "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2"
	} else {
		scale = "scale=720:1280:force_original_aspect_ratio=decrease,pad=720:1280:(ow-iw)/2:(oh-ih)/2"
	}
	return []string{
		"-vf", scale,
		"-c:v", "libx264",
		"-profile:v", "main",
		"-preset", "medium",
		"-crf", "23",
		"-b:v", "5M",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "44100",
		"-strict", "-2",
		"-movflags", "+faststart",
	}
}

// buildConstraintArgs constructs the constraint-trim encode arguments,
// inserting the per-violation flags before the container options.
func buildConstraintArgs(extra []string) []string {
	args := []string{
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
	}
	args = append(args, extra...)
	args = append(args, "-movflags", "+faststart")
	return args
}

// ThumbnailOffset is the timestamp of the extracted poster frame.
const ThumbnailOffset = 1 * time.Second

// Thumbnailer derives a still-image poster frame from a video artifact.
type Thumbnailer struct {
	enc     Encoder
	tempDir string
}

// NewThumbnailer returns a Thumbnailer using the given encoder.
func NewThumbnailer(enc Encoder, tempDir string) *Thumbnailer {
	return &Thumbnailer{enc: enc, tempDir: tempDir}
}

// Extract pulls a single frame at the 1-second mark as an in-memory JPEG
// artifact. A missing thumbnail is non-fatal for callers; they proceed
// without a poster image.
func (t *Thumbnailer) Extract(ctx context.Context, a *Artifact) (*Artifact, error) {
	inPath, cleanup, err := a.Materialize(t.tempDir)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	frame, err := t.enc.PipeFrame(ctx, inPath, ThumbnailOffset)
	if err != nil {
		return nil, fmt.Errorf("generate thumbnail: %w", err)
	}

	name := strings.TrimSuffix(a.Name, filepath.Ext(a.Name)) + "-poster.jpg"
	log.Info().Str("name", name).Int("size", len(frame)).Msg("Thumbnail generated in memory")
	return FromBytes(name, "image/jpeg", frame), nil
}
