package media

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Validation thresholds for Reddit video uploads.
const (
	// MaxDurationSeconds is the longest accepted video.
	MaxDurationSeconds = 900

	// MinSubmitDurationSeconds is the shortest video the strict
	// pre-submission check accepts.
	MinSubmitDurationSeconds = 2

	// MaxFileSizeBytes is the upload size ceiling.
	MaxFileSizeBytes = 1_000_000_000
)

// Validator judges whether a video artifact is acceptable for submission.
//
// When the probing tool is unavailable validation is skipped and treated
// as a pass: a missing binary is an environment problem, not a media
// problem. Probe failures (tool exit, malformed output) are validation
// failures.
type Validator struct {
	prober Prober
}

// NewValidator returns a Validator using the given prober.
func NewValidator(p Prober) *Validator {
	return &Validator{prober: p}
}

// CheckPlayable verifies the file at path is a playable video: duration
// in (0, 900] seconds, size at most 1 GB, and at least one video stream.
// Returns nil on pass.
func (v *Validator) CheckPlayable(ctx context.Context, path string) error {
	info, skip, err := v.probe(ctx, path)
	if skip {
		return nil
	}
	if err != nil {
		return err
	}
	return checkPlayableInfo(info)
}

// CheckSubmittable is the stricter pre-flight check used before the
// initial upload: everything CheckPlayable requires, plus at least one
// audio stream and a duration of at least 2 seconds.
func (v *Validator) CheckSubmittable(ctx context.Context, path string) error {
	info, skip, err := v.probe(ctx, path)
	if skip {
		return nil
	}
	if err != nil {
		return err
	}
	if err := checkPlayableInfo(info); err != nil {
		return err
	}
	if info.Duration < MinSubmitDurationSeconds {
		return fmt.Errorf("video too short: %.2fs (minimum %ds)", info.Duration, MinSubmitDurationSeconds)
	}
	if !info.HasAudio() {
		return fmt.Errorf("video has no audio stream")
	}
	return nil
}

func (v *Validator) probe(ctx context.Context, path string) (info *ProbeInfo, skip bool, err error) {
	if !v.prober.Available() {
		log.Warn().Str("path", path).Msg("Probe tool not found, skipping video validation")
		return nil, true, nil
	}
	info, err = v.prober.Probe(ctx, path)
	if err != nil {
		return nil, false, fmt.Errorf("video validation failed: %w", err)
	}
	return info, false, nil
}

func checkPlayableInfo(info *ProbeInfo) error {
	if info.Duration <= 0 || info.Duration > MaxDurationSeconds {
		return fmt.Errorf("invalid duration: %.2fs (must be in (0, %d])", info.Duration, MaxDurationSeconds)
	}
	if info.Size > MaxFileSizeBytes {
		return fmt.Errorf("file too large: %d bytes (maximum %d)", info.Size, MaxFileSizeBytes)
	}
	if !info.HasVideo() {
		return fmt.Errorf("no video stream found")
	}
	return nil
}
