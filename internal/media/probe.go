package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// StreamKind is the codec type of a container stream.
type StreamKind string

const (
	StreamVideo StreamKind = "video"
	StreamAudio StreamKind = "audio"
)

// Stream describes a single stream inside a probed container.
type Stream struct {
	Kind      StreamKind
	CodecName string
	Width     int
	Height    int
}

// ProbeInfo is read-only container metadata extracted from an artifact.
// It is recomputed after every transcode and never mutated.
type ProbeInfo struct {
	Duration float64 // seconds
	Size     int64   // bytes
	Streams  []Stream
}

// HasVideo reports whether at least one video stream is present.
func (p *ProbeInfo) HasVideo() bool {
	for _, s := range p.Streams {
		if s.Kind == StreamVideo {
			return true
		}
	}
	return false
}

// HasAudio reports whether at least one audio stream is present.
func (p *ProbeInfo) HasAudio() bool {
	for _, s := range p.Streams {
		if s.Kind == StreamAudio {
			return true
		}
	}
	return false
}

// Dimensions returns the width and height of the first video stream,
// or zeros when no video stream carries them.
func (p *ProbeInfo) Dimensions() (width, height int) {
	for _, s := range p.Streams {
		if s.Kind == StreamVideo && s.Width > 0 {
			return s.Width, s.Height
		}
	}
	return 0, 0
}

// Prober extracts container metadata from a media file.
type Prober interface {
	// Available reports whether the probing tool can be invoked at all.
	Available() bool

	// Probe runs a metadata probe against the file at path.
	Probe(ctx context.Context, path string) (*ProbeInfo, error)
}

// ffprobeOutput mirrors the JSON structure emitted by ffprobe.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

type ffprobeStream struct {
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// FFprober is the subprocess-backed Prober implementation.
type FFprober struct {
	// Timeout bounds each ffprobe invocation. Zero means no bound.
	Timeout time.Duration
}

// NewFFprober returns a Prober backed by the ffprobe binary, with each
// invocation bounded by timeout.
func NewFFprober(timeout time.Duration) *FFprober {
	return &FFprober{Timeout: timeout}
}

// Available reports whether ffprobe is present in PATH.
func (f *FFprober) Available() bool {
	_, err := exec.LookPath("ffprobe")
	return err == nil
}

// Probe runs ffprobe against path and parses its JSON output.
func (f *FFprober) Probe(ctx context.Context, path string) (*ProbeInfo, error) {
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration,size:stream=codec_name,codec_type,width,height",
		"-of", "json",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &ProbeInfo{}
	if probe.Format.Duration != "" {
		info.Duration, err = strconv.ParseFloat(probe.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, err)
		}
	}
	if probe.Format.Size != "" {
		info.Size, err = strconv.ParseInt(probe.Format.Size, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse size %q: %w", probe.Format.Size, err)
		}
	}
	for _, s := range probe.Streams {
		info.Streams = append(info.Streams, Stream{
			Kind:      StreamKind(s.CodecType),
			CodecName: s.CodecName,
			Width:     s.Width,
			Height:    s.Height,
		})
	}

	log.Debug().
		Str("path", path).
		Float64("duration", info.Duration).
		Int64("size", info.Size).
		Int("streams", len(info.Streams)).
		Msg("Probed media file")

	return info, nil
}
