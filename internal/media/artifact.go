// Package media provides the in-memory media artifact type and the
// ffprobe/ffmpeg-backed probing, validation, transcoding, and thumbnail
// extraction used by the submission pipeline.
//
// External tool calls are modeled behind the narrow Prober and Encoder
// interfaces so pipeline logic is testable without the binaries installed.
package media

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Artifact is an owned media payload plus its inferred MIME type and
// filename. It is either memory-backed (downloaded into a buffer) or
// file-backed (downloaded to a temp file when memory download fails).
//
// An Artifact has at most one owner at a time: transcoding consumes its
// input and produces a new Artifact. Release must be called on every
// artifact when the pipeline invocation ends.
type Artifact struct {
	Name string
	MIME string

	data []byte
	path string
	temp bool
}

// FromBytes creates a memory-backed artifact. The MIME type is inferred
// from the filename extension when mimeType is empty.
func FromBytes(name, mimeType string, data []byte) *Artifact {
	return &Artifact{
		Name: name,
		MIME: inferMIME(name, mimeType),
		data: data,
	}
}

// FromFile creates a file-backed artifact. When temp is true the file is
// removed by Release.
func FromFile(name, mimeType, path string, temp bool) *Artifact {
	return &Artifact{
		Name: name,
		MIME: inferMIME(name, mimeType),
		path: path,
		temp: temp,
	}
}

// Bytes returns the artifact payload, reading it from disk for
// file-backed artifacts.
func (a *Artifact) Bytes() ([]byte, error) {
	if a.data != nil {
		return a.data, nil
	}
	if a.path == "" {
		return nil, fmt.Errorf("artifact %s has no data", a.Name)
	}
	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", a.Name, err)
	}
	return data, nil
}

// Size returns the payload size in bytes, or -1 when it cannot be
// determined.
func (a *Artifact) Size() int64 {
	if a.data != nil {
		return int64(len(a.data))
	}
	if a.path != "" {
		if info, err := os.Stat(a.path); err == nil {
			return info.Size()
		}
	}
	return -1
}

// Materialize ensures the artifact exists on disk and returns its path.
// Memory-backed artifacts are written to a uniquely named temp file in dir
// (or the system temp dir when dir is empty); the returned cleanup removes
// it and must always be called. File-backed artifacts return their
// existing path with a no-op cleanup.
func (a *Artifact) Materialize(dir string) (string, func(), error) {
	if a.path != "" {
		return a.path, func() {}, nil
	}
	if dir == "" {
		dir = os.TempDir()
	}

	ext := filepath.Ext(a.Name)
	if ext == "" {
		ext = ".bin"
	}
	path := filepath.Join(dir, "artifact-"+uuid.NewString()+ext)

	if err := os.WriteFile(path, a.data, 0o600); err != nil {
		return "", nil, fmt.Errorf("write artifact %s: %w", a.Name, err)
	}

	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove artifact temp file")
		}
	}
	return path, cleanup, nil
}

// Release frees the artifact's backing storage. It is safe to call more
// than once.
func (a *Artifact) Release() {
	a.data = nil
	if a.temp && a.path != "" {
		if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", a.path).Msg("Failed to remove artifact file")
		}
		a.path = ""
	}
}

// SupportedVideoExtensions maps video file extensions accepted for upload
// to their MIME types.
var SupportedVideoExtensions = map[string]string{
	".mp4": "video/mp4",
	".mov": "video/quicktime",
}

// SupportedImageExtensions maps image file extensions accepted for upload
// to their MIME types.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// IsVideo reports whether the filename has a supported video extension.
func IsVideo(name string) bool {
	_, ok := SupportedVideoExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsImage reports whether the filename has a supported image extension.
func IsImage(name string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func inferMIME(name, explicit string) string {
	if explicit != "" {
		return explicit
	}
	ext := strings.ToLower(filepath.Ext(name))
	if m, ok := SupportedVideoExtensions[ext]; ok {
		return m
	}
	if m, ok := SupportedImageExtensions[ext]; ok {
		return m
	}
	if m := mime.TypeByExtension(ext); m != "" {
		return m
	}
	return "application/octet-stream"
}
