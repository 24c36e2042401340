package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/reddit-video-publisher/internal/media"
)

const downloadTimeout = 5 * time.Minute

// Downloader fetches source media over HTTP. Files are buffered in
// memory; when that fails partway through, the fetch is retried once
// as a stream to a temp file so large artifacts still make it through.
type Downloader struct {
	client  *http.Client
	tempDir string
}

func NewDownloader(tempDir string) *Downloader {
	return &Downloader{
		client:  &http.Client{Timeout: downloadTimeout},
		tempDir: tempDir,
	}
}

// Fetch retrieves url and returns it as an artifact named name.
func (d *Downloader) Fetch(ctx context.Context, url, name string) (*media.Artifact, error) {
	data, err := d.fetchBytes(ctx, url)
	if err == nil {
		return media.FromBytes(name, "", data), nil
	}
	log.Warn().Err(err).Str("name", name).Msg("in-memory download failed, retrying to disk")

	path, err := d.fetchFile(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", name, err)
	}
	return media.FromFile(name, "", path, true), nil
}

func (d *Downloader) fetchBytes(ctx context.Context, url string) ([]byte, error) {
	resp, err := d.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return data, nil
}

func (d *Downloader) fetchFile(ctx context.Context, url string) (string, error) {
	resp, err := d.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	dir := d.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, uuid.NewString())
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("streaming to temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return path, nil
}

func (d *Downloader) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}
