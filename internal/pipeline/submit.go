package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/reddit-video-publisher/internal/media"
	"github.com/fpang/reddit-video-publisher/internal/reddit"
)

// Handle recovery after a submit call: the platform does not return the
// post in the submit response, so both submitters look it up by title.
const (
	findAttempts = 3
	findDelay    = 5 * time.Second
)

// Submitter turns a validated video artifact into a live post and
// returns its handle.
type Submitter interface {
	Submit(ctx context.Context, video, thumb *media.Artifact, title string) (*reddit.Submission, error)
}

// UploadAPI is the low-level platform surface the direct submitter
// drives. *reddit.Client satisfies it.
type UploadAPI interface {
	AccessToken(ctx context.Context) (string, error)
	RequestLease(ctx context.Context, token string, kind reddit.MediaKind, filename, mimeType string) (*reddit.UploadLease, error)
	PerformUpload(ctx context.Context, lease *reddit.UploadLease, filename string, data []byte) (string, error)
	Submit(ctx context.Context, token string, sub reddit.SubmitRequest) (string, error)
}

// PostFinder recovers a post handle by title from the account's recent
// submissions.
type PostFinder interface {
	FindByTitle(ctx context.Context, title string, attempts int, delay time.Duration) (*reddit.Submission, error)
}

// VideoAPI is the convenience submission surface the fallback submitter
// drives.
type VideoAPI interface {
	SubmitVideo(ctx context.Context, subreddit, title, videoPath, thumbnailPath string) error
}

// DirectSubmitter runs the explicit lease/upload/submit sequence. Any
// failure along the way surfaces as ErrDirectSubmitFailed so the caller
// can switch to the fallback path.
type DirectSubmitter struct {
	api       UploadAPI
	finder    PostFinder
	subreddit string
}

func NewDirectSubmitter(api UploadAPI, finder PostFinder, subreddit string) *DirectSubmitter {
	return &DirectSubmitter{api: api, finder: finder, subreddit: subreddit}
}

func (s *DirectSubmitter) Submit(ctx context.Context, video, thumb *media.Artifact, title string) (*reddit.Submission, error) {
	token, err := s.api.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectSubmitFailed, err)
	}

	videoURL, err := s.upload(ctx, token, reddit.KindVideo, video)
	if err != nil {
		return nil, fmt.Errorf("%w: video: %w", ErrDirectSubmitFailed, err)
	}

	req := reddit.SubmitRequest{
		Subreddit: s.subreddit,
		Kind:      "video",
		Title:     title,
		URL:       videoURL,
		VideoURL:  videoURL,
	}

	if thumb != nil {
		posterURL, err := s.upload(ctx, token, reddit.KindImage, thumb)
		if err != nil {
			// A post without a poster is better than no post.
			log.Warn().Err(err).Msg("Thumbnail upload failed, submitting without poster")
		} else {
			req.PosterURL = posterURL
		}
	}

	if _, err := s.api.Submit(ctx, token, req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectSubmitFailed, err)
	}

	sub, err := s.finder.FindByTitle(ctx, title, findAttempts, findDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrSubmissionNotFound, title, err)
	}
	return sub, nil
}

func (s *DirectSubmitter) upload(ctx context.Context, token string, kind reddit.MediaKind, a *media.Artifact) (string, error) {
	data, err := a.Bytes()
	if err != nil {
		return "", err
	}
	lease, err := s.api.RequestLease(ctx, token, kind, a.Name, a.MIME)
	if err != nil {
		return "", err
	}
	return s.api.PerformUpload(ctx, lease, a.Name, data)
}

// FallbackSubmitter submits through the client's higher-level video
// path, which works from local files.
type FallbackSubmitter struct {
	api       VideoAPI
	finder    PostFinder
	subreddit string
	tempDir   string
}

func NewFallbackSubmitter(api VideoAPI, finder PostFinder, subreddit, tempDir string) *FallbackSubmitter {
	return &FallbackSubmitter{api: api, finder: finder, subreddit: subreddit, tempDir: tempDir}
}

func (s *FallbackSubmitter) Submit(ctx context.Context, video, thumb *media.Artifact, title string) (*reddit.Submission, error) {
	videoPath, cleanupVideo, err := video.Materialize(s.tempDir)
	if err != nil {
		return nil, fmt.Errorf("materialize video: %w", err)
	}
	defer cleanupVideo()

	thumbPath := ""
	if thumb != nil {
		path, cleanupThumb, err := thumb.Materialize(s.tempDir)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to materialize thumbnail, submitting without poster")
		} else {
			defer cleanupThumb()
			thumbPath = path
		}
	}

	if err := s.api.SubmitVideo(ctx, s.subreddit, title, videoPath, thumbPath); err != nil {
		return nil, fmt.Errorf("fallback submit: %w", err)
	}

	sub, err := s.finder.FindByTitle(ctx, title, findAttempts, findDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrSubmissionNotFound, title, err)
	}
	return sub, nil
}

// fallbackChain tries the primary submitter and falls back to the
// secondary on any primary error.
type fallbackChain struct {
	primary, secondary Submitter
}

// NewFallbackChain combines two submitters: secondary runs only when
// primary fails.
func NewFallbackChain(primary, secondary Submitter) Submitter {
	return &fallbackChain{primary: primary, secondary: secondary}
}

func (f *fallbackChain) Submit(ctx context.Context, video, thumb *media.Artifact, title string) (*reddit.Submission, error) {
	sub, err := f.primary.Submit(ctx, video, thumb, title)
	if err == nil {
		return sub, nil
	}
	log.Warn().Err(err).Msg("Primary submit failed, trying fallback path")
	return f.secondary.Submit(ctx, video, thumb, title)
}
