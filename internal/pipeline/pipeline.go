// Package pipeline orchestrates the video submission flow: validation,
// constraint transcoding, thumbnail extraction, submission with a
// direct-then-fallback strategy, and readiness polling with ghost-post
// recovery.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fpang/reddit-video-publisher/internal/media"
	"github.com/fpang/reddit-video-publisher/internal/metrics"
	"github.com/fpang/reddit-video-publisher/internal/reddit"
)

const metricsNamespace = "RedditVideoPublisher"

// Pipeline wires the stages of a single publication together. All
// collaborators are injected.
type Pipeline struct {
	validator   *media.Validator
	transcoder  *media.Transcoder
	thumbnailer *media.Thumbnailer
	submitter   Submitter
	posts       PostService
	poller      *Poller
	api         UploadAPI
	finder      PostFinder

	subreddit        string
	tempDir          string
	maxGhostRestarts int
	resizeFirst      bool
}

// Options carries the pipeline's collaborators and policy knobs.
type Options struct {
	Validator   *media.Validator
	Transcoder  *media.Transcoder
	Thumbnailer *media.Thumbnailer
	Submitter   Submitter
	Posts       PostService
	Poller      *Poller
	API         UploadAPI
	Finder      PostFinder

	Subreddit        string
	TempDir          string
	MaxGhostRestarts int

	// ResizeFirst re-encodes every video to a 720p target box before
	// upload. Off by default; the constraint transcode already keeps
	// artifacts within platform limits.
	ResizeFirst bool
}

func New(opts Options) *Pipeline {
	return &Pipeline{
		validator:        opts.Validator,
		transcoder:       opts.Transcoder,
		thumbnailer:      opts.Thumbnailer,
		submitter:        opts.Submitter,
		posts:            opts.Posts,
		poller:           opts.Poller,
		api:              opts.API,
		finder:           opts.Finder,
		subreddit:        opts.Subreddit,
		tempDir:          opts.TempDir,
		maxGhostRestarts: opts.MaxGhostRestarts,
		resizeFirst:      opts.ResizeFirst,
	}
}

// PublishVideo runs the full flow for one video artifact and returns the
// live post handle. On poll timeout the handle is returned together with
// ErrMediaTimeout so the caller can decide whether to keep the post.
// Ghost posts are deleted and the submission restarted up to the restart
// ceiling; past the ceiling the last ghost is deleted and
// ErrGhostLoopExceeded returned.
func (p *Pipeline) PublishVideo(ctx context.Context, a *media.Artifact, title string) (*reddit.Submission, error) {
	prepared, err := p.prepare(ctx, a)
	if err != nil {
		a.Release()
		return nil, err
	}
	a = prepared
	defer a.Release()

	thumb := p.thumbnail(ctx, a)
	if thumb != nil {
		defer thumb.Release()
	}

	for restarts := 0; ; restarts++ {
		sub, err := p.submitter.Submit(ctx, a, thumb, title)
		if err != nil {
			return nil, err
		}

		state, fresh, err := p.poller.Wait(ctx, sub)
		if err != nil {
			return nil, err
		}

		switch state {
		case PollReady:
			metrics.New(metricsNamespace).Count("VideoPublished").Property("title", title).Flush()
			return fresh, nil
		case PollTimedOut:
			metrics.New(metricsNamespace).Count("MediaTimeout").Property("title", title).Flush()
			return fresh, ErrMediaTimeout
		case PollGhost:
			metrics.New(metricsNamespace).Count("GhostPost").Property("title", title).Flush()
			if err := p.posts.Delete(ctx, fresh.Fullname()); err != nil {
				log.Warn().Err(err).Str("fullname", fresh.Fullname()).Msg("Failed to delete ghost post")
			}
			if restarts >= p.maxGhostRestarts {
				return nil, fmt.Errorf("%w: %d restarts for %q", ErrGhostLoopExceeded, restarts, title)
			}
			log.Warn().Int("restart", restarts+1).Str("title", title).Msg("Ghost post deleted, restarting submission")
		}
	}
}

// prepare validates the artifact and transcodes it when it breaks a
// platform constraint. The returned artifact is the one to submit; it
// may be the input unchanged.
func (p *Pipeline) prepare(ctx context.Context, a *media.Artifact) (*media.Artifact, error) {
	path, cleanup, err := a.Materialize(p.tempDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	if err := p.validator.CheckSubmittable(ctx, path); err != nil {
		log.Warn().Err(err).Str("name", a.Name).Msg("Artifact failed validation, attempting constraint transcode")
		cleanup()

		fixed, terr := p.transcoder.ConstrainForUpload(ctx, a)
		if terr != nil {
			return nil, fmt.Errorf("%w: %w", ErrTranscodeFailed, terr)
		}
		if fixed == a {
			// Nothing was transcoded, so the violation is one a trim
			// cannot cure (missing streams, too short).
			return nil, fmt.Errorf("%w: %s: %w", ErrValidationFailed, a.Name, err)
		}

		a = fixed
		path, cleanup, err = a.Materialize(p.tempDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
		}
		if err := p.validator.CheckSubmittable(ctx, path); err != nil {
			cleanup()
			return nil, fmt.Errorf("%w: after transcode: %w", ErrValidationFailed, err)
		}
	}
	cleanup()

	if p.resizeFirst {
		a = p.transcoder.Resize(ctx, a)
	}
	return a, nil
}

// thumbnail extracts a poster frame. Extraction is best effort: a video
// post without a poster is acceptable.
func (p *Pipeline) thumbnail(ctx context.Context, a *media.Artifact) *media.Artifact {
	if p.thumbnailer == nil {
		return nil
	}
	thumb, err := p.thumbnailer.Extract(ctx, a)
	if err != nil {
		log.Warn().Err(err).Str("name", a.Name).Msg("Thumbnail extraction failed, continuing without poster")
		return nil
	}
	return thumb
}

// PublishImage posts a still image through the direct lease path and
// returns the live post handle.
func (p *Pipeline) PublishImage(ctx context.Context, a *media.Artifact, title string) (*reddit.Submission, error) {
	defer a.Release()

	token, err := p.api.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectSubmitFailed, err)
	}

	data, err := a.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectSubmitFailed, err)
	}
	lease, err := p.api.RequestLease(ctx, token, reddit.KindImage, a.Name, a.MIME)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectSubmitFailed, err)
	}
	imageURL, err := p.api.PerformUpload(ctx, lease, a.Name, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectSubmitFailed, err)
	}

	req := reddit.SubmitRequest{
		Subreddit: p.subreddit,
		Kind:      "image",
		Title:     title,
		URL:       imageURL,
	}
	if _, err := p.api.Submit(ctx, token, req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectSubmitFailed, err)
	}

	sub, err := p.finder.FindByTitle(ctx, title, findAttempts, findDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrSubmissionNotFound, title, err)
	}
	metrics.New(metricsNamespace).Count("ImagePublished").Property("title", title).Flush()
	return sub, nil
}

// Aborted reports whether err means the artifact itself is unusable and
// should be dropped rather than retried.
func Aborted(err error) bool {
	return errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrTranscodeFailed) ||
		errors.Is(err, ErrGhostLoopExceeded)
}
