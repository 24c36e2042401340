package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/reddit-video-publisher/internal/reddit"
)

// PostService is the live-post lookup and removal surface. *reddit.Client
// satisfies it.
type PostService interface {
	Submission(ctx context.Context, id string) (*reddit.Submission, error)
	Delete(ctx context.Context, fullname string) error
}

// PollState is the outcome of a readiness poll.
type PollState int

const (
	// PollReady means the post's media stream answered a HEAD probe.
	PollReady PollState = iota
	// PollGhost means the post exists but carries no media payload.
	// The post must be deleted and the pipeline restarted.
	PollGhost
	// PollTimedOut means the attempt ceiling was reached without a
	// verdict. The post may still finish processing on its own.
	PollTimedOut
)

// Poller watches a freshly submitted post until its media is streamable.
type Poller struct {
	posts    PostService
	head     *http.Client
	attempts int
	delay    time.Duration
}

func NewPoller(posts PostService, attempts int, delay time.Duration) *Poller {
	return &Poller{
		posts:    posts,
		head:     &http.Client{Timeout: 15 * time.Second},
		attempts: attempts,
		delay:    delay,
	}
}

// Wait re-fetches the post up to the attempt ceiling. It returns
// PollReady with the fresh handle once the media URL answers HTTP 200,
// PollGhost as soon as a fetch comes back without any media payload,
// and PollTimedOut with the last known handle when attempts run out.
func (p *Poller) Wait(ctx context.Context, handle *reddit.Submission) (PollState, *reddit.Submission, error) {
	last := handle
	for attempt := 1; attempt <= p.attempts; attempt++ {
		sub, err := p.posts.Submission(ctx, handle.ID)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Failed to re-fetch submission")
			if err := sleep(ctx, p.delay); err != nil {
				return PollTimedOut, last, err
			}
			continue
		}
		last = sub

		if !sub.HasMedia() {
			log.Warn().Str("id", sub.ID).Msg("Submission has no media payload, ghost post")
			return PollGhost, sub, nil
		}

		url := sub.VideoFallbackURL()
		if url == "" {
			log.Debug().Int("attempt", attempt).Msg("Media present but no stream URL yet")
		} else if p.streamable(ctx, url) {
			log.Info().Str("id", sub.ID).Int("attempt", attempt).Msg("Media is ready")
			return PollReady, sub, nil
		}

		if err := sleep(ctx, p.delay); err != nil {
			return PollTimedOut, last, err
		}
	}

	log.Warn().Str("id", handle.ID).Int("attempts", p.attempts).Msg("Media not ready within poll ceiling")
	return PollTimedOut, last, nil
}

func (p *Poller) streamable(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.head.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("Stream HEAD probe failed")
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("poll interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
