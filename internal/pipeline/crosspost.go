package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/reddit-video-publisher/internal/metrics"
)

// Crossposter shares an existing post into another subreddit.
// *reddit.Client satisfies it.
type Crossposter interface {
	Crosspost(ctx context.Context, fullname, subreddit, title string) (string, error)
}

// CrosspostFailure records one target that could not be crossposted to.
type CrosspostFailure struct {
	Subreddit string
	Reason    string
}

// CrosspostResult tallies a fan-out across target subreddits.
type CrosspostResult struct {
	Attempted  int
	Successful []string
	Failed     []CrosspostFailure
}

// CrosspostTitle prefixes a title for sharing unless it is already
// marked as a crosspost.
func CrosspostTitle(title string) string {
	if strings.HasPrefix(strings.ToLower(title), "x-post") {
		return title
	}
	return "x-post: " + title
}

// CrosspostAll shares fullname into every target subreddit, pausing
// between calls to stay under the API rate limit. A failed target is
// recorded and the fan-out continues; only context cancellation stops
// it early.
func CrosspostAll(ctx context.Context, api Crossposter, fullname, title string, targets []string, delay time.Duration) *CrosspostResult {
	shared := CrosspostTitle(title)
	result := &CrosspostResult{Attempted: len(targets)}

	for i, target := range targets {
		if i > 0 {
			if err := sleep(ctx, delay); err != nil {
				for _, rest := range targets[i:] {
					result.Failed = append(result.Failed, CrosspostFailure{Subreddit: rest, Reason: err.Error()})
				}
				break
			}
		}

		permalink, err := api.Crosspost(ctx, fullname, target, shared)
		if err != nil {
			log.Warn().Err(err).Str("subreddit", target).Msg("Crosspost failed")
			result.Failed = append(result.Failed, CrosspostFailure{Subreddit: target, Reason: err.Error()})
			continue
		}
		log.Info().Str("subreddit", target).Str("permalink", permalink).Msg("Crossposted")
		result.Successful = append(result.Successful, target)
	}

	metrics.New(metricsNamespace).
		Metric("CrosspostsSucceeded", float64(len(result.Successful)), "Count").
		Metric("CrosspostsFailed", float64(len(result.Failed)), "Count").
		Property("fullname", fullname).
		Flush()
	return result
}
