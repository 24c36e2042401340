package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCrossposter struct {
	failOn map[string]bool
	titles []string
	subs   []string
}

func (f *fakeCrossposter) Crosspost(_ context.Context, _, subreddit, title string) (string, error) {
	f.subs = append(f.subs, subreddit)
	f.titles = append(f.titles, title)
	if f.failOn[subreddit] {
		return "", errors.New("subreddit rejected the post")
	}
	return "xp_" + subreddit, nil
}

func TestCrosspostTitle(t *testing.T) {
	if got := CrosspostTitle("my clip"); got != "x-post: my clip" {
		t.Errorf("unexpected title: %q", got)
	}
	if got := CrosspostTitle("x-post: my clip"); got != "x-post: my clip" {
		t.Errorf("already-prefixed title must be untouched, got %q", got)
	}
	if got := CrosspostTitle("X-Post from elsewhere"); got != "X-Post from elsewhere" {
		t.Errorf("prefix check must be case-insensitive, got %q", got)
	}
}

func TestCrosspostAllContinuesPastFailures(t *testing.T) {
	api := &fakeCrossposter{failOn: map[string]bool{"second": true}}
	targets := []string{"first", "second", "third"}

	result := CrosspostAll(context.Background(), api, "t3_abc", "my clip", targets, time.Millisecond)

	if result.Attempted != 3 {
		t.Errorf("expected 3 attempted, got %d", result.Attempted)
	}
	if len(result.Successful) != 2 || result.Successful[0] != "first" || result.Successful[1] != "third" {
		t.Errorf("unexpected successes: %v", result.Successful)
	}
	if len(result.Failed) != 1 || result.Failed[0].Subreddit != "second" {
		t.Errorf("unexpected failures: %v", result.Failed)
	}
	for _, title := range api.titles {
		if title != "x-post: my clip" {
			t.Errorf("expected prefixed title everywhere, got %q", title)
		}
	}
}

func TestCrosspostAllStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := &fakeCrossposter{}
	result := CrosspostAll(ctx, api, "t3_abc", "my clip", []string{"first", "second"}, time.Minute)

	// The first target runs before any delay; the rest are recorded as
	// failed once the context is gone.
	if len(api.subs) != 1 {
		t.Errorf("expected only the first target attempted, got %v", api.subs)
	}
	if len(result.Failed) != 1 || result.Failed[0].Subreddit != "second" {
		t.Errorf("unexpected failures: %v", result.Failed)
	}
}
