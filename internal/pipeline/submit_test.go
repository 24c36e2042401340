package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fpang/reddit-video-publisher/internal/media"
	"github.com/fpang/reddit-video-publisher/internal/reddit"
)

// fakeUploadAPI records the lease protocol calls the direct submitter
// makes.
type fakeUploadAPI struct {
	tokenErr   error
	leaseKinds []reddit.MediaKind
	leaseErrs  map[reddit.MediaKind]error
	uploaded   []string
	submitted  []reddit.SubmitRequest
	submitErr  error
}

func (f *fakeUploadAPI) AccessToken(context.Context) (string, error) {
	return "token", f.tokenErr
}

func (f *fakeUploadAPI) RequestLease(_ context.Context, _ string, kind reddit.MediaKind, filename, _ string) (*reddit.UploadLease, error) {
	f.leaseKinds = append(f.leaseKinds, kind)
	if err := f.leaseErrs[kind]; err != nil {
		return nil, err
	}
	return &reddit.UploadLease{Action: "//bucket/" + filename, Fields: map[string]string{"key": filename}}, nil
}

func (f *fakeUploadAPI) PerformUpload(_ context.Context, _ *reddit.UploadLease, filename string, _ []byte) (string, error) {
	f.uploaded = append(f.uploaded, filename)
	return "https://bucket.example.com/" + filename, nil
}

func (f *fakeUploadAPI) Submit(_ context.Context, _ string, sub reddit.SubmitRequest) (string, error) {
	f.submitted = append(f.submitted, sub)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "https://www.reddit.com/user/poster/submitted/", nil
}

type fakeFinder struct {
	sub *reddit.Submission
	err error
}

func (f *fakeFinder) FindByTitle(context.Context, string, int, time.Duration) (*reddit.Submission, error) {
	return f.sub, f.err
}

func TestDirectSubmitter(t *testing.T) {
	api := &fakeUploadAPI{}
	finder := &fakeFinder{sub: &reddit.Submission{ID: "abc", Name: "t3_abc"}}
	s := NewDirectSubmitter(api, finder, "inkwisp")

	video := media.FromBytes("clip.mp4", "", []byte("v"))
	thumb := media.FromBytes("clip-poster.jpg", "", []byte("t"))

	sub, err := s.Submit(context.Background(), video, thumb, "my clip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.ID != "abc" {
		t.Errorf("unexpected handle: %+v", sub)
	}
	if len(api.leaseKinds) != 2 || api.leaseKinds[0] != reddit.KindVideo || api.leaseKinds[1] != reddit.KindImage {
		t.Errorf("unexpected lease sequence: %v", api.leaseKinds)
	}
	if len(api.submitted) != 1 {
		t.Fatalf("expected 1 submit, got %d", len(api.submitted))
	}
	req := api.submitted[0]
	if req.Kind != "video" || req.Subreddit != "inkwisp" {
		t.Errorf("unexpected submit request: %+v", req)
	}
	if req.VideoURL != "https://bucket.example.com/clip.mp4" {
		t.Errorf("unexpected video URL: %s", req.VideoURL)
	}
	if req.PosterURL != "https://bucket.example.com/clip-poster.jpg" {
		t.Errorf("unexpected poster URL: %s", req.PosterURL)
	}
}

func TestDirectSubmitterThumbnailFailureIsNotFatal(t *testing.T) {
	api := &fakeUploadAPI{leaseErrs: map[reddit.MediaKind]error{reddit.KindImage: errors.New("lease refused")}}
	finder := &fakeFinder{sub: &reddit.Submission{ID: "abc"}}
	s := NewDirectSubmitter(api, finder, "inkwisp")

	video := media.FromBytes("clip.mp4", "", []byte("v"))
	thumb := media.FromBytes("clip-poster.jpg", "", []byte("t"))

	if _, err := s.Submit(context.Background(), video, thumb, "my clip"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.submitted[0].PosterURL != "" {
		t.Errorf("expected empty poster URL, got %s", api.submitted[0].PosterURL)
	}
}

func TestDirectSubmitterFailureIsTagged(t *testing.T) {
	api := &fakeUploadAPI{leaseErrs: map[reddit.MediaKind]error{reddit.KindVideo: errors.New("lease refused")}}
	s := NewDirectSubmitter(api, &fakeFinder{}, "inkwisp")

	_, err := s.Submit(context.Background(), media.FromBytes("clip.mp4", "", []byte("v")), nil, "my clip")
	if !errors.Is(err, ErrDirectSubmitFailed) {
		t.Fatalf("expected ErrDirectSubmitFailed, got %v", err)
	}
}

func TestDirectSubmitterHandleNotFound(t *testing.T) {
	api := &fakeUploadAPI{}
	finder := &fakeFinder{err: errors.New("not there")}
	s := NewDirectSubmitter(api, finder, "inkwisp")

	_, err := s.Submit(context.Background(), media.FromBytes("clip.mp4", "", []byte("v")), nil, "my clip")
	if !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}
}

type fakeVideoAPI struct {
	calls  int
	titles []string
	err    error
}

func (f *fakeVideoAPI) SubmitVideo(_ context.Context, _, title, videoPath, _ string) error {
	f.calls++
	f.titles = append(f.titles, title)
	if videoPath == "" {
		return errors.New("no video path")
	}
	return f.err
}

func TestFallbackSubmitter(t *testing.T) {
	api := &fakeVideoAPI{}
	finder := &fakeFinder{sub: &reddit.Submission{ID: "abc"}}
	s := NewFallbackSubmitter(api, finder, "inkwisp", t.TempDir())

	video := media.FromBytes("clip.mp4", "", []byte("v"))
	sub, err := s.Submit(context.Background(), video, nil, "my clip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.ID != "abc" || api.calls != 1 {
		t.Errorf("unexpected result: %+v calls=%d", sub, api.calls)
	}
}

// fakeSubmitter is a canned pipeline.Submitter.
type fakeSubmitter struct {
	sub    *reddit.Submission
	err    error
	calls  int
	titles []string
}

func (f *fakeSubmitter) Submit(_ context.Context, _, _ *media.Artifact, title string) (*reddit.Submission, error) {
	f.calls++
	f.titles = append(f.titles, title)
	return f.sub, f.err
}

func TestFallbackChainUsesSecondaryOnPrimaryFailure(t *testing.T) {
	primary := &fakeSubmitter{err: errors.New("direct path down")}
	secondary := &fakeSubmitter{sub: &reddit.Submission{ID: "abc"}}
	chain := NewFallbackChain(primary, secondary)

	sub, err := chain.Submit(context.Background(), media.FromBytes("clip.mp4", "", nil), nil, "my clip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.ID != "abc" {
		t.Errorf("unexpected handle: %+v", sub)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("unexpected call counts: primary=%d secondary=%d", primary.calls, secondary.calls)
	}
	if secondary.titles[0] != "my clip" {
		t.Errorf("fallback must reuse the same title, got %q", secondary.titles[0])
	}
}

func TestFallbackChainSkipsSecondaryOnSuccess(t *testing.T) {
	primary := &fakeSubmitter{sub: &reddit.Submission{ID: "abc"}}
	secondary := &fakeSubmitter{}
	chain := NewFallbackChain(primary, secondary)

	if _, err := chain.Submit(context.Background(), media.FromBytes("clip.mp4", "", nil), nil, "my clip"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary must not run on primary success, got %d calls", secondary.calls)
	}
}
