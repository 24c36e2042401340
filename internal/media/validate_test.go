package media

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeProber returns canned probe results keyed by path, or a single
// default result.
type fakeProber struct {
	available bool
	info      *ProbeInfo
	byPath    map[string]*ProbeInfo
	err       error
}

func (f *fakeProber) Available() bool { return f.available }

func (f *fakeProber) Probe(_ context.Context, path string) (*ProbeInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	if info, ok := f.byPath[path]; ok {
		return info, nil
	}
	return f.info, nil
}

func videoOnly(duration float64, size int64) *ProbeInfo {
	return &ProbeInfo{
		Duration: duration,
		Size:     size,
		Streams:  []Stream{{Kind: StreamVideo, CodecName: "h264", Width: 1920, Height: 1080}},
	}
}

func videoWithAudio(duration float64, size int64) *ProbeInfo {
	info := videoOnly(duration, size)
	info.Streams = append(info.Streams, Stream{Kind: StreamAudio, CodecName: "aac"})
	return info
}

func TestCheckPlayable(t *testing.T) {
	tests := []struct {
		name    string
		info    *ProbeInfo
		wantErr string
	}{
		{"valid", videoWithAudio(30, 5_000_000), ""},
		{"at duration boundary", videoWithAudio(900, 5_000_000), ""},
		{"zero duration", videoWithAudio(0, 5_000_000), "invalid duration"},
		{"too long", videoWithAudio(901, 5_000_000), "invalid duration"},
		{"too large", videoWithAudio(30, 1_000_000_001), "file too large"},
		{"no video stream", &ProbeInfo{Duration: 30, Size: 100, Streams: []Stream{{Kind: StreamAudio}}}, "no video stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(&fakeProber{available: true, info: tt.info})
			err := v.CheckPlayable(context.Background(), "in.mp4")
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCheckPlayableDoesNotRequireAudio(t *testing.T) {
	v := NewValidator(&fakeProber{available: true, info: videoOnly(30, 100)})
	if err := v.CheckPlayable(context.Background(), "in.mp4"); err != nil {
		t.Fatalf("playable check must not require audio, got %v", err)
	}
}

func TestCheckSubmittableRequiresAudio(t *testing.T) {
	v := NewValidator(&fakeProber{available: true, info: videoOnly(30, 100)})
	err := v.CheckSubmittable(context.Background(), "in.mp4")
	if err == nil || !strings.Contains(err.Error(), "no audio stream") {
		t.Fatalf("expected no-audio error, got %v", err)
	}
}

func TestCheckSubmittableRejectsTooShort(t *testing.T) {
	v := NewValidator(&fakeProber{available: true, info: videoWithAudio(1.5, 100)})
	err := v.CheckSubmittable(context.Background(), "in.mp4")
	if err == nil || !strings.Contains(err.Error(), "too short") {
		t.Fatalf("expected too-short error, got %v", err)
	}
}

func TestValidationSkippedWithoutProbeTool(t *testing.T) {
	v := NewValidator(&fakeProber{available: false})
	if err := v.CheckPlayable(context.Background(), "in.mp4"); err != nil {
		t.Fatalf("expected pass when probe tool missing, got %v", err)
	}
	if err := v.CheckSubmittable(context.Background(), "in.mp4"); err != nil {
		t.Fatalf("expected pass when probe tool missing, got %v", err)
	}
}

func TestProbeFailureIsValidationFailure(t *testing.T) {
	v := NewValidator(&fakeProber{available: true, err: errors.New("exit status 1")})
	if err := v.CheckPlayable(context.Background(), "in.mp4"); err == nil {
		t.Fatal("expected error when probe fails")
	}
}
