package reddit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestLease(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/video_upload_s3.json", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("filepath") != "clip.mp4" {
			t.Errorf("unexpected filepath: %s", r.Form.Get("filepath"))
		}
		if r.Form.Get("mimetype") != "video/mp4" {
			t.Errorf("unexpected mimetype: %s", r.Form.Get("mimetype"))
		}
		fmt.Fprint(w, `{"action": "//bucket.example.com/", "fields": {"key": "media/clip.mp4", "policy": "abc"}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	lease, err := newTestClient(server).RequestLease(context.Background(), "token", KindVideo, "clip.mp4", "video/mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lease.Action != "//bucket.example.com/" {
		t.Errorf("unexpected action: %s", lease.Action)
	}
	if lease.Fields["key"] != "media/clip.mp4" {
		t.Errorf("unexpected fields: %v", lease.Fields)
	}
}

func TestRequestLeaseImageEndpoint(t *testing.T) {
	called := false
	mux := http.NewServeMux()
	mux.HandleFunc("/api/image_upload_s3.json", func(w http.ResponseWriter, r *http.Request) {
		called = true
		fmt.Fprint(w, `{"action": "//bucket.example.com/", "fields": {"key": "media/a.jpg"}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	if _, err := newTestClient(server).RequestLease(context.Background(), "token", KindImage, "a.jpg", "image/jpeg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected the image lease endpoint to be hit")
	}
}

func TestRequestLeaseInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"action": "", "fields": {}}`)
	}))
	defer server.Close()

	_, err := newTestClient(server).RequestLease(context.Background(), "token", KindVideo, "clip.mp4", "video/mp4")
	if !errors.Is(err, ErrLeaseRequest) {
		t.Fatalf("expected ErrLeaseRequest, got %v", err)
	}
}

func TestPerformUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if r.FormValue("key") != "media/clip.mp4" {
			t.Errorf("unexpected key field: %s", r.FormValue("key"))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer file.Close()
		if header.Filename != "clip.mp4" {
			t.Errorf("unexpected filename: %s", header.Filename)
		}
		payload, _ := io.ReadAll(file)
		if string(payload) != "video-bytes" {
			t.Errorf("unexpected payload: %q", payload)
		}

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<PostResponse xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Location>https://bucket.example.com/media/clip.mp4</Location>
  <Key>media/clip.mp4</Key>
</PostResponse>`)
	}))
	defer server.Close()

	lease := &UploadLease{
		Action: server.URL,
		Fields: map[string]string{"key": "media/clip.mp4"},
	}
	location, err := newTestClient(server).PerformUpload(context.Background(), lease, "clip.mp4", []byte("video-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if location != "https://bucket.example.com/media/clip.mp4" {
		t.Errorf("unexpected location: %s", location)
	}
}

func TestPerformUploadMissingLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<PostResponse xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></PostResponse>`)
	}))
	defer server.Close()

	lease := &UploadLease{Action: server.URL, Fields: map[string]string{"key": "k"}}
	_, err := newTestClient(server).PerformUpload(context.Background(), lease, "clip.mp4", []byte("x"))
	if !errors.Is(err, ErrUpload) || !strings.Contains(err.Error(), "Location") {
		t.Fatalf("expected missing-Location upload error, got %v", err)
	}
}

func TestPerformUploadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "<Error><Code>AccessDenied</Code></Error>", http.StatusForbidden)
	}))
	defer server.Close()

	lease := &UploadLease{Action: server.URL, Fields: map[string]string{"key": "k"}}
	if _, err := newTestClient(server).PerformUpload(context.Background(), lease, "clip.mp4", []byte("x")); err == nil {
		t.Fatal("expected error on rejected upload")
	}
}
