package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(server *httptest.Server) *Client {
	return &Client{
		httpClient: server.Client(),
		creds: Credentials{
			AppKey:       "app-key",
			AppSecret:    "app-secret",
			RefreshToken: "refresh-token",
		},
		tokenURL: server.URL + "/oauth2/token",
		apiBase:  server.URL + "/2",
	}
}

func serveToken(t *testing.T, mux *http.ServeMux) {
	t.Helper()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" {
			t.Errorf("unexpected grant_type: %s", r.Form.Get("grant_type"))
		}
		if r.Form.Get("client_id") != "app-key" || r.Form.Get("client_secret") != "app-secret" {
			t.Error("app credentials not sent")
		}
		fmt.Fprint(w, `{"access_token": "access-token"}`)
	})
}

func TestListFolderFollowsCursor(t *testing.T) {
	mux := http.NewServeMux()
	serveToken(t, mux)
	mux.HandleFunc("/2/files/list_folder", func(w http.ResponseWriter, r *http.Request) {
		var args struct {
			Path string `json:"path"`
		}
		json.NewDecoder(r.Body).Decode(&args)
		if args.Path != "/REDDIT_MUL" {
			t.Errorf("unexpected path: %s", args.Path)
		}
		fmt.Fprint(w, `{
			"entries": [
				{".tag": "file", "name": "a.mp4", "path_display": "/REDDIT_MUL/a.mp4", "size": 100},
				{".tag": "folder", "name": "sub", "path_display": "/REDDIT_MUL/sub"}
			],
			"cursor": "cur1",
			"has_more": true
		}`)
	})
	mux.HandleFunc("/2/files/list_folder/continue", func(w http.ResponseWriter, r *http.Request) {
		var args struct {
			Cursor string `json:"cursor"`
		}
		json.NewDecoder(r.Body).Decode(&args)
		if args.Cursor != "cur1" {
			t.Errorf("unexpected cursor: %s", args.Cursor)
		}
		fmt.Fprint(w, `{
			"entries": [{".tag": "file", "name": "b.jpg", "path_display": "/REDDIT_MUL/b.jpg", "size": 50}],
			"cursor": "cur2",
			"has_more": false
		}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	files, err := newTestClient(server).ListFolder(context.Background(), "/REDDIT_MUL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files after filtering folders, got %d", len(files))
	}
	if files[0].Name != "a.mp4" || files[1].Name != "b.jpg" {
		t.Errorf("unexpected listing: %+v", files)
	}
}

func TestTemporaryLink(t *testing.T) {
	mux := http.NewServeMux()
	serveToken(t, mux)
	mux.HandleFunc("/2/files/get_temporary_link", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-token" {
			t.Errorf("unexpected authorization: %s", r.Header.Get("Authorization"))
		}
		fmt.Fprint(w, `{"link": "https://content.example.com/temp/a.mp4"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	link, err := newTestClient(server).TemporaryLink(context.Background(), "/REDDIT_MUL/a.mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link != "https://content.example.com/temp/a.mp4" {
		t.Errorf("unexpected link: %s", link)
	}
}

func TestDelete(t *testing.T) {
	deleted := ""
	mux := http.NewServeMux()
	serveToken(t, mux)
	mux.HandleFunc("/2/files/delete_v2", func(w http.ResponseWriter, r *http.Request) {
		var args struct {
			Path string `json:"path"`
		}
		json.NewDecoder(r.Body).Decode(&args)
		deleted = args.Path
		fmt.Fprint(w, `{"metadata": {".tag": "file", "name": "a.mp4"}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	if err := newTestClient(server).Delete(context.Background(), "/REDDIT_MUL/a.mp4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != "/REDDIT_MUL/a.mp4" {
		t.Errorf("unexpected deleted path: %s", deleted)
	}
}

func TestBuildReport(t *testing.T) {
	mux := http.NewServeMux()
	serveToken(t, mux)
	mux.HandleFunc("/2/files/list_folder", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"entries": [
				{".tag": "file", "name": "a.mp4", "path_display": "/q/a.mp4"},
				{".tag": "file", "name": "b.MOV", "path_display": "/q/b.MOV"},
				{".tag": "file", "name": "c.jpg", "path_display": "/q/c.jpg"},
				{".tag": "file", "name": "notes.txt", "path_display": "/q/notes.txt"}
			],
			"has_more": false
		}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	report, err := newTestClient(server).BuildReport(context.Background(), "/q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalFiles != 4 || report.VideoFiles != 2 || report.ImageFiles != 1 || report.OtherFiles != 1 {
		t.Errorf("unexpected tallies: %+v", report)
	}
	if len(report.Videos) != 2 || report.Videos[1] != "b.MOV" {
		t.Errorf("unexpected video list: %v", report.Videos)
	}
}

func TestListFolderAPIError(t *testing.T) {
	mux := http.NewServeMux()
	serveToken(t, mux)
	mux.HandleFunc("/2/files/list_folder", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error_summary": "path/not_found/"}`, http.StatusConflict)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	if _, err := newTestClient(server).ListFolder(context.Background(), "/missing"); err == nil {
		t.Fatal("expected error on API failure")
	}
}
