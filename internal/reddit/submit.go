package reddit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// submitEnvelope is the api_type=json response wrapper around submit
// and crosspost calls.
type submitEnvelope struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			ID                string `json:"id"`
			Name              string `json:"name"`
			URL               string `json:"url"`
			UserSubmittedPage string `json:"user_submitted_page"`
			WebsocketURL      string `json:"websocket_url"`
		} `json:"data"`
	} `json:"json"`
}

func (e *submitEnvelope) err() error {
	if len(e.JSON.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("API error: %v", e.JSON.Errors[0])
}

// SubmitRequest is the payload for the generic submit endpoint.
type SubmitRequest struct {
	Subreddit string `json:"sr"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	VideoURL  string `json:"video_url,omitempty"`
	PosterURL string `json:"video_poster_url,omitempty"`
	APIType   string `json:"api_type"`
}

// Submit calls the generic submit endpoint with a JSON body and returns
// the user-page reference for the created post.
func (c *Client) Submit(ctx context.Context, token string, sub SubmitRequest) (string, error) {
	sub.APIType = "json"

	payload, err := json.Marshal(sub)
	if err != nil {
		return "", fmt.Errorf("encode submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/api/submit",
		bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req, token)

	log.Info().Str("subreddit", sub.Subreddit).Str("kind", sub.Kind).Msg("Submitting post")

	body, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	var env submitEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("parse submit response: %w", err)
	}
	if err := env.err(); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	if env.JSON.Data.UserSubmittedPage == "" {
		return "", fmt.Errorf("submit: no user page in response: %s", truncate(string(body), 200))
	}

	log.Info().Str("userPage", env.JSON.Data.UserSubmittedPage).Msg("Post submitted")
	return env.JSON.Data.UserSubmittedPage, nil
}

// EnableWebsocket toggles the completion notification channel on
// SubmitVideo. Left off by default; websocket connections to the
// platform proved unreliable enough that callers recover the post by
// title search instead.
func (c *Client) EnableWebsocket(on bool) {
	c.useWebsocket = on
}

// SubmitVideo is the higher-level video submission path: it leases and
// uploads the video (and thumbnail, when given) from local file paths
// and submits the post with a form-encoded request.
//
// The created handle is not returned synchronously; callers recover it
// with FindByTitle.
func (c *Client) SubmitVideo(ctx context.Context, subreddit, title, videoPath, thumbnailPath string) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	videoURL, err := c.leaseAndUploadFile(ctx, token, KindVideo, videoPath, "video/mp4")
	if err != nil {
		return err
	}

	params := url.Values{
		"sr":          {subreddit},
		"kind":        {"video"},
		"title":       {title},
		"video_url":   {videoURL},
		"api_type":    {"json"},
		"sendreplies": {"true"},
		"resubmit":    {"true"},
	}

	if thumbnailPath != "" {
		posterURL, err := c.leaseAndUploadFile(ctx, token, KindImage, thumbnailPath, "image/jpeg")
		if err != nil {
			// A missing poster never blocks the submission.
			log.Warn().Err(err).Msg("Thumbnail upload failed, submitting without poster")
		} else {
			params.Set("video_poster_url", posterURL)
		}
	}

	body, err := c.postForm(ctx, token, "/api/submit", params)
	if err != nil {
		return fmt.Errorf("submit video: %w", err)
	}

	var env submitEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("parse submit response: %w", err)
	}
	if err := env.err(); err != nil {
		return fmt.Errorf("submit video: %w", err)
	}

	if c.useWebsocket && env.JSON.Data.WebsocketURL != "" {
		if redirect, err := c.awaitWebsocket(ctx, env.JSON.Data.WebsocketURL); err != nil {
			log.Warn().Err(err).Msg("Websocket completion wait failed")
		} else {
			log.Info().Str("redirect", redirect).Msg("Websocket reported post created")
		}
	}

	return nil
}

// leaseAndUploadFile runs the full lease protocol for a local file.
func (c *Client) leaseAndUploadFile(ctx context.Context, token string, kind MediaKind, path, fallbackMIME string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s file: %w", kind, err)
	}

	name := filepath.Base(path)
	lease, err := c.RequestLease(ctx, token, kind, name, fallbackMIME)
	if err != nil {
		return "", err
	}
	return c.PerformUpload(ctx, lease, name, data)
}

// wsMessage is a completion notification frame.
type wsMessage struct {
	Type    string `json:"type"`
	Payload struct {
		Redirect string `json:"redirect"`
	} `json:"payload"`
}

// awaitWebsocket listens on the submit response's websocket URL for the
// post-created notification and returns the redirect permalink.
func (c *Client) awaitWebsocket(ctx context.Context, wsURL string) (string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		return "", fmt.Errorf("dial websocket: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return "", fmt.Errorf("read websocket: %w", err)
		}
		switch msg.Type {
		case "success":
			return msg.Payload.Redirect, nil
		case "failed":
			return "", fmt.Errorf("platform reported submission failure")
		}
	}
}
