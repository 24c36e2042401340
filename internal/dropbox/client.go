// Package dropbox provides the small slice of the Dropbox HTTP API the
// publisher needs: folder listing, temporary links, deletion, and a
// per-run folder report.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultTokenURL = "https://api.dropbox.com/oauth2/token"
	defaultAPIBase  = "https://api.dropboxapi.com/2"
	defaultTimeout  = 30 * time.Second
)

// Credentials holds the Dropbox app credentials.
type Credentials struct {
	AppKey       string
	AppSecret    string
	RefreshToken string
}

// Client talks to the Dropbox API. A fresh access token is requested
// per high-level operation; nothing is cached.
type Client struct {
	httpClient *http.Client
	creds      Credentials
	tokenURL   string
	apiBase    string
}

// NewClient creates a Dropbox API client.
func NewClient(creds Credentials) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		creds:      creds,
		tokenURL:   defaultTokenURL,
		apiBase:    defaultAPIBase,
	}
}

// FileMeta describes one entry in a folder listing.
type FileMeta struct {
	Tag         string `json:".tag"`
	Name        string `json:"name"`
	PathDisplay string `json:"path_display"`
	Size        int64  `json:"size"`
}

// listFolderResponse is the (paginated) folder listing envelope.
type listFolderResponse struct {
	Entries []FileMeta `json:"entries"`
	Cursor  string     `json:"cursor"`
	HasMore bool       `json:"has_more"`
}

// accessToken obtains a fresh access token via the refresh-token grant.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	params := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.creds.RefreshToken},
		"client_id":     {c.creds.AppKey},
		"client_secret": {c.creds.AppSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL,
		strings.NewReader(params.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("no access token in response")
	}
	return token.AccessToken, nil
}

// ListFolder returns every file entry in the folder, following the
// continuation cursor across pages. Folders are filtered out.
func (c *Client) ListFolder(ctx context.Context, path string) ([]FileMeta, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var all []FileMeta

	var page listFolderResponse
	if err := c.rpc(ctx, token, "/files/list_folder", map[string]any{"path": path}, &page); err != nil {
		return nil, fmt.Errorf("list folder %s: %w", path, err)
	}
	all = append(all, page.Entries...)

	for page.HasMore {
		var next listFolderResponse
		if err := c.rpc(ctx, token, "/files/list_folder/continue", map[string]any{"cursor": page.Cursor}, &next); err != nil {
			return nil, fmt.Errorf("list folder continue: %w", err)
		}
		all = append(all, next.Entries...)
		page = next
	}

	files := all[:0]
	for _, e := range all {
		if e.Tag != "folder" {
			files = append(files, e)
		}
	}

	log.Debug().Str("path", path).Int("files", len(files)).Msg("Listed folder")
	return files, nil
}

// TemporaryLink returns a short-lived direct download URL for the file.
func (c *Client) TemporaryLink(ctx context.Context, path string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	log.Info().Str("path", path).Msg("Getting temporary link")

	var result struct {
		Link string `json:"link"`
	}
	if err := c.rpc(ctx, token, "/files/get_temporary_link", map[string]any{"path": path}, &result); err != nil {
		return "", fmt.Errorf("get temporary link for %s: %w", path, err)
	}
	if result.Link == "" {
		return "", fmt.Errorf("no link in response for %s", path)
	}
	return result.Link, nil
}

// Delete removes a file.
func (c *Client) Delete(ctx context.Context, path string) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var result struct {
		Metadata FileMeta `json:"metadata"`
	}
	if err := c.rpc(ctx, token, "/files/delete_v2", map[string]any{"path": path}, &result); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Deleted from Dropbox")
	return nil
}

// rpc performs a Dropbox JSON RPC call.
func (c *Client) rpc(ctx context.Context, token, endpoint string, args any, out any) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+endpoint,
		bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Report tallies a folder's contents by media kind.
type Report struct {
	TotalFiles int
	VideoFiles int
	ImageFiles int
	OtherFiles int
	Videos     []string
	Images     []string
	Others     []string
}

var videoExtensions = map[string]bool{".mp4": true, ".mov": true}
var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}

// BuildReport lists the folder and tallies entries by kind.
func (c *Client) BuildReport(ctx context.Context, path string) (*Report, error) {
	files, err := c.ListFolder(ctx, path)
	if err != nil {
		return nil, err
	}

	report := &Report{TotalFiles: len(files)}
	for _, f := range files {
		switch ext := strings.ToLower(filepath.Ext(f.Name)); {
		case videoExtensions[ext]:
			report.VideoFiles++
			report.Videos = append(report.Videos, f.Name)
		case imageExtensions[ext]:
			report.ImageFiles++
			report.Images = append(report.Images, f.Name)
		default:
			report.OtherFiles++
			report.Others = append(report.Others, f.Name)
		}
	}
	return report, nil
}
