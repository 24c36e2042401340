package reddit

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Lease protocol failure classes, matchable with errors.Is. Either one
// means the direct submission path is unusable for this artifact.
var (
	ErrLeaseRequest = errors.New("lease request failed")
	ErrUpload       = errors.New("upload failed")
)

// MediaKind selects the lease endpoint for an upload.
type MediaKind string

const (
	KindVideo MediaKind = "video"
	KindImage MediaKind = "image"

	// uploadTimeout bounds the object-storage transfer, which moves the
	// full artifact and needs far longer than an API call.
	uploadTimeout = 2 * time.Minute
)

// UploadLease is a short-lived, server-issued authorization for exactly
// one direct-to-storage upload: a target action URL plus the form fields
// the storage backend requires. Expiry is not tracked locally; an
// expired lease simply fails the upload.
type UploadLease struct {
	Action string            `json:"action"`
	Fields map[string]string `json:"fields"`
}

// leaseEndpoint maps a media kind to its lease-issuing API path.
func leaseEndpoint(kind MediaKind) string {
	if kind == KindImage {
		return "/api/image_upload_s3.json"
	}
	return "/api/video_upload_s3.json"
}

// RequestLease asks the platform for an upload lease for an artifact of
// the given kind.
func (c *Client) RequestLease(ctx context.Context, token string, kind MediaKind, filename, mimeType string) (*UploadLease, error) {
	params := url.Values{
		"filepath": {filename},
		"mimetype": {mimeType},
	}

	log.Info().Str("kind", string(kind)).Str("filename", filename).Msg("Requesting upload lease")

	body, err := c.postForm(ctx, token, leaseEndpoint(kind), params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLeaseRequest, kind, err)
	}

	var lease UploadLease
	if err := json.Unmarshal(body, &lease); err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", ErrLeaseRequest, err)
	}
	if lease.Action == "" || len(lease.Fields) == 0 {
		return nil, fmt.Errorf("%w: invalid response: %s", ErrLeaseRequest, truncate(string(body), 200))
	}

	log.Info().Str("kind", string(kind)).Msg("Got upload lease")
	return &lease, nil
}

// s3PostResponse is the XML document object storage returns on a
// successful browser-style POST upload.
type s3PostResponse struct {
	XMLName  xml.Name `xml:"http://s3.amazonaws.com/doc/2006-03-01/ PostResponse"`
	Location string   `xml:"http://s3.amazonaws.com/doc/2006-03-01/ Location"`
}

// PerformUpload posts the artifact bytes as multipart form data to the
// lease's action URL with the lease's fields and returns the uploaded
// object's location. The transfer is authenticated only by the lease's
// embedded, time-limited fields.
func (c *Client) PerformUpload(ctx context.Context, lease *UploadLease, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range lease.Fields {
		if err := writer.WriteField(name, value); err != nil {
			return "", fmt.Errorf("write lease field %s: %w", name, err)
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize form: %w", err)
	}

	action := lease.Action
	if strings.HasPrefix(action, "//") {
		// Lease actions come back scheme-relative.
		action = "https:" + action
	}

	log.Info().Str("action", action).Int("size", buf.Len()).Msg("Uploading to object storage")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, &buf)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	uploadClient := &http.Client{Timeout: uploadTimeout}
	resp, err := uploadClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", ErrUpload, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: rejected (status %d): %s", ErrUpload, resp.StatusCode, truncate(string(body), 200))
	}

	var post s3PostResponse
	if err := xml.Unmarshal(body, &post); err != nil {
		return "", fmt.Errorf("%w: parse response: %w", ErrUpload, err)
	}
	if post.Location == "" {
		return "", fmt.Errorf("%w: no Location in response: %s", ErrUpload, truncate(string(body), 200))
	}

	log.Info().Str("location", post.Location).Msg("Object storage upload successful")
	return post.Location, nil
}
