package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Uploader stores a binary object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
}

// BucketUploader uploads objects to a Firebase storage bucket over its REST
// interface. Uploaded names are prefixed with a random id so admins can reuse
// filenames freely.
type BucketUploader struct {
	Bucket    string
	AuthToken string
	Client    *http.Client
}

func (u *BucketUploader) httpClient() *http.Client {
	if u.Client != nil {
		return u.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Upload streams r into the bucket and returns a download URL.
func (u *BucketUploader) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	if u == nil || u.Bucket == "" {
		return "", fmt.Errorf("uploader not configured")
	}
	object := "uploads/" + uuid.NewString()[:8] + "_" + strings.ReplaceAll(filename, "/", "_")
	endpoint := fmt.Sprintf(
		"https://firebasestorage.googleapis.com/v0/b/%s/o?uploadType=media&name=%s",
		u.Bucket, url.QueryEscape(object),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, r)
	if err != nil {
		return "", err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if u.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+u.AuthToken)
	}

	resp, err := u.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("upload %s: status %d", object, resp.StatusCode)
	}

	var meta struct {
		DownloadTokens string `json:"downloadTokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}

	public := fmt.Sprintf(
		"https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media",
		u.Bucket, url.QueryEscape(object),
	)
	if meta.DownloadTokens != "" {
		public += "&token=" + meta.DownloadTokens
	}
	return public, nil
}
