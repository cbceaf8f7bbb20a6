package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"ipotracker/internal/core/domain"
)

const (
	apiVersion   = "2022-11-28"
	maxErrorBody = 64 << 10

	// DefaultMaxArtifactSize caps the archive bytes held in memory.
	DefaultMaxArtifactSize = 256 << 20
)

// HTTPDownloader implements ports.Downloader for artifact archives.
//
// The platform answers the authenticated request with a redirect to a
// short-lived signed URL. The signed URL is requested without credentials.
type HTTPDownloader struct {
	direct   *http.Client
	redirect *http.Client
	maxSize  int64
}

// NewHTTPDownloader creates a new HTTPDownloader.
func NewHTTPDownloader(timeout time.Duration) *HTTPDownloader {
	return &HTTPDownloader{
		direct: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		redirect: &http.Client{
			Timeout: timeout,
		},
		maxSize: DefaultMaxArtifactSize,
	}
}

// WithMaxSize returns d with the archive size capped at n bytes.
func (d *HTTPDownloader) WithMaxSize(n int64) *HTTPDownloader {
	if n > 0 {
		d.maxSize = n
	}
	return d
}

// Download fetches the archive behind archiveURL.
func (d *HTTPDownloader) Download(ctx context.Context, archiveURL, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	resp, err := d.direct.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: "download", Err: err}
	}
	slog.DebugContext(ctx, "artifact download", "status", resp.StatusCode)

	if resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound {
		if location, err := resp.Location(); err == nil {
			_ = resp.Body.Close()
			resp, err = d.follow(ctx, location)
			if err != nil {
				return nil, err
			}
		} else if !errors.Is(err, http.ErrNoLocation) {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("failed to parse redirect location: %w", err)
		}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.RemoteError{Op: "download", StatusCode: resp.StatusCode, Body: string(body)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, &domain.TransportError{Op: "download", Err: err}
	}
	if int64(len(raw)) > d.maxSize {
		return nil, &domain.RemoteError{
			Op:         "download",
			StatusCode: http.StatusRequestEntityTooLarge,
			Body:       fmt.Sprintf("artifact exceeds %d bytes", d.maxSize),
		}
	}
	slog.DebugContext(ctx, "artifact downloaded", "bytes", len(raw))
	return raw, nil
}

func (d *HTTPDownloader) follow(ctx context.Context, location *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create redirect request: %w", err)
	}
	resp, err := d.redirect.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: "download", Err: err}
	}
	slog.DebugContext(ctx, "artifact redirect followed", "status", resp.StatusCode)
	return resp, nil
}
