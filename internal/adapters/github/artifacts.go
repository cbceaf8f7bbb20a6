package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"ipotracker/internal/core/domain"
)

// Artifact is one entry of the artifact index.
type Artifact struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	ArchiveDownloadURL string `json:"archive_download_url"`
}

// ArtifactName returns the artifact name the workflow uploads for jobID.
func (c *Client) ArtifactName(jobID string) string {
	return c.cfg.ArtifactPrefix + jobID
}

// FindArtifact looks the job artifact up by exact name. It returns
// domain.ErrNotReady when the workflow has not uploaded it yet.
func (c *Client) FindArtifact(ctx context.Context, jobID string) (Artifact, error) {
	if jobID == "" {
		return Artifact{}, fmt.Errorf("%w: job id is required", domain.ErrInvalidInput)
	}
	base, err := c.repoURL()
	if err != nil {
		return Artifact{}, err
	}

	name := c.ArtifactName(jobID)
	q := url.Values{}
	q.Set("name", name)
	req, err := c.newRequest(ctx, http.MethodGet, base+"/actions/artifacts?"+q.Encode(), nil)
	if err != nil {
		return Artifact{}, err
	}
	resp, err := c.do(req, "list artifacts")
	if err != nil {
		return Artifact{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var index struct {
		Artifacts []Artifact `json:"artifacts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		return Artifact{}, &domain.TransportError{Op: "list artifacts", Err: fmt.Errorf("decoding response: %w", err)}
	}
	slog.DebugContext(ctx, "artifact index", "name", name, "artifacts", len(index.Artifacts))

	for _, a := range index.Artifacts {
		if a.Name == name {
			return a, nil
		}
	}
	return Artifact{}, domain.ErrNotReady
}

// Fetch implements ports.ArtifactFetcher.
func (c *Client) Fetch(ctx context.Context, jobID string) ([]byte, error) {
	artifact, err := c.FindArtifact(ctx, jobID)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "artifact found", "name", artifact.Name, "id", artifact.ID)
	return c.downloader.Download(ctx, artifact.ArchiveDownloadURL, c.cfg.Token)
}
