package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"ipotracker/internal/core/domain"
	"ipotracker/internal/core/ports"
)

const (
	DefaultBaseURL        = "https://api.github.com"
	DefaultEventType      = "ipo_bot"
	DefaultArtifactPrefix = "log-"

	apiVersion   = "2022-11-28"
	maxErrorBody = 64 << 10
)

// Config describes the repository whose workflow executes the jobs.
type Config struct {
	Token          string
	Repository     string // owner/repo or https://github.com/owner/repo(.git)
	BaseURL        string
	EventType      string
	ArtifactPrefix string
	Timeout        time.Duration
}

// Client implements ports.Dispatcher and ports.ArtifactFetcher using the
// GitHub REST API.
type Client struct {
	cfg        Config
	client     *http.Client
	downloader ports.Downloader
}

// NewClient creates a new Client. Missing credentials are reported by each
// call as domain.ErrConfiguration.
func NewClient(cfg Config, downloader ports.Downloader) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.EventType == "" {
		cfg.EventType = DefaultEventType
	}
	if cfg.ArtifactPrefix == "" {
		cfg.ArtifactPrefix = DefaultArtifactPrefix
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}
	return &Client{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		downloader: downloader,
	}
}

var repoURLRx = regexp.MustCompile(`^https?://github\.com/`)

// ParseRepository extracts owner and name from "owner/repo", "owner/repo.git"
// or a github.com URL.
func ParseRepository(s string) (string, string, error) {
	path := strings.TrimSpace(s)
	path = repoURLRx.ReplaceAllString(path, "")
	path = strings.TrimSuffix(strings.TrimRight(path, "/"), ".git")
	owner, repo, ok := strings.Cut(path, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("%w: GITHUB_REPOSITORY %q is not owner/repo", domain.ErrConfiguration, s)
	}
	return owner, repo, nil
}

// repoURL returns the API base for the configured repository.
func (c *Client) repoURL() (string, error) {
	var missing []string
	if c.cfg.Repository == "" {
		missing = append(missing, "GITHUB_REPOSITORY")
	}
	if c.cfg.Token == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: missing %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}
	owner, repo, err := ParseRepository(c.cfg.Repository)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/repos/%s/%s", c.cfg.BaseURL, owner, repo), nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() {
			_ = resp.Body.Close()
		}()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.RemoteError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}
