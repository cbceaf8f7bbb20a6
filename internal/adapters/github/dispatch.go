package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"ipotracker/internal/core/domain"
)

type dispatchRequest struct {
	EventType     string        `json:"event_type"`
	ClientPayload clientPayload `json:"client_payload"`
}

type clientPayload struct {
	JobID    string          `json:"job_id"`
	Accounts []domain.Entity `json:"accounts"`
}

// Dispatch triggers the workflow through a repository_dispatch event.
func (c *Client) Dispatch(ctx context.Context, jobID string, entities []domain.Entity) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrInvalidInput)
	}
	if len(entities) == 0 {
		return fmt.Errorf("%w: at least one account is required", domain.ErrInvalidInput)
	}

	base, err := c.repoURL()
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, base+"/dispatches", dispatchRequest{
		EventType: c.cfg.EventType,
		ClientPayload: clientPayload{
			JobID:    jobID,
			Accounts: entities,
		},
	})
	if err != nil {
		return err
	}

	slog.DebugContext(ctx, "dispatching workflow", "event_type", c.cfg.EventType, "accounts", len(entities))
	resp, err := c.do(req, "dispatch")
	if err != nil {
		return err
	}
	_ = resp.Body.Close()

	slog.InfoContext(ctx, "workflow triggered", "accounts", len(entities))
	return nil
}
