package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ipotracker/internal/core/domain"
	"ipotracker/internal/log"
	"ipotracker/internal/service"
)

const unreadableLogs = "[Artifact downloaded but could not be extracted. Workflow may still be running.]"

type triggerRequest struct {
	ApplyID string          `json:"apply_id"`
	CSVData json.RawMessage `json:"csv_data"`
}

// handleTrigger dispatches a batch under a caller chosen id.
func (s *Server) handleTrigger(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be a JSON object"})
		return
	}
	if req.ApplyID == "" || isNull(req.CSVData) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: apply_id, csv_data"})
		return
	}
	entities, ok := decodeEntities(req.CSVData)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "csv_data must be an array of objects"})
		return
	}

	ctx := log.ContextAttrs(c.Request.Context(), log.JobID(req.ApplyID))
	if err := s.dispatcher.Dispatch(ctx, req.ApplyID, entities); err != nil {
		var remote *domain.RemoteError
		switch {
		case errors.As(err, &remote):
			c.JSON(remote.StatusCode, gin.H{"error": "Failed to trigger workflow", "details": remote.Body})
		default:
			respondWithError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Workflow triggered successfully",
		"apply_id": req.ApplyID,
	})
}

// handleFetchLogs downloads and extracts the log of a job once.
func (s *Server) handleFetchLogs(c *gin.Context) {
	applyID := c.Query("apply_id")
	if applyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing apply_id parameter"})
		return
	}

	ctx := log.ContextAttrs(c.Request.Context(), log.JobID(applyID))
	rec, err := service.FetchLogs(ctx, s.fetcher, s.opener, applyID)
	var notFound *domain.LogNotFoundError
	var remote *domain.RemoteError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"logs": rec.Text, "apply_id": applyID})
	case errors.As(err, &notFound):
		c.JSON(http.StatusOK, gin.H{"logs": notFound.Error(), "apply_id": applyID})
	case errors.Is(err, domain.ErrCorruptArchive):
		c.JSON(http.StatusAccepted, gin.H{"logs": unreadableLogs, "apply_id": applyID})
	case errors.Is(err, domain.ErrNotReady):
		c.JSON(http.StatusNotFound, gin.H{"error": "Logs not available yet"})
	case errors.Is(err, domain.ErrConfiguration):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "GitHub environment variables not configured",
			"details": err.Error(),
		})
	case errors.As(err, &remote):
		msg := "Failed to list artifacts"
		if remote.Op == "download" {
			msg = "Failed to download artifact"
		}
		c.JSON(remote.StatusCode, gin.H{"error": msg, "status": remote.StatusCode})
	default:
		respondWithError(c, err)
	}
}

type startRequest struct {
	Accounts json.RawMessage `json:"accounts"`
}

func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be a JSON object"})
		return
	}
	entities, ok := decodeEntities(req.Accounts)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accounts must be an array of objects"})
		return
	}
	jobID, err := s.session.Start(c.Request.Context(), entities)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleReset(c *gin.Context) {
	s.session.Reset()
	c.JSON(http.StatusOK, s.session.Snapshot())
}

// handleEvents streams snapshots until the job is terminal or the client
// goes away.
func (s *Server) handleEvents(c *gin.Context) {
	updates, cancel := s.session.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			c.SSEvent("snapshot", snap)
			c.Writer.Flush()
			if snap.State.Terminal() {
				return
			}
		}
	}
}

func respondWithError(c *gin.Context, err error) {
	status := domain.StatusHint(err)
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		c.JSON(status, gin.H{
			"error":   "GitHub environment variables not configured",
			"details": err.Error(),
			"status":  "ENV_NOT_SET",
		})
	case status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusGatewayTimeout:
		c.Error(err)
		c.JSON(status, gin.H{"error": "Internal server error"})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// decodeEntities accepts a JSON array of objects, keeping key order.
func decodeEntities(raw json.RawMessage) ([]domain.Entity, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var entities []domain.Entity
	if err := json.Unmarshal(raw, &entities); err != nil {
		return nil, false
	}
	return entities, true
}
