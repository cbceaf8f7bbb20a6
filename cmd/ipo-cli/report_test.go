package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"ipotracker/internal/core/domain"
)

func completed() domain.Snapshot {
	return domain.Snapshot{
		JobID:         "apply_1",
		State:         domain.StateCompleted,
		Attempts:      3,
		OverallStatus: domain.StatusSuccess,
		AccountResults: []domain.AccountResult{
			{Index: 0, Name: "Account 0", Status: domain.StatusFailed},
			{Index: 1, Name: "alice", Status: domain.StatusSuccess},
			{Index: 2, Name: "bob", Status: domain.StatusFailed},
		},
	}
}

func TestRender(t *testing.T) {
	t.Parallel()
	r := newReport(completed())
	require.Len(t, r.Accounts, 2)
	require.Equal(t, 2, r.Summary.Total)

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, render(&buf, "text", r))
		out := buf.String()
		require.Contains(t, out, "Job ID:    apply_1\n")
		require.Contains(t, out, "Overall:   Success\n")
		require.Contains(t, out, "Alice")
		require.Contains(t, out, "Total 2, Success 1, Already Applied 0, Failed 1, Error 0")
		require.NotContains(t, out, "Account 0")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, render(&buf, "json", r))
		var got report
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		require.Equal(t, r, got)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, render(&buf, "yaml", r))
		require.Contains(t, buf.String(), "job_id: apply_1\n")
		var got report
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		require.Equal(t, r, got)
	})
}

func TestRenderFailed(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, render(&buf, "text", newReport(domain.Snapshot{
		JobID: "apply_2",
		State: domain.StateTimedOut,
		Error: "polling timed out after 15m0s",
	})))
	require.Contains(t, buf.String(), "Error:     polling timed out after 15m0s\n")
	require.NotContains(t, buf.String(), "Total")
}

func TestCheckFormat(t *testing.T) {
	t.Parallel()
	for _, f := range []string{"text", "json", "yaml"} {
		require.NoError(t, checkFormat(f))
	}
	require.ErrorIs(t, checkFormat("xml"), domain.ErrInvalidInput)
}
