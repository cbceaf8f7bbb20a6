package logparse_test

import (
	"testing"

	"ipotracker/internal/core/domain"
	"ipotracker/internal/logparse"

	"github.com/stretchr/testify/require"
)

func TestSummary(t *testing.T) {
	t.Parallel()
	results := []domain.AccountResult{
		{Index: 0, Name: "Account 0", Status: domain.StatusFailed},
		{Index: 1, Name: "basanta  THAPA", Status: domain.StatusSuccess},
		{Index: 2, Name: "Unknown", Status: domain.StatusError},
		{Index: 3, Name: " ", Status: domain.StatusFailed},
		{Index: 4, Name: "bob", Status: domain.StatusAlreadyApplied},
	}

	require.Equal(t, logparse.Summary{Total: 5, Success: 1, AlreadyApplied: 1, Failed: 2, Error: 1}, logparse.Summarize(results))

	visible := logparse.Visible(results)
	require.Equal(t, []domain.AccountResult{
		{Index: 1, Name: "Basanta  Thapa", Status: domain.StatusSuccess},
		{Index: 4, Name: "Bob", Status: domain.StatusAlreadyApplied},
	}, visible)

	require.Equal(t, "Basanta  Thapa\tSuccess\nBob\tAlready Applied", logparse.FormatSummary(visible))
}
