package localstorage_test

import (
	"os"
	"path/filepath"
	"testing"

	"ipotracker/internal/adapters/localstorage"
	"ipotracker/internal/core/domain"
	"ipotracker/internal/core/ports"

	"github.com/stretchr/testify/require"
)

var _ ports.Exporter = (*localstorage.LocalStorage)(nil)

func TestExport(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	s := localstorage.NewLocalStorage(t.TempDir())
	const id = "apply_1700000000000_abc123def"

	require.NoError(t, s.InitJob(ctx, id))
	require.NoError(t, s.SaveLogs(ctx, id, []string{"first", "second"}))
	require.NoError(t, s.SaveSummary(ctx, id, []domain.AccountResult{
		{Index: 0, Name: "Account 0", Status: domain.StatusFailed},
		{Index: 1, Name: "alice smith", Status: domain.StatusSuccess},
		{Index: 2, Name: "BOB", Status: domain.StatusAlreadyApplied},
	}))

	dir := s.GetJobPath(id)
	require.Equal(t, filepath.Join(s.BaseDir, "jobs", id), dir)

	logs, err := os.ReadFile(filepath.Join(dir, "logs-"+id+".txt"))
	require.NoError(t, err)
	require.Equal(t, "first\nsecond", string(logs))

	summary, err := os.ReadFile(filepath.Join(dir, "ipo-summary.txt"))
	require.NoError(t, err)
	require.Equal(t, "Alice Smith\tSuccess\nBob\tAlready Applied", string(summary))
}

func TestExportErrors(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	s := localstorage.NewLocalStorage(t.TempDir())

	for _, id := range []string{"", "..", "../escape", `a\b`} {
		require.ErrorIs(t, s.InitJob(ctx, id), domain.ErrInvalidInput, id)
		require.ErrorIs(t, s.SaveLogs(ctx, id, nil), domain.ErrInvalidInput, id)
	}

	// directory not initialised
	require.ErrorContains(t, s.SaveLogs(ctx, "apply_2", []string{"x"}), "failed to save logs-apply_2.txt")
}
