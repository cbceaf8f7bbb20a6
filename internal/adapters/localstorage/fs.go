package localstorage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ipotracker/internal/core/domain"
	"ipotracker/internal/logparse"
)

const summaryFile = "ipo-summary.txt"

// LocalStorage implements ports.Exporter for the local filesystem.
type LocalStorage struct {
	BaseDir string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir}
}

// InitJob creates the job directory.
func (s *LocalStorage) InitJob(ctx context.Context, jobID string) error {
	if err := validID(jobID); err != nil {
		return err
	}
	path := s.GetJobPath(jobID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create job directory %s: %w", path, err)
	}
	return nil
}

// SaveLogs writes the decoded log lines to logs-<job id>.txt.
func (s *LocalStorage) SaveLogs(ctx context.Context, jobID string, lines []string) error {
	if err := validID(jobID); err != nil {
		return err
	}
	name := "logs-" + jobID + ".txt"
	return s.write(jobID, name, strings.Join(lines, "\n"))
}

// SaveSummary writes one "name<TAB>label" line per named account.
func (s *LocalStorage) SaveSummary(ctx context.Context, jobID string, results []domain.AccountResult) error {
	if err := validID(jobID); err != nil {
		return err
	}
	return s.write(jobID, summaryFile, logparse.FormatSummary(logparse.Visible(results)))
}

// GetJobPath returns the path for a job directory.
func (s *LocalStorage) GetJobPath(jobID string) string {
	return filepath.Join(s.BaseDir, "jobs", jobID)
}

func (s *LocalStorage) write(jobID, name, content string) error {
	path := filepath.Join(s.GetJobPath(jobID), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	return nil
}

// validID rejects ids that would escape the jobs directory.
func validID(jobID string) error {
	if jobID == "" || jobID == "." || jobID == ".." || strings.ContainsAny(jobID, `/\`) {
		return fmt.Errorf("%w: job id %q", domain.ErrInvalidInput, jobID)
	}
	return nil
}
