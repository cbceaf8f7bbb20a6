package ports

import (
	"context"

	"ipotracker/internal/core/domain"
)

// LogCandidates are the archive entries searched for the job log, in order.
var LogCandidates = []string{"ipo-application.log", "logs/ipo-application.log"}

// Dispatcher submits a batch of entities to the execution platform.
type Dispatcher interface {
	// Dispatch sends exactly one request and does not retry.
	Dispatch(ctx context.Context, jobID string, entities []domain.Entity) error
}

// ArtifactFetcher retrieves the archive produced by a job.
type ArtifactFetcher interface {
	// Fetch returns the archive bytes, or domain.ErrNotReady when the
	// platform has not published the artifact yet.
	Fetch(ctx context.Context, jobID string) ([]byte, error)
}

// Downloader performs the authenticated, redirect-aware artifact download.
type Downloader interface {
	Download(ctx context.Context, archiveURL, token string) ([]byte, error)
}

// ArchiveOpener decodes raw archive bytes.
type ArchiveOpener interface {
	// Open returns domain.ErrCorruptArchive when raw is not a readable archive.
	Open(raw []byte) (Archive, error)
}

// Archive is an opened archive.
type Archive interface {
	// List returns entry names in stored order.
	List() []string
	// ReadText returns the content of the first candidate present.
	ReadText(candidates ...string) (string, bool, error)
}

// Exporter saves the output of a finished job on user request.
type Exporter interface {
	// InitJob creates the job directory structure.
	InitJob(ctx context.Context, jobID string) error

	// SaveLogs writes the decoded log lines.
	SaveLogs(ctx context.Context, jobID string, lines []string) error

	// SaveSummary writes the per-account summary.
	SaveSummary(ctx context.Context, jobID string, results []domain.AccountResult) error

	// GetJobPath returns the filesystem path for a given job ID.
	GetJobPath(jobID string) string
}
