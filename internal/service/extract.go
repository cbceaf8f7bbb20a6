package service

import (
	"context"
	"fmt"

	"ipotracker/internal/core/domain"
	"ipotracker/internal/core/ports"
)

// ExtractLog opens raw and returns the first log candidate found in it.
// An archive without any candidate yields a *domain.LogNotFoundError.
func ExtractLog(opener ports.ArchiveOpener, raw []byte) (domain.LogRecord, error) {
	archive, err := opener.Open(raw)
	if err != nil {
		return domain.LogRecord{}, err
	}
	for _, entry := range ports.LogCandidates {
		text, ok, err := archive.ReadText(entry)
		if err != nil {
			return domain.LogRecord{}, err
		}
		if ok {
			return domain.LogRecord{Entry: entry, Text: text}, nil
		}
	}
	return domain.LogRecord{}, &domain.LogNotFoundError{Entries: archive.List()}
}

// FetchLogs downloads the artifact of jobID once and extracts its log.
func FetchLogs(ctx context.Context, fetcher ports.ArtifactFetcher, opener ports.ArchiveOpener, jobID string) (domain.LogRecord, error) {
	raw, err := fetcher.Fetch(ctx, jobID)
	if err != nil {
		return domain.LogRecord{}, err
	}
	rec, err := ExtractLog(opener, raw)
	if err != nil {
		return domain.LogRecord{}, fmt.Errorf("artifact of %s: %w", jobID, err)
	}
	return rec, nil
}
