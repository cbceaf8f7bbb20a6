// Package logparse turns the free-text log of a batch run into per-account
// results.
//
// The remote job prints one section per account:
//
//	--- Account 1/2 ---
//	===== PROCESSING: 73058 =====
//	...
//
// Two classifiers exist and they deliberately disagree. Classify looks at
// the whole log and treats any "error" as an error. ClassifySection only
// reports an error for "critical error" or "traceback", and checks "failed"
// first. A single failed account must not turn the overall indicator into
// an error through a looser match, so the rules are kept apart.
package logparse

import (
	"fmt"
	"regexp"
	"strings"

	"ipotracker/internal/core/domain"
)

var (
	sectionRx    = regexp.MustCompile(`--- Account \d+/\d+ ---`)
	processingRx = regexp.MustCompile(`PROCESSING:\s*(\S+)`)
)

// Lines splits text into lines and drops blank ones.
func Lines(text string) []string {
	var out []string
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Classify returns the overall status of a log.
func Classify(lines []string) domain.Status {
	full := strings.ToLower(strings.Join(lines, "\n"))
	switch {
	case containsAny(full, "already applied", "record already"):
		return domain.StatusAlreadyApplied
	case containsAny(full, "error", "critical", "traceback"):
		return domain.StatusError
	case strings.Contains(full, "applied successfully"):
		return domain.StatusSuccess
	case strings.Contains(full, "failed"):
		return domain.StatusFailed
	}
	return domain.StatusFailed
}

// ClassifySection returns the status of one account section.
func ClassifySection(section string) domain.Status {
	s := strings.ToLower(section)
	switch {
	case containsAny(s, "already applied", "record already"):
		return domain.StatusAlreadyApplied
	case strings.Contains(s, "applied successfully"):
		return domain.StatusSuccess
	case strings.Contains(s, "failed"):
		return domain.StatusFailed
	case containsAny(s, "critical error", "traceback"):
		return domain.StatusError
	}
	return domain.StatusFailed
}

// ParseSections classifies every non-blank section of the log.
//
// Section i (1-based, counted by position) takes its name from entities[i-1].
// The lookup is positional: if the remote job skipped an account the names
// after it shift. Content before the first delimiter is section 0.
func ParseSections(lines []string, entities []domain.Entity) []domain.AccountResult {
	full := strings.Join(lines, "\n")
	var results []domain.AccountResult
	for index, section := range sectionRx.Split(full, -1) {
		if strings.TrimSpace(section) == "" {
			continue
		}
		results = append(results, domain.AccountResult{
			Index:  index,
			Name:   sectionName(index, section, entities),
			Status: ClassifySection(section),
		})
	}
	return results
}

func sectionName(index int, section string, entities []domain.Entity) string {
	name := fmt.Sprintf("Account %d", index)
	if m := processingRx.FindStringSubmatch(section); m != nil {
		name = m[1]
	}
	if index > 0 && index <= len(entities) {
		if n := entities[index-1].Name(); n != "" {
			name = n
		}
	}
	return name
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
