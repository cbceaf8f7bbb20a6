package logparse

import (
	"strings"

	"ipotracker/internal/core/domain"
)

// Summary counts results per status.
type Summary struct {
	Total          int `json:"total" yaml:"total"`
	Success        int `json:"success" yaml:"success"`
	AlreadyApplied int `json:"already_applied" yaml:"already_applied"`
	Failed         int `json:"failed" yaml:"failed"`
	Error          int `json:"error" yaml:"error"`
}

func Summarize(results []domain.AccountResult) Summary {
	var s Summary
	for _, r := range results {
		s.Total++
		switch r.Status {
		case domain.StatusSuccess:
			s.Success++
		case domain.StatusAlreadyApplied:
			s.AlreadyApplied++
		case domain.StatusError:
			s.Error++
		default:
			s.Failed++
		}
	}
	return s
}

// Visible drops results without a meaningful name and title-cases the rest.
func Visible(results []domain.AccountResult) []domain.AccountResult {
	out := make([]domain.AccountResult, 0, len(results))
	for _, r := range results {
		name := strings.TrimSpace(r.Name)
		if name == "" || name == "Account 0" || name == "Unknown" {
			continue
		}
		r.Name = TitleCase(r.Name)
		out = append(out, r)
	}
	return out
}

// TitleCase lowercases s and upper-cases the first letter of every word.
// Runs of spaces are kept.
func TitleCase(s string) string {
	words := strings.Split(strings.ToLower(s), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}

// FormatSummary renders one "name<TAB>label" line per result.
func FormatSummary(results []domain.AccountResult) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, r.Name+"\t"+r.Status.Label())
	}
	return strings.Join(lines, "\n")
}
