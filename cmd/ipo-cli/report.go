package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"ipotracker/internal/core/domain"
	"ipotracker/internal/logparse"
)

// report is the printed outcome of a job.
type report struct {
	JobID    string                 `json:"job_id" yaml:"job_id"`
	State    domain.State           `json:"state" yaml:"state"`
	Overall  domain.Status          `json:"overall,omitempty" yaml:"overall,omitempty"`
	Attempts int                    `json:"attempts" yaml:"attempts"`
	Error    string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Accounts []domain.AccountResult `json:"accounts" yaml:"accounts"`
	Summary  logparse.Summary       `json:"summary" yaml:"summary"`
}

func newReport(snap domain.Snapshot) report {
	visible := logparse.Visible(snap.AccountResults)
	return report{
		JobID:    snap.JobID,
		State:    snap.State,
		Overall:  snap.OverallStatus,
		Attempts: snap.Attempts,
		Error:    snap.Error,
		Accounts: visible,
		Summary:  logparse.Summarize(visible),
	}
}

func checkFormat(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	}
	return fmt.Errorf("%w: unknown format %q, expected text, json or yaml", domain.ErrInvalidInput, format)
}

func render(w io.Writer, format string, r report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	}
	return renderText(w, r)
}

func renderText(w io.Writer, r report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "=== Job Summary ===")
	fmt.Fprintf(tw, "Job ID:\t%s\n", r.JobID)
	fmt.Fprintf(tw, "State:\t%s\n", r.State)
	if r.Overall != "" {
		fmt.Fprintf(tw, "Overall:\t%s\n", r.Overall.Label())
	}
	fmt.Fprintf(tw, "Attempts:\t%d\n", r.Attempts)
	if r.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", r.Error)
	}
	if len(r.Accounts) > 0 {
		fmt.Fprintln(tw)
		for _, a := range r.Accounts {
			fmt.Fprintf(tw, "%s\t%s\n", a.Name, a.Status.Label())
		}
		fmt.Fprintln(tw)
		s := r.Summary
		fmt.Fprintf(tw, "Total %d, Success %d, Already Applied %d, Failed %d, Error %d\n",
			s.Total, s.Success, s.AlreadyApplied, s.Failed, s.Error)
	}
	return tw.Flush()
}
