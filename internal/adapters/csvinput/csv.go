// Package csvinput reads the account sheet a batch is built from.
package csvinput

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"ipotracker/internal/core/domain"
)

// MaxRows is the largest batch a single job accepts.
const MaxRows = 20

// RequiredHeaders must all be present. Other columns are carried along.
var RequiredHeaders = []string{"name", "dp", "username", "password", "pin", "crn", "units"}

// Read parses a header row followed by one account per row. Fields keep
// the header order. Blank rows are skipped.
func Read(r io.Reader) ([]domain.Entity, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: CSV must have at least a header and one data row", domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	for _, required := range RequiredHeaders {
		if !slices.Contains(header, required) {
			return nil, fmt.Errorf("%w: missing required column: %s", domain.ErrInvalidInput, required)
		}
	}

	var entities []domain.Entity
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		if blank(record) {
			continue
		}
		line, _ := cr.FieldPos(0)
		if len(record) != len(header) {
			return nil, fmt.Errorf("%w: row %d has incorrect number of columns", domain.ErrInvalidInput, line)
		}
		fields := make([]domain.Field, 0, len(header))
		for i, key := range header {
			fields = append(fields, domain.StringField(key, strings.TrimSpace(record[i])))
		}
		entities = append(entities, domain.NewEntity(fields...))
	}

	switch {
	case len(entities) == 0:
		return nil, fmt.Errorf("%w: CSV must have at least a header and one data row", domain.ErrInvalidInput)
	case len(entities) > MaxRows:
		return nil, fmt.Errorf("%w: maximum %d accounts only, found %d", domain.ErrInvalidInput, MaxRows, len(entities))
	}
	return entities, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
