// Package ingest turns uploaded CSV files into datasets and resolves their rows
// through a column mapping.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
)

// ErrNoHeader is returned when the input has no header row
var ErrNoHeader = errors.New("csv file has no header row")

const utf8BOM = "\ufeff"

// ParseCSV reads a CSV document with a mandatory header row.
// Blank lines are skipped and rows are padded or truncated to the header width.
// Any read failure aborts the whole import.
func ParseCSV(r io.Reader, name string) (*models.Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	headers := normalizeHeaders(header)
	if len(headers) == 0 {
		return nil, ErrNoHeader
	}

	var rows []models.RawRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		if isBlank(record) {
			continue
		}
		rows = append(rows, fitRow(record, len(headers)))
	}

	return &models.Dataset{
		ID:         uuid.New(),
		Name:       name,
		Headers:    headers,
		Rows:       rows,
		ImportedAt: time.Now().UTC(),
	}, nil
}

func normalizeHeaders(header []string) []string {
	if len(header) == 0 {
		return nil
	}
	header[0] = strings.TrimPrefix(header[0], utf8BOM)

	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	blank := 0
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			blank++
			h = fmt.Sprintf("column_%d", i+1)
		}
		if n, ok := seen[h]; ok {
			seen[h] = n + 1
			h = fmt.Sprintf("%s_%d", h, n+1)
		} else {
			seen[h] = 0
		}
		out[i] = h
	}
	if blank == len(header) {
		return nil
	}
	return out
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func fitRow(record []string, width int) models.RawRow {
	row := make(models.RawRow, width)
	copy(row, record)
	for i := range row {
		row[i] = strings.TrimSpace(row[i])
	}
	return row
}
