package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field is a logical column role a user can map a CSV header to
type Field string

const (
	FieldDate    Field = "date"
	FieldRevenue Field = "revenue"
	FieldSpend   Field = "spend"
	FieldChannel Field = "channel"
	FieldCountry Field = "country"
)

// Fields lists every mappable role in display order
var Fields = []Field{FieldDate, FieldRevenue, FieldSpend, FieldChannel, FieldCountry}

// IsValid reports whether f is one of the known roles
func (f Field) IsValid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// RawRow holds the cell values of one imported record, aligned with Dataset.Headers
type RawRow []string

// Dataset represents an imported CSV file
type Dataset struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Headers    []string  `json:"headers" db:"headers"`
	Rows       []RawRow  `json:"rows" db:"rows"`
	ImportedAt time.Time `json:"imported_at" db:"imported_at"`
}

// Len returns the number of data rows
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// HeaderIndex returns the column position of header or -1
func (d *Dataset) HeaderIndex(header string) int {
	if d == nil {
		return -1
	}
	for i, h := range d.Headers {
		if h == header {
			return i
		}
	}
	return -1
}

// HasHeader reports whether the dataset carries the given column
func (d *Dataset) HasHeader(header string) bool {
	return d.HeaderIndex(header) >= 0
}

// Value returns the cell at row i for header. Short rows read as empty.
func (d *Dataset) Value(i int, header string) string {
	idx := d.HeaderIndex(header)
	if idx < 0 || i < 0 || i >= d.Len() {
		return ""
	}
	row := d.Rows[i]
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}

// Summary returns the dataset metadata without its rows
func (d *Dataset) Summary() DatasetSummary {
	return DatasetSummary{
		ID:         d.ID,
		Name:       d.Name,
		Headers:    d.Headers,
		RowCount:   d.Len(),
		ImportedAt: d.ImportedAt,
	}
}

// DatasetSummary is the row-less view of a dataset used in listings
type DatasetSummary struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Headers    []string  `json:"headers" db:"headers"`
	RowCount   int       `json:"row_count" db:"row_count"`
	ImportedAt time.Time `json:"imported_at" db:"imported_at"`
}

// ColumnMapping maps logical roles to the header chosen by the user.
// It may be partial.
type ColumnMapping map[Field]string

// Column returns the header mapped to f
func (m ColumnMapping) Column(f Field) (string, bool) {
	col, ok := m[f]
	if !ok || strings.TrimSpace(col) == "" {
		return "", false
	}
	return col, true
}

// Has reports whether every given role is mapped
func (m ColumnMapping) Has(fields ...Field) bool {
	return len(m.Missing(fields...)) == 0
}

// Missing returns the required roles that have no mapped header
func (m ColumnMapping) Missing(required ...Field) []Field {
	var missing []Field
	for _, f := range required {
		if _, ok := m.Column(f); !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// Clone returns an independent copy
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Record is a raw row resolved through a ColumnMapping at import time.
// Unmapped roles stay at their zero value.
type Record struct {
	Date    *time.Time         `json:"date,omitempty"`
	Revenue float64            `json:"revenue"`
	Spend   float64            `json:"spend"`
	Channel string             `json:"channel,omitempty"`
	Country string             `json:"country,omitempty"`
	Label   string             `json:"label,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Metric returns the numeric value of the given header, 0 when absent
func (r Record) Metric(header string) float64 {
	if r.Metrics == nil {
		return 0
	}
	return r.Metrics[header]
}

// UniqueValues returns the sorted distinct non-empty values picked from records
func UniqueValues(records []Record, pick func(Record) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		v := pick(r)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
