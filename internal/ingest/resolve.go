package ingest

import (
	"strings"

	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
)

// Resolve converts raw rows into records through the mapping, preserving row order.
// Unmapped roles and unparsable cells resolve to zero values.
func Resolve(ds *models.Dataset, mapping models.ColumnMapping) []models.Record {
	if ds.Len() == 0 {
		return nil
	}

	dateCol, hasDate := mapping.Column(models.FieldDate)
	revenueCol, hasRevenue := mapping.Column(models.FieldRevenue)
	spendCol, hasSpend := mapping.Column(models.FieldSpend)
	channelCol, hasChannel := mapping.Column(models.FieldChannel)
	countryCol, hasCountry := mapping.Column(models.FieldCountry)

	records := make([]models.Record, 0, ds.Len())
	for i := range ds.Rows {
		rec := models.Record{Metrics: make(map[string]float64, len(ds.Headers))}
		for _, h := range ds.Headers {
			rec.Metrics[h] = ParseNumber(ds.Value(i, h))
		}
		if hasDate {
			rec.Label = ds.Value(i, dateCol)
			if t, ok := ParseDate(rec.Label); ok {
				rec.Date = &t
			}
		}
		if hasRevenue {
			rec.Revenue = rec.Metrics[revenueCol]
		}
		if hasSpend {
			rec.Spend = rec.Metrics[spendCol]
		}
		if hasChannel {
			rec.Channel = ds.Value(i, channelCol)
		}
		if hasCountry {
			rec.Country = ds.Value(i, countryCol)
		}
		records = append(records, rec)
	}
	return records
}

var headerHints = map[models.Field][]string{
	models.FieldDate:    {"date", "day", "week", "month", "period", "timestamp"},
	models.FieldRevenue: {"revenue", "sales", "income", "conversion value"},
	models.FieldSpend:   {"spend", "cost", "budget", "investment"},
	models.FieldChannel: {"channel", "source", "medium", "platform"},
	models.FieldCountry: {"country", "region", "geo", "market"},
}

// DetectMapping guesses a mapping from header names. An exact (case-insensitive)
// match wins over a substring match; each header is used at most once.
func DetectMapping(headers []string) models.ColumnMapping {
	mapping := make(models.ColumnMapping)
	used := make(map[string]bool)

	for _, exact := range []bool{true, false} {
		for _, field := range models.Fields {
			if _, ok := mapping[field]; ok {
				continue
			}
			for _, h := range headers {
				if used[h] {
					continue
				}
				if matchesHint(strings.ToLower(h), headerHints[field], exact) {
					mapping[field] = h
					used[h] = true
					break
				}
			}
		}
	}
	return mapping
}

func matchesHint(header string, hints []string, exact bool) bool {
	for _, hint := range hints {
		if exact && header == hint {
			return true
		}
		if !exact && strings.Contains(header, hint) {
			return true
		}
	}
	return false
}

// MissingValues counts rows with at least one empty cell
func MissingValues(ds *models.Dataset) int {
	if ds == nil {
		return 0
	}
	count := 0
	for _, row := range ds.Rows {
		for _, v := range row {
			if v == "" {
				count++
				break
			}
		}
	}
	return count
}

// UnparsableDates counts records whose mapped date could not be read
func UnparsableDates(records []models.Record) int {
	count := 0
	for _, r := range records {
		if r.Date == nil {
			count++
		}
	}
	return count
}
