package core

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// classifyThreshold is the share of non-blank values that must agree on a
// type before it is suggested.
const classifyThreshold = 0.8

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`),
	regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`),
	regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`),
	regexp.MustCompile(`^\d{1,2}\s\w+\s\d{4}$`),
	regexp.MustCompile(`(?i)^(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{4}$`),
}

// SuggestType infers the semantic type of a column from sampled values.
// Blank values are ignored; a column with no non-blank values is text.
// Numbers are checked before dates.
func SuggestType(values []string) ColumnType {
	var total, numeric, dates int
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		total++
		if isNumeric(v) {
			numeric++
		}
		if isDate(v) {
			dates++
		}
	}

	if total == 0 {
		return ColumnText
	}
	if float64(numeric)/float64(total) >= classifyThreshold {
		return ColumnNumber
	}
	if float64(dates)/float64(total) >= classifyThreshold {
		return ColumnDate
	}
	return ColumnText
}

// SuggestColumns builds column definitions for headers, sampling the values
// at each header's position in rows.
func SuggestColumns(headers []string, rows [][]string) []Column {
	columns := make([]Column, len(headers))
	values := make([]string, 0, len(rows))
	for i, name := range headers {
		values = values[:0]
		for _, row := range rows {
			if i < len(row) {
				values = append(values, row[i])
			}
		}
		t := SuggestType(values)
		columns[i] = Column{Name: name, SuggestedType: t, AssignedType: t}
	}
	return columns
}

// isNumeric accepts finite decimal numbers, ignoring "," grouping separators.
// Go literal forms that ParseFloat also takes (underscores, hex, "Inf") are
// rejected.
func isNumeric(v string) bool {
	v = strings.ReplaceAll(v, ",", "")
	if strings.ContainsFunc(v, notDecimal) {
		return false
	}
	f, err := strconv.ParseFloat(v, 64)
	return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
}

func notDecimal(r rune) bool {
	return !strings.ContainsRune("0123456789.eE+-", r)
}

func isDate(v string) bool {
	for _, re := range datePatterns {
		if re.MatchString(v) {
			return true
		}
	}
	// Short tokens like "1" or "2024" parse as dates in permissive parsers.
	if len(v) <= 4 {
		return false
	}
	_, err := dateparse.ParseIn(v, time.UTC)
	return err == nil
}
