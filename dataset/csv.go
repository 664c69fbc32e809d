package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ReadCSV loads a header-first CSV stream into a Table. Column types are
// inferred: a column is Number when every non-empty cell parses as a float,
// Timestamp when every non-empty cell matches a known layout, Bool for
// true/false columns, and Text otherwise. Empty cells become nil.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptySchema
	}

	header := records[0]
	body := records[1:]
	columns := make([]Column, len(header))
	for c, name := range header {
		columns[c] = Column{Name: strings.TrimSpace(name), Type: inferType(body, c)}
	}

	rows := make([][]any, len(body))
	for r, rec := range body {
		row := make([]any, len(columns))
		for c := range columns {
			if c >= len(rec) {
				continue
			}
			row[c] = parseCell(strings.TrimSpace(rec[c]), columns[c].Type)
		}
		rows[r] = row
	}
	return New(columns, rows)
}

func inferType(body [][]string, c int) Type {
	isNum, isTime, isBool, seen := true, true, true, false
	for _, rec := range body {
		if c >= len(rec) {
			continue
		}
		cell := strings.TrimSpace(rec[c])
		if cell == "" {
			continue
		}
		seen = true
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			isNum = false
		}
		if _, ok := parseTime(cell); !ok {
			isTime = false
		}
		if _, err := strconv.ParseBool(cell); err != nil || isNumeric(cell) {
			isBool = false
		}
	}
	switch {
	case !seen:
		return Text
	case isNum:
		return Number
	case isBool:
		return Bool
	case isTime:
		return Timestamp
	default:
		return Text
	}
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func parseCell(cell string, typ Type) any {
	if cell == "" {
		return nil
	}
	switch typ {
	case Number:
		f, _ := strconv.ParseFloat(cell, 64)
		return f
	case Timestamp:
		ts, _ := parseTime(cell)
		return ts
	case Bool:
		b, _ := strconv.ParseBool(cell)
		return b
	default:
		return cell
	}
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
