package importer

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Record is one data row keyed by normalised header name. Row is the 1-based spreadsheet
// row number, so the header is row 1 and the first record is row 2.
type Record struct {
	Row    int
	Fields map[string]string
}

// Get returns the first non-empty value among keys.
func (r Record) Get(keys ...string) string {
	for _, k := range keys {
		if v := r.Fields[k]; v != "" {
			return v
		}
	}
	return ""
}

// Table treats the first row as a header and returns the remaining rows as records.
func Table(rows [][]string) []Record {
	if len(rows) < 2 {
		return nil
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = NormalizeHeader(h)
	}
	out := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec := Record{Row: i + 2, Fields: make(map[string]string, len(header))}
		for j, cell := range row {
			if j < len(header) && header[j] != "" {
				rec.Fields[header[j]] = cell
			}
		}
		out = append(out, rec)
	}
	return out
}

var headerSep = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeHeader lower-cases h and joins words with underscores: "Due Date" -> "due_date".
func NormalizeHeader(h string) string {
	return strings.Trim(headerSep.ReplaceAllString(strings.ToLower(strings.TrimSpace(h)), "_"), "_")
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

// Emails collects addresses from every cell, skipping a header cell named "email".
// Valid addresses are lower-cased and deduplicated in first-seen order; anything else
// that contains an @ is returned as invalid.
func Emails(rows [][]string) (valid, invalid []string) {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for _, cell := range row {
			for _, part := range SplitList(cell) {
				addr := strings.ToLower(part)
				if addr == "" || NormalizeHeader(addr) == "email" || NormalizeHeader(addr) == "emails" {
					continue
				}
				if _, dup := seen[addr]; dup {
					continue
				}
				seen[addr] = struct{}{}
				if ValidEmail(addr) {
					valid = append(valid, addr)
				} else if strings.Contains(addr, "@") {
					invalid = append(invalid, part)
				}
			}
		}
	}
	return valid, invalid
}

// SplitList splits a cell holding several values separated by commas, semicolons or pipes.
func SplitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
	out := fields[:0]
	for _, f := range fields {
		if f = cleanCell(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"01-02-06",
}

// ParseDate accepts the common date spellings found in spreadsheets, including Excel serial
// day numbers. ok is false for anything it cannot read.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 2958466 {
		epoch := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
		return epoch.Add(time.Duration(serial * float64(24*time.Hour))).Truncate(time.Second), true
	}
	return time.Time{}, false
}
