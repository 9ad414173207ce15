// Package importer turns uploaded CSV and spreadsheet files into rows and records for bulk
// task and invite creation.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"taskflow.dev/internal/apperr"
)

// MaxUploadBytes caps every import file.
const MaxUploadBytes = 5 << 20

// Format is a supported input file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLS  Format = "xls"
	FormatXLSX Format = "xlsx"
)

var (
	ErrNoFile      = apperr.Invalid("No file uploaded")
	ErrTooLarge    = apperr.Invalid("File too large. Maximum size is 5MB")
	ErrUnsupported = apperr.Invalid("Only CSV and Excel files are allowed")
	ErrEmptyFile   = apperr.Invalid("File is empty or has no data rows")
)

var contentTypes = map[string]Format{
	"text/csv":                 FormatCSV,
	"application/csv":          FormatCSV,
	"application/vnd.ms-excel": FormatXLS,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": FormatXLSX,
}

// ValidateUpload checks size and type before any parsing. A known extension decides the format;
// otherwise the content type must be in the allow-list.
func ValidateUpload(filename, contentType string, size int64) (Format, error) {
	if filename == "" && size == 0 {
		return "", ErrNoFile
	}
	if size > MaxUploadBytes {
		return "", ErrTooLarge
	}
	if f, ok := formatFromExt(filename); ok {
		return f, nil
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if f, ok := contentTypes[strings.ToLower(mt)]; ok {
			return f, nil
		}
	}
	return "", ErrUnsupported
}

func formatFromExt(filename string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, true
	case ".xls":
		return FormatXLS, true
	case ".xlsx":
		return FormatXLSX, true
	}
	return "", false
}

// ReadRows reads every row of the first sheet (or the whole CSV), trimming each cell.
// Fully blank rows are skipped.
func ReadRows(format Format, r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("importer: read upload: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, ErrTooLarge
	}

	var rows [][]string
	switch format {
	case FormatCSV:
		rows, err = readCSV(data)
	case FormatXLSX:
		rows, err = readXLSX(data)
	case FormatXLS:
		rows, err = readXLS(data)
	default:
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, apperr.Invalid(fmt.Sprintf("Could not parse %s file: %v", format, err))
	}
	out := rows[:0]
	for _, row := range rows {
		for i := range row {
			row[i] = cleanCell(row[i])
		}
		if !blank(row) {
			out = append(out, row)
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptyFile
	}
	return out, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func readXLS(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no sheets")
	}
	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		cells := make([]string, 0, row.LastCol()+1)
		for j := 0; j <= row.LastCol(); j++ {
			cells = append(cells, row.Col(j))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// cleanCell trims whitespace and one layer of surrounding quotes.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

func blank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
