package importer

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"taskflow.dev/internal/apperr"
)

func TestValidateUpload(t *testing.T) {
	f, err := ValidateUpload("tasks.CSV", "application/octet-stream", 10)
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ValidateUpload("people.xlsx", "", 10)
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = ValidateUpload("upload", "application/vnd.ms-excel", 10)
	require.NoError(t, err)
	assert.Equal(t, FormatXLS, f)

	f, err = ValidateUpload("report.txt", "text/csv; charset=utf-8", 10)
	require.NoError(t, err, "an allowed content type covers an unknown extension")
	assert.Equal(t, FormatCSV, f)

	f, err = ValidateUpload("export.dat", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", 10)
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = ValidateUpload("tasks.pdf", "application/pdf", 10)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = ValidateUpload("notes.txt", "text/plain", 10)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = ValidateUpload("tasks.csv", "text/csv", MaxUploadBytes+1)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestReadCSVTrimsAndStripsQuotes(t *testing.T) {
	in := "\xef\xbb\xbfTitle, Status ,Due Date\n" +
		"\"Write report\", 'In Progress' ,2024-05-01\n" +
		",,\n" +
		"\"Ship, then celebrate\",Completed,\n"
	rows, err := ReadRows(FormatCSV, strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Title", "Status", "Due Date"}, rows[0])
	assert.Equal(t, []string{"Write report", "In Progress", "2024-05-01"}, rows[1])
	assert.Equal(t, "Ship, then celebrate", rows[2][0])
}

func TestReadRowsRejectsEmpty(t *testing.T) {
	_, err := ReadRows(FormatCSV, strings.NewReader("\n\n"))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"title", "assignees"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{" Plan sprint ", "a@x.io; b@x.io"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, err := ReadRows(FormatXLSX, &buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Plan sprint", rows[1][0])
}

func TestReadXLSRejectsGarbage(t *testing.T) {
	_, err := ReadRows(FormatXLS, strings.NewReader("definitely not a BIFF file"))
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestTable(t *testing.T) {
	recs := Table([][]string{
		{"Title", "Due Date", "Assigned To"},
		{"A", "2024-01-01"},
		{"B", "", "x@y.z", "extra"},
	})
	require.Len(t, recs, 2)
	assert.Equal(t, 2, recs[0].Row)
	assert.Equal(t, "2024-01-01", recs[0].Get("due", "due_date"))
	assert.Equal(t, "x@y.z", recs[1].Get("assignees", "assigned_to"))
	assert.Empty(t, Table([][]string{{"only header"}}))
}

func TestEmailsDedupesAndValidates(t *testing.T) {
	valid, invalid := Emails([][]string{
		{"Email"},
		{"Ada@Example.com"},
		{"ada@example.com"},
		{"bob@example.com; carol@example.org"},
		{"not-an-email"},
		{"broken@"},
	})
	assert.Equal(t, []string{"ada@example.com", "bob@example.com", "carol@example.org"}, valid)
	assert.Equal(t, []string{"broken@"}, invalid)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-05-01", "05/01/2024", "2024/05/01", "May 1, 2024", "45413"} {
		got, ok := ParseDate(in)
		require.True(t, ok, in)
		assert.True(t, want.Equal(got), "%s -> %s", in, got)
	}
	_, ok := ParseDate("next tuesday")
	assert.False(t, ok)
	_, ok = ParseDate("")
	assert.False(t, ok)
}
