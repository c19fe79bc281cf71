package roster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var fixtureHeader = []string{
	"Student ID", "Local ID", "Student Name", "Teacher/Period", "IEP Flag",
	"Primary Contact First Name", "Primary Contact Last Name", "Primary Contact Phone", "Primary Contact Email", "Primary Relationship", "Primary Call Out",
	"Secondary Contact First Name", "Secondary Contact Last Name", "Secondary Contact Phone", "Secondary Contact Email", "Secondary Relationship", "Secondary Call Out",
	"Third Contact First Name", "Third Contact Last Name", "Third Contact Phone", "Third Contact Email", "Third Relationship", "Third Call Out",
}

// fixtureRow fills the fixture columns by header name; unnamed cells are empty.
func fixtureRow(cells map[string]string) []string {
	row := make([]string, len(fixtureHeader))
	for i, h := range fixtureHeader {
		row[i] = cells[h]
	}
	return row
}

func csvText(header []string, rows ...[]string) string {
	quote := func(fields []string) string {
		out := make([]string, len(fields))
		for i, f := range fields {
			out[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
		}
		return strings.Join(out, ",")
	}
	lines := []string{quote(header)}
	for _, r := range rows {
		lines = append(lines, quote(r))
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

func writeFixture(t *testing.T, rows ...[]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.csv")
	if err := os.WriteFile(path, []byte(csvText(fixtureHeader, rows...)), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func fixtureTable(rows ...[]string) Table {
	return Table{Header: fixtureHeader, Rows: rows}
}

// semesterRows is the same student in two semesters of Smith's period 4.
func semesterRows() [][]string {
	return [][]string{
		fixtureRow(map[string]string{
			"Student ID": "1001", "Student Name": "Alvarez, Maria", "Teacher/Period": "04 04 - USH006 - Smith",
			"Primary Contact First Name": "Rosa", "Primary Contact Last Name": "Alvarez",
			"Primary Contact Email": "rosa@example.com", "Primary Contact Phone": "(555) 010-2000",
			"Primary Relationship": "Mother", "Primary Call Out": "Y",
		}),
		fixtureRow(map[string]string{
			"Student ID": "1001", "Student Name": "Alvarez, Maria", "Teacher/Period": "04 S1 - 556 - 04 - Smith",
		}),
		fixtureRow(map[string]string{
			"Student ID": "1001", "Student Name": "Alvarez, Maria", "Teacher/Period": "04 04 - S2 - USH006 - Smith",
		}),
	}
}
