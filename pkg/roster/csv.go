// Package roster signs in to the district portal, exports the class roster
// report and reconciles its rows into one record per student.
package roster

import (
	"bufio"
	"io"
	"strings"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

const maxLineBytes = 4 << 20

// SplitLine tokenizes one delimited line. Commas inside double quotes do not
// split; wrapping quotes are stripped and a doubled quote inside a quoted
// field is a literal quote. Malformed quoting is tolerated, never rejected.
func SplitLine(line string) []string {
	var (
		fields []string
		field  strings.Builder
		quoted bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' && quoted && i+1 < len(runes) && runes[i+1] == '"':
			field.WriteRune('"')
			i++
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			fields = append(fields, strings.TrimSpace(field.String()))
			field.Reset()
		default:
			field.WriteRune(r)
		}
	}
	return append(fields, strings.TrimSpace(field.String()))
}

// Table is a parsed export: one header row and its data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadTable reads a delimited export. Blank lines are skipped and a UTF-8
// byte order mark on the header is dropped. An export without data rows is
// a PARSE error.
func ReadTable(r io.Reader) (Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	var t Table
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if t.Header == nil {
			t.Header = SplitLine(strings.TrimPrefix(line, "\ufeff"))
			continue
		}
		t.Rows = append(t.Rows, SplitLine(line))
	}
	if err := sc.Err(); err != nil {
		return Table{}, pferrors.Parse("read export", err)
	}
	if t.Header == nil {
		return Table{}, pferrors.Parse("export file is empty", nil)
	}
	if len(t.Rows) == 0 {
		return Table{}, pferrors.Parse("export has a header but no rows", nil).
			WithContext("columns", len(t.Header))
	}
	return t, nil
}
