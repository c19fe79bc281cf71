package roster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

// PeriodGroup is one period's classes and students.
type PeriodGroup struct {
	Courses  []string        `json:"courses"`
	Students []StudentRecord `json:"students"`
}

// Document is the reconciled roster keyed by period number. It serializes
// as an object keyed "Period N" in ascending period order.
type Document map[int]*PeriodGroup

const periodPrefix = "Period "

// PeriodKey renders the document key for period p.
func PeriodKey(p int) string { return periodPrefix + strconv.Itoa(p) }

// Periods returns the period numbers in ascending order.
func (d Document) Periods() []int {
	out := make([]int, 0, len(d))
	for p := range d {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// MarshalJSON writes periods in ascending order.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range d.Periods() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(PeriodKey(p))
		buf.Write(key)
		buf.WriteByte(':')
		group := d[p]
		if group == nil {
			group = &PeriodGroup{}
		}
		val, err := json.Marshal(normalized(*group))
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads "Period N" keys back into period numbers.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]*PeriodGroup
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Document, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(strings.TrimPrefix(k, periodPrefix))
		if err != nil || !strings.HasPrefix(k, periodPrefix) {
			return fmt.Errorf("roster: bad period key %q", k)
		}
		out[n] = v
	}
	*d = out
	return nil
}

// normalized replaces nil slices so the document always has arrays.
func normalized(g PeriodGroup) PeriodGroup {
	if g.Courses == nil {
		g.Courses = []string{}
	}
	if g.Students == nil {
		g.Students = []StudentRecord{}
	}
	for i := range g.Students {
		if g.Students[i].Schedule == nil {
			g.Students[i].Schedule = []ScheduleEntry{}
		}
	}
	return g
}

// WriteJSON writes d to path atomically: readers see the old file or the
// complete new one, never a partial document.
func WriteJSON(path string, d Document) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeInternal, "encode roster")
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "create output directory").WithContext("dir", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "create temp file").WithContext("dir", dir)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "write roster").WithContext("path", path)
	}
	if err := tmp.Close(); err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "close roster").WithContext("path", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "replace roster").WithContext("path", path)
	}
	return nil
}

var xlsxHeader = []any{
	"Student ID", "Local ID", "Name", "Flag", "Emails", "Phones",
	"Primary Contact", "Primary Relationship", "Secondary Contact", "Secondary Relationship",
	"Third Contact", "Third Relationship", "Schedule",
}

// WriteXLSX writes one sheet per period. The workbook is saved through a
// temp file like WriteJSON.
func WriteXLSX(path string, d Document) error {
	f := excelize.NewFile()
	defer f.Close()

	periods := d.Periods()
	if len(periods) == 0 {
		return pferrors.Validation("roster document is empty")
	}
	for i, p := range periods {
		sheet := PeriodKey(p)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return pferrors.Wrap(err, pferrors.ErrCodeInternal, "name sheet")
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return pferrors.Wrap(err, pferrors.ErrCodeInternal, "add sheet")
		}

		if err := f.SetSheetRow(sheet, "A1", &xlsxHeader); err != nil {
			return pferrors.Wrap(err, pferrors.ErrCodeInternal, "write header")
		}
		for r, s := range normalized(*d[p]).Students {
			row := []any{
				s.StudentID, s.LocalID, s.Name, s.Flag,
				strings.Join(s.Emails, "; "), strings.Join(s.Phones, "; "),
				contactName(s.Contacts.Primary), relationship(s.Contacts.Primary),
				contactName(s.Contacts.Secondary), relationship(s.Contacts.Secondary),
				contactName(s.Contacts.Third), relationship(s.Contacts.Third),
				scheduleText(s.Schedule),
			}
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return pferrors.Wrap(err, pferrors.ErrCodeInternal, "locate row")
			}
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return pferrors.Wrap(err, pferrors.ErrCodeInternal, "write row")
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeInternal, "encode workbook")
	}
	return writeAtomic(path, buf.Bytes())
}

func contactName(c *Contact) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func relationship(c *Contact) string {
	if c == nil {
		return ""
	}
	return c.Relationship
}

func scheduleText(entries []ScheduleEntry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("P%d %s (%s)", e.Period, e.Course, e.Teacher)
	}
	return strings.Join(parts, "; ")
}
