package roster

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

// RequiredRoles must resolve for an export to be usable.
var RequiredRoles = []Role{RoleName, RoleTeacherPeriod}

// SkippedRow records a row that could not be used.
type SkippedRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// RowsFromTable maps and parses every data row. Rows whose teacher/period
// cell does not parse are skipped and reported, not fatal.
func RowsFromTable(t Table) ([]Row, []SkippedRow, error) {
	cols := MapColumns(t.Header)
	if missing := cols.Missing(RequiredRoles...); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, r := range missing {
			names[i] = string(r)
		}
		return nil, nil, pferrors.Parse("export is missing required columns: "+strings.Join(names, ", "), nil).
			WithContext("headers", strings.Join(t.Header, ", ")).
			WithRemediation("check that the saved report still includes these columns; headers are matched by name")
	}

	rows := make([]Row, 0, len(t.Rows))
	var skipped []SkippedRow
	for i, raw := range t.Rows {
		line := i + 2 // header is line 1
		sec, err := ParseSection(cols.Get(raw, RoleTeacherPeriod))
		if err != nil {
			reason := err.Error()
			var se *SectionError
			if errors.As(err, &se) {
				reason = string(se.Reason)
			}
			skipped = append(skipped, SkippedRow{Line: line, Reason: reason})
			continue
		}
		row := Row{
			StudentID: cols.Get(raw, RoleStudentID),
			LocalID:   cols.Get(raw, RoleLocalID),
			Name:      cols.Get(raw, RoleName),
			Flag:      parseFlag(cols.Get(raw, RoleFlag)),
			Section:   sec,
		}
		if row.StudentID == "" && row.LocalID == "" && row.Name == "" {
			skipped = append(skipped, SkippedRow{Line: line, Reason: "no student identity"})
			continue
		}
		for ti, tier := range Tiers {
			row.Tiers[ti] = Contact{
				FirstName:    cols.Get(raw, ContactRole(tier, FieldFirstName)),
				LastName:     cols.Get(raw, ContactRole(tier, FieldLastName)),
				Phone:        cols.Get(raw, ContactRole(tier, FieldPhone)),
				Email:        cols.Get(raw, ContactRole(tier, FieldEmail)),
				Relationship: cols.Get(raw, ContactRole(tier, FieldRelationship)),
				CallOut:      parseFlag(cols.Get(raw, ContactRole(tier, FieldCallOut))),
			}
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

// TeacherLastName extracts the surname used to filter rows from a display
// name such as "Jane Smith" or "Smith, Jane".
func TeacherLastName(display string) string {
	display = strings.TrimSpace(display)
	if before, _, ok := strings.Cut(display, ","); ok {
		return strings.TrimSpace(before)
	}
	fields := strings.Fields(display)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// Reconcile keeps the rows taught by teacher, groups them by period and
// builds one record per student per period. Each record's schedule is
// rebuilt from all of that student's rows, not only the matching ones.
// When no row matches it returns a RECONCILIATION_WARNING listing the
// teachers that are present.
func Reconcile(rows []Row, teacher string) (Document, error) {
	last := fold.String(TeacherLastName(teacher))
	if last == "" {
		return nil, pferrors.Validation("teacher name is required")
	}

	byStudent := make(map[string][]Row)
	for _, r := range rows {
		id := r.identity()
		byStudent[id] = append(byStudent[id], r)
	}

	doc := make(Document)
	seen := make(map[int]map[string]bool)
	for _, r := range rows {
		if !strings.Contains(fold.String(r.Section.Teacher), last) {
			continue
		}
		p := r.Section.Period
		group, ok := doc[p]
		if !ok {
			group = &PeriodGroup{}
			doc[p] = group
			seen[p] = make(map[string]bool)
		}
		if r.Section.Course != "" && !slices.Contains(group.Courses, r.Section.Course) {
			group.Courses = append(group.Courses, r.Section.Course)
		}
		id := r.identity()
		if seen[p][id] {
			continue
		}
		seen[p][id] = true
		group.Students = append(group.Students, buildRecord(byStudent[id]))
	}

	if len(doc) == 0 {
		return nil, pferrors.ReconciliationWarning(teacher, teachersPresent(rows))
	}
	for _, g := range doc {
		sort.Strings(g.Courses)
		sort.SliceStable(g.Students, func(i, j int) bool {
			a, b := g.Students[i], g.Students[j]
			if fa, fb := fold.String(a.Name), fold.String(b.Name); fa != fb {
				return fa < fb
			}
			return a.StudentID+a.LocalID < b.StudentID+b.LocalID
		})
	}
	return doc, nil
}

// buildRecord merges all rows of one student.
func buildRecord(rows []Row) StudentRecord {
	first := rows[0]
	rec := StudentRecord{StudentID: first.StudentID, LocalID: first.LocalID, Name: first.Name}

	var tiers [3]Contact
	type key struct {
		period  int
		course  string
		teacher string
	}
	entries := make(map[key]bool)
	for _, r := range rows {
		if rec.StudentID == "" {
			rec.StudentID = r.StudentID
		}
		if rec.LocalID == "" {
			rec.LocalID = r.LocalID
		}
		if rec.Name == "" {
			rec.Name = r.Name
		}
		rec.Flag = rec.Flag || r.Flag
		for i := range tiers {
			if tiers[i].Empty() && !r.Tiers[i].Empty() {
				tiers[i] = r.Tiers[i]
			}
		}

		s := r.Section
		k := key{period: s.Period, course: fold.String(s.Course), teacher: fold.String(s.Teacher)}
		if entries[k] {
			continue
		}
		entries[k] = true
		rec.Schedule = append(rec.Schedule, ScheduleEntry{Period: s.Period, Course: s.Course, Teacher: s.Teacher, Semester: s.Semester})
	}
	sort.SliceStable(rec.Schedule, func(i, j int) bool {
		return rec.Schedule[i].Period < rec.Schedule[j].Period
	})

	rec.Emails, rec.Phones = MergeContacts(tiers[:]...)
	rec.Contacts = Contacts{
		Primary:   contactPtr(tiers[0]),
		Secondary: contactPtr(tiers[1]),
		Third:     contactPtr(tiers[2]),
	}
	return rec
}

func contactPtr(c Contact) *Contact {
	if c.Empty() {
		return nil
	}
	return &c
}

func teachersPresent(rows []Row) []string {
	set := make(map[string]bool)
	for _, r := range rows {
		if t := strings.TrimSpace(r.Section.Teacher); t != "" {
			set[t] = true
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Summary is a short human description of doc.
func (d Document) Summary() string {
	students := 0
	for _, g := range d {
		students += len(g.Students)
	}
	return fmt.Sprintf("%d period(s), %d student record(s)", len(d), students)
}
