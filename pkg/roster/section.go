package roster

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Section is the parsed form of a combined teacher/period cell such as
// "04 04 - USH006 - Smith" or "07 S1 - 556 - 04 - Smith".
type Section struct {
	Period   int    `json:"period"`
	Course   string `json:"course"`
	Semester string `json:"semester,omitempty"`
	Teacher  string `json:"teacher"`
}

// SectionFailure classifies why a cell could not be parsed.
type SectionFailure string

const (
	SectionEmpty     SectionFailure = "empty"
	SectionNoTeacher SectionFailure = "no_teacher"
	SectionBadPeriod SectionFailure = "bad_period"
)

// SectionError is returned by ParseSection.
type SectionError struct {
	Input  string
	Reason SectionFailure
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("teacher/period %q: %s", e.Input, e.Reason)
}

var semesterPattern = regexp.MustCompile(`^[Ss]\d+$`)

// ParseSection reads a teacher/period cell. Segments are separated by
// " - "; a bare "-" splits only when no spaced separator is present, so
// hyphenated teacher names survive. The first segment leads with the
// period number, the last segment is the teacher, S<n> segments (or S<n>
// tokens in the first segment) are the semester, and every other middle
// segment is joined with "-" into the course code.
func ParseSection(s string) (Section, error) {
	input := strings.TrimSpace(s)
	if input == "" {
		return Section{}, &SectionError{Input: s, Reason: SectionEmpty}
	}

	segments := splitSegments(input)
	if len(segments) < 2 {
		return Section{}, &SectionError{Input: s, Reason: SectionNoTeacher}
	}

	head := strings.Fields(segments[0])
	period, err := strconv.Atoi(head[0])
	if err != nil || period < 0 {
		return Section{}, &SectionError{Input: s, Reason: SectionBadPeriod}
	}

	sec := Section{Period: period, Teacher: segments[len(segments)-1]}
	for _, tok := range head[1:] {
		if semesterPattern.MatchString(tok) && sec.Semester == "" {
			sec.Semester = strings.ToUpper(tok)
		}
	}

	var course []string
	for _, seg := range segments[1 : len(segments)-1] {
		if semesterPattern.MatchString(seg) {
			if sec.Semester == "" {
				sec.Semester = strings.ToUpper(seg)
			}
			continue
		}
		course = append(course, seg)
	}
	sec.Course = strings.Join(course, "-")
	return sec, nil
}

func splitSegments(s string) []string {
	sep := " - "
	if !strings.Contains(strings.Join(strings.Fields(s), " "), sep) {
		sep = "-"
	}
	var out []string
	for _, seg := range strings.Split(strings.Join(strings.Fields(s), " "), sep) {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
