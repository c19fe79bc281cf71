package roster

import (
	"strings"
	"unicode"
)

// Contact is one guardian contact tier.
type Contact struct {
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
	Relationship string `json:"relationship,omitempty"`
	CallOut      bool   `json:"callOut"`
}

// Empty reports whether the tier carries no data.
func (c Contact) Empty() bool {
	return c.FirstName == "" && c.LastName == "" && c.Phone == "" && c.Email == "" && c.Relationship == ""
}

// Contacts keeps the three structured tiers for features that need
// relationship or call-out metadata.
type Contacts struct {
	Primary   *Contact `json:"primary,omitempty"`
	Secondary *Contact `json:"secondary,omitempty"`
	Third     *Contact `json:"third,omitempty"`
}

// ScheduleEntry is one class on a student's schedule.
type ScheduleEntry struct {
	Period   int    `json:"period"`
	Course   string `json:"course"`
	Teacher  string `json:"teacher"`
	Semester string `json:"semester,omitempty"`
}

// StudentRecord is the reconciled view of one student.
type StudentRecord struct {
	StudentID string          `json:"studentId,omitempty"`
	LocalID   string          `json:"localId,omitempty"`
	Name      string          `json:"name"`
	Flag      bool            `json:"flag"`
	Emails    []string        `json:"emails"`
	Phones    []string        `json:"phones"`
	Contacts  Contacts        `json:"contacts"`
	Schedule  []ScheduleEntry `json:"schedule"`
}

// Row is one export row after column mapping.
type Row struct {
	StudentID string
	LocalID   string
	Name      string
	Flag      bool
	Section   Section
	// Tiers holds primary, secondary and third contacts in that order.
	Tiers [3]Contact
}

// identity keys a student by student id, else local id, else name.
func (r Row) identity() string {
	switch {
	case r.StudentID != "":
		return "id:" + r.StudentID
	case r.LocalID != "":
		return "local:" + r.LocalID
	default:
		return "name:" + strings.Join(strings.Fields(fold.String(r.Name)), " ")
	}
}

// MergeContacts flattens contact tiers into deduplicated email and phone
// lists, keeping first-seen order. Emails compare case-insensitively and
// phones by their digits; the first spelling seen is kept.
func MergeContacts(tiers ...Contact) (emails, phones []string) {
	emails, phones = []string{}, []string{}
	seenEmail := make(map[string]bool)
	seenPhone := make(map[string]bool)
	for _, c := range tiers {
		if e := strings.TrimSpace(c.Email); e != "" {
			if key := fold.String(e); !seenEmail[key] {
				seenEmail[key] = true
				emails = append(emails, e)
			}
		}
		if p := strings.TrimSpace(c.Phone); p != "" {
			key := digits(p)
			if key == "" {
				key = p
			}
			if !seenPhone[key] {
				seenPhone[key] = true
				phones = append(phones, p)
			}
		}
	}
	return emails, phones
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// parseFlag reads yes/no style cells.
func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true", "1", "x", "t":
		return true
	}
	return false
}
