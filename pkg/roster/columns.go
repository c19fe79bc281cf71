package roster

import (
	"strings"

	"golang.org/x/text/cases"
)

// Role is the meaning of an export column.
type Role string

const (
	RoleName          Role = "name"
	RoleStudentID     Role = "student_id"
	RoleLocalID       Role = "local_id"
	RoleFlag          Role = "flag"
	RoleTeacherPeriod Role = "teacher_period"
)

// Contact tiers, in merge order.
const (
	TierPrimary   = "primary"
	TierSecondary = "secondary"
	TierThird     = "third"
)

// Tiers lists the contact tiers in merge order.
var Tiers = []string{TierPrimary, TierSecondary, TierThird}

// Per-tier contact fields.
const (
	FieldPhone        = "phone"
	FieldEmail        = "email"
	FieldFirstName    = "first_name"
	FieldLastName     = "last_name"
	FieldRelationship = "relationship"
	FieldCallOut      = "call_out"
)

var contactFields = []string{FieldPhone, FieldEmail, FieldFirstName, FieldLastName, FieldRelationship, FieldCallOut}

// ContactRole names a tier's field, e.g. "secondary.email".
func ContactRole(tier, field string) Role {
	return Role(tier + "." + field)
}

// matcher is one role's header test. Each alternative lists substrings that
// must all appear in the folded header.
type matcher struct {
	role Role
	any  [][]string
}

var tierWords = map[string][]string{
	TierPrimary:   {"primary"},
	TierSecondary: {"secondary"},
	TierThird:     {"third", "tertiary"},
}

var fieldWords = map[string][][]string{
	FieldPhone:        {{"phone"}},
	FieldEmail:        {{"email"}, {"e-mail"}},
	FieldFirstName:    {{"first"}},
	FieldLastName:     {{"last"}},
	FieldRelationship: {{"relationship"}, {"relation"}},
	FieldCallOut:      {{"call out"}, {"callout"}, {"call-out"}},
}

// matchers is ordered most specific first; a header takes the first role it
// matches, so "Primary Contact First Name" never lands on RoleName.
var matchers = buildMatchers()

func buildMatchers() []matcher {
	var ms []matcher
	for _, tier := range Tiers {
		for _, field := range contactFields {
			var alts [][]string
			for _, tw := range tierWords[tier] {
				for _, fw := range fieldWords[field] {
					alts = append(alts, append([]string{tw}, fw...))
				}
			}
			ms = append(ms, matcher{role: ContactRole(tier, field), any: alts})
		}
	}
	return append(ms,
		matcher{role: RoleTeacherPeriod, any: [][]string{{"teacher", "period"}}},
		matcher{role: RoleLocalID, any: [][]string{{"local", "id"}}},
		matcher{role: RoleStudentID, any: [][]string{{"student", "id"}, {"student", "number"}, {"perm", "id"}}},
		matcher{role: RoleFlag, any: [][]string{{"flag"}}},
		matcher{role: RoleName, any: [][]string{{"name"}}},
	)
}

var fold = cases.Fold()

func normalizeHeader(h string) string {
	h = strings.ReplaceAll(h, "_", " ")
	return strings.Join(strings.Fields(fold.String(h)), " ")
}

func classify(header string) (Role, bool) {
	h := normalizeHeader(header)
	for _, m := range matchers {
		for _, alt := range m.any {
			if containsAll(h, alt) {
				return m.role, true
			}
		}
	}
	return "", false
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}

// Columns maps roles to column positions in one export.
type Columns struct {
	index   map[Role]int
	headers []string
}

// MapColumns resolves every known role by case-insensitive substring match
// against the header text. Matching depends only on each header's own text,
// so reordering the columns moves positions but never changes which header a
// role resolves to. When two headers claim a role the leftmost wins.
func MapColumns(header []string) Columns {
	c := Columns{index: make(map[Role]int), headers: append([]string(nil), header...)}
	for i, h := range header {
		role, ok := classify(h)
		if !ok {
			continue
		}
		if _, taken := c.index[role]; !taken {
			c.index[role] = i
		}
	}
	return c
}

// Index returns the column position of role.
func (c Columns) Index(role Role) (int, bool) {
	i, ok := c.index[role]
	return i, ok
}

// Header returns the header text resolved for role, or "".
func (c Columns) Header(role Role) string {
	if i, ok := c.index[role]; ok {
		return c.headers[i]
	}
	return ""
}

// Get returns row's value for role, or "" when the role is unmapped or the
// row is short.
func (c Columns) Get(row []string, role Role) string {
	i, ok := c.index[role]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Missing lists the roles in want that no header resolved to.
func (c Columns) Missing(want ...Role) []Role {
	var out []Role
	for _, r := range want {
		if _, ok := c.index[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}
