// Package picker lets an operator click elements on a live page and turns
// each click into a stable selector.
package picker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/odvcencio/portalflow/pkg/browser"
	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

const (
	maxAriaLabel = 60
	maxLeafText  = 50
	maxClasses   = 2
)

// Pick is one raw click captured by the page overlay.
type Pick struct {
	// HTML is the shallow outerHTML of the element (no children).
	HTML     string `json:"html"`
	Tag      string `json:"tag"`
	Text     string `json:"text"`
	Children int    `json:"children"`
	// TextMatches counts leaf elements on the page with the same text.
	TextMatches int `json:"textMatches"`
}

// Element is the subset of a DOM element that selector synthesis looks at.
type Element struct {
	Tag         string
	ID          string
	AriaLabel   string
	Name        string
	Classes     []string
	Text        string
	Children    int
	TextMatches int
}

// ParseElement reads the attributes out of a pick's markup. The markup is
// parsed inside a template so table and list fragments keep their tag.
func ParseElement(p Pick) (Element, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<template>" + p.HTML + "</template>"))
	if err != nil {
		return Element{}, pferrors.Wrap(err, pferrors.ErrCodeParse, "parse picked element")
	}
	sel := doc.Find("template").Children().First()

	el := Element{
		Tag:         strings.ToLower(strings.TrimSpace(p.Tag)),
		Text:        strings.Join(strings.Fields(p.Text), " "),
		Children:    p.Children,
		TextMatches: p.TextMatches,
	}
	if sel.Length() > 0 {
		if el.Tag == "" {
			el.Tag = goquery.NodeName(sel)
		}
		el.ID = strings.TrimSpace(sel.AttrOr("id", ""))
		el.AriaLabel = strings.TrimSpace(sel.AttrOr("aria-label", ""))
		el.Name = strings.TrimSpace(sel.AttrOr("name", ""))
		el.Classes = strings.Fields(sel.AttrOr("class", ""))
	}
	if el.Tag == "" {
		return Element{}, pferrors.Parse("picked element has no tag", nil).WithContext("html", p.HTML)
	}
	return el, nil
}

// Synthesize picks the most stable selector for el. The first rule that
// applies wins: id, short aria-label, name attribute, short unique leaf
// text, tag plus two classes, bare tag.
func Synthesize(el Element) string {
	tag := strings.ToLower(el.Tag)
	if tag == "" {
		tag = "*"
	}

	if el.ID != "" {
		return "#" + cssIdent(el.ID)
	}
	if el.AriaLabel != "" && utf8.RuneCountInString(el.AriaLabel) < maxAriaLabel {
		return fmt.Sprintf(`[aria-label=%s]`, cssString(el.AriaLabel))
	}
	if el.Name != "" {
		return fmt.Sprintf(`%s[name=%s]`, tag, cssString(el.Name))
	}
	if text := strings.TrimSpace(el.Text); el.Children == 0 && text != "" &&
		utf8.RuneCountInString(text) < maxLeafText && el.TextMatches <= 1 {
		return browser.QuoteText(text)
	}

	var b strings.Builder
	b.WriteString(tag)
	n := 0
	for _, c := range el.Classes {
		if c == "" {
			continue
		}
		b.WriteString("." + cssIdent(c))
		if n++; n == maxClasses {
			break
		}
	}
	return b.String()
}

// cssIdent escapes s for use as a CSS identifier, following CSS.escape().
func cssIdent(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == 0:
			b.WriteRune('\uFFFD')
		case (r >= 0x01 && r <= 0x1f) || r == 0x7f:
			fmt.Fprintf(&b, `\%x `, r)
		case i == 0 && r >= '0' && r <= '9':
			fmt.Fprintf(&b, `\%x `, r)
		case i == 1 && r >= '0' && r <= '9' && runes[0] == '-':
			fmt.Fprintf(&b, `\%x `, r)
		case i == 0 && r == '-' && len(runes) == 1:
			b.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		default:
			b.WriteRune('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// cssString quotes s as a CSS string literal.
func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return `"` + r.Replace(s) + `"`
}
