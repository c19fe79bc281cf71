package chromedp

import (
	"encoding/json"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/odvcencio/portalflow/pkg/browser"
)

// query resolves a portalflow selector into a chromedp selector and options.
// text="..." selectors match leaf elements by normalized text via XPath.
func query(selector string) (string, []chromedp.QueryOption) {
	if literal, ok := browser.TextSelector(selector); ok {
		return textXPath(literal), []chromedp.QueryOption{chromedp.BySearch}
	}
	return selector, []chromedp.QueryOption{chromedp.ByQuery}
}

func textXPath(literal string) string {
	return "//*[not(*) and normalize-space(.)=" + xpathLiteral(strings.TrimSpace(literal)) + "]"
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	var b strings.Builder
	b.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`, '"', `)
		}
		b.WriteString(`"` + p + `"`)
	}
	b.WriteString(")")
	return b.String()
}

// jsResolve returns a JS expression evaluating to the first matching element or null.
func jsResolve(selector string) string {
	if literal, ok := browser.TextSelector(selector); ok {
		xp, _ := json.Marshal(textXPath(literal))
		return "document.evaluate(" + string(xp) + ", document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue"
	}
	css, _ := json.Marshal(selector)
	return "document.querySelector(" + string(css) + ")"
}

// jsVisible evaluates to true when selector matches a rendered, non-hidden element.
func jsVisible(selector string) string {
	return `(() => {
  const el = ` + jsResolve(selector) + `;
  if (!el) return false;
  const style = window.getComputedStyle(el);
  if (style.visibility === 'hidden' || style.display === 'none') return false;
  const r = el.getBoundingClientRect();
  return r.width > 0 && r.height > 0;
})()`
}

func jsDispatchChange(selector string) string {
	return `(() => {
  const el = ` + jsResolve(selector) + `;
  if (!el) return false;
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
  return true;
})()`
}
