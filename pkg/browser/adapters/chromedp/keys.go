package chromedp

import (
	"github.com/chromedp/chromedp/kb"

	"github.com/odvcencio/portalflow/pkg/browser"
)

var keyEvents = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"Space":      " ",
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
}

// keyEvent maps a key name to the string chromedp.KeyEvent dispatches.
func keyEvent(name string) (string, bool) {
	canonical, ok := browser.CanonicalKey(name)
	if !ok {
		return "", false
	}
	ev, ok := keyEvents[canonical]
	return ev, ok
}
