package browser

import (
	"strings"
	"time"
)

// Viewport defines the browser window size.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SessionConfig configures one browser session (one context, one page).
type SessionConfig struct {
	SessionID         string        `json:"session_id"`
	InitialURL        string        `json:"initial_url,omitempty"`
	Headless          bool          `json:"headless"`
	PersistentContext bool          `json:"persistent_context"`
	UserDataDir       string        `json:"user_data_dir,omitempty"`
	ExecPath          string        `json:"exec_path,omitempty"`
	Viewport          Viewport      `json:"viewport"`
	ActionTimeout     time.Duration `json:"action_timeout"`
	NavigationTimeout time.Duration `json:"navigation_timeout"`
	DownloadDir       string        `json:"download_dir,omitempty"`
}

const (
	DefaultActionTimeout     = 10 * time.Second
	DefaultNavigationTimeout = 30 * time.Second
)

// DefaultSessionConfig returns a headed session with the standard timeouts.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		InitialURL:        "about:blank",
		Viewport:          Viewport{Width: 1280, Height: 900},
		ActionTimeout:     DefaultActionTimeout,
		NavigationTimeout: DefaultNavigationTimeout,
	}
}

// Normalize fills zero fields from DefaultSessionConfig.
func (c SessionConfig) Normalize() SessionConfig {
	d := DefaultSessionConfig()
	if strings.TrimSpace(c.InitialURL) == "" {
		c.InitialURL = d.InitialURL
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		c.Viewport = d.Viewport
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = d.ActionTimeout
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = d.NavigationTimeout
	}
	return c
}

// Op names a driver operation for metrics and error context.
type Op string

const (
	OpNavigate    Op = "navigate"
	OpClick       Op = "click"
	OpFill        Op = "fill"
	OpSelect      Op = "select"
	OpWaitVisible Op = "wait_visible"
	OpVisible     Op = "visible"
	OpText        Op = "text"
	OpScreenshot  Op = "screenshot"
	OpDownload    Op = "download"
	OpPressKey    Op = "press_key"
	OpTypeText    Op = "type_text"
	OpEvaluate    Op = "evaluate"
	OpURL         Op = "url"
)

// TextSelector reports whether selector uses the text="..." form and
// returns the literal.
func TextSelector(selector string) (string, bool) {
	s := strings.TrimSpace(selector)
	if !strings.HasPrefix(s, `text="`) || !strings.HasSuffix(s, `"`) || len(s) < len(`text=""`) {
		return "", false
	}
	inner := s[len(`text="`) : len(s)-1]
	return strings.ReplaceAll(inner, `\"`, `"`), true
}

// QuoteText builds a text="..." selector for literal.
func QuoteText(literal string) string {
	return `text="` + strings.ReplaceAll(literal, `"`, `\"`) + `"`
}

// Named keys accepted by Driver.PressKey.
var namedKeys = map[string]string{
	"enter":      "Enter",
	"return":     "Enter",
	"tab":        "Tab",
	"escape":     "Escape",
	"esc":        "Escape",
	"backspace":  "Backspace",
	"delete":     "Delete",
	"space":      "Space",
	"arrowup":    "ArrowUp",
	"arrowdown":  "ArrowDown",
	"arrowleft":  "ArrowLeft",
	"arrowright": "ArrowRight",
	"home":       "Home",
	"end":        "End",
	"pageup":     "PageUp",
	"pagedown":   "PageDown",
}

// CanonicalKey maps a key name (case-insensitive, aliases allowed) to its
// canonical form, e.g. "esc" -> "Escape".
func CanonicalKey(name string) (string, bool) {
	k, ok := namedKeys[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}
