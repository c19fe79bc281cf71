package chromedp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"

	"github.com/odvcencio/portalflow/pkg/browser"
	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

// Session drives one Chrome tab.
type Session struct {
	id          string
	cfg         browser.SessionConfig
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	closed      atomic.Bool
	closeOnce   sync.Once
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) timeoutFor(op browser.Op, timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	if op == browser.OpNavigate {
		return s.cfg.NavigationTimeout
	}
	return s.cfg.ActionTimeout
}

// run executes actions on the tab bounded by timeout and by ctx. Errors and
// panics come back coded.
func (s *Session) run(ctx context.Context, op browser.Op, target string, timeout time.Duration, actions ...chromedp.Action) error {
	if s.closed.Load() {
		return pferrors.Wrap(browser.ErrSessionClosed, pferrors.ErrCodeBrowser, string(op)+" on closed session")
	}
	timeout = s.timeoutFor(op, timeout)
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	if ctx != nil {
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
	}

	err := browser.Guard(op, func() error { return chromedp.Run(runCtx, actions...) })
	return browser.Classify(op, target, timeout, err)
}

// Navigate loads url and waits for the body to be ready.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return s.run(ctx, browser.OpNavigate, url, timeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Click waits for selector to be visible and clicks it.
func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) error {
	sel, opts := query(selector)
	return s.run(ctx, browser.OpClick, selector, timeout,
		chromedp.WaitVisible(sel, opts...),
		chromedp.Click(sel, append(opts, chromedp.NodeVisible)...),
	)
}

// Fill clears the field and types value into it.
func (s *Session) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	sel, opts := query(selector)
	return s.run(ctx, browser.OpFill, selector, timeout,
		chromedp.WaitVisible(sel, opts...),
		chromedp.Clear(sel, opts...),
		chromedp.SendKeys(sel, value, opts...),
	)
}

// Select sets a <select> element's value and fires input/change.
func (s *Session) Select(ctx context.Context, selector, value string, timeout time.Duration) error {
	sel, opts := query(selector)
	var dispatched bool
	return s.run(ctx, browser.OpSelect, selector, timeout,
		chromedp.WaitVisible(sel, opts...),
		chromedp.SetValue(sel, value, opts...),
		chromedp.Evaluate(jsDispatchChange(selector), &dispatched),
	)
}

// WaitVisible blocks until selector is visible or timeout elapses.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	sel, opts := query(selector)
	return s.run(ctx, browser.OpWaitVisible, selector, timeout, chromedp.WaitVisible(sel, opts...))
}

// Visible checks selector once.
func (s *Session) Visible(ctx context.Context, selector string) (bool, error) {
	var visible bool
	err := s.run(ctx, browser.OpVisible, selector, 0, chromedp.Evaluate(jsVisible(selector), &visible))
	return visible, err
}

// Text returns the visible text of selector.
func (s *Session) Text(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	sel, opts := query(selector)
	var text string
	err := s.run(ctx, browser.OpText, selector, timeout,
		chromedp.WaitVisible(sel, opts...),
		chromedp.Text(sel, &text, opts...),
	)
	return strings.TrimSpace(text), err
}

// Screenshot captures the full page as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, browser.OpScreenshot, "", 0, chromedp.FullScreenshot(&buf, 100))
	return buf, err
}

// Download clicks selector and waits for the resulting download to finish in dir.
func (s *Session) Download(ctx context.Context, selector, dir string, timeout time.Duration) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if dir == "" {
		dir = s.cfg.DownloadDir
	}
	if dir == "" {
		dir = os.TempDir()
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", pferrors.Wrap(err, pferrors.ErrCodeExport, "resolve download dir")
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", pferrors.Wrap(err, pferrors.ErrCodeExport, "create download dir")
	}

	listenCtx, stopListening := context.WithCancel(s.tabCtx)
	defer stopListening()

	type started struct{ guid, name string }
	begun := make(chan started, 1)
	completed := make(chan string, 1)
	chromedp.ListenTarget(listenCtx, func(ev any) {
		switch e := ev.(type) {
		case *cdpbrowser.EventDownloadWillBegin:
			select {
			case begun <- started{guid: e.GUID, name: e.SuggestedFilename}:
			default:
			}
		case *cdpbrowser.EventDownloadProgress:
			if e.State == cdpbrowser.DownloadProgressStateCompleted {
				select {
				case completed <- e.GUID:
				default:
				}
			}
		}
	})

	sel, opts := query(selector)
	err = s.run(ctx, browser.OpDownload, selector, timeout,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(absDir).
			WithEventsEnabled(true),
		chromedp.WaitVisible(sel, opts...),
		chromedp.Click(sel, append(opts, chromedp.NodeVisible)...),
	)
	if err != nil {
		return "", err
	}

	wait := s.timeoutFor(browser.OpNavigate, timeout)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var info started
	select {
	case info = <-begun:
	case <-timer.C:
		return "", browser.Classify(browser.OpDownload, selector, wait, browser.ErrNoDownload)
	case <-ctx.Done():
		return "", browser.Classify(browser.OpDownload, selector, wait, ctx.Err())
	}

	select {
	case guid := <-completed:
		if guid != info.guid {
			return "", pferrors.New(pferrors.ErrCodeExport, "download completed for an unexpected file")
		}
	case <-timer.C:
		return "", pferrors.Export(fmt.Sprintf("download %s did not finish within %s", info.name, wait), nil)
	case <-ctx.Done():
		return "", browser.Classify(browser.OpDownload, selector, wait, ctx.Err())
	}

	src := filepath.Join(absDir, info.guid)
	name := filepath.Base(info.name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return src, nil
	}
	dst := filepath.Join(absDir, name)
	if err := os.Rename(src, dst); err != nil {
		return "", pferrors.Wrap(err, pferrors.ErrCodeExport, "rename downloaded file")
	}
	return dst, nil
}

// PressKey dispatches a named key such as Enter, Tab or Escape.
func (s *Session) PressKey(ctx context.Context, key string) error {
	ev, ok := keyEvent(key)
	if !ok {
		return pferrors.Validation(fmt.Sprintf("unknown key %q", key))
	}
	return s.run(ctx, browser.OpPressKey, key, 0, chromedp.KeyEvent(ev))
}

// TypeText types text one character at a time into the focused element.
func (s *Session) TypeText(ctx context.Context, text string) error {
	return s.run(ctx, browser.OpTypeText, "", 0, chromedp.KeyEvent(text))
}

// Evaluate runs script in the page and decodes the result into out (may be nil).
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	return s.run(ctx, browser.OpEvaluate, "", 0, chromedp.Evaluate(script, out))
}

// URL returns the current page URL.
func (s *Session) URL(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, browser.OpURL, "", 0, chromedp.Location(&url))
	return url, err
}

// Close shuts down the tab and the browser process.
func (s *Session) Close() error {
	s.cancel()
	return nil
}

func (s *Session) cancel() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.tabCancel != nil {
			s.tabCancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
	})
}

var _ browser.Driver = (*Session)(nil)
