package chromedp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/odvcencio/portalflow/pkg/browser"
)

// Runtime is a Chrome DevTools Protocol browser runtime.
type Runtime struct {
	cfg Config
}

// NewRuntime creates a chromedp runtime adapter.
func NewRuntime(cfg Config) (*Runtime, error) {
	merged := cfg.withDefaults()
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &Runtime{cfg: merged}, nil
}

// NewSession launches Chrome with one tab and loads the initial URL. The
// session outlives ctx's cancellation; call Close to shut it down.
func (r *Runtime) NewSession(ctx context.Context, sessionCfg browser.SessionConfig) (browser.Driver, error) {
	if r == nil {
		return nil, browser.ErrUnavailable
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(sessionCfg.SessionID) == "" {
		return nil, errors.New("session_id is required")
	}
	cfg := sessionCfg.Normalize()

	opts, err := r.allocatorOptions(cfg)
	if err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	sess := &Session{
		id:          cfg.SessionID,
		cfg:         cfg,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}

	// The first Run allocates the browser and must use the long-lived tab
	// context; a timeout child here would kill Chrome when it expires.
	if err := browser.Guard(browser.OpNavigate, func() error { return chromedp.Run(tabCtx) }); err != nil {
		sess.cancel()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	if cfg.InitialURL != "" && cfg.InitialURL != "about:blank" {
		if err := sess.Navigate(ctx, cfg.InitialURL, cfg.NavigationTimeout); err != nil {
			sess.cancel()
			return nil, err
		}
	}
	return sess, nil
}

func (r *Runtime) allocatorOptions(cfg browser.SessionConfig) ([]chromedp.ExecAllocatorOption, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height),
	)
	if r.cfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}

	execPath := cfg.ExecPath
	if execPath == "" {
		execPath = r.cfg.ExecPath
	}
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}

	if cfg.PersistentContext && cfg.UserDataDir != "" {
		if err := os.MkdirAll(cfg.UserDataDir, 0o700); err != nil {
			return nil, fmt.Errorf("create user data dir: %w", err)
		}
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	for name, value := range r.cfg.ExtraFlags {
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts, nil
}

// Close releases runtime resources.
func (r *Runtime) Close() error {
	return nil
}

var _ browser.Runtime = (*Runtime)(nil)
