package browser

import (
	"context"
	"time"
)

//go:generate mockgen -destination=browsermock/driver_mock.go -package=browsermock github.com/odvcencio/portalflow/pkg/browser Driver,Runtime

// Runtime manages browser sessions.
type Runtime interface {
	NewSession(ctx context.Context, cfg SessionConfig) (Driver, error)
	Close() error
}

// Driver is the port implemented by browser runtime adapters. It drives one
// page. A zero timeout means the session's configured default. Adapters
// convert every browser-level failure (including panics) into a coded error.
type Driver interface {
	ID() string
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	Select(ctx context.Context, selector, value string, timeout time.Duration) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Visible checks the selector once without waiting.
	Visible(ctx context.Context, selector string) (bool, error)
	Text(ctx context.Context, selector string, timeout time.Duration) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	// Download clicks selector and returns the path of the saved file in dir.
	Download(ctx context.Context, selector, dir string, timeout time.Duration) (string, error)
	PressKey(ctx context.Context, key string) error
	TypeText(ctx context.Context, text string) error
	Evaluate(ctx context.Context, script string, out any) error
	URL(ctx context.Context) (string, error)
	Close() error
}
