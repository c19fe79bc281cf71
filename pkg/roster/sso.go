package roster

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/odvcencio/portalflow/pkg/browser"
	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/execution"
)

const (
	DefaultTwoFactorTimeout = 120 * time.Second
	defaultTwoFactorPoll    = time.Second
)

// SSOConfig describes the federated sign-in: a launchpad page with a login
// trigger that hands off to an identity provider form, followed by an
// interactive second factor.
type SSOConfig struct {
	PortalURL        string
	IdPHost          string
	LoginSelector    string
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string
	// TwoFactorTimeout bounds the wait for the browser to leave the IdP.
	TwoFactorTimeout time.Duration
	PollInterval     time.Duration
}

// SSOAuthenticator signs in through the identity provider. It is registered
// as the "sso" portal for login steps and drives the roster importer.
type SSOAuthenticator struct {
	Config SSOConfig
}

var _ execution.Authenticator = SSOAuthenticator{}

// Authenticate runs the launchpad, IdP form and second-factor wait.
// Step params override the configured selectors.
func (a SSOAuthenticator) Authenticate(ctx context.Context, d browser.Driver, req execution.LoginRequest) error {
	cfg := a.Config
	p := req.Params
	override := func(key string, dst *string) {
		if v := strings.TrimSpace(p.String(key)); v != "" {
			*dst = v
		}
	}
	override("login_selector", &cfg.LoginSelector)
	override("username_selector", &cfg.UsernameSelector)
	override("password_selector", &cfg.PasswordSelector)
	override("submit_selector", &cfg.SubmitSelector)
	override("idp_host", &cfg.IdPHost)

	if req.Credentials.Username == "" || req.Credentials.Password == "" {
		return pferrors.Authentication("no credentials available for SSO login", nil).
			WithRemediation("create the credentials file with a username and an obscured password")
	}
	if cfg.UsernameSelector == "" || cfg.PasswordSelector == "" {
		return pferrors.Validation("sso login requires username and password selectors")
	}

	start := req.URL
	if start == "" {
		start = cfg.PortalURL
	}
	if start != "" {
		if err := d.Navigate(ctx, start, req.NavigationTimeout); err != nil {
			return err
		}
	}

	if cfg.LoginSelector != "" {
		if err := d.Click(ctx, cfg.LoginSelector, req.Timeout); err != nil {
			return fieldError("login button not found", cfg.LoginSelector, err)
		}
	}
	if err := a.submitField(ctx, d, cfg.UsernameSelector, cfg.SubmitSelector, req.Credentials.Username, req.Timeout); err != nil {
		return fieldError("identity provider username field not found", cfg.UsernameSelector, err)
	}
	if err := a.submitField(ctx, d, cfg.PasswordSelector, cfg.SubmitSelector, req.Credentials.Password, req.Timeout); err != nil {
		return fieldError("identity provider password field not found", cfg.PasswordSelector, err)
	}
	return a.waitForSecondFactor(ctx, d, cfg)
}

func (a SSOAuthenticator) submitField(ctx context.Context, d browser.Driver, field, submit, value string, timeout time.Duration) error {
	if err := d.WaitVisible(ctx, field, timeout); err != nil {
		return err
	}
	if err := d.Fill(ctx, field, value, timeout); err != nil {
		return err
	}
	if submit != "" {
		return d.Click(ctx, submit, timeout)
	}
	return d.PressKey(ctx, "Enter")
}

// waitForSecondFactor polls the page URL until it leaves the IdP host.
func (a SSOAuthenticator) waitForSecondFactor(ctx context.Context, d browser.Driver, cfg SSOConfig) error {
	if cfg.IdPHost == "" {
		return nil
	}
	timeout := cfg.TwoFactorTimeout
	if timeout <= 0 {
		timeout = DefaultTwoFactorTimeout
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultTwoFactorPoll
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		current, err := d.URL(ctx)
		if err != nil && browser.IsConnectionError(err) {
			return pferrors.Authentication("browser closed during sign-in", err)
		}
		if err == nil && leftHost(current, cfg.IdPHost) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return pferrors.Authentication("two-factor approval not completed within "+timeout.String(), nil).
				WithContext("url", current).
				WithUserMessage("Sign-in is waiting for two-factor approval. Approve it and run the import again.").
				WithRetryable(true)
		case <-ticker.C:
		}
	}
}

// leftHost reports whether raw is on a real host other than host or its
// subdomains.
func leftHost(raw, host string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return false
	}
	h := strings.ToLower(u.Hostname())
	host = strings.ToLower(host)
	return h != host && !strings.HasSuffix(h, "."+host)
}

func fieldError(message, selector string, err error) error {
	if pferrors.IsCode(err, pferrors.ErrCodeStopped) {
		return err
	}
	return pferrors.Authentication(message, err).WithContext("selector", selector)
}
