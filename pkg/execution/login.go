package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/portalflow/pkg/browser"
	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/workflow"
)

// Portal names accepted by login steps.
const (
	PortalForm = "form"
	PortalSSO  = "sso"
)

// Credentials is a portal username and plain-text password.
type Credentials struct {
	Username string
	Password string
}

// CredentialsFunc supplies credentials when a login step does not carry them.
type CredentialsFunc func() (Credentials, error)

// LoginRequest is what an Authenticator needs to sign in.
type LoginRequest struct {
	Portal      string
	URL         string
	Credentials Credentials
	Params      workflow.Params
	// Timeout bounds each individual browser action.
	Timeout time.Duration
	// NavigationTimeout bounds page loads.
	NavigationTimeout time.Duration
}

// Authenticator runs one portal's sign-in sequence.
type Authenticator interface {
	Authenticate(ctx context.Context, d browser.Driver, req LoginRequest) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, d browser.Driver, req LoginRequest) error

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, d browser.Driver, req LoginRequest) error {
	return f(ctx, d, req)
}

// FormAuthenticator fills a username/password form and submits it.
// Selectors come from the step params, falling back to the defaults here.
type FormAuthenticator struct {
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string
}

func (a FormAuthenticator) Authenticate(ctx context.Context, d browser.Driver, req LoginRequest) error {
	userSel := firstNonEmpty(req.Params.String("username_selector"), a.UsernameSelector)
	passSel := firstNonEmpty(req.Params.String("password_selector"), a.PasswordSelector)
	submitSel := firstNonEmpty(req.Params.String("submit_selector"), a.SubmitSelector)
	if userSel == "" || passSel == "" {
		return pferrors.Validation("form login requires username_selector and password_selector")
	}
	if req.Credentials.Username == "" || req.Credentials.Password == "" {
		return pferrors.Authentication("no credentials available for form login", nil).
			WithRemediation("set username/password on the step or configure roster.credentials_path")
	}

	if req.URL != "" {
		if err := d.Navigate(ctx, req.URL, req.NavigationTimeout); err != nil {
			return err
		}
	}
	if err := d.Fill(ctx, userSel, req.Credentials.Username, req.Timeout); err != nil {
		return err
	}
	if err := d.Fill(ctx, passSel, req.Credentials.Password, req.Timeout); err != nil {
		return err
	}
	if submitSel != "" {
		return d.Click(ctx, submitSel, req.Timeout)
	}
	return d.PressKey(ctx, "Enter")
}

// Authenticators maps portal names to their sign-in sequences.
type Authenticators map[string]Authenticator

// DefaultAuthenticators registers the generic form portal only. The SSO
// portal is registered by the caller that knows the identity provider.
func DefaultAuthenticators() Authenticators {
	return Authenticators{PortalForm: FormAuthenticator{}}
}

func (a Authenticators) lookup(portal string) (Authenticator, error) {
	if portal == "" {
		portal = PortalForm
	}
	auth, ok := a[portal]
	if !ok || auth == nil {
		return nil, pferrors.Validation(fmt.Sprintf("no authenticator registered for portal %q", portal)).
			WithContext("portal", portal)
	}
	return auth, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
