package roster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/odvcencio/portalflow/pkg/browser"
	"github.com/odvcencio/portalflow/pkg/browser/browsermock"
	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/execution"
	"github.com/odvcencio/portalflow/pkg/workflow"
)

func testSSOConfig() SSOConfig {
	return SSOConfig{
		PortalURL:        "https://launchpad.example.org/",
		IdPHost:          "login.example.com",
		LoginSelector:    "#sso",
		UsernameSelector: "#user",
		PasswordSelector: "#pass",
		SubmitSelector:   "#next",
		TwoFactorTimeout: time.Second,
		PollInterval:     time.Millisecond,
	}
}

func ssoRequest() execution.LoginRequest {
	return execution.LoginRequest{
		Portal:            execution.PortalSSO,
		Credentials:       execution.Credentials{Username: "jsmith", Password: "pw"},
		Timeout:           time.Second,
		NavigationTimeout: 2 * time.Second,
	}
}

// expectForm expects the launchpad and both IdP form pages.
func expectForm(d *browsermock.MockDriver) {
	m := gomock.Any()
	gomock.InOrder(
		d.EXPECT().Navigate(m, "https://launchpad.example.org/", 2*time.Second).Return(nil),
		d.EXPECT().Click(m, "#sso", time.Second).Return(nil),
		d.EXPECT().WaitVisible(m, "#user", time.Second).Return(nil),
		d.EXPECT().Fill(m, "#user", "jsmith", time.Second).Return(nil),
		d.EXPECT().Click(m, "#next", time.Second).Return(nil),
		d.EXPECT().WaitVisible(m, "#pass", time.Second).Return(nil),
		d.EXPECT().Fill(m, "#pass", "pw", time.Second).Return(nil),
		d.EXPECT().Click(m, "#next", time.Second).Return(nil),
	)
}

func TestSSOAuthenticator_WaitsToLeaveIdP(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := browsermock.NewMockDriver(ctrl)
	expectForm(d)
	gomock.InOrder(
		d.EXPECT().URL(gomock.Any()).Return("https://login.example.com/common/oauth2", nil),
		d.EXPECT().URL(gomock.Any()).Return("https://mfa.login.example.com/approve", nil),
		d.EXPECT().URL(gomock.Any()).Return("https://launchpad.example.org/home", nil),
	)

	err := SSOAuthenticator{Config: testSSOConfig()}.Authenticate(context.Background(), d, ssoRequest())
	require.NoError(t, err)
}

func TestSSOAuthenticator_TwoFactorTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := browsermock.NewMockDriver(ctrl)
	expectForm(d)
	d.EXPECT().URL(gomock.Any()).Return("https://login.example.com/wait", nil).MinTimes(1)

	cfg := testSSOConfig()
	cfg.TwoFactorTimeout = 20 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond

	err := SSOAuthenticator{Config: cfg}.Authenticate(context.Background(), d, ssoRequest())
	require.True(t, pferrors.IsCode(err, pferrors.ErrCodeAuthentication), "got %v", err)
	assert.True(t, pferrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "two-factor")
}

func TestSSOAuthenticator_UsernameFieldMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := browsermock.NewMockDriver(ctrl)
	m := gomock.Any()
	d.EXPECT().Navigate(m, m, m).Return(nil)
	d.EXPECT().Click(m, "#sso", m).Return(nil)
	d.EXPECT().WaitVisible(m, "#user", m).Return(pferrors.SelectorNotFound("#user", time.Second, nil))

	err := SSOAuthenticator{Config: testSSOConfig()}.Authenticate(context.Background(), d, ssoRequest())
	require.True(t, pferrors.IsCode(err, pferrors.ErrCodeAuthentication))
	pf, _ := pferrors.As(err)
	assert.Equal(t, "#user", pf.Context["selector"])
}

func TestSSOAuthenticator_ParamsOverrideSelectors(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := browsermock.NewMockDriver(ctrl)
	m := gomock.Any()
	d.EXPECT().Navigate(m, "https://portal.test/start", m).Return(nil)
	d.EXPECT().Click(m, "#sso", m).Return(nil)
	d.EXPECT().WaitVisible(m, "input[type=email]", m).Return(nil)
	d.EXPECT().Fill(m, "input[type=email]", "jsmith", m).Return(nil)
	d.EXPECT().WaitVisible(m, "#pass", m).Return(nil)
	d.EXPECT().Fill(m, "#pass", "pw", m).Return(nil)
	d.EXPECT().PressKey(m, "Enter").Return(nil).Times(2)

	cfg := testSSOConfig()
	cfg.SubmitSelector = ""
	req := ssoRequest()
	req.URL = "https://portal.test/start"
	req.Params = workflow.Params{"username_selector": "input[type=email]"}
	cfg.IdPHost = ""

	require.NoError(t, SSOAuthenticator{Config: cfg}.Authenticate(context.Background(), d, req))
}

func TestSSOAuthenticator_NoCredentials(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := browsermock.NewMockDriver(ctrl)

	req := ssoRequest()
	req.Credentials = execution.Credentials{}
	err := SSOAuthenticator{Config: testSSOConfig()}.Authenticate(context.Background(), d, req)
	assert.True(t, pferrors.IsCode(err, pferrors.ErrCodeAuthentication))
}

func TestSSOAuthenticator_BrowserClosedDuringTwoFactor(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := browsermock.NewMockDriver(ctrl)
	expectForm(d)
	d.EXPECT().URL(gomock.Any()).Return("", browser.ErrSessionClosed)

	err := SSOAuthenticator{Config: testSSOConfig()}.Authenticate(context.Background(), d, ssoRequest())
	require.True(t, pferrors.IsCode(err, pferrors.ErrCodeAuthentication))
	assert.True(t, errors.Is(err, browser.ErrSessionClosed))
}

func TestLeftHost(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://login.example.com/x", false},
		{"https://LOGIN.example.com/x", false},
		{"https://eu.login.example.com/x", false},
		{"https://app.example.org/", true},
		{"about:blank", false},
		{"", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, leftHost(c.url, "login.example.com"), c.url)
	}
}
