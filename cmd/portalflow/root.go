package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/portalflow/pkg/browser"
	cdpadapter "github.com/odvcencio/portalflow/pkg/browser/adapters/chromedp"
	"github.com/odvcencio/portalflow/pkg/config"
	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/execution"
	"github.com/odvcencio/portalflow/pkg/logging"
	"github.com/odvcencio/portalflow/pkg/roster"
	"github.com/odvcencio/portalflow/pkg/storage"
	"github.com/odvcencio/portalflow/pkg/telemetry"
	"github.com/odvcencio/portalflow/pkg/workflow"
)

// app carries what every subcommand shares. Fields set by flags are read
// in the PersistentPreRunE of the root command.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logDir     string
	logLevel   string

	cfg    *config.Config
	logger *logging.Logger
	tracer *telemetry.TracerProvider

	// newRuntime opens the browser backend; tests replace it.
	newRuntime func(cfg *config.Config) (browser.Runtime, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:     stdout,
		stderr:     stderr,
		newRuntime: chromedpRuntime,
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "portalflow",
		Short: "Record, replay and inspect browser workflows",
		Long: `portalflow drives a real browser through saved workflows, helps author
them with an in-page selector picker, and imports class rosters through
the district single sign-on portal.

Machine-readable progress (runs, picker, roster import) is written to
stdout as one JSON object per line; logs go to stderr and the log dir.`,
		Version:       fmt.Sprintf("%s (%s, %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Name())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetVersionTemplate("portalflow version {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.portalflow/config.yaml, then ./.portalflow/config.yaml)")
	flags.StringVar(&a.logDir, "log-dir", "", "directory for JSONL logs (overrides logging.dir)")
	flags.StringVar(&a.logLevel, "log-level", "", "minimum log level: debug, info, warn, error")

	root.AddCommand(
		newServeCommand(a),
		newRunCommand(a),
		newPickCommand(a),
		newRosterCommand(a),
		newWorkflowsCommand(a),
	)
	return root
}

// setup loads configuration and opens the logger for command.
func (a *app) setup(command string) error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if a.logDir != "" {
		cfg.Logging.Dir = a.logDir
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	logger, err := logging.NewLogger(cfg.Logging.Dir, command)
	if err != nil {
		// Logging to disk is best effort; keep stderr.
		logger = logging.NewStreamLogger(a.stderr, command)
		fmt.Fprintf(a.stderr, "warning: %v\n", err)
	}
	logger.SetMinLevel(logging.ParseLevel(cfg.Logging.Level))
	a.logger = logger
	for _, w := range cfg.ValidationWarnings() {
		_ = logger.Warn(logging.CategoryConfig, "config_warning", w, nil)
	}

	if cfg.Tracing.Enabled {
		tp, err := telemetry.NewTracerProvider("portalflow", version, a.stderr)
		if err != nil {
			return err
		}
		a.tracer = tp
	}
	return nil
}

func (a *app) close() error {
	if a.tracer != nil {
		_ = a.tracer.Shutdown(context.Background())
	}
	return a.logger.Close()
}

func chromedpRuntime(cfg *config.Config) (browser.Runtime, error) {
	c := cdpadapter.DefaultConfig()
	c.ExecPath = cfg.Browser.ExecPath
	return cdpadapter.NewRuntime(c)
}

// sessionConfig is the base browser session for runs and picker sessions.
func (a *app) sessionConfig() browser.SessionConfig {
	b := a.cfg.Browser
	return browser.SessionConfig{
		Headless:          b.Headless,
		PersistentContext: b.PersistentContext,
		UserDataDir:       b.UserDataDir,
		ExecPath:          b.ExecPath,
		Viewport:          browser.Viewport{Width: b.WindowWidth, Height: b.WindowHeight},
		ActionTimeout:     b.ActionTimeout,
		NavigationTimeout: b.NavigationTimeout,
		DownloadDir:       a.cfg.Output.Dir,
	}
}

// ssoConfig is the identity provider flow shared by login steps and the
// roster importer.
func (a *app) ssoConfig() roster.SSOConfig {
	r := a.cfg.Roster
	return roster.SSOConfig{
		PortalURL:        r.PortalURL,
		IdPHost:          r.IdPHost,
		LoginSelector:    r.LoginSelector,
		UsernameSelector: r.UsernameSelector,
		PasswordSelector: r.PasswordSelector,
		SubmitSelector:   r.SubmitSelector,
		TwoFactorTimeout: a.cfg.Browser.TwoFactorTimeout,
	}
}

// executionOptions wires the interpreter: both login portals, credentials
// from the roster credentials file, and the configured output dirs.
func (a *app) executionOptions(hub *telemetry.Hub) execution.Options {
	auths := execution.DefaultAuthenticators()
	auths[execution.PortalSSO] = roster.SSOAuthenticator{Config: a.ssoConfig()}
	return execution.Options{
		ActionTimeout:     a.cfg.Browser.ActionTimeout,
		NavigationTimeout: a.cfg.Browser.NavigationTimeout,
		OutputDir:         a.cfg.Output.Dir,
		DiagnosticsDir:    a.cfg.Output.DiagnosticsDir,
		Credentials:       roster.CredentialsFrom(a.cfg.Roster.CredentialsPath),
		Authenticators:    auths,
		Logger:            a.logger,
		Hub:               hub,
	}
}

// openStore opens the configured workflow store.
func (a *app) openStore() (workflow.Store, error) {
	s := a.cfg.Storage
	switch s.Driver {
	case config.StorageFile:
		return workflow.NewFileStore(s.Path)
	case config.StorageSQLite:
		st, err := storage.New(s.Path)
		if err != nil {
			return nil, pferrors.Wrap(err, pferrors.ErrCodeStorageRead, "open workflow database").WithContext("path", s.Path)
		}
		return st, nil
	default:
		return nil, pferrors.New(pferrors.ErrCodeConfigInvalid, "unknown storage driver "+s.Driver)
	}
}

// loadWorkflow reads arg as a workflow file when it names one, otherwise
// as an id in the store or the template catalog.
func (a *app) loadWorkflow(ctx context.Context, arg string) (workflow.Workflow, error) {
	if strings.HasSuffix(arg, ".json") || fileExists(arg) {
		data, err := os.ReadFile(arg)
		if err != nil {
			return workflow.Workflow{}, pferrors.Wrap(err, pferrors.ErrCodeStorageRead, "read workflow file").WithContext("path", arg)
		}
		wf, err := workflow.Decode(data)
		if err != nil {
			return workflow.Workflow{}, pferrors.Wrap(err, pferrors.ErrCodeValidation, "workflow file is not valid JSON").WithContext("path", arg)
		}
		return wf, nil
	}
	store, err := a.openStore()
	if err != nil {
		return workflow.Workflow{}, err
	}
	defer store.Close()
	return workflow.NewCatalog(store).Get(ctx, arg)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
