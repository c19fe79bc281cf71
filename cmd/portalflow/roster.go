package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/odvcencio/portalflow/pkg/browser"
	"github.com/odvcencio/portalflow/pkg/ndjson"
	"github.com/odvcencio/portalflow/pkg/roster"
)

func newRosterCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Import class rosters from the district portal",
	}
	cmd.AddCommand(newRosterImportCommand(a), newRosterObscureCommand(a))
	return cmd
}

func newRosterImportCommand(a *app) *cobra.Command {
	var fromFile string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Sign in, export the roster report and write the class document",
		Long: `Sign in through the portal's identity provider, open the student
information system, export the saved roster report and write it as a
per-period class document (JSON, plus XLSX when roster.xlsx_path is set).

Progress is written to stdout as NDJSON status lines. With --from-file the
browser stages are skipped and an export already on disk is processed.
Exits 2 when the export contains no rows for the configured teacher.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.importRoster(ctx, fromFile)
		},
	}
	cmd.Flags().StringVar(&fromFile, "from-file", "", "process an existing CSV export instead of downloading one")
	return cmd
}

func newRosterObscureCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "obscure <password>",
		Short: "Print the obscured form of a password for the credentials file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmtLine(a.stdout, roster.Obscure(args[0]))
			return nil
		},
	}
}

func (a *app) importConfig(withCredentials bool) (roster.ImportConfig, error) {
	r := a.cfg.Roster
	teacher, err := roster.LoadTeacher(r.TeacherPath)
	if err != nil {
		return roster.ImportConfig{}, err
	}
	cfg := roster.ImportConfig{
		SSO:               a.ssoConfig(),
		Teacher:           teacher,
		AppLink:           r.AppLink,
		ReportsURL:        r.ReportsURL,
		ReportName:        r.ReportName,
		ExportSelector:    r.ExportSelector,
		DownloadDir:       r.DownloadDir,
		OutputPath:        r.OutputPath,
		XLSXPath:          r.XLSXPath,
		ScreenshotPath:    r.ScreenshotPath,
		ActionTimeout:     a.cfg.Browser.ActionTimeout,
		NavigationTimeout: a.cfg.Browser.NavigationTimeout,
	}
	if withCredentials {
		creds, err := roster.LoadCredentials(r.CredentialsPath)
		if err != nil {
			return roster.ImportConfig{}, err
		}
		cfg.Credentials = creds
	}
	return cfg, nil
}

func (a *app) importRoster(ctx context.Context, fromFile string) error {
	cfg, err := a.importConfig(fromFile == "")
	if err != nil {
		return err
	}
	importer := roster.NewImporter(cfg, ndjson.New(a.stdout), a.logger, nil)

	var res roster.Result
	if fromFile != "" {
		res, err = importer.ProcessFile(fromFile)
	} else {
		res, err = a.importWithBrowser(ctx, importer)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stderr, paint(a.stderr, okStyle, "Roster imported: ")+res.Document.Summary())
	fmt.Fprintln(a.stderr, paint(a.stderr, mutedStyle, "  "+res.OutputPath))
	if res.XLSXPath != "" {
		fmt.Fprintln(a.stderr, paint(a.stderr, mutedStyle, "  "+res.XLSXPath))
	}
	if n := len(res.Skipped); n > 0 {
		fmt.Fprintln(a.stderr, paint(a.stderr, warnStyle, fmt.Sprintf("  %d rows skipped", n)))
	}
	return nil
}

func (a *app) importWithBrowser(ctx context.Context, importer *roster.Importer) (roster.Result, error) {
	runtime, err := a.newRuntime(a.cfg)
	if err != nil {
		return roster.Result{}, err
	}
	browsers := browser.NewManager(runtime)
	defer browsers.Close()

	sess := a.sessionConfig()
	sess.SessionID = "roster-import"
	// Two-factor approval needs a visible window.
	sess.Headless = false
	sess.DownloadDir = a.cfg.Roster.DownloadDir
	driver, err := browsers.CreateSession(ctx, sess)
	if err != nil {
		return roster.Result{}, err
	}
	defer browsers.CloseSession(sess.SessionID)
	return importer.Run(ctx, driver)
}
