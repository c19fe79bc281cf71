package roster

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/odvcencio/portalflow/pkg/browser"
	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/execution"
	"github.com/odvcencio/portalflow/pkg/logging"
	"github.com/odvcencio/portalflow/pkg/ndjson"
	"github.com/odvcencio/portalflow/pkg/telemetry"
)

// Import stages, in order.
const (
	StageLogin     = "login"
	StageApp       = "open_app"
	StageReport    = "open_report"
	StageExport    = "export"
	StageParse     = "parse"
	StageReconcile = "reconcile"
	StageWrite     = "write"
)

// NDJSON event types written by the importer.
const (
	EventStatus  = "status"
	EventWarning = "warning"
	EventError   = "error"
	EventDone    = "done"
)

// ImportConfig is everything one import needs.
type ImportConfig struct {
	SSO         SSOConfig
	Credentials execution.Credentials
	Teacher     string

	// AppLink opens the downstream application from the launchpad.
	AppLink string
	// ReportsURL, when set, is loaded after the application opens.
	ReportsURL     string
	ReportName     string
	ExportSelector string

	DownloadDir    string
	OutputPath     string
	XLSXPath       string
	ScreenshotPath string

	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
}

// Result describes a successful import.
type Result struct {
	Document   Document
	OutputPath string
	XLSXPath   string
	ExportPath string
	Rows       int
	Skipped    []SkippedRow
}

// Importer runs the roster pipeline and reports progress as NDJSON.
type Importer struct {
	cfg     ImportConfig
	emitter *ndjson.Emitter
	logger  *logging.Logger
	hub     *telemetry.Hub
}

// NewImporter builds an importer. emitter may be nil.
func NewImporter(cfg ImportConfig, emitter *ndjson.Emitter, logger *logging.Logger, hub *telemetry.Hub) *Importer {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = browser.DefaultActionTimeout
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = browser.DefaultNavigationTimeout
	}
	return &Importer{cfg: cfg, emitter: emitter, logger: logger, hub: hub}
}

// Run signs in, exports the saved report and processes it. Any browser
// stage failure saves a screenshot and aborts before output is written.
func (im *Importer) Run(ctx context.Context, d browser.Driver) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "portalflow.roster.import")
	res, err := im.run(ctx, d)
	telemetry.EndSpan(span, err)
	return res, err
}

func (im *Importer) run(ctx context.Context, d browser.Driver) (Result, error) {
	cfg := im.cfg

	im.stage(StageLogin, "signing in")
	auth := SSOAuthenticator{Config: cfg.SSO}
	err := auth.Authenticate(ctx, d, execution.LoginRequest{
		Portal:            execution.PortalSSO,
		Credentials:       cfg.Credentials,
		Timeout:           cfg.ActionTimeout,
		NavigationTimeout: cfg.NavigationTimeout,
	})
	if err != nil {
		return Result{}, im.abort(ctx, d, StageLogin, err)
	}

	im.stage(StageApp, "opening application")
	if cfg.AppLink != "" {
		if err := d.Click(ctx, cfg.AppLink, cfg.NavigationTimeout); err != nil {
			return Result{}, im.abort(ctx, d, StageApp, pferrors.Wrap(err, pferrors.ErrCodeNavigation, "application link not found").
				WithContext("selector", cfg.AppLink))
		}
	}
	if cfg.ReportsURL != "" {
		if err := d.Navigate(ctx, cfg.ReportsURL, cfg.NavigationTimeout); err != nil {
			return Result{}, im.abort(ctx, d, StageApp, err)
		}
	}

	im.stage(StageReport, "opening report "+cfg.ReportName)
	if err := d.Click(ctx, browser.QuoteText(cfg.ReportName), cfg.ActionTimeout); err != nil {
		return Result{}, im.abort(ctx, d, StageReport, exportError("report not found", err).
			WithContext("report", cfg.ReportName))
	}

	im.stage(StageExport, "exporting")
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return Result{}, im.abort(ctx, d, StageExport, pferrors.Wrap(err, pferrors.ErrCodeExport, "create download directory"))
	}
	path, err := d.Download(ctx, cfg.ExportSelector, cfg.DownloadDir, cfg.NavigationTimeout)
	if err != nil {
		return Result{}, im.abort(ctx, d, StageExport, exportError("export control not found", err).
			WithContext("selector", cfg.ExportSelector))
	}

	res, stage, err := im.process(path)
	if err != nil {
		if pferrors.IsCode(err, pferrors.ErrCodeReconciliationWarning) {
			return Result{}, err
		}
		return Result{}, im.abort(ctx, d, stage, err)
	}
	return res, nil
}

// ProcessFile runs the offline half of the pipeline on an export that is
// already on disk.
func (im *Importer) ProcessFile(path string) (Result, error) {
	res, stage, err := im.process(path)
	if err != nil && !pferrors.IsCode(err, pferrors.ErrCodeReconciliationWarning) {
		im.failed(stage, err, "")
	}
	return res, err
}

func (im *Importer) process(path string) (Result, string, error) {
	cfg := im.cfg

	im.stage(StageParse, "parsing "+filepath.Base(path))
	f, err := os.Open(path)
	if err != nil {
		return Result{}, StageParse, pferrors.Parse("open export", err).WithContext("path", path)
	}
	table, err := ReadTable(f)
	f.Close()
	if err != nil {
		return Result{}, StageParse, err
	}
	rows, skipped, err := RowsFromTable(table)
	if err != nil {
		return Result{}, StageParse, err
	}
	if len(skipped) > 0 {
		_ = im.logger.Warn(logging.CategoryRoster, "rows_skipped", "unparseable rows skipped", map[string]any{"count": len(skipped), "rows": skipped})
	}

	im.stage(StageReconcile, "reconciling "+cfg.Teacher)
	doc, err := Reconcile(rows, cfg.Teacher)
	if err != nil {
		if pf, ok := pferrors.As(err); ok && pf.Code == pferrors.ErrCodeReconciliationWarning {
			im.warn(pf)
		}
		return Result{}, StageReconcile, err
	}

	im.stage(StageWrite, "writing "+cfg.OutputPath)
	if err := WriteJSON(cfg.OutputPath, doc); err != nil {
		return Result{}, StageWrite, err
	}
	res := Result{Document: doc, OutputPath: cfg.OutputPath, ExportPath: path, Rows: len(rows), Skipped: skipped}
	if cfg.XLSXPath != "" {
		if err := WriteXLSX(cfg.XLSXPath, doc); err != nil {
			return Result{}, StageWrite, err
		}
		res.XLSXPath = cfg.XLSXPath
	}

	students := 0
	for _, g := range doc {
		students += len(g.Students)
	}
	metricImports.WithLabelValues("success").Inc()
	_ = im.emitter.Emit(EventDone, map[string]any{
		"message":  "roster written: " + doc.Summary(),
		"output":   cfg.OutputPath,
		"periods":  len(doc),
		"students": students,
		"skipped":  len(skipped),
	})
	_ = im.logger.Info(logging.CategoryRoster, "done", doc.Summary(), map[string]any{"output": cfg.OutputPath})
	return res, "", nil
}

func (im *Importer) stage(stage, message string) {
	_ = im.emitter.Emit(EventStatus, map[string]any{"stage": stage, "message": message})
	im.publish(telemetry.EventRosterStage, map[string]any{"stage": stage, "message": message})
	_ = im.logger.Info(logging.CategoryRoster, "stage", message, map[string]any{"stage": stage})
}

func (im *Importer) warn(pf *pferrors.Error) {
	metricImports.WithLabelValues("warning").Inc()
	payload := map[string]any{
		"code":          string(pf.Code),
		"message":       pf.Message,
		"teachersFound": pf.Context["teachers_found"],
	}
	_ = im.emitter.Emit(EventWarning, payload)
	im.publish(telemetry.EventRosterWarning, payload)
	_ = im.logger.Warn(logging.CategoryRoster, "reconciliation_warning", pf.Message, payload)
}

// abort saves a diagnostic screenshot and reports err as terminal.
func (im *Importer) abort(ctx context.Context, d browser.Driver, stage string, err error) error {
	shot := im.screenshot(ctx, d)
	im.failed(stage, err, shot)
	return err
}

func (im *Importer) failed(stage string, err error, screenshot string) {
	metricImports.WithLabelValues("error").Inc()
	payload := map[string]any{
		"stage":   stage,
		"code":    string(pferrors.GetCode(err)),
		"message": err.Error(),
	}
	if pf, ok := pferrors.As(err); ok {
		payload["message"] = pf.Display()
		if len(pf.Remediation) > 0 {
			payload["remediation"] = pf.Remediation
		}
	}
	if screenshot != "" {
		payload["screenshot"] = screenshot
	}
	_ = im.emitter.Emit(EventError, payload)
	_ = im.logger.Error(logging.CategoryRoster, "failed", err.Error(), payload)
}

func (im *Importer) screenshot(ctx context.Context, d browser.Driver) string {
	path := im.cfg.ScreenshotPath
	if d == nil || path == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	data, err := d.Screenshot(ctx)
	if err != nil {
		_ = im.logger.Warn(logging.CategoryRoster, "screenshot_failed", err.Error(), nil)
		return ""
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ""
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ""
	}
	return path
}

func (im *Importer) publish(t telemetry.EventType, data map[string]any) {
	if im.hub == nil {
		return
	}
	im.hub.Publish(telemetry.Event{Type: t, Timestamp: time.Now(), Data: data})
}

// exportError keeps STOPPED and already-classified EXPORT errors, and
// reports everything else as EXPORT.
func exportError(message string, err error) *pferrors.Error {
	if pf, ok := pferrors.As(err); ok && (pf.Code == pferrors.ErrCodeExport || pf.Code == pferrors.ErrCodeStopped) {
		return pf
	}
	return pferrors.Export(message, err)
}
