package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/paths"
)

// Config represents the complete portalflow configuration
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Storage StorageConfig `yaml:"storage"`
	Output  OutputConfig  `yaml:"output"`
	Server  ServerConfig  `yaml:"server"`
	Bus     BusConfig     `yaml:"bus"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Picker  PickerConfig  `yaml:"picker"`
	Roster  RosterConfig  `yaml:"roster"`
}

// BrowserConfig controls how browser sessions are launched.
type BrowserConfig struct {
	Headless          bool          `yaml:"headless"`
	PersistentContext bool          `yaml:"persistent_context"`
	UserDataDir       string        `yaml:"user_data_dir"`
	ExecPath          string        `yaml:"exec_path"`
	WindowWidth       int           `yaml:"window_width"`
	WindowHeight      int           `yaml:"window_height"`
	ActionTimeout     time.Duration `yaml:"action_timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	TwoFactorTimeout  time.Duration `yaml:"two_factor_timeout"`
}

// StorageConfig selects the workflow store backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// OutputConfig holds default directories for run artifacts.
type OutputConfig struct {
	Dir            string `yaml:"dir"`
	DiagnosticsDir string `yaml:"diagnostics_dir"`
}

// ServerConfig configures the HTTP control plane.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// BusConfig configures the event bridge. An empty URL keeps events in-process.
type BusConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	// Families limits forwarding to event families such as "run" or
	// "workflow". Empty forwards everything.
	Families []string `yaml:"families"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// TracingConfig toggles OpenTelemetry span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// PickerConfig configures the element picker.
type PickerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// RosterConfig configures the SSO roster importer.
type RosterConfig struct {
	CredentialsPath  string `yaml:"credentials_path"`
	TeacherPath      string `yaml:"teacher_path"`
	OutputPath       string `yaml:"output_path"`
	XLSXPath         string `yaml:"xlsx_path"`
	ScreenshotPath   string `yaml:"screenshot_path"`
	DownloadDir      string `yaml:"download_dir"`
	PortalURL        string `yaml:"portal_url"`
	IdPHost          string `yaml:"idp_host"`
	AppLink          string `yaml:"app_link"`
	ReportsURL       string `yaml:"reports_url"`
	ReportName       string `yaml:"report_name"`
	ExportSelector   string `yaml:"export_selector"`
	LoginSelector    string `yaml:"login_selector"`
	UsernameSelector string `yaml:"username_selector"`
	PasswordSelector string `yaml:"password_selector"`
	SubmitSelector   string `yaml:"submit_selector"`
}

const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"

	DefaultListen = "127.0.0.1:4477"
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          false,
			PersistentContext: false,
			UserDataDir:       paths.InHome("browser-profile"),
			WindowWidth:       1280,
			WindowHeight:      900,
			ActionTimeout:     10 * time.Second,
			NavigationTimeout: 30 * time.Second,
			TwoFactorTimeout:  120 * time.Second,
		},
		Storage: StorageConfig{
			Driver: StorageSQLite,
			Path:   paths.InHome("portalflow.db"),
		},
		Output: OutputConfig{
			Dir:            paths.InHome("output"),
			DiagnosticsDir: paths.InHome("diagnostics"),
		},
		Server: ServerConfig{Listen: DefaultListen},
		Bus:    BusConfig{SubjectPrefix: "portalflow"},
		Logging: LoggingConfig{
			Dir:   paths.LogsBaseDir(),
			Level: "info",
		},
		Picker: PickerConfig{PollInterval: 300 * time.Millisecond},
		Roster: RosterConfig{
			CredentialsPath:  paths.InHome("credentials.json"),
			TeacherPath:      paths.InHome("teacher.json"),
			OutputPath:       paths.InHome("roster.json"),
			ScreenshotPath:   paths.InHome("diagnostics", "roster-error.png"),
			DownloadDir:      paths.InHome("downloads"),
			PortalURL:        "https://launchpad.classlink.com/",
			IdPHost:          "login.microsoftonline.com",
			AppLink:          `text="Aeries"`,
			ReportsURL:       "",
			ReportName:       "Class Roster With Contacts",
			ExportSelector:   `text="Export"`,
			LoginSelector:    `text="Sign in with Microsoft"`,
			UsernameSelector: `input[name="loginfmt"]`,
			PasswordSelector: `input[name="passwd"]`,
			SubmitSelector:   `#idSIButton9`,
		},
	}
}

// Load loads configuration from default locations with proper precedence
func Load() (*Config, error) {
	cfg := DefaultConfig()

	userConfigPath := paths.InHome("config.yaml")
	if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, pferrors.Wrap(err, pferrors.ErrCodeConfigLoad, "loading user config").
			WithContext("path", userConfigPath)
	}

	projectConfigPath := filepath.Join(".", ".portalflow", "config.yaml")
	if err := loadAndMerge(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, pferrors.Wrap(err, pferrors.ErrCodeConfigLoad, "loading project config").
			WithContext("path", projectConfigPath)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, pferrors.Wrap(err, pferrors.ErrCodeConfigLoad, "loading config").
			WithContext("path", path)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if val, ok := envBool("PORTALFLOW_HEADLESS"); ok {
		cfg.Browser.Headless = val
	}
	if v := strings.TrimSpace(os.Getenv("PORTALFLOW_LISTEN")); v != "" {
		cfg.Server.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("PORTALFLOW_DB")); v != "" {
		cfg.Storage.Path = paths.ExpandHome(v)
	}
	if v := strings.TrimSpace(os.Getenv("PORTALFLOW_NATS_URL")); v != "" {
		cfg.Bus.URL = v
	}
	if v := strings.TrimSpace(os.Getenv(paths.EnvLogDir)); v != "" {
		cfg.Logging.Dir = paths.ExpandHome(v)
	}
}

func envBool(key string) (bool, bool) {
	val := os.Getenv(key)
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return pferrors.New(pferrors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...))
	}

	switch c.Storage.Driver {
	case StorageSQLite, StorageFile:
	default:
		return invalid("invalid storage driver: %s (valid: sqlite, file)", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return invalid("storage.path is required")
	}

	if c.Browser.ActionTimeout <= 0 {
		return invalid("browser.action_timeout must be positive")
	}
	if c.Browser.NavigationTimeout <= 0 {
		return invalid("browser.navigation_timeout must be positive")
	}
	if c.Browser.TwoFactorTimeout <= 0 {
		return invalid("browser.two_factor_timeout must be positive")
	}
	if c.Browser.WindowWidth < 0 || c.Browser.WindowHeight < 0 {
		return invalid("browser window size cannot be negative")
	}
	if c.Picker.PollInterval <= 0 {
		return invalid("picker.poll_interval must be positive")
	}

	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		return invalid("invalid server.listen %q: %v", c.Server.Listen, err)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("invalid logging.level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	if strings.TrimSpace(c.Bus.SubjectPrefix) == "" {
		return invalid("bus.subject_prefix is required")
	}
	return nil
}

// ValidationWarnings reports settings that are legal but probably unintended.
func (c *Config) ValidationWarnings() []string {
	var warnings []string
	if !isLoopbackBindAddress(c.Server.Listen) {
		warnings = append(warnings, fmt.Sprintf("server.listen %s is not a loopback address; the control plane has no authentication", c.Server.Listen))
	}
	if c.Browser.PersistentContext && strings.TrimSpace(c.Browser.UserDataDir) == "" {
		warnings = append(warnings, "browser.persistent_context is set without browser.user_data_dir; sessions will not persist")
	}
	if c.Roster.ReportsURL == "" {
		warnings = append(warnings, "roster.reports_url is empty; roster import will look for the report from the application landing page")
	}
	return warnings
}

func isLoopbackBindAddress(addr string) bool {
	host, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
