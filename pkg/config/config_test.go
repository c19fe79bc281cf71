package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/odvcencio/portalflow/pkg/config"
	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PORTALFLOW_HOME", "")
	t.Setenv("PORTALFLOW_HEADLESS", "")
	t.Setenv("PORTALFLOW_LISTEN", "")
	t.Setenv("PORTALFLOW_DB", "")
	t.Setenv("PORTALFLOW_NATS_URL", "")
	t.Setenv("PORTALFLOW_LOG_DIR", "")
	return home
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	home := isolate(t)
	cfg := config.DefaultConfig()

	if cfg.Browser.ActionTimeout != 10*time.Second {
		t.Errorf("action timeout = %v", cfg.Browser.ActionTimeout)
	}
	if cfg.Browser.NavigationTimeout != 30*time.Second {
		t.Errorf("navigation timeout = %v", cfg.Browser.NavigationTimeout)
	}
	if cfg.Browser.TwoFactorTimeout != 120*time.Second {
		t.Errorf("2fa timeout = %v", cfg.Browser.TwoFactorTimeout)
	}
	if cfg.Picker.PollInterval != 300*time.Millisecond {
		t.Errorf("poll interval = %v", cfg.Picker.PollInterval)
	}
	if cfg.Server.Listen != config.DefaultListen {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Storage.Path != filepath.Join(home, ".portalflow", "portalflow.db") {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadHierarchy(t *testing.T) {
	home := isolate(t)
	project := t.TempDir()

	writeFile(t, filepath.Join(home, ".portalflow", "config.yaml"), `
browser:
  headless: true
  action_timeout: 5s
server:
  listen: 127.0.0.1:9000
roster:
  report_name: User Report
bus:
  families: [run, workflow]
`)
	writeFile(t, filepath.Join(project, ".portalflow", "config.yaml"), `
browser:
  headless: false
server:
  listen: 127.0.0.1:9100
picker:
  poll_interval: 150ms
`)
	t.Chdir(project)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Browser.Headless {
		t.Error("project config should override headless=false")
	}
	if cfg.Browser.ActionTimeout != 5*time.Second {
		t.Errorf("action timeout = %v, want user value", cfg.Browser.ActionTimeout)
	}
	if cfg.Server.Listen != "127.0.0.1:9100" {
		t.Errorf("listen = %q, want project value", cfg.Server.Listen)
	}
	if cfg.Picker.PollInterval != 150*time.Millisecond {
		t.Errorf("poll interval = %v", cfg.Picker.PollInterval)
	}
	if cfg.Roster.ReportName != "User Report" {
		t.Errorf("report name = %q", cfg.Roster.ReportName)
	}
	if strings.Join(cfg.Bus.Families, ",") != "run,workflow" {
		t.Errorf("bus families = %v", cfg.Bus.Families)
	}
	if cfg.Browser.NavigationTimeout != 30*time.Second {
		t.Errorf("unset durations must keep defaults, got %v", cfg.Browser.NavigationTimeout)
	}
}

func TestLoadFromPath_EnvOverrides(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "c.yaml")
	writeFile(t, path, "storage:\n  driver: file\n  path: /tmp/wf\n")

	t.Setenv("PORTALFLOW_HEADLESS", "yes")
	t.Setenv("PORTALFLOW_LISTEN", "127.0.0.1:5000")
	t.Setenv("PORTALFLOW_DB", "/tmp/override")
	t.Setenv("PORTALFLOW_NATS_URL", "nats://127.0.0.1:4222")
	t.Setenv("PORTALFLOW_LOG_DIR", "/tmp/pf-logs")

	cfg, err := config.LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if !cfg.Browser.Headless {
		t.Error("PORTALFLOW_HEADLESS not applied")
	}
	if cfg.Server.Listen != "127.0.0.1:5000" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Storage.Driver != config.StorageFile || cfg.Storage.Path != "/tmp/override" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Bus.URL != "nats://127.0.0.1:4222" {
		t.Errorf("bus url = %q", cfg.Bus.URL)
	}
	if cfg.Logging.Dir != "/tmp/pf-logs" {
		t.Errorf("log dir = %q", cfg.Logging.Dir)
	}
}

func TestLoadFromPath_Errors(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	_, err := config.LoadFromPath(filepath.Join(dir, "missing.yaml"))
	if !pferrors.IsCode(err, pferrors.ErrCodeConfigLoad) {
		t.Errorf("missing file: got %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "browser: [not, a, map")
	_, err = config.LoadFromPath(bad)
	if !pferrors.IsCode(err, pferrors.ErrCodeConfigLoad) {
		t.Errorf("bad yaml: got %v", err)
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	writeFile(t, invalid, "storage:\n  driver: postgres\n")
	_, err = config.LoadFromPath(invalid)
	if !pferrors.IsCode(err, pferrors.ErrCodeConfigInvalid) {
		t.Errorf("invalid driver: got %v", err)
	}
}

func TestValidate(t *testing.T) {
	isolate(t)
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bad listen", func(c *config.Config) { c.Server.Listen = "nope" }, "server.listen"},
		{"zero action timeout", func(c *config.Config) { c.Browser.ActionTimeout = 0 }, "action_timeout"},
		{"zero poll", func(c *config.Config) { c.Picker.PollInterval = 0 }, "poll_interval"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"empty storage path", func(c *config.Config) { c.Storage.Path = " " }, "storage.path"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestValidationWarnings(t *testing.T) {
	isolate(t)
	cfg := config.DefaultConfig()
	cfg.Server.Listen = "0.0.0.0:4477"
	cfg.Roster.ReportsURL = "https://sis.example/reports"

	warnings := cfg.ValidationWarnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "loopback") {
		t.Fatalf("warnings = %v", warnings)
	}
}
