package config

import (
	"os"

	"gopkg.in/yaml.v3"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeConfigParse, "parsing YAML")
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeConfigParse, "parsing YAML")
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Bools are only taken when the key
// is present in raw, since false is indistinguishable from unset otherwise.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if boolFieldSet(raw, "browser", "headless") {
		base.Browser.Headless = override.Browser.Headless
	}
	if boolFieldSet(raw, "browser", "persistent_context") {
		base.Browser.PersistentContext = override.Browser.PersistentContext
	}
	mergeString(&base.Browser.UserDataDir, override.Browser.UserDataDir)
	mergeString(&base.Browser.ExecPath, override.Browser.ExecPath)
	if override.Browser.WindowWidth > 0 {
		base.Browser.WindowWidth = override.Browser.WindowWidth
	}
	if override.Browser.WindowHeight > 0 {
		base.Browser.WindowHeight = override.Browser.WindowHeight
	}
	if override.Browser.ActionTimeout != 0 {
		base.Browser.ActionTimeout = override.Browser.ActionTimeout
	}
	if override.Browser.NavigationTimeout != 0 {
		base.Browser.NavigationTimeout = override.Browser.NavigationTimeout
	}
	if override.Browser.TwoFactorTimeout != 0 {
		base.Browser.TwoFactorTimeout = override.Browser.TwoFactorTimeout
	}

	mergeString(&base.Storage.Driver, override.Storage.Driver)
	mergeString(&base.Storage.Path, override.Storage.Path)

	mergeString(&base.Output.Dir, override.Output.Dir)
	mergeString(&base.Output.DiagnosticsDir, override.Output.DiagnosticsDir)

	mergeString(&base.Server.Listen, override.Server.Listen)

	mergeString(&base.Bus.URL, override.Bus.URL)
	mergeString(&base.Bus.SubjectPrefix, override.Bus.SubjectPrefix)
	if len(override.Bus.Families) > 0 {
		base.Bus.Families = append([]string(nil), override.Bus.Families...)
	}

	mergeString(&base.Logging.Dir, override.Logging.Dir)
	mergeString(&base.Logging.Level, override.Logging.Level)

	if boolFieldSet(raw, "tracing", "enabled") {
		base.Tracing.Enabled = override.Tracing.Enabled
	}

	if override.Picker.PollInterval != 0 {
		base.Picker.PollInterval = override.Picker.PollInterval
	}

	r, o := &base.Roster, override.Roster
	mergeString(&r.CredentialsPath, o.CredentialsPath)
	mergeString(&r.TeacherPath, o.TeacherPath)
	mergeString(&r.OutputPath, o.OutputPath)
	mergeString(&r.XLSXPath, o.XLSXPath)
	mergeString(&r.ScreenshotPath, o.ScreenshotPath)
	mergeString(&r.DownloadDir, o.DownloadDir)
	mergeString(&r.PortalURL, o.PortalURL)
	mergeString(&r.IdPHost, o.IdPHost)
	mergeString(&r.AppLink, o.AppLink)
	mergeString(&r.ReportsURL, o.ReportsURL)
	mergeString(&r.ReportName, o.ReportName)
	mergeString(&r.ExportSelector, o.ExportSelector)
	mergeString(&r.LoginSelector, o.LoginSelector)
	mergeString(&r.UsernameSelector, o.UsernameSelector)
	mergeString(&r.PasswordSelector, o.PasswordSelector)
	mergeString(&r.SubmitSelector, o.SubmitSelector)
}

func mergeString(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func boolFieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}
