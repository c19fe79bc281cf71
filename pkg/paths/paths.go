package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvLogDir = "PORTALFLOW_LOG_DIR"
	EnvHome   = "PORTALFLOW_HOME"
)

// HomeDir is the per-user state directory (~/.portalflow unless overridden).
func HomeDir() string {
	if dir := strings.TrimSpace(os.Getenv(EnvHome)); dir != "" {
		return filepath.Clean(ExpandHome(dir))
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		home = os.Getenv("HOME")
	}
	if home == "" {
		return ".portalflow"
	}
	return filepath.Join(home, ".portalflow")
}

// InHome joins elems under HomeDir.
func InHome(elems ...string) string {
	return filepath.Join(append([]string{HomeDir()}, elems...)...)
}

// LogsBaseDir returns the log directory, honoring PORTALFLOW_LOG_DIR.
func LogsBaseDir() string {
	if dir := strings.TrimSpace(os.Getenv(EnvLogDir)); dir != "" {
		return filepath.Clean(ExpandHome(dir))
	}
	return filepath.Join(".portalflow", "logs")
}

// LogsBaseDirForWorkdir anchors a relative log dir at workdir.
func LogsBaseDirForWorkdir(workdir string) string {
	base := LogsBaseDir()
	if filepath.IsAbs(base) || strings.TrimSpace(workdir) == "" {
		return base
	}
	return filepath.Join(workdir, base)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return path
}
