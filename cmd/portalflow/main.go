// Command portalflow records and replays browser workflows, runs the
// selector picker and imports class rosters from the district portal.
package main

import (
	"fmt"
	"os"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

// Version information - set via ldflags during build
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	root := newRootCommand(newApp(os.Stdout, os.Stderr))
	if err := root.Execute(); err != nil {
		if msg := errorText(err); msg != "" {
			fmt.Fprintln(os.Stderr, "Error:", msg)
		}
		os.Exit(exitCodeForError(err))
	}
}

// errorText prefers the user-facing message of a structured error.
func errorText(err error) string {
	if pf, ok := pferrors.As(err); ok {
		msg := pf.Display()
		for _, tip := range pf.Remediation {
			msg += "\n  hint: " + tip
		}
		return msg
	}
	return err.Error()
}
