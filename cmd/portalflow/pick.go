package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/odvcencio/portalflow/pkg/browser"
	"github.com/odvcencio/portalflow/pkg/ndjson"
	"github.com/odvcencio/portalflow/pkg/picker"
)

func newPickCommand(a *app) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "pick",
		Short: "Open a headed browser and report clicked elements as selectors",
		Long: `Open a visible browser on --url with the selector picker overlay. Every
element clicked is reported on stdout as a selector_picked NDJSON line.
Press Escape in the page, close the browser or interrupt to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.pick(ctx, url)
		},
	}
	cmd.Flags().StringVar(&url, "url", "about:blank", "page to open")
	return cmd
}

func (a *app) pick(ctx context.Context, url string) error {
	runtime, err := a.newRuntime(a.cfg)
	if err != nil {
		return err
	}
	browsers := browser.NewManager(runtime)
	defer browsers.Close()

	pickers := picker.NewManager(picker.ManagerConfig{
		Browsers: browsers,
		Session:  a.sessionConfig(),
		Options: picker.Options{
			PollInterval: a.cfg.Picker.PollInterval,
			Emitter:      ndjson.New(a.stdout),
			Logger:       a.logger,
		},
	})
	defer pickers.Close()

	id, err := pickers.Start(ctx, url)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		pickers.Stop()
	}()
	return pickers.Wait(context.WithoutCancel(ctx), id)
}
