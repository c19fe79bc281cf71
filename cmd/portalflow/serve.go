package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/portalflow/pkg/api"
	"github.com/odvcencio/portalflow/pkg/browser"
	"github.com/odvcencio/portalflow/pkg/bus"
	"github.com/odvcencio/portalflow/pkg/execution"
	"github.com/odvcencio/portalflow/pkg/lease"
	"github.com/odvcencio/portalflow/pkg/picker"
	"github.com/odvcencio/portalflow/pkg/telemetry"
	"github.com/odvcencio/portalflow/pkg/workflow"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP control plane for the workflow UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.Server.Listen = listen
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	hub := telemetry.NewHub()
	defer hub.Close()
	if obs, ok := store.(workflow.Observable); ok {
		obs.AddWorkflowObserver(workflowEvents(hub))
	}

	runtime, err := a.newRuntime(a.cfg)
	if err != nil {
		return err
	}
	browsers := browser.NewManager(runtime)
	defer browsers.Close()

	// Runs and picker sessions drive the same browser profile.
	slot := lease.NewSlot("browser")
	runs := execution.NewManager(execution.ManagerConfig{
		Browsers: browsers,
		Session:  a.sessionConfig(),
		Options:  a.executionOptions(hub),
		Slot:     slot,
	})
	defer runs.Close()
	pickers := picker.NewManager(picker.ManagerConfig{
		Browsers: browsers,
		Session:  a.sessionConfig(),
		Options: picker.Options{
			PollInterval: a.cfg.Picker.PollInterval,
			Hub:          hub,
			Logger:       a.logger,
		},
		Slot: slot,
	})
	defer pickers.Close()

	var health workflow.Pinger
	if p, ok := store.(workflow.Pinger); ok {
		health = p
	}
	server := api.NewServer(api.ServerConfig{
		Address:   a.cfg.Server.Listen,
		Workflows: workflow.NewCatalog(store),
		Runs:      runs,
		Picker:    pickers,
		Health:    health,
		Logger:    a.logger,
	})

	busCfg := bus.DefaultConfig()
	busCfg.URL = a.cfg.Bus.URL
	busCfg.Logger = a.logger
	mb, err := bus.Open(busCfg)
	if err != nil {
		return err
	}
	defer mb.Close()
	bridge := bus.NewBridge(hub, mb, a.cfg.Bus.SubjectPrefix, a.logger)
	bridge.Families = a.cfg.Bus.Families

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bridge.Run(ctx) })
	if fs, ok := store.(*workflow.FileStore); ok {
		g.Go(func() error { return fs.Watch(ctx) })
	}
	g.Go(func() error {
		fmtLine(a.stderr, "portalflow listening on http://"+server.Addr())
		return server.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		runs.Stop()
		pickers.Stop()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// workflowEvents republishes store mutations on the hub.
func workflowEvents(hub *telemetry.Hub) workflow.Observer {
	return workflow.ObserverFunc(func(c workflow.Change) {
		t := telemetry.EventWorkflowSaved
		if c.Kind == workflow.ChangeDeleted {
			t = telemetry.EventWorkflowDeleted
		}
		hub.Publish(telemetry.Event{
			Type:       t,
			Timestamp:  c.At,
			WorkflowID: c.ID,
			Data:       map[string]any{"name": c.Name},
		})
	})
}
