package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/workflow"
)

func newWorkflowsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflows",
		Aliases: []string{"wf"},
		Short:   "List, show, delete and validate workflows",
	}
	cmd.AddCommand(
		newWorkflowsListCommand(a),
		newWorkflowsShowCommand(a),
		newWorkflowsDeleteCommand(a),
		newWorkflowsValidateCommand(a),
	)
	return cmd
}

func (a *app) catalog() (*workflow.Catalog, func(), error) {
	store, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	return workflow.NewCatalog(store), func() { _ = store.Close() }, nil
}

func newWorkflowsListCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved workflows and built-in templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, done, err := a.catalog()
			if err != nil {
				return err
			}
			defer done()
			items, err := cat.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(a, map[string]any{"workflows": items})
			}
			if len(items) == 0 {
				fmtLine(a.stdout, "No workflows.")
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, paint(a.stdout, titleStyle, "ID\tNAME\tSTEPS\tKIND"))
			for _, s := range items {
				kind := "saved"
				if s.Template {
					kind = "template"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.Name, s.StepCount, kind)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newWorkflowsShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a workflow as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, done, err := a.catalog()
			if err != nil {
				return err
			}
			defer done()
			wf, err := cat.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(a, wf)
		},
	}
}

func newWorkflowsDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, done, err := a.catalog()
			if err != nil {
				return err
			}
			defer done()
			if err := cat.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmtLine(a.stdout, "Deleted "+args[0])
			return nil
		},
	}
}

func newWorkflowsValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a workflow file's name and step parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return pferrors.Wrap(err, pferrors.ErrCodeStorageRead, "read workflow file").WithContext("path", args[0])
			}
			wf, err := workflow.Decode(data)
			if err != nil {
				return pferrors.Wrap(err, pferrors.ErrCodeValidation, "workflow file is not valid JSON").WithContext("path", args[0])
			}
			if err := workflow.ValidateForSave(wf); err != nil {
				return err
			}
			fmtLine(a.stdout, paint(a.stdout, okStyle, "ok")+fmt.Sprintf(" %s (%d steps)", wf.Name, workflow.CountSteps(wf.Steps)))
			return nil
		},
	}
}

func writeJSON(a *app, v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
