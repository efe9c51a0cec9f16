package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fortressi/provision"
	"github.com/fortressi/provision/dag"
)

func newInstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Start a new provisioning transaction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireRoot(); err != nil {
				return err
			}
			return a.run(cmd.Context(), cmd.OutOrStdout(), false)
		},
	}
}

func newResumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Continue an interrupted provisioning transaction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireRoot(); err != nil {
				return err
			}
			return a.run(cmd.Context(), cmd.OutOrStdout(), true)
		},
	}
}

// run drives install and resume. Both hold the state file lock for the whole
// transaction so two installers never write the same ledger.
func (a *app) run(ctx context.Context, out io.Writer, resume bool) error {
	store, err := a.store()
	if err != nil {
		return err
	}
	unlock, err := store.Lock()
	if err != nil {
		return fmt.Errorf("another provisioning run holds the lock: %w", err)
	}
	defer unlock()

	ops, meta, err := a.plan(a.host())
	if err != nil {
		return err
	}

	mgr := provision.NewTransactionManager(store,
		provision.WithLogger(a.logger),
		provision.WithObserver(stepPrinter(out)),
	)

	found, err := mgr.LoadExisting(ctx, ops)
	if err != nil {
		return err
	}

	var result provision.TransactionResult
	switch {
	case resume && !found:
		return fmt.Errorf("%w at %s; run install instead", provision.ErrNoTransaction, store.Path())
	case resume:
		result, err = mgr.Resume(ctx)
	case found:
		return fmt.Errorf("an unfinished transaction exists at %s (%.0f%% done); run resume or clear", store.Path(), mgr.Progress())
	default:
		if err := mgr.Initialize(ctx, ops, meta); err != nil {
			return err
		}
		result, err = mgr.Execute(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	if derr := mgr.DisplayProgress(out); derr != nil {
		a.logger.Warn().Err(derr).Msg("failed to display progress")
	}

	if !result.Success {
		for _, rbErr := range result.RollbackErrors {
			color.New(color.FgYellow).Fprintf(out, "rollback: %v\n", rbErr)
		}
		if result.CanResume {
			fmt.Fprintln(out, "Fix the problem above, then run: nodeprov resume")
		}
		return result.Error
	}

	color.New(color.FgGreen, color.Bold).Fprintf(out, "Provisioned %d/%d steps\n", result.CompletedSteps, result.TotalSteps)
	return mgr.Clear(ctx)
}

func stepPrinter(out io.Writer) provision.Observer {
	return func(ev provision.StepEvent) {
		if ev.Step.Status == provision.StepInProgress {
			fmt.Fprintf(out, "[%d/%d] %s\n", ev.Index+1, ev.Total, ev.Step.Description)
		}
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted transaction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			state, err := store.Load(cmd.Context())
			if errors.Is(err, provision.ErrNoTransaction) {
				fmt.Fprintln(cmd.OutOrStdout(), "No provisioning transaction in progress.")
				return nil
			}
			if err != nil {
				return err
			}
			return provision.RenderProgress(cmd.OutOrStdout(), state)
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the persisted transaction without rolling back",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info().Str("path", store.Path()).Msg("transaction state cleared")
			return nil
		},
	}
}

func newPlanCmd(a *app) *cobra.Command {
	var asDot bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the operations an install would run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ops, meta, err := a.plan(a.host())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !asDot {
				fmt.Fprintf(out, "mode=%s node=%s\n", meta.Mode, meta.NodeType)
				for i, op := range ops {
					fmt.Fprintf(out, "%2d. %s\n", i+1, describe(op))
				}
				return nil
			}

			nodes := make([]dag.StepNode, len(ops))
			for i, op := range ops {
				nodes[i] = dag.StepNode{Label: describe(op), Status: provision.StepPending.String()}
			}
			g, err := dag.Chain("nodeprov "+meta.Mode, nodes)
			if err != nil {
				return err
			}
			if _, err := g.Order(); err != nil {
				return fmt.Errorf("plan is not a valid execution order: %w", err)
			}
			dot, err := g.ExportToDot()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, dot)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asDot, "dot", false, "emit Graphviz DOT instead of a list")
	return cmd
}

func describe(op provision.Operation) string {
	if d, ok := op.(provision.Describer); ok {
		return d.Description()
	}
	return fmt.Sprintf("%T", op)
}
