package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"casefile/internal/artifact"
	"casefile/internal/dispatch"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and repair the processing queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newQueueListCommand(ctx))
	cmd.AddCommand(newQueueRetryCommand(ctx))
	cmd.AddCommand(newQueueCancelCommand(ctx))
	cmd.AddCommand(newQueueRemoveCommand(ctx))
	cmd.AddCommand(newQueueHealthCommand(ctx))
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var caseID string
	var showHidden bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artifacts and their pipeline state",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			artifacts, err := st.ListArtifacts(cmd.Context(), caseID)
			if err != nil {
				return err
			}

			var rows [][]string
			for _, a := range artifacts {
				if a.Hidden && !showHidden {
					continue
				}
				flags := ""
				if a.Degraded {
					flags = "degraded"
				}
				rows = append(rows, []string{
					a.ID,
					a.Name,
					a.StatusDisplay(),
					strconv.FormatInt(a.EventCount, 10),
					strconv.FormatInt(a.ViolationCount, 10),
					strconv.FormatInt(a.IOCHitCount, 10),
					flags,
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Status", "Events", "Violations", "IOC Hits", "Flags"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Limit output to one case")
	cmd.Flags().BoolVar(&showHidden, "hidden", false, "Include archived artifacts")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry [artifact-id]...",
		Short: "Return failed artifacts to the filter-passed state",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			count, err := st.RetryFailed(cmd.Context(), args...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d artifact(s) returned for reprocessing\n", count)
			return nil
		},
	}
	return cmd
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <artifact-id>",
		Short: "Request cancellation of an in-flight artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			a, err := st.GetArtifact(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !a.IsProcessing() && a.Status != artifact.StatusQueued {
				return fmt.Errorf("artifact %s is %s, nothing to cancel", a.ID, a.StatusDisplay())
			}
			if err := st.RequestCancel(cmd.Context(), a.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancellation requested for %s; honored at the next stage boundary\n", a.ID)
			return nil
		},
	}
	return cmd
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <artifact-id>",
		Short: "Pull a queued artifact back off the work queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			b, err := ctx.ensureBroker()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			dispatcher := dispatch.New(st, b, nil, logger)
			removed, err := dispatcher.Revoke(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "artifact %s has no waiting work item; use cancel for in-flight work\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "artifact %s removed from the queue\n", args[0])
			return nil
		},
	}
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Summarize pipeline health",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}

			total := 0
			var rows [][]string
			for _, status := range artifact.AllStatuses() {
				count := stats[status]
				total += count
				if count == 0 {
					continue
				}
				rows = append(rows, []string{string(status), strconv.Itoa(count)})
			}
			rows = append(rows, []string{"total", strconv.Itoa(total)})

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Status", "Artifacts"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))

			if b, err := ctx.ensureBroker(); err == nil {
				if depth, err := b.Depth(cmd.Context()); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "queue depth: %d\n", depth)
				}
			}
			return nil
		},
	}
	return cmd
}
