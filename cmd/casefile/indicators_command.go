package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"casefile/internal/hunt"
)

func newIndicatorsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indicators",
		Short: "Manage hunt indicators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newIndicatorsImportCommand(ctx))
	cmd.AddCommand(newIndicatorsListCommand(ctx))
	return cmd
}

func newIndicatorsImportCommand(ctx *commandContext) *cobra.Command {
	var caseID string

	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import indicator definitions from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			indicators, err := hunt.LoadIndicatorFile(args[0], caseID)
			if err != nil {
				return err
			}
			for _, ind := range indicators {
				if err := st.UpsertIndicator(cmd.Context(), ind); err != nil {
					return fmt.Errorf("import %s: %w", ind.Value, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d indicator(s) imported\n", len(indicators))
			return nil
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Case identifier (overrides the file's case_id)")
	return cmd
}

func newIndicatorsListCommand(ctx *commandContext) *cobra.Command {
	var caseID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indicators for a case",
		RunE: func(cmd *cobra.Command, args []string) error {
			if caseID == "" {
				return errors.New("--case is required")
			}
			st, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			indicators, err := st.ListIndicators(cmd.Context(), caseID)
			if err != nil {
				return err
			}

			var rows [][]string
			for _, ind := range indicators {
				state := "enabled"
				if !ind.Enabled {
					state = "disabled"
				}
				rows = append(rows, []string{
					string(ind.Type),
					ind.Value,
					string(ind.Strategy),
					state,
					strconv.FormatInt(ind.HitCount, 10),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Type", "Value", "Strategy", "State", "Hits"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Case identifier")
	return cmd
}
