package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"casefile/internal/rules"
)

func newRulesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the loaded detection rule catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			catalog, skipped, err := rules.Load(cfg.Detection.RulesDir)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, catalog.Len())
			for _, rule := range catalog.Rules() {
				rows = append(rows, []string{rule.Title, rule.Collection, rule.Level, rule.ID})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Title", "Collection", "Level", "ID"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))

			for _, path := range skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped unparseable rule: %s\n", path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rules loaded\n", catalog.Len())
			return nil
		},
	}
	return cmd
}
