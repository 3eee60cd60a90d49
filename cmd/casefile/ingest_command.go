package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"casefile/internal/config"
	"casefile/internal/ingest"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var caseID string

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Stage artifact files or archives into a case",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if caseID == "" {
				return errors.New("--case is required")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			stager := ingest.NewStager(cfg, st, nil, logger)

			var rows [][]string
			for _, arg := range args {
				source, err := config.ExpandPath(arg)
				if err != nil {
					return err
				}
				expandDir := filepath.Join(cfg.Paths.StagingDir, caseID)
				paths, err := ingest.ExpandArchive(source, expandDir)
				if err != nil {
					return fmt.Errorf("expand %s: %w", arg, err)
				}

				for _, path := range paths {
					name := filepath.Base(path)
					a, err := stager.Stage(cmd.Context(), caseID, name, path)

					var dup *ingest.DuplicateError
					switch {
					case errors.As(err, &dup):
						rows = append(rows, []string{name, "duplicate", dup.Existing.ID})
					case err != nil:
						return fmt.Errorf("stage %s: %w", name, err)
					default:
						rows = append(rows, []string{name, "staged", a.ID})
					}
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"File", "Result", "Artifact"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Case identifier to ingest into")
	return cmd
}
