package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"casefile/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage casefile configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newConfigInitCommand(ctx))
	cmd.AddCommand(newConfigShowCommand(ctx))
	return cmd
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if ctx.configFlag != nil {
				path = *ctx.configFlag
			}
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sample configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config file:  %s\n", ctx.configPath)
			fmt.Fprintf(out, "staging dir:  %s\n", cfg.Paths.StagingDir)
			fmt.Fprintf(out, "storage dir:  %s\n", cfg.Paths.StorageDir)
			fmt.Fprintf(out, "archive dir:  %s\n", cfg.Paths.ArchiveDir)
			fmt.Fprintf(out, "log dir:      %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "broker:       %s (queue %s)\n", cfg.Broker.Addr, cfg.Broker.QueueKey)
			fmt.Fprintf(out, "search:       %s (index %s)\n", cfg.Search.Endpoint, cfg.Search.Index)
			fmt.Fprintf(out, "engine:       %s\n", cfg.Detection.EngineBinary)
			fmt.Fprintf(out, "rules dir:    %s\n", cfg.Detection.RulesDir)
			fmt.Fprintf(out, "workers:      %d\n", cfg.Pipeline.Workers)
			return nil
		},
	}
	return cmd
}
