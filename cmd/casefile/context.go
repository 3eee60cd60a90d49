package main

import (
	"fmt"
	"log/slog"

	"casefile/internal/broker"
	"casefile/internal/config"
	"casefile/internal/logging"
	"casefile/internal/store"
)

// commandContext lazily loads shared dependencies so fast commands like
// "config init" never touch the database or the broker.
type commandContext struct {
	configFlag *string

	cfg        *config.Config
	configPath string
	store      *store.Store
	broker     broker.Broker
	logger     *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	flagValue := ""
	if c.configFlag != nil {
		flagValue = *c.configFlag
	}
	cfg, path, _, err := config.Load(flagValue)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.configPath = path
	return cfg, nil
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	// CLI runs log to file only; tables and errors own the terminal.
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{logFilePath(cfg)},
	})
	if err != nil {
		return nil, err
	}
	c.logger = logger
	return logger, nil
}

func (c *commandContext) ensureStore() (*store.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	c.store = st
	return st, nil
}

func (c *commandContext) ensureBroker() (broker.Broker, error) {
	if c.broker != nil {
		return c.broker, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	b, err := broker.NewRedis(cfg.Broker)
	if err != nil {
		return nil, err
	}
	c.broker = b
	return b, nil
}

func (c *commandContext) close() {
	if c.store != nil {
		_ = c.store.Close()
	}
	if c.broker != nil {
		_ = c.broker.Close()
	}
}

func logFilePath(cfg *config.Config) string {
	if cfg.Paths.LogDir == "" {
		return "stderr"
	}
	return cfg.Paths.LogDir + "/casefile.log"
}
