package main

import (
	"log/slog"

	"casefile/internal/broker"
	"casefile/internal/config"
	"casefile/internal/daemon"
	"casefile/internal/deps"
	"casefile/internal/detect"
	"casefile/internal/dispatch"
	"casefile/internal/filter"
	"casefile/internal/hunt"
	"casefile/internal/index"
	"casefile/internal/logging"
	"casefile/internal/metrics"
	"casefile/internal/rules"
	"casefile/internal/store"
	"casefile/internal/workflow"
)

// bootstrap assembles the daemon's dependency graph. The returned closer
// releases the broker and index connections.
func bootstrap(cfg *config.Config, st *store.Store, logger *slog.Logger) (*daemon.Daemon, func(), error) {
	for _, status := range deps.Check(deps.Requirements(cfg)) {
		if !status.Available {
			logger.Warn("external tool unavailable",
				logging.String("tool", status.Name),
				logging.String("detail", status.Detail),
			)
		}
	}

	m := metrics.New()

	b, err := broker.NewRedis(cfg.Broker)
	if err != nil {
		return nil, nil, err
	}

	backend, err := index.NewHTTP(cfg.Search)
	if err != nil {
		b.Close()
		return nil, nil, err
	}

	catalog, skipped, err := rules.Load(cfg.Detection.RulesDir)
	if err != nil {
		logger.Warn("rule catalog unavailable, detection will run degraded", logging.Error(err))
		catalog = &rules.Catalog{}
	}
	for _, path := range skipped {
		logger.Warn("skipped unparseable rule", logging.String("path", path))
	}

	dispatcher := dispatch.New(st, b, m, logger)
	indexer := index.NewIndexer(cfg, st, backend, m, logger)
	detector := detect.NewDetector(cfg, st, backend, catalog, m, logger)
	hunter := hunt.New(cfg, st, backend, m, logger)

	manager := workflow.NewManager(cfg, st, b, dispatcher, m, logger, indexer, detector, hunter)
	recovery := workflow.NewRecovery(manager, backend)
	intake := workflow.NewIntake(manager, workflow.HandlerFunc(filter.New(cfg, st, m, logger).Apply))

	d, err := daemon.New(cfg, st, logger, manager, recovery, intake, m)
	if err != nil {
		b.Close()
		backend.Close()
		return nil, nil, err
	}

	closeDeps := func() {
		b.Close()
		backend.Close()
	}
	return d, closeDeps, nil
}
