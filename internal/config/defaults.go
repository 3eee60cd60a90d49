package config

const (
	defaultStagingDir = "~/.local/share/casefile/staging"
	defaultStorageDir = "~/.local/share/casefile/storage"
	defaultArchiveDir = "~/.local/share/casefile/archive"
	defaultLogDir     = "~/.local/share/casefile/logs"

	defaultBrokerAddr     = "127.0.0.1:6379"
	defaultBrokerQueueKey = "casefile:work"

	defaultSearchIndex     = "casefile-events"
	defaultSearchBatchSize = 500
	defaultSearchPageSize  = 250
	defaultSearchTimeoutS  = 30

	defaultEngineBinary      = "chainsaw"
	defaultDetectionRulesDir = "~/.config/casefile/rules"
	defaultDetectionTimeout  = 600

	defaultWorkers               = 4
	defaultWorkerMemoryCeilingMB = 512
	defaultMemoryBudgetMB        = 4096
	defaultMaxArtifactsPerWorker = 50
	defaultPollInterval          = 5
	defaultHeartbeatSeconds      = 15
	defaultStaleTimeoutSeconds   = 300
	defaultReconcileInterval     = 120
	defaultErrorRetryInterval    = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultMetricsBind = "127.0.0.1:9189"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			StorageDir: defaultStorageDir,
			ArchiveDir: defaultArchiveDir,
			LogDir:     defaultLogDir,
		},
		Broker: Broker{
			Addr:     defaultBrokerAddr,
			QueueKey: defaultBrokerQueueKey,
		},
		Search: Search{
			Index:     defaultSearchIndex,
			BatchSize: defaultSearchBatchSize,
			PageSize:  defaultSearchPageSize,
			TimeoutS:  defaultSearchTimeoutS,
		},
		Detection: Detection{
			EngineBinary:   defaultEngineBinary,
			RulesDir:       defaultDetectionRulesDir,
			TimeoutSeconds: defaultDetectionTimeout,
		},
		Pipeline: Pipeline{
			Workers:                defaultWorkers,
			WorkerMemoryCeilingMB:  defaultWorkerMemoryCeilingMB,
			MemoryBudgetMB:         defaultMemoryBudgetMB,
			MaxArtifactsPerWorker:  defaultMaxArtifactsPerWorker,
			PollIntervalSeconds:    defaultPollInterval,
			HeartbeatSeconds:       defaultHeartbeatSeconds,
			StaleTimeoutSeconds:    defaultStaleTimeoutSeconds,
			ReconcileIntervalSecs:  defaultReconcileInterval,
			ErrorRetryIntervalSecs: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Enabled: true,
			Bind:    defaultMetricsBind,
		},
	}
}
