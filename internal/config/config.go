package config

import "time"

// Config is the top-level configuration for a recovery run.
type Config struct {
	DataDir string
	WALDir  string

	Recovery RecoveryConfig
	Log      LogConfig
}

// RecoveryConfig controls how the recovery engine treats tolerable failures
// and how much parallelism the index builder (C7) is allowed.
type RecoveryConfig struct {
	IgnoreRecoveryErrors   bool
	IndexBuildWorkers      int
	WaitForDeletionTimeout time.Duration
	WaitForDeletionPoll    time.Duration
}

type LogConfig struct {
	Level  string // "debug" | "info" | "warn" | "error"
	Prefix string
}

func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		WALDir:  "./data/wal",
		Recovery: RecoveryConfig{
			IgnoreRecoveryErrors:   false,
			IndexBuildWorkers:      8,
			WaitForDeletionTimeout: 30 * time.Second,
			WaitForDeletionPoll:    100 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Prefix: "[walrecover]",
		},
	}
}
