// Package main implements the motedb CLI.
//
// This file is the entry point and command registration hub; each
// subcommand lives in its own cmd_*.go file.
//
//   - main.go        - entry point, rootCmd, global flags
//   - cmd_open.go    - openCmd: validate a database directory opens cleanly
//   - cmd_query.go   - queryCmd: run a single-table query built from flags
//   - cmd_backup.go  - backupCmd: incremental backup
//   - cmd_restore.go - restoreCmd: restore from an incremental backup
//   - cmd_gc.go      - gcCmd: version garbage collection
//   - cmd_doctor.go  - doctorCmd: orphan-file and manifest health check
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/motedb/motedb/internal/config"
	"github.com/motedb/motedb/internal/logging"
)

var (
	dbDir      string
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "motedb",
	Short: "motedb - embedded multi-modal database engine CLI",
	Long: `motedb is the operator CLI for a MoteDB database directory: a
single-process, embedded database engine combining relational storage,
a vector ANN index, and a SQL executor.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := logging.Init(dbDir, cfg.Logging.Debug, parseLevel(cfg.Logging.Level)); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.Close()
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbDir, "dir", "d", ".", "Database directory")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(openCmd, queryCmd, backupCmd, restoreCmd, gcCmd, doctorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
