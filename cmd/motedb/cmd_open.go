package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/motedb/motedb/internal/lsm"
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a database directory to check that it opens cleanly",
	RunE:  runOpen,
}

func runOpen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := lsm.Open(dbDir, *cfg)
	if err != nil {
		return fmt.Errorf("open %s: %w", dbDir, err)
	}
	defer e.Close()

	logger.Info("opened database", zap.String("dir", dbDir))
	fmt.Printf("opened %s\n", dbDir)
	return nil
}
