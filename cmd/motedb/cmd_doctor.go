package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/motedb/motedb/internal/manifest"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check manifest and data-file consistency, reporting any orphans",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	m, err := manifest.ReadCurrent(dbDir)
	if err != nil {
		return fmt.Errorf("doctor: read manifest: %w", err)
	}

	orphans, err := m.FindOrphans(dbDir)
	if err != nil {
		return fmt.Errorf("doctor: scan for orphans: %w", err)
	}

	fmt.Printf("manifest version: %d\n", m.Version)
	if len(orphans) == 0 {
		fmt.Println("no orphaned data files found")
		logger.Info("doctor: clean", zap.Uint64("version", m.Version))
		return nil
	}

	fmt.Printf("%d orphaned data file(s):\n", len(orphans))
	for _, f := range orphans {
		fmt.Printf("  %s\n", f)
	}
	logger.Warn("doctor: orphans found", zap.Int("count", len(orphans)))
	return nil
}
