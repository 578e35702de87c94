package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/appgen/internal/chat"
	"github.com/suPer8Hu/appgen/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return err
		}
		if err := db.Migrate(gdb, chat.Models()...); err != nil {
			return err
		}
		slog.Info("migrations applied", "driver", cfg.DBDriver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
