package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the lead store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.Count(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("store ready",
			zap.String("driver", cfg.Store.Driver),
			zap.Int("leads", n),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
