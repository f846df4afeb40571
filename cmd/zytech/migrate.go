package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"zytech/internal/config"
	"zytech/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Aplica el schema a DATABASE_URL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		config.LoadEnvFiles()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL es requerido")
		}

		pg, err := store.NewPostgres(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✅ schema aplicado")
		return nil
	},
}
