package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"wishbucket/internal/config"
	"wishbucket/internal/database"
	"wishbucket/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wishbucket",
		Short:         "WishBucket Mini-App backend and Telegram bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			closer := logging.Setup(cfg)
			defer closer.Close()

			db, err := database.Open(cfg.PostgresDSN())
			if err != nil {
				log.WithError(err).Error("Could not connect to database")
				return err
			}
			if err := database.Migrate(db); err != nil {
				log.WithError(err).Error("Migration failed")
				return err
			}
			log.Info("Database schema is up to date")
			return nil
		},
	}
}
