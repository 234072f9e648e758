package main

import (
	"os"

	"github.com/JonMunkholm/portal/internal/app"
	"github.com/JonMunkholm/portal/internal/config"
	"github.com/JonMunkholm/portal/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFile  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "portalctl",
		Short:         "Administer the student results portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.envFile != "" {
				if err := godotenv.Overload(opts.envFile); err != nil && !os.IsNotExist(err) {
					return withCode(exitUsage, err)
				}
			}
			level := opts.logLevel
			if level == "" {
				level = os.Getenv("LOG_LEVEL")
			}
			logging.Setup(cmd.ErrOrStderr(), level, "text")
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file to load before reading config")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $LOG_LEVEL or info)")

	cmd.AddCommand(
		newMigrateCmd(),
		newAdminCmd(),
		newSeedCmd(),
		newImportCmd(),
	)
	return cmd
}

// openApp loads configuration and opens the portal, migrating first.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	a, err := app.New(cmd.Context(), cfg, app.Options{Migrate: true})
	if err != nil {
		return nil, withCode(exitDB, err)
	}
	return a, nil
}
