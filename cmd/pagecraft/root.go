package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/app"
	"github.com/pagecraft/internal/config"
	"github.com/pagecraft/internal/logging"
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Configuration comes from the
// environment and an optional .env file.
func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "pagecraft",
		Short:         "Page-builder CMS server and maintenance commands",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error); defaults to LOG_LEVEL")

	loadConfig := func() config.AppConfig {
		cfg := config.Load()
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		logging.Set(logging.New(os.Stderr, cfg.LogLevel))
		gin.SetMode(cfg.GinMode)
		return cfg
	}

	root.AddCommand(
		newServeCmd(loadConfig),
		newCreateAdminCmd(loadConfig),
		newBackfillCmd(loadConfig),
		newSitemapCmd(loadConfig),
		newFixTreeCmd(loadConfig),
		newSeedCmd(loadConfig),
	)
	return root
}

// openApp loads configuration and wires the application.
func openApp(load func() config.AppConfig) (*app.App, error) {
	return app.New(load())
}
