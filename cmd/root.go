// Package cmd defines the solcrawl command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/solutions-crawler/internal/app"
	"github.com/JakeFAU/solutions-crawler/internal/config"
	"github.com/JakeFAU/solutions-crawler/internal/logging"
)

// offlineAnnotation marks commands that only read local files and need no
// application services.
const offlineAnnotation = "solcrawl/offline"

type appKeyType struct{}

var appKey appKeyType

// newApp is the application factory. Tests replace it to inject sinks.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd builds the command tree. The returned func releases whatever the
// executed command initialized and must run after Execute.
func newRootCmd() (*cobra.Command, func()) {
	v := config.New()
	var (
		cfgFile  string
		instance *app.App
	)

	cmd := &cobra.Command{
		Use:   "solcrawl",
		Short: "Crawl product solution catalogs into resumable JSON trees",
		Long: `solcrawl walks a vendor's solutions catalog depth-first, extracts titles,
descriptions and images for every entry, and saves a checkpoint after each
node so an interrupted crawl can resume exactly where it stopped.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindAnnotatedFlags(cmd, v); err != nil {
				return err
			}
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			if cmd.Annotations[offlineAnnotation] == "true" {
				return nil
			}

			instance, err = newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, instance))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.Bool("log-dev", true, "human-readable development logging")
	flags.String("metrics-addr", "", "serve /metrics and /healthz on this address")
	_ = v.BindPFlag("logging.development", flags.Lookup("log-dev"))
	_ = v.BindPFlag("metrics.addr", flags.Lookup("metrics-addr"))

	cmd.AddCommand(
		newCrawlCmd(),
		newRefreshCmd(),
		newDownloadCmd(),
		newScrapeCmd(),
		newTreeCmd(),
	)

	return cmd, func() {
		if instance != nil {
			instance.Close()
		}
	}
}

// bindAnnotatedFlags binds each flag named in the command's annotations to
// the viper key it maps to. Binding happens per executed command so commands
// sharing a key do not steal each other's flags.
func bindAnnotatedFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range cmd.Annotations {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func appFrom(cmd *cobra.Command) (*app.App, error) {
	instance, ok := cmd.Context().Value(appKey).(*app.App)
	if !ok || instance == nil {
		return nil, errors.New("application services not initialized")
	}
	return instance, nil
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	cmd, cleanup := newRootCmd()
	err := cmd.Execute()
	cleanup()
	if err != nil {
		os.Exit(1)
	}
}
