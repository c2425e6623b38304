package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/FranksOps/vigil/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Version is set at build time.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "vigil",
	Short:   "URL scan session manager",
	Version: Version,
	Long: `vigil submits URLs to a remote security-scanning service, shows the
combined verdict of its detection filters and keeps a rolling window of the
last scans with filtering and detection statistics.`,
	Example: `  vigil shell
  vigil scan https://example.com https://login-verify.example.net
  vigil serve --listen :8080 --archive sqlite
  vigil archive --archive sqlite --since 2026-01-01`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (yaml, toml or json)")
	config.RegisterFlags(pf)

	rootCmd.AddCommand(shellCmd, serveCmd, scanCmd, archiveCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves settings for cmd and installs the process logger.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	v, err := config.New(cmd.Flags(), cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := config.NewLogger(os.Stderr, cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	slog.SetDefault(logger)

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		cfg.NoColor = true
	}
	color.NoColor = cfg.NoColor

	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
