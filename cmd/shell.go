package cmd

import (
	"context"
	"os"

	"github.com/FranksOps/vigil/internal/app"
	"github.com/FranksOps/vigil/internal/shell"
	"github.com/spf13/cobra"
)

var historyFile string

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive scan session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		a, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		sh, err := shell.New(a.Session, shell.Config{
			In:          os.Stdin,
			Out:         os.Stdout,
			HistoryFile: historyFile,
			NoColor:     cfg.NoColor,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		return sh.Run(ctx)
	},
}

func init() {
	shellCmd.Flags().StringVar(&historyFile, "history-file", "", "Persist shell command history to this file")
}
