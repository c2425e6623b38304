package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/FranksOps/vigil/internal/app"
	"github.com/FranksOps/vigil/internal/report"
	"github.com/FranksOps/vigil/internal/scan"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	scanFormat string
	scanOutput string
)

var scanCmd = &cobra.Command{
	Use:   "scan <url>...",
	Short: "Scan URLs one after another and print a report",
	Args:  cobra.MinimumNArgs(1),
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

		red := color.New(color.FgRed, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		failed := 0
		for _, target := range args {
			if ctx.Err() != nil {
				break
			}
			rec, err := a.Session.Submit(ctx, target)
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", red("[ERR]"), target, scan.Message(err))
				continue
			}
			switch rec.Verdict() {
			case scan.VerdictMalicious:
				fmt.Fprintf(os.Stderr, "%s %s\n", red("[MAL]"), rec.URL)
			case scan.VerdictSafe:
				fmt.Fprintf(os.Stderr, "%s %s\n", green("[OK] "), rec.URL)
			default:
				fmt.Fprintf(os.Stderr, "%s %s\n", yellow("[?]  "), rec.URL)
			}
		}

		var w io.Writer = os.Stdout
		if scanOutput != "" {
			f, err := os.Create(scanOutput)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			w = f
		}

		summary := a.Session.Summary()
		switch scanFormat {
		case "text":
			err = report.WriteText(w, summary)
		case "json":
			err = report.WriteJSON(w, summary)
		case "html":
			err = report.WriteHTML(w, summary)
		default:
			return fmt.Errorf("unknown format %q (text, json, html)", scanFormat)
		}
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d scans failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	f := scanCmd.Flags()
	f.StringVarP(&scanFormat, "format", "f", "text", "Report format: text, json, html")
	f.StringVarP(&scanOutput, "output", "o", "", "Write the report to this file instead of stdout")
}
