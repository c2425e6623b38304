package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/FranksOps/vigil/internal/app"
	"github.com/FranksOps/vigil/internal/filter"
	"github.com/FranksOps/vigil/internal/report"
	"github.com/FranksOps/vigil/internal/storage"
	"github.com/spf13/cobra"
)

var archiveOpts struct {
	url       string
	outcome   string
	malicious string
	since     string
	limit     int
	offset    int
	list      bool
	format    string
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Summarize or list archived scan outcomes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if len(cfg.Archive.Backends) == 0 {
			return errors.New("no archive configured, set --archive")
		}

		f, err := archiveFilter()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		b, err := app.OpenArchive(ctx, cfg.Archive)
		if err != nil {
			return err
		}
		defer b.Close()

		entries, err := b.Query(ctx, f)
		if err != nil {
			return fmt.Errorf("query archive: %w", err)
		}

		if archiveOpts.list {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		summary := report.SummarizeArchive(entries)
		switch archiveOpts.format {
		case "text":
			return report.WriteArchiveText(os.Stdout, summary)
		case "json":
			return report.WriteArchiveJSON(os.Stdout, summary)
		}
		return fmt.Errorf("unknown format %q (text, json)", archiveOpts.format)
	},
}

func archiveFilter() (storage.Filter, error) {
	f := storage.Filter{
		URL:     archiveOpts.url,
		Outcome: storage.Outcome(archiveOpts.outcome),
		Limit:   archiveOpts.limit,
		Offset:  archiveOpts.offset,
	}
	switch f.Outcome {
	case "", storage.OutcomeSuccess, storage.OutcomeFailure:
	default:
		return f, fmt.Errorf("unknown outcome %q", archiveOpts.outcome)
	}
	switch archiveOpts.malicious {
	case "":
	case "true", "false":
		b := archiveOpts.malicious == "true"
		f.Malicious = &b
	default:
		return f, errors.New("--malicious must be true or false")
	}
	if archiveOpts.since != "" {
		t, err := filter.ParseDate(archiveOpts.since)
		if err != nil {
			return f, err
		}
		f.Since = &t
	}
	return f, nil
}

func init() {
	f := archiveCmd.Flags()
	f.StringVar(&archiveOpts.url, "url", "", "Only entries for this URL")
	f.StringVar(&archiveOpts.outcome, "outcome", "", "Only entries with this outcome: success, failure")
	f.StringVar(&archiveOpts.malicious, "malicious", "", "Only malicious (true) or non-malicious (false) entries")
	f.StringVar(&archiveOpts.since, "since", "", "Only entries on or after this date (YYYY-MM-DD or RFC 3339)")
	f.IntVar(&archiveOpts.limit, "limit", 0, "Maximum entries to read (0 = all)")
	f.IntVar(&archiveOpts.offset, "offset", 0, "Skip this many of the newest entries")
	f.BoolVar(&archiveOpts.list, "list", false, "Print matching entries as JSON instead of a summary")
	f.StringVar(&archiveOpts.format, "format", "text", "Summary format: text, json")
}
