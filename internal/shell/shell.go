// Package shell is an interactive line-oriented front end for a scan
// session.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/FranksOps/vigil/internal/filter"
	"github.com/FranksOps/vigil/internal/report"
	"github.com/FranksOps/vigil/internal/session"
	"github.com/chzyer/readline"
)

const prompt = "vigil> "

// LineReader yields one input line per call. *readline.Instance satisfies it.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// Config configures a Shell. When Reader is nil an interactive readline
// instance is created on In/Out.
type Config struct {
	Reader      LineReader
	In          io.ReadCloser
	Out         io.Writer
	HistoryFile string
	NoColor     bool
	Logger      *slog.Logger
}

// Shell reads commands and drives a session.
type Shell struct {
	session *session.Controller
	rl      LineReader
	out     io.Writer
	pal     palette
	logger  *slog.Logger
}

// New creates a shell bound to ctrl.
func New(ctrl *session.Controller, cfg Config) (*Shell, error) {
	if ctrl == nil {
		return nil, errors.New("shell: session is required")
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pal := newPalette(cfg.NoColor)

	rl := cfg.Reader
	if rl == nil {
		in := cfg.In
		if in == nil {
			in = os.Stdin
		}
		inst, err := readline.NewEx(&readline.Config{
			Prompt:          pal.prompt(prompt),
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
			HistoryFile:     cfg.HistoryFile,
			AutoComplete:    completer(),
			Stdin:           in,
			Stdout:          out,
		})
		if err != nil {
			return nil, fmt.Errorf("shell: init readline: %w", err)
		}
		rl = inst
	}

	return &Shell{session: ctrl, rl: rl, out: out, pal: pal, logger: logger}, nil
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("scan"),
		readline.PcItem("filter",
			readline.PcItem("risk="),
			readline.PcItem("tld="),
			readline.PcItem("date="),
		),
		readline.PcItem("range",
			readline.PcItem("start="),
			readline.PcItem("end="),
		),
		readline.PcItem("history"),
		readline.PcItem("stats"),
		readline.PcItem("result"),
		readline.PcItem("report",
			readline.PcItem("text"),
			readline.PcItem("json"),
		),
		readline.PcItem("reset"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// Run processes lines until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	defer s.rl.Close()

	fmt.Fprintln(s.out, s.pal.info("Type 'help' for commands."))
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := s.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("shell: read: %w", err)
		}

		if quit := s.Execute(ctx, line); quit {
			return nil
		}
	}
}

// Execute runs one command line and reports whether the shell should exit.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "scan":
		s.scan(ctx, strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0])))
	case "filter":
		s.filter(args)
	case "range":
		s.dateRange(args)
	case "history", "ls":
		s.printHistory(s.session.View())
	case "stats":
		s.printStats(s.session.View())
	case "result":
		v := s.session.View()
		if v.Current == nil {
			fmt.Fprintln(s.out, s.pal.info("No result yet."))
			return false
		}
		s.printRecord(v.Current)
	case "report":
		s.report(args)
	case "reset":
		v, err := s.session.ResetFilters()
		if err != nil {
			s.printErr(err)
			return false
		}
		s.printSpec(v)
	case "help", "?":
		s.help()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(s.out, "%s unknown command %q, try 'help'\n", s.pal.bad("!"), cmd)
	}
	return false
}

func (s *Shell) scan(ctx context.Context, target string) {
	fmt.Fprintln(s.out, s.pal.info("Scanning..."))
	rec, err := s.session.Submit(ctx, target)
	if err != nil {
		s.printErr(err)
		return
	}
	s.printRecord(rec)
	s.printStats(s.session.View())
}

func (s *Shell) filter(args []string) {
	if len(args) == 0 {
		s.printSpec(s.session.View())
		return
	}

	var u filter.Update
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		if !ok {
			fmt.Fprintf(s.out, "%s expected key=value, got %q\n", s.pal.bad("!"), arg)
			return
		}
		switch strings.ToLower(key) {
		case "risk":
			r, err := filter.ParseRiskLevel(val)
			if err != nil {
				s.printErr(err)
				return
			}
			u.Risk = &r
		case "tld":
			t, err := filter.ParseTLD(val)
			if err != nil {
				s.printErr(err)
				return
			}
			u.TLD = &t
		case "date":
			d, err := filter.ParseDateRange(val)
			if err != nil {
				s.printErr(err)
				return
			}
			u.Date = &d
		default:
			fmt.Fprintf(s.out, "%s unknown filter %q (risk, tld, date)\n", s.pal.bad("!"), key)
			return
		}
	}

	v, err := s.session.SetFilterSpec(u)
	if err != nil {
		s.printErr(err)
		return
	}
	s.printSpec(v)
	s.printHistory(v)
}

// dateRange sets custom bounds and switches the date filter to custom.
// A bound of "-" clears it.
func (s *Shell) dateRange(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(s.out, "%s usage: range start=YYYY-MM-DD end=YYYY-MM-DD (use - to clear)\n", s.pal.bad("!"))
		return
	}

	var u filter.CustomUpdate
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		if !ok {
			fmt.Fprintf(s.out, "%s expected key=value, got %q\n", s.pal.bad("!"), arg)
			return
		}
		switch strings.ToLower(key) {
		case "start", "from":
			if val == "-" {
				u.ClearStart = true
				continue
			}
			d, err := filter.ParseDate(val)
			if err != nil {
				s.printErr(err)
				return
			}
			u.Start = &d
		case "end", "to":
			if val == "-" {
				u.ClearEnd = true
				continue
			}
			d, err := filter.ParseEndDate(val)
			if err != nil {
				s.printErr(err)
				return
			}
			u.End = &d
		default:
			fmt.Fprintf(s.out, "%s unknown bound %q (start, end)\n", s.pal.bad("!"), key)
			return
		}
	}

	if _, err := s.session.SetCustomDateRange(u); err != nil {
		s.printErr(err)
		return
	}
	custom := filter.DateCustom
	v, err := s.session.SetFilterSpec(filter.Update{Date: &custom})
	if err != nil {
		s.printErr(err)
		return
	}
	s.printSpec(v)
	s.printHistory(v)
}

func (s *Shell) report(args []string) {
	format := "text"
	if len(args) > 0 {
		format = strings.ToLower(args[0])
	}

	summary := s.session.Summary()
	var err error
	switch format {
	case "text":
		err = report.WriteText(s.out, summary)
	case "json":
		err = report.WriteJSON(s.out, summary)
	default:
		fmt.Fprintf(s.out, "%s unknown report format %q (text, json)\n", s.pal.bad("!"), format)
		return
	}
	if err != nil {
		s.printErr(err)
	}
}

func (s *Shell) help() {
	fmt.Fprint(s.out, `Commands:
  scan <url>                      submit a URL to the scanning service
  result                          show the latest result
  history                         list scans matching the current filter
  stats                           detection statistics for the current filter
  filter risk=R tld=T date=D      set filters (R: all|malicious|safe,
                                  T: all|com|org|net|io|edu|gov|other,
                                  D: all|today|week|month|custom)
  range start=DATE end=DATE       custom date bounds, '-' clears a bound
  reset                           clear all filters
  report [text|json]              print a report of the current view
  help                            show this help
  quit                            leave the shell
`)
}
