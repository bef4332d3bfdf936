package main

import (
	"fmt"
	"time"

	"github.com/dhamidi/reparse/config"
	"github.com/dhamidi/reparse/grammar"
	"github.com/dhamidi/reparse/languages/rigz"
	"github.com/dhamidi/reparse/parser"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

const version = "0.1.0"

// app is the state shared by all commands.
type app struct {
	fs  afero.Fs
	cfg config.Config

	tablePath      string
	verbose        int
	operationLimit int
	timeout        time.Duration
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	a := &app{fs: fs}

	rootCmd := &cobra.Command{
		Use:          "reparse",
		Short:        "Incremental parsing from grammar tables",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnvironment()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("operation-limit") {
				cfg.OperationLimit = a.operationLimit
			}
			if flags.Changed("timeout") {
				cfg.Timeout = a.timeout
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg
			commonlog.Configure(max(a.verbose, cfg.LogVerbosity), nil)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.tablePath, "table", "", "grammar table file (default: the built-in rigz table)")
	flags.CountVarP(&a.verbose, "verbose", "v", "log verbosity, repeat for more")
	flags.IntVar(&a.operationLimit, "operation-limit", 0, "stop parses after this many operations (0: no limit)")
	flags.DurationVar(&a.timeout, "timeout", 0, "stop parses after this long (0: no deadline)")

	rootCmd.AddCommand(newParseCmd(a))
	rootCmd.AddCommand(newEditCmd(a))
	rootCmd.AddCommand(newTableCmd(a))
	rootCmd.AddCommand(newLSPCmd(a))

	return rootCmd
}

// table returns the grammar table selected with --table.
func (a *app) table() (*grammar.Table, error) {
	if a.tablePath == "" {
		return rigz.Language(), nil
	}
	f, err := a.fs.Open(a.tablePath)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()
	t, err := grammar.Load(f)
	if err != nil {
		return nil, fmt.Errorf("load table %s: %w", a.tablePath, err)
	}
	return t, nil
}

func (a *app) parser() (*parser.Parser, error) {
	t, err := a.table()
	if err != nil {
		return nil, err
	}
	return parser.New(t, a.cfg.ParserOptions()...)
}
