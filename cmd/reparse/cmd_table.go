package main

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/dhamidi/reparse/grammar"
	"github.com/spf13/cobra"
	"golang.org/x/exp/ebnf"
)

const lexiconStart = "tokens"

func newTableCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Grammar table tools",
	}

	cmd.AddCommand(newTableEncodeCmd(a))
	cmd.AddCommand(newTableInfoCmd(a))
	cmd.AddCommand(newTableCheckCmd(a))

	return cmd
}

func newTableEncodeCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Write the selected grammar table in binary form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.table()
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return grammar.Encode(cmd.OutOrStdout(), t)
			}

			f, err := a.fs.Create(output)
			if err != nil {
				return fmt.Errorf("create file: %w", err)
			}
			if err := grammar.Encode(f, t); err != nil {
				f.Close()
				return fmt.Errorf("encode table: %w", err)
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")

	return cmd
}

func newTableInfoCmd(a *app) *cobra.Command {
	var showSymbols bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Describe the selected grammar table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.table()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			major, minor := t.Format()
			fmt.Fprintf(out, "name:     %s\n", t.Name())
			fmt.Fprintf(out, "version:  %d\n", t.Version())
			fmt.Fprintf(out, "format:   %d.%d\n", major, minor)
			fmt.Fprintf(out, "symbols:  %d\n", t.SymbolCount())
			fmt.Fprintf(out, "states:   %d\n", t.StateCount())
			fmt.Fprintf(out, "rules:    %d\n", t.RuleCount())
			if name := t.ExternalScanner(); name != "" {
				fmt.Fprintf(out, "scanner:  %s\n", name)
			}
			if showSymbols {
				printSymbols(out, t)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSymbols, "symbols", false, "list every symbol")

	return cmd
}

func printSymbols(w io.Writer, t *grammar.Table) {
	for i := 0; i < t.SymbolCount(); i++ {
		sym := grammar.Symbol(i)
		info := t.Symbol(sym)
		var notes []string
		if info.External {
			notes = append(notes, "external")
		}
		if t.IsExtra(sym) {
			notes = append(notes, "extra")
		}
		line := fmt.Sprintf("%4d  %-14s %s", i, info.Kind, info.Name)
		if len(notes) > 0 {
			line += "  (" + strings.Join(notes, ", ") + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func newTableCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the token lexicon of the selected grammar table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.table()
			if err != nil {
				return err
			}
			src := lexiconWithStart(t)
			g, err := ebnf.Parse(t.Name()+".lexicon", strings.NewReader(src))
			if err != nil {
				printErrors(cmd.ErrOrStderr(), err)
				return fmt.Errorf("lexicon of %s does not parse", t.Name())
			}
			if err := ebnf.Verify(g, lexiconStart); err != nil {
				printErrors(cmd.ErrOrStderr(), err)
				return fmt.Errorf("lexicon of %s is not valid", t.Name())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d productions ok\n", t.Name(), len(g))
			return nil
		},
	}
}

// lexiconWithStart appends a production deriving every token, so that
// verification also reports unused fragments.
func lexiconWithStart(t *grammar.Table) string {
	var alts []string
	for _, sym := range t.Terminals() {
		if tok, ok := t.TokenRule(sym); ok {
			alts = append(alts, tok.Production)
		}
	}
	src := t.LexiconSource()
	if len(alts) == 0 {
		return src
	}
	return src + "\n" + lexiconStart + " = " + strings.Join(alts, " | ") + " .\n"
}

func printErrors(w io.Writer, err error) {
	v := reflect.ValueOf(err)
	if v.Kind() == reflect.Slice {
		for i := 0; i < v.Len(); i++ {
			fmt.Fprintln(w, v.Index(i).Interface())
		}
	} else {
		fmt.Fprintln(w, err)
	}
}
