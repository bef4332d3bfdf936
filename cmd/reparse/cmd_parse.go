package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dhamidi/reparse/source"
	"github.com/dhamidi/reparse/tree"
	"github.com/spf13/cobra"
)

var errSyntax = errors.New("syntax errors")

func newParseCmd(a *app) *cobra.Command {
	var outputFormat string
	var colorMode string
	var includePositions bool
	var check bool

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a file and print its syntax tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := args[0]
			out := cmd.OutOrStdout()
			enabled, err := colorEnabled(colorMode, out)
			if err != nil {
				return err
			}
			style := newStyler(enabled)

			p, err := a.parser()
			if err != nil {
				return err
			}

			f, err := a.fs.Open(filename)
			if err != nil {
				return fmt.Errorf("open file: %w", err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("stat file: %w", err)
			}
			input, err := source.FromReaderAt(f, info.Size())
			if err != nil {
				return fmt.Errorf("read %s: %w", filename, err)
			}

			ctx, cancel := a.cfg.WithTimeout(context.Background())
			defer cancel()
			t, err := p.Parse(ctx, input, nil)
			if err != nil {
				return fmt.Errorf("parse %s: %w", filename, err)
			}

			if err := printTree(out, t, outputFormat, includePositions, style); err != nil {
				return err
			}
			errs := t.Errors()
			for _, d := range errs {
				fmt.Fprintln(cmd.ErrOrStderr(), style.diagnostic(filename, d))
			}
			if check && len(errs) > 0 {
				return fmt.Errorf("%s: %d %w", filename, len(errs), errSyntax)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "sexp", "output format (sexp, tree)")
	cmd.Flags().StringVar(&colorMode, "color", "auto", "color tree output (auto, always, never)")
	cmd.Flags().BoolVar(&includePositions, "positions", false, "include node positions in tree output")
	cmd.Flags().BoolVar(&check, "check", false, "fail if the file has syntax errors")

	return cmd
}

func printTree(w io.Writer, t *tree.Tree, outputFormat string, positions bool, style *styler) error {
	switch outputFormat {
	case "sexp":
		fmt.Fprintln(w, t.String())
	case "tree":
		fmt.Fprint(w, t.Root().DumpStyled(positions, style.node))
	default:
		return fmt.Errorf("unknown format: %s", outputFormat)
	}
	return nil
}
