package main

import (
	"context"
	"fmt"

	"github.com/dhamidi/reparse/source"
	"github.com/dhamidi/reparse/tree"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newEditCmd(a *app) *cobra.Command {
	var start, end uint32
	var insert string
	var outputFormat string
	var colorMode string
	var verify bool
	var write bool

	cmd := &cobra.Command{
		Use:   "edit <file>",
		Short: "Replace a byte range, reparse incrementally and report reuse",
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
			data, err := afero.ReadFile(a.fs, filename)
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			if !cmd.Flags().Changed("end") {
				end = start
			}
			if start > end || int(end) > len(data) {
				return fmt.Errorf("%w: range [%d,%d) outside %s (%d bytes)", tree.ErrMalformedEdit, start, end, filename, len(data))
			}

			ctx, cancel := a.cfg.WithTimeout(context.Background())
			defer cancel()
			old, err := p.Parse(ctx, source.Bytes(data), nil)
			if err != nil {
				return fmt.Errorf("parse %s: %w", filename, err)
			}

			edit := tree.NewEdit(old, start, end, []byte(insert))
			updated := make([]byte, 0, len(data)-int(end-start)+len(insert))
			updated = append(updated, data[:start]...)
			updated = append(updated, insert...)
			updated = append(updated, data[end:]...)

			t, err := p.Reparse(ctx, old, []tree.Edit{edit}, source.Bytes(updated))
			if err != nil {
				return fmt.Errorf("reparse %s: %w", filename, err)
			}

			if err := printTree(out, t, outputFormat, false, style); err != nil {
				return err
			}
			total := countNodes(t.RootSubtree())
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: reused %d of %d nodes\n", edit, tree.SharedNodes(old, t), total)

			if verify {
				fresh, err := p.Parse(ctx, source.Bytes(updated), nil)
				if err != nil {
					return fmt.Errorf("parse %s from scratch: %w", filename, err)
				}
				if !t.Root().Equal(fresh.Root()) {
					return fmt.Errorf("incremental tree differs from a fresh parse:\n%s\n%s", t, fresh)
				}
			}
			if write {
				if err := afero.WriteFile(a.fs, filename, updated, 0o644); err != nil {
					return fmt.Errorf("write file: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().Uint32Var(&start, "start", 0, "first byte to replace")
	cmd.Flags().Uint32Var(&end, "end", 0, "end of the replaced range, exclusive (default: --start)")
	cmd.Flags().StringVar(&insert, "insert", "", "replacement text")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "sexp", "output format (sexp, tree)")
	cmd.Flags().StringVar(&colorMode, "color", "auto", "color tree output (auto, always, never)")
	cmd.Flags().BoolVar(&verify, "verify", false, "check the result against a fresh parse")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the edited text back to the file")

	return cmd
}

func countNodes(s *tree.Subtree) int {
	n := 1
	for i := 0; i < s.ChildCount(); i++ {
		n += countNodes(s.Child(i))
	}
	return n
}
