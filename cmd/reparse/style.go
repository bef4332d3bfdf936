package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dhamidi/reparse/tree"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// colorEnabled resolves a --color flag value for w.
func colorEnabled(mode string, w io.Writer) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		f, ok := w.(*os.File)
		if !ok || os.Getenv("NO_COLOR") != "" {
			return false, nil
		}
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()), nil
	default:
		return false, fmt.Errorf("unknown color mode: %s (expected auto, always or never)", mode)
	}
}

// styler colors error, missing and extra nodes in tree output.
type styler struct {
	errorColor   *color.Color
	missingColor *color.Color
	extraColor   *color.Color
	posColor     *color.Color
}

func newStyler(enabled bool) *styler {
	s := &styler{
		errorColor:   color.New(color.FgRed, color.Bold),
		missingColor: color.New(color.FgYellow),
		extraColor:   color.New(color.Faint),
		posColor:     color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{s.errorColor, s.missingColor, s.extraColor, s.posColor} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

func (s *styler) node(n *tree.Node, label string) string {
	switch {
	case n.IsError():
		return s.errorColor.Sprint(label)
	case n.IsMissing():
		return s.missingColor.Sprint(label)
	case n.IsExtra():
		return s.extraColor.Sprint(label)
	}
	return label
}

// diagnostic formats d as file:line:column: message with one-based lines
// and columns.
func (s *styler) diagnostic(filename string, d tree.Diagnostic) string {
	pos := fmt.Sprintf("%s:%d:%d", filename, d.Range.StartPoint.Row+1, d.Range.StartPoint.Column+1)
	msg := "syntax error"
	c := s.errorColor
	if d.Kind == tree.DiagnosticMissing {
		msg = "missing " + d.Name
		c = s.missingColor
	}
	return s.posColor.Sprint(pos) + ": " + c.Sprint(msg)
}
