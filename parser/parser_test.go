package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dhamidi/reparse/grammar"
	"github.com/dhamidi/reparse/source"
	"github.com/dhamidi/reparse/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// calcTable is the ambiguous expression grammar
//
//	expr := expr '+' expr | expr '-' expr | expr '*' expr | NUMBER
//
// with '*' binding tighter than '+' and '-', all left associative.
func calcTable(t testing.TB) *grammar.Table {
	t.Helper()
	b := grammar.NewBuilder("calc")
	b.Fragment("digit", `"0" … "9"`)
	number := b.Token("NUMBER", `digit { digit }`)
	ws := b.Token("WS", `( " " | "\n" ) { " " | "\n" }`)
	plus := b.Literal("+")
	minus := b.Literal("-")
	star := b.Literal("*")
	expr := b.NonTerminal("expr")
	b.Extra(ws)
	b.Rule(expr, expr, plus, expr).Prec(1).Left()
	b.Rule(expr, expr, minus, expr).Prec(1).Left()
	b.Rule(expr, expr, star, expr).Prec(2).Left()
	b.Rule(expr, number)
	b.Start(expr)
	table, err := b.Build()
	require.NoError(t, err)
	return table
}

func newParser(t testing.TB, opts ...Option) *Parser {
	t.Helper()
	p, err := New(calcTable(t), opts...)
	require.NoError(t, err)
	return p
}

func parse(t testing.TB, p *Parser, text string) *tree.Tree {
	t.Helper()
	tr, err := p.Parse(context.Background(), source.String(text), nil)
	require.NoError(t, err)
	return tr
}

// requireCoverage checks that the leaves of tr tile [0, len(text)).
func requireCoverage(t *testing.T, tr *tree.Tree, text string) {
	t.Helper()
	root := tr.RootSubtree()
	require.Equal(t, uint32(len(text)), root.Size(), "root covers the input")
	var total uint32
	for _, leaf := range root.Leaves() {
		total += leaf.Size()
	}
	require.Equal(t, uint32(len(text)), total, "leaves tile the input")

	var check func(n *tree.Node)
	check = func(n *tree.Node) {
		for _, c := range n.Children() {
			require.GreaterOrEqual(t, c.StartByte(), n.StartByte())
			require.LessOrEqual(t, c.EndByte(), n.EndByte())
			check(c)
		}
	}
	check(tr.Root())
}

func TestParseSimpleExpression(t *testing.T) {
	p := newParser(t)
	tr := parse(t, p, "1+2")

	root := tr.Root()
	assert.Equal(t, "expr", root.Type())
	assert.Equal(t, uint32(0), root.StartByte())
	assert.Equal(t, uint32(3), root.EndByte())
	assert.False(t, root.HasError())
	assert.Equal(t, "(expr (expr (NUMBER)) (+) (expr (NUMBER)))", tr.String())

	var got []string
	for _, leaf := range root.Leaves() {
		got = append(got, leaf.Type()+leaf.Range().String())
	}
	assert.Equal(t, []string{"NUMBER[0:0-0:1]", "+[0:1-0:2]", "NUMBER[0:2-0:3]"}, got)
	assert.Empty(t, tr.Errors())
}

func TestParseIncompleteExpression(t *testing.T) {
	p := newParser(t)
	tr := parse(t, p, "1+")

	assert.Equal(t, "(expr (expr (NUMBER)) (+) (expr (MISSING NUMBER)))", tr.String())
	assert.True(t, tr.Root().HasError())
	requireCoverage(t, tr, "1+")

	errs := tr.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, tree.DiagnosticMissing, errs[0].Kind)
	assert.Equal(t, "NUMBER", errs[0].Name)
	assert.Equal(t, uint32(2), errs[0].Range.StartByte)
	assert.Equal(t, uint32(2), errs[0].Range.EndByte)

	missing := tr.Root().DescendantForByteRange(2, 2)
	require.NotNil(t, missing)
	assert.True(t, missing.IsMissing())
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1+2*3", "(expr (expr (NUMBER)) (+) (expr (expr (NUMBER)) (*) (expr (NUMBER))))"},
		{"1*2+3", "(expr (expr (expr (NUMBER)) (*) (expr (NUMBER))) (+) (expr (NUMBER)))"},
		{"1-2-3", "(expr (expr (expr (NUMBER)) (-) (expr (NUMBER))) (-) (expr (NUMBER)))"},
		{"1-2+3", "(expr (expr (expr (NUMBER)) (-) (expr (NUMBER))) (+) (expr (NUMBER)))"},
	}
	p := newParser(t)
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parse(t, p, tt.input).String())
		})
	}
}

func TestParseMarksRecoveredSubtreesFragile(t *testing.T) {
	p := newParser(t)

	clean := parse(t, p, "1+2")
	assert.False(t, clean.RootSubtree().IsFragile())

	tr := parse(t, p, "1+")
	root := tr.RootSubtree()
	require.Equal(t, 3, root.ChildCount())
	assert.True(t, root.IsFragile())
	assert.False(t, root.Child(0).IsFragile(), "reduced before the error")
	assert.True(t, root.Child(1).IsFragile(), "shifted just before the failing lookahead")
	assert.True(t, root.Child(2).IsFragile(), "holds a missing token")
}

func TestParseExtras(t *testing.T) {
	p := newParser(t)
	text := " 1 +\n 2 "
	tr := parse(t, p, text)
	requireCoverage(t, tr, text)
	assert.Equal(t, "(expr (WS) (expr (NUMBER)) (WS) (+) (WS) (expr (NUMBER)) (WS))", tr.String())

	two := tr.Root().DescendantForByteRange(6, 7)
	require.NotNil(t, two)
	assert.Equal(t, "NUMBER", two.Type())
	assert.Equal(t, source.Point{Row: 1, Column: 1}, two.StartPoint())
	assert.Equal(t, "2", string(two.Text()))
}

func TestParseTotalCoverage(t *testing.T) {
	inputs := []string{
		"",
		"+",
		"1 + + 2",
		"1 2 3",
		"@@@",
		"1+\n2*",
		"1 + x 2",
		"**1**",
		"1+2+",
		"é1",
	}
	p := newParser(t)
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			tr := parse(t, p, input)
			requireCoverage(t, tr, input)
			assert.Equal(t, "expr", tr.Root().Type())
		})
	}
}

func TestParseEmptyInput(t *testing.T) {
	tr := parse(t, newParser(t), "")
	assert.Equal(t, "(expr (MISSING NUMBER))", tr.String())
}

func TestParseErrorsAreReported(t *testing.T) {
	tr := parse(t, newParser(t), "1 2 3")
	errs := tr.Errors()
	require.NotEmpty(t, errs)
	for _, d := range errs {
		assert.LessOrEqual(t, d.Range.EndByte, uint32(5))
	}
	assert.True(t, tr.Root().HasError())
}

func TestParseDeterministic(t *testing.T) {
	p := newParser(t)
	for _, input := range []string{"1+2*3-4", "1 2 + * 3", "1+\n+2"} {
		a := parse(t, p, input)
		b := parse(t, p, input)
		assert.True(t, a.Root().Equal(b.Root()), input)
		assert.Equal(t, a.String(), b.String())
		assert.Equal(t, a.Errors(), b.Errors())
	}
}

func TestReparseReusesLeaves(t *testing.T) {
	p := newParser(t)
	old := parse(t, p, "1+2")

	edit := tree.NewEdit(old, 1, 2, []byte("-"))
	updated, err := p.Reparse(context.Background(), old, []tree.Edit{edit}, source.String("1-2"))
	require.NoError(t, err)

	fresh := parse(t, p, "1-2")
	assert.True(t, updated.Root().Equal(fresh.Root()))
	assert.Equal(t, "(expr (expr (NUMBER)) (-) (expr (NUMBER)))", updated.String())

	oldLeaves := old.Root().Leaves()
	newLeaves := updated.Root().Leaves()
	require.Len(t, newLeaves, 3)
	assert.True(t, oldLeaves[0].Same(newLeaves[0]), "first NUMBER is shared")
	assert.True(t, oldLeaves[2].Same(newLeaves[2]), "second NUMBER is shared")
	assert.False(t, oldLeaves[1].Same(newLeaves[1]), "operator is new")
}

func TestReparseRejectsMalformedEdits(t *testing.T) {
	p := newParser(t)
	old := parse(t, p, "1+2")
	before := old.String()

	edits := []tree.Edit{
		{StartByte: 1, OldEndByte: 2, NewEndByte: 3},
		{StartByte: 2, OldEndByte: 2, NewEndByte: 2},
	}
	_, err := p.Reparse(context.Background(), old, edits, source.String("1++2"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, tree.ErrMalformedEdit))
	assert.Contains(t, err.Error(), "edit 1")
	assert.Equal(t, before, old.String())
	assert.False(t, old.Edited())
}

func TestReparseNoopEdit(t *testing.T) {
	p := newParser(t)
	old := parse(t, p, "1 + 2 * 3")

	noop := tree.Edit{StartByte: 2, OldEndByte: 2, NewEndByte: 2}
	updated, err := p.Reparse(context.Background(), old, []tree.Edit{noop}, source.String("1 + 2 * 3"))
	require.NoError(t, err)
	assert.True(t, updated.Root().Equal(old.Root()))

	total := len(old.RootSubtree().Leaves())
	assert.GreaterOrEqual(t, tree.SharedNodes(old, updated), total)
}

// applyEdit returns text with [start, oldEnd) replaced.
func applyEdit(text string, start, oldEnd int, insert string) string {
	return text[:start] + insert + text[oldEnd:]
}

func TestReparseMatchesFreshParse(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		start  int
		oldEnd int
		insert string
	}{
		{"extend number", "1+2", 1, 1, "2"},
		{"append", "1+2", 3, 3, "*3"},
		{"prepend", "1+2", 0, 0, "4*"},
		{"delete operator", "1+2*3", 1, 2, ""},
		{"replace all", "1+2", 0, 3, "7"},
		{"add whitespace", "1+2*3", 2, 2, "  "},
		{"newline", "1+2\n*3", 3, 4, " "},
		{"break it", "1+2*3", 3, 4, "+"},
		{"introduce error", "10 + 20 + 30", 5, 7, ""},
		{"fix error", "10 + + 30", 5, 6, "20"},
		{"edit after error", "1 2 + 3 + 4", 10, 11, "5"},
		{"edit inside long input", "1+2+3+4+5+6+7+8", 6, 7, "*"},
		{"delete to end", "1+2+3", 1, 5, ""},
		{"empty to something", "", 0, 0, "1+1"},
	}
	p := newParser(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := parse(t, p, tt.text)
			text := applyEdit(tt.text, tt.start, tt.oldEnd, tt.insert)

			edit := tree.NewEdit(old, uint32(tt.start), uint32(tt.oldEnd), []byte(tt.insert))
			updated, err := p.Reparse(context.Background(), old, []tree.Edit{edit}, source.String(text))
			require.NoError(t, err)
			fresh := parse(t, p, text)

			assert.True(t, updated.Root().Equal(fresh.Root()), "incremental %s\nfresh       %s", updated, fresh)
			assert.Equal(t, fresh.String(), updated.String())
			requireCoverage(t, updated, text)
		})
	}
}

func TestReparseMultipleEdits(t *testing.T) {
	p := newParser(t)
	text := "1 + 2 + 3"
	old := parse(t, p, text)

	// "1 + 2 + 3" -> "1 * 2 + 3" -> "1 * 2 + 345"
	first := tree.NewEdit(old, 2, 3, []byte("*"))
	edited, err := old.Edit(first)
	require.NoError(t, err)
	second := tree.NewEdit(edited, 9, 9, []byte("45"))
	updated, err := p.Reparse(context.Background(), old, []tree.Edit{first, second}, source.String("1 * 2 + 345"))
	require.NoError(t, err)

	fresh := parse(t, p, "1 * 2 + 345")
	assert.True(t, updated.Root().Equal(fresh.Root()))
	assert.Positive(t, tree.SharedNodes(old, updated))
}

func TestParseWithEditedTree(t *testing.T) {
	p := newParser(t)
	old := parse(t, p, "1+2")
	edited, err := old.Edit(tree.NewEdit(old, 3, 3, []byte("+3")))
	require.NoError(t, err)

	updated, err := p.Parse(context.Background(), source.String("1+2+3"), edited)
	require.NoError(t, err)
	assert.Equal(t, parse(t, p, "1+2+3").String(), updated.String())
}

func TestParseIgnoresMismatchedTree(t *testing.T) {
	p := newParser(t)
	old := parse(t, p, "1+2")
	// The previous tree was not edited to match, so nothing can be reused.
	updated, err := p.Parse(context.Background(), source.String("1+2*3"), old)
	require.NoError(t, err)
	assert.Equal(t, parse(t, p, "1+2*3").String(), updated.String())
}

func TestParseCancelled(t *testing.T) {
	t.Run("operation limit", func(t *testing.T) {
		p := newParser(t, WithOperationLimit(3), WithCheckInterval(1))
		tr, err := p.Parse(context.Background(), source.String("1+2+3+4"), nil)
		assert.Nil(t, tr)
		assert.ErrorIs(t, err, ErrCancelled)
	})
	t.Run("context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := newParser(t, WithCheckInterval(1))
		tr, err := p.Parse(ctx, source.String("1+2"), nil)
		assert.Nil(t, tr)
		assert.ErrorIs(t, err, ErrCancelled)
		assert.ErrorIs(t, err, context.Canceled)
	})
	t.Run("generous limit", func(t *testing.T) {
		p := newParser(t, WithOperationLimit(10000), WithCheckInterval(1))
		_, err := p.Parse(context.Background(), source.String("1+2+3+4"), nil)
		assert.NoError(t, err)
	})
}

func TestNewRejectsNilTable(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, grammar.ErrInvalidTable)
}

func TestParseLongInput(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 500; i++ {
		if i > 0 {
			sb.WriteString(" + ")
		}
		sb.WriteString("12")
	}
	text := sb.String()
	p := newParser(t)
	tr := parse(t, p, text)
	requireCoverage(t, tr, text)
	assert.False(t, tr.Root().HasError())

	edit := tree.NewEdit(tr, 0, 2, []byte("3"))
	updated, err := p.Reparse(context.Background(), tr, []tree.Edit{edit}, source.String(text[:0]+"3"+text[2:]))
	require.NoError(t, err)
	assert.False(t, updated.Root().HasError())
	assert.Greater(t, tree.SharedNodes(tr, updated), 900)
}

func TestParseConcurrent(t *testing.T) {
	p := newParser(t)
	want := parse(t, p, "1+2*3").String()
	done := make(chan string)
	for i := 0; i < 8; i++ {
		go func() {
			tr, err := p.Parse(context.Background(), source.String("1+2*3"), nil)
			if err != nil {
				done <- err.Error()
				return
			}
			done <- tr.String()
		}()
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, want, <-done)
	}
}
