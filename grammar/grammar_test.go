package grammar

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calcTable(t *testing.T) *Table {
	t.Helper()
	b := NewBuilder("calc")
	b.Fragment("digit", `"0" … "9"`)
	number := b.Token("NUMBER", `digit { digit }`)
	ws := b.Token("WS", `( " " | "\t" | "\n" ) { " " | "\t" | "\n" }`)
	plus := b.Literal("+")
	star := b.Literal("*")
	expr := b.NonTerminal("expr")
	b.Extra(ws)
	b.Rule(expr, expr, plus, expr).Prec(1).Left()
	b.Rule(expr, expr, star, expr).Prec(2).Left()
	b.Rule(expr, number)
	b.Start(expr)
	table, err := b.Build()
	require.NoError(t, err)
	return table
}

func TestBuilderSymbols(t *testing.T) {
	table := calcTable(t)

	tests := []struct {
		name     string
		terminal bool
		extra    bool
	}{
		{"$end", true, false},
		{"ERROR", true, false},
		{"NUMBER", true, false},
		{"WS", true, true},
		{"+", true, false},
		{"*", true, false},
		{"expr", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sym, ok := table.SymbolByName(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.name, table.SymbolName(sym))
			assert.Equal(t, tt.terminal, table.IsTerminal(sym))
			assert.Equal(t, tt.extra, table.IsExtra(sym))
		})
	}

	expr, _ := table.SymbolByName("expr")
	assert.Equal(t, expr, table.Start())
	assert.Equal(t, 3, table.RuleCount())
	assert.NotContains(t, table.Terminals(), SymbolError)
	assert.Contains(t, table.Terminals(), SymbolEnd)
}

func TestBuilderLiteralDedup(t *testing.T) {
	b := NewBuilder("x")
	first := b.Literal("let")
	second := b.Literal("let")
	assert.Equal(t, first, second)

	rule, ok := func() (TokenRule, bool) {
		for _, tok := range b.tokens {
			if tok.Symbol == first {
				return tok, true
			}
		}
		return TokenRule{}, false
	}()
	require.True(t, ok)
	assert.Equal(t, 1, rule.Priority)
}

func TestBuilderKeepsConflicts(t *testing.T) {
	table := calcTable(t)
	plus, _ := table.SymbolByName("+")

	conflicts := 0
	for state := 0; state < table.StateCount(); state++ {
		actions := table.Actions(StateID(state), plus)
		if len(actions) < 2 {
			continue
		}
		conflicts++
		assert.Equal(t, ActionShift, actions[0].Kind, "shifts sort first")
		assert.Equal(t, ActionReduce, actions[len(actions)-1].Kind)
	}
	assert.Positive(t, conflicts, "ambiguous expression grammar must keep shift/reduce conflicts")
}

func TestBuilderInitialState(t *testing.T) {
	table := calcTable(t)
	number, _ := table.SymbolByName("NUMBER")
	expr, _ := table.SymbolByName("expr")

	assert.Equal(t, []Symbol{number}, table.Expected(0))
	actions := table.Actions(0, number)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionShift, actions[0].Kind)

	next, ok := table.Goto(0, expr)
	require.True(t, ok)
	accept := table.Actions(next, SymbolEnd)
	require.Len(t, accept, 1)
	assert.Equal(t, ActionAccept, accept[0].Kind)

	assert.Nil(t, table.Actions(0, SymbolEnd))
	_, ok = table.Goto(0, number)
	assert.False(t, ok)
}

func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
	}{
		{"no start", func(b *Builder) {
			e := b.NonTerminal("e")
			b.Rule(e, b.Literal("x"))
		}},
		{"non-terminal without rules", func(b *Builder) {
			e := b.NonTerminal("e")
			f := b.NonTerminal("f")
			b.Rule(e, f)
			b.Start(e)
		}},
		{"extra in rule", func(b *Builder) {
			e := b.NonTerminal("e")
			ws := b.Token("WS", `" "`)
			b.Extra(ws)
			b.Rule(e, ws)
			b.Start(e)
		}},
		{"duplicate symbol", func(b *Builder) {
			e := b.NonTerminal("e")
			b.NonTerminal("e")
			b.Rule(e, b.Literal("x"))
			b.Start(e)
		}},
		{"external without scanner", func(b *Builder) {
			e := b.NonTerminal("e")
			b.Rule(e, b.External("COMMENT"))
			b.Start(e)
		}},
		{"broken pattern", func(b *Builder) {
			e := b.NonTerminal("e")
			b.Rule(e, b.Token("BAD", `"a" |`))
			b.Start(e)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder("broken")
			tt.build(b)
			_, err := b.Build()
			assert.ErrorIs(t, err, ErrInvalidTable)
		})
	}
}

func TestCodecRoundTrip(t *testing.T) {
	table := calcTable(t)

	fs := afero.NewMemMapFs()
	data, err := Marshal(table)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/calc.rpgt", data, 0o644))

	f, err := fs.Open("/calc.rpgt")
	require.NoError(t, err)
	defer f.Close()
	loaded, err := Load(f)
	require.NoError(t, err)

	assert.Equal(t, table.Name(), loaded.Name())
	assert.Equal(t, table.StateCount(), loaded.StateCount())
	assert.Equal(t, table.SymbolCount(), loaded.SymbolCount())
	assert.Equal(t, table.LexiconSource(), loaded.LexiconSource())
	for state := 0; state < table.StateCount(); state++ {
		for sym := 0; sym < table.SymbolCount(); sym++ {
			assert.Equal(t,
				table.Actions(StateID(state), Symbol(sym)),
				loaded.Actions(StateID(state), Symbol(sym)),
				"state %d symbol %d", state, sym)
		}
		assert.Equal(t, table.LexMode(StateID(state)), loaded.LexMode(StateID(state)))
	}

	again, err := Marshal(loaded)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, again), "encoding is deterministic")
}

func TestLoadRejectsOtherMajorVersion(t *testing.T) {
	data, err := Marshal(calcTable(t))
	require.NoError(t, err)

	data[4], data[5] = 0, byte(FormatMajor+1)
	_, err = Unmarshal(data)
	assert.ErrorIs(t, err, ErrFormatMismatch)
}

func TestLoadRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("RP")},
		{"bad magic", []byte("NOPE\x00\x01\x00\x00")},
		{"truncated payload", []byte("RPGT\x00\x01\x00\x00\x85")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data)
			assert.ErrorIs(t, err, ErrInvalidTable)
		})
	}
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(calcTable(t)))
	assert.ErrorIs(t, Check(nil), ErrInvalidTable)
}

func TestLoadRejectsDanglingReferences(t *testing.T) {
	eachAction := func(s *layout, fn func(a *Action)) {
		for i := range s.States {
			for j := range s.States[i].Actions {
				for k := range s.States[i].Actions[j].Actions {
					fn(&s.States[i].Actions[j].Actions[k])
				}
			}
		}
	}
	firstGoto := func(s *layout) *Goto {
		for i := range s.States {
			if len(s.States[i].Gotos) > 0 {
				return &s.States[i].Gotos[0]
			}
		}
		return nil
	}
	tests := []struct {
		name   string
		mutate func(s *layout)
	}{
		{"reduce of unknown rule", func(s *layout) {
			eachAction(s, func(a *Action) {
				if a.Kind == ActionReduce {
					a.Rule = 999
				}
			})
		}},
		{"shift to unknown state", func(s *layout) {
			eachAction(s, func(a *Action) {
				if a.Kind == ActionShift {
					a.State = StateID(len(s.States))
				}
			})
		}},
		{"error action", func(s *layout) {
			s.States[0].Actions[0].Actions[0].Kind = ActionError
		}},
		{"action on a non-terminal", func(s *layout) {
			s.States[0].Actions[0].Symbol = s.Start
		}},
		{"goto to unknown state", func(s *layout) { firstGoto(s).State = 60000 }},
		{"goto on a terminal", func(s *layout) { firstGoto(s).Symbol = SymbolEnd }},
		{"unknown symbol in a lex mode", func(s *layout) {
			s.LexModes[0].Valid = append(s.LexModes[0].Valid, Symbol(len(s.Symbols)))
		}},
		{"rule with a terminal left-hand side", func(s *layout) { s.Rules[0].LHS = SymbolEnd }},
		{"rule with an unknown symbol", func(s *layout) { s.Rules[0].RHS[0] = 500 }},
		{"token rule for a non-terminal", func(s *layout) { s.Tokens[0].Symbol = s.Start }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := calcTable(t)
			tt.mutate(&table.data)

			_, err := newTable(table.data)
			assert.ErrorIs(t, err, ErrInvalidTable)

			data, err := Marshal(table)
			require.NoError(t, err)
			_, err = Unmarshal(data)
			assert.ErrorIs(t, err, ErrInvalidTable)
		})
	}
}
