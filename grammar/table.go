// Package grammar defines the compiled grammar table consumed by the lexer and
// the parse engine.
//
// A Table is immutable once built or loaded. It is safe to share a single
// Table between any number of concurrently running parses; every lookup is a
// pure function of the table.
package grammar

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/ebnf"
)

// Format version of the binary table encoding. Tables with a different major
// version are rejected at load time; minor versions are compatible.
const (
	FormatMajor uint16 = 1
	FormatMinor uint16 = 0
)

var (
	// ErrFormatMismatch is returned when a table's format version does not
	// match the one this package understands.
	ErrFormatMismatch = errors.New("grammar table format mismatch")

	// ErrInvalidTable is returned when a table is structurally broken.
	ErrInvalidTable = errors.New("invalid grammar table")
)

// Symbol identifies a terminal or non-terminal.
type Symbol uint16

// Built-in symbols present in every table.
const (
	SymbolEnd   Symbol = 0
	SymbolError Symbol = 1
)

// SymbolKind classifies symbols.
type SymbolKind uint8

const (
	Terminal SymbolKind = iota
	NonTerminal
	// Auxiliary symbols are non-terminals introduced for grammar structure.
	// Their nodes are transparent when navigating a tree.
	Auxiliary
)

func (k SymbolKind) String() string {
	switch k {
	case Terminal:
		return "terminal"
	case NonTerminal:
		return "non-terminal"
	case Auxiliary:
		return "auxiliary"
	}
	return "unknown"
}

// SymbolInfo describes a symbol.
type SymbolInfo struct {
	Name     string     `msgpack:"name"`
	Kind     SymbolKind `msgpack:"kind"`
	External bool       `msgpack:"external,omitempty"`
}

// StateID is a parse state index.
type StateID uint16

// LexModeID identifies a valid-symbol set.
type LexModeID uint16

// Assoc is a rule's associativity.
type Assoc uint8

const (
	AssocNone Assoc = iota
	AssocLeft
	AssocRight
)

// Rule is a production: LHS → RHS.
type Rule struct {
	LHS        Symbol   `msgpack:"lhs"`
	RHS        []Symbol `msgpack:"rhs"`
	Precedence int      `msgpack:"prec,omitempty"`
	Assoc      Assoc    `msgpack:"assoc,omitempty"`
}

// ActionKind is the kind of a parse action.
type ActionKind uint8

const (
	ActionError ActionKind = iota
	ActionShift
	ActionReduce
	ActionAccept
)

func (k ActionKind) String() string {
	switch k {
	case ActionShift:
		return "shift"
	case ActionReduce:
		return "reduce"
	case ActionAccept:
		return "accept"
	}
	return "error"
}

// Action is one candidate action for a (state, terminal) pair.
//
// For shifts, Precedence is the highest precedence among the rules being
// shifted into and Rule is the earliest of them; for reduces both describe
// the reduced rule.
type Action struct {
	Kind       ActionKind `msgpack:"kind"`
	State      StateID    `msgpack:"state,omitempty"`
	Rule       uint16     `msgpack:"rule,omitempty"`
	Precedence int        `msgpack:"prec,omitempty"`
}

func (a Action) String() string {
	switch a.Kind {
	case ActionShift:
		return fmt.Sprintf("shift(%d)", a.State)
	case ActionReduce:
		return fmt.Sprintf("reduce(%d)", a.Rule)
	}
	return a.Kind.String()
}

// ActionEntry groups the actions of one terminal in a state. More than one
// action means the grammar has a conflict there, resolved by the parse engine.
type ActionEntry struct {
	Symbol  Symbol   `msgpack:"sym"`
	Actions []Action `msgpack:"actions"`
}

// Goto is a non-terminal transition.
type Goto struct {
	Symbol Symbol  `msgpack:"sym"`
	State  StateID `msgpack:"state"`
}

// State is one parse state. Actions and Gotos are sorted by symbol.
type State struct {
	Actions []ActionEntry `msgpack:"actions"`
	Gotos   []Goto        `msgpack:"gotos,omitempty"`
	LexMode LexModeID     `msgpack:"lex_mode"`
}

// LexMode is the set of terminals the lexer may produce in a state, sorted.
// Extras are always valid and are not listed.
type LexMode struct {
	Valid []Symbol `msgpack:"valid"`
}

// TokenRule binds a terminal to a production of the lexicon.
type TokenRule struct {
	Symbol     Symbol `msgpack:"sym"`
	Production string `msgpack:"production"`
	Priority   int    `msgpack:"priority,omitempty"`
}

// layout is the serialized form of a table.
type layout struct {
	FormatMajor     uint16       `msgpack:"format_major"`
	FormatMinor     uint16       `msgpack:"format_minor"`
	Name            string       `msgpack:"name"`
	Version         uint32       `msgpack:"version"`
	Symbols         []SymbolInfo `msgpack:"symbols"`
	Rules           []Rule       `msgpack:"rules"`
	States          []State      `msgpack:"states"`
	LexModes        []LexMode    `msgpack:"lex_modes"`
	Start           Symbol       `msgpack:"start"`
	Extras          []Symbol     `msgpack:"extras,omitempty"`
	Lexicon         string       `msgpack:"lexicon"`
	Tokens          []TokenRule  `msgpack:"tokens"`
	ExternalScanner string       `msgpack:"external_scanner,omitempty"`
}

// Table is a compiled grammar.
type Table struct {
	data layout

	lexicon  ebnf.Grammar
	extra    []bool
	byName   map[string]Symbol
	terminal []Symbol
	tokens   map[Symbol]TokenRule
	external []Symbol
}

func newTable(s layout) (*Table, error) {
	if s.FormatMajor != FormatMajor {
		return nil, fmt.Errorf("%w: table format %d.%d, supported %d.x",
			ErrFormatMismatch, s.FormatMajor, s.FormatMinor, FormatMajor)
	}
	t := &Table{
		data:   s,
		extra:  make([]bool, len(s.Symbols)),
		byName: make(map[string]Symbol, len(s.Symbols)),
		tokens: make(map[Symbol]TokenRule, len(s.Tokens)),
	}
	if len(s.Symbols) < 2 || s.Symbols[SymbolEnd].Name != "$end" || s.Symbols[SymbolError].Name != "ERROR" {
		return nil, fmt.Errorf("%w: missing built-in symbols", ErrInvalidTable)
	}
	if len(s.States) == 0 {
		return nil, fmt.Errorf("%w: no states", ErrInvalidTable)
	}
	if int(s.Start) >= len(s.Symbols) {
		return nil, fmt.Errorf("%w: start symbol %d out of range", ErrInvalidTable, s.Start)
	}
	for i, info := range s.Symbols {
		sym := Symbol(i)
		if _, ok := t.byName[info.Name]; !ok {
			t.byName[info.Name] = sym
		}
		if info.Kind == Terminal && sym != SymbolError {
			t.terminal = append(t.terminal, sym)
		}
		if info.External {
			t.external = append(t.external, sym)
		}
	}
	for _, sym := range s.Extras {
		if int(sym) >= len(s.Symbols) {
			return nil, fmt.Errorf("%w: extra %d out of range", ErrInvalidTable, sym)
		}
		t.extra[sym] = true
	}
	if err := checkReferences(s); err != nil {
		return nil, err
	}

	if strings.TrimSpace(s.Lexicon) != "" {
		g, err := ebnf.Parse(s.Name+".lexicon", strings.NewReader(s.Lexicon))
		if err != nil {
			return nil, fmt.Errorf("%w: parse lexicon: %v", ErrInvalidTable, err)
		}
		t.lexicon = g
	}
	for _, tok := range s.Tokens {
		if t.lexicon == nil || t.lexicon[tok.Production] == nil {
			return nil, fmt.Errorf("%w: token %q refers to unknown production %q",
				ErrInvalidTable, t.SymbolName(tok.Symbol), tok.Production)
		}
		t.tokens[tok.Symbol] = tok
	}
	for _, sym := range t.terminal {
		if sym == SymbolEnd || s.Symbols[sym].External {
			continue
		}
		if _, ok := t.tokens[sym]; !ok {
			return nil, fmt.Errorf("%w: terminal %q has no token rule", ErrInvalidTable, t.SymbolName(sym))
		}
	}
	return t, nil
}

// checkReferences verifies that every symbol, rule, state and lex mode id in
// s refers to an existing entry, so that no lookup can go out of range while
// parsing.
func checkReferences(s layout) error {
	nsym := len(s.Symbols)
	symbol := func(sym Symbol) bool { return int(sym) < nsym }
	terminal := func(sym Symbol) bool { return symbol(sym) && s.Symbols[sym].Kind == Terminal }

	for i, r := range s.Rules {
		if !symbol(r.LHS) || terminal(r.LHS) {
			return fmt.Errorf("%w: rule %d has left-hand side %d, which is not a non-terminal", ErrInvalidTable, i, r.LHS)
		}
		for _, sym := range r.RHS {
			if !symbol(sym) {
				return fmt.Errorf("%w: rule %d refers to symbol %d out of range", ErrInvalidTable, i, sym)
			}
		}
	}
	for i, st := range s.States {
		if int(st.LexMode) >= len(s.LexModes) {
			return fmt.Errorf("%w: state %d has lex mode %d out of range", ErrInvalidTable, i, st.LexMode)
		}
		for _, e := range st.Actions {
			if !terminal(e.Symbol) {
				return fmt.Errorf("%w: state %d has actions on %d, which is not a terminal", ErrInvalidTable, i, e.Symbol)
			}
			for _, a := range e.Actions {
				switch {
				case a.Kind == ActionError || a.Kind > ActionAccept:
					return fmt.Errorf("%w: state %d has an action of kind %d", ErrInvalidTable, i, a.Kind)
				case a.Kind == ActionShift && int(a.State) >= len(s.States):
					return fmt.Errorf("%w: state %d shifts to state %d out of range", ErrInvalidTable, i, a.State)
				case a.Kind == ActionReduce && int(a.Rule) >= len(s.Rules):
					return fmt.Errorf("%w: state %d reduces rule %d out of range", ErrInvalidTable, i, a.Rule)
				}
			}
		}
		for _, g := range st.Gotos {
			if !symbol(g.Symbol) || terminal(g.Symbol) {
				return fmt.Errorf("%w: state %d has a goto on %d, which is not a non-terminal", ErrInvalidTable, i, g.Symbol)
			}
			if int(g.State) >= len(s.States) {
				return fmt.Errorf("%w: state %d goes to state %d out of range", ErrInvalidTable, i, g.State)
			}
		}
	}
	for i, m := range s.LexModes {
		for _, sym := range m.Valid {
			if !terminal(sym) {
				return fmt.Errorf("%w: lex mode %d lists %d, which is not a terminal", ErrInvalidTable, i, sym)
			}
		}
	}
	for _, tok := range s.Tokens {
		if !terminal(tok.Symbol) {
			return fmt.Errorf("%w: token rule for %d, which is not a terminal", ErrInvalidTable, tok.Symbol)
		}
	}
	return nil
}

// Check verifies that t was produced for the format this package understands.
func Check(t *Table) error {
	if t == nil {
		return fmt.Errorf("%w: nil table", ErrInvalidTable)
	}
	if t.data.FormatMajor != FormatMajor {
		return fmt.Errorf("%w: table format %d.%d, supported %d.x",
			ErrFormatMismatch, t.data.FormatMajor, t.data.FormatMinor, FormatMajor)
	}
	return nil
}

// Name returns the language name.
func (t *Table) Name() string { return t.data.Name }

// Version returns the language version the table was compiled for.
func (t *Table) Version() uint32 { return t.data.Version }

// Format returns the table's format version.
func (t *Table) Format() (major, minor uint16) { return t.data.FormatMajor, t.data.FormatMinor }

// SymbolCount returns the number of symbols.
func (t *Table) SymbolCount() int { return len(t.data.Symbols) }

// StateCount returns the number of parse states.
func (t *Table) StateCount() int { return len(t.data.States) }

// RuleCount returns the number of rules.
func (t *Table) RuleCount() int { return len(t.data.Rules) }

// Symbol returns the metadata of sym.
func (t *Table) Symbol(sym Symbol) SymbolInfo {
	if int(sym) >= len(t.data.Symbols) {
		return SymbolInfo{Name: fmt.Sprintf("<%d>", sym)}
	}
	return t.data.Symbols[sym]
}

// SymbolName returns the display name of sym.
func (t *Table) SymbolName(sym Symbol) string {
	return t.Symbol(sym).Name
}

// SymbolByName looks a symbol up by its display name.
func (t *Table) SymbolByName(name string) (Symbol, bool) {
	sym, ok := t.byName[name]
	return sym, ok
}

// IsTerminal reports whether sym is a terminal.
func (t *Table) IsTerminal(sym Symbol) bool {
	return t.Symbol(sym).Kind == Terminal
}

// IsExtra reports whether sym may appear anywhere between tokens.
func (t *Table) IsExtra(sym Symbol) bool {
	return int(sym) < len(t.extra) && t.extra[sym]
}

// Extras returns the extra symbols.
func (t *Table) Extras() []Symbol { return t.data.Extras }

// Terminals returns every terminal except ERROR, in id order.
func (t *Table) Terminals() []Symbol { return t.terminal }

// Start returns the start symbol.
func (t *Table) Start() Symbol { return t.data.Start }

// Rule returns rule i.
func (t *Table) Rule(i uint16) Rule { return t.data.Rules[i] }

// Actions returns the candidate actions for (state, sym). A nil result means
// the pair is an error.
func (t *Table) Actions(state StateID, sym Symbol) []Action {
	if int(state) >= len(t.data.States) {
		return nil
	}
	entries := t.data.States[state].Actions
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Symbol >= sym })
	if i < len(entries) && entries[i].Symbol == sym {
		return entries[i].Actions
	}
	return nil
}

// Goto returns the state reached from state after reducing to sym.
func (t *Table) Goto(state StateID, sym Symbol) (StateID, bool) {
	if int(state) >= len(t.data.States) {
		return 0, false
	}
	gotos := t.data.States[state].Gotos
	i := sort.Search(len(gotos), func(i int) bool { return gotos[i].Symbol >= sym })
	if i < len(gotos) && gotos[i].Symbol == sym {
		return gotos[i].State, true
	}
	return 0, false
}

// Expected returns the terminals that have an action in state.
func (t *Table) Expected(state StateID) []Symbol {
	if int(state) >= len(t.data.States) {
		return nil
	}
	return t.data.LexModes[t.data.States[state].LexMode].Valid
}

// LexMode returns the lex mode of state.
func (t *Table) LexMode(state StateID) LexModeID {
	if int(state) >= len(t.data.States) {
		return t.ErrorLexMode()
	}
	return t.data.States[state].LexMode
}

// ErrorLexMode is the mode used during error recovery, in which every
// terminal is valid.
func (t *Table) ErrorLexMode() LexModeID {
	return LexModeID(len(t.data.LexModes))
}

// ValidSymbols returns the terminals valid in mode. For the error mode this
// is every terminal.
func (t *Table) ValidSymbols(mode LexModeID) []Symbol {
	if int(mode) >= len(t.data.LexModes) {
		return t.terminal
	}
	return t.data.LexModes[mode].Valid
}

// Lexicon returns the parsed EBNF productions token rules refer to.
func (t *Table) Lexicon() ebnf.Grammar { return t.lexicon }

// LexiconSource returns the lexicon's EBNF text.
func (t *Table) LexiconSource() string { return t.data.Lexicon }

// TokenRule returns the token rule of a terminal.
func (t *Table) TokenRule(sym Symbol) (TokenRule, bool) {
	tok, ok := t.tokens[sym]
	return tok, ok
}

// ExternalSymbols returns the terminals produced by the external scanner.
func (t *Table) ExternalSymbols() []Symbol { return t.external }

// ExternalScanner returns the name of the external scanner, if any.
func (t *Table) ExternalScanner() string { return t.data.ExternalScanner }
