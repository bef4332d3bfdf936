package grammar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Builder assembles a Table from symbols, token patterns and rules.
//
// Token patterns are EBNF expressions in the notation of golang.org/x/exp/ebnf
// and may refer to fragments declared with Fragment:
//
//	b := grammar.NewBuilder("calc")
//	b.Fragment("digit", `"0" … "9"`)
//	number := b.Token("NUMBER", `digit { digit }`)
//	plus := b.Literal("+")
//	expr := b.NonTerminal("expr")
//	b.Rule(expr, expr, plus, expr).Prec(1).Left()
//	b.Rule(expr, number)
//	b.Start(expr)
//	table, err := b.Build()
type Builder struct {
	name      string
	version   uint32
	symbols   []SymbolInfo
	byName    map[string]Symbol
	rules     []Rule
	tokens    []TokenRule
	fragments []string
	extras    []Symbol
	start     Symbol
	hasStart  bool
	scanner   string
	errs      []error
}

// NewBuilder returns a Builder for the language called name.
func NewBuilder(name string) *Builder {
	b := &Builder{
		name:   name,
		byName: make(map[string]Symbol),
	}
	b.add("$end", Terminal)
	b.add("ERROR", Terminal)
	return b
}

func (b *Builder) add(name string, kind SymbolKind) Symbol {
	if sym, ok := b.byName[name]; ok {
		b.errs = append(b.errs, fmt.Errorf("symbol %q declared twice", name))
		return sym
	}
	sym := Symbol(len(b.symbols))
	b.symbols = append(b.symbols, SymbolInfo{Name: name, Kind: kind})
	b.byName[name] = sym
	return sym
}

// Version sets the language version recorded in the table.
func (b *Builder) Version(v uint32) *Builder {
	b.version = v
	return b
}

// Token declares a terminal matched by an EBNF pattern.
func (b *Builder) Token(name, pattern string) Symbol {
	sym := b.add(name, Terminal)
	b.tokens = append(b.tokens, TokenRule{
		Symbol:     sym,
		Production: fmt.Sprintf("tok%d", sym),
	})
	b.fragments = append(b.fragments, fmt.Sprintf("tok%d = %s .", sym, pattern))
	return sym
}

// Literal declares a terminal matching text exactly. Literals take priority
// over pattern tokens of the same length, so keywords win over identifiers.
// Declaring the same literal twice returns the same symbol.
func (b *Builder) Literal(text string) Symbol {
	if sym, ok := b.byName[text]; ok && b.symbols[sym].Kind == Terminal {
		return sym
	}
	sym := b.Token(text, strconv.Quote(text))
	b.Priority(sym, 1)
	return sym
}

// Priority sets the tie-breaking priority of a token.
func (b *Builder) Priority(sym Symbol, priority int) {
	for i := range b.tokens {
		if b.tokens[i].Symbol == sym {
			b.tokens[i].Priority = priority
			return
		}
	}
	b.errs = append(b.errs, fmt.Errorf("priority set on symbol %d, which is not a token", sym))
}

// Fragment declares a helper production token patterns can refer to.
func (b *Builder) Fragment(name, pattern string) {
	b.fragments = append(b.fragments, fmt.Sprintf("%s = %s .", name, pattern))
}

// External declares a terminal produced by the external scanner.
func (b *Builder) External(name string) Symbol {
	sym := b.add(name, Terminal)
	b.symbols[sym].External = true
	return sym
}

// ExternalScanner names the scanner that produces the external terminals.
func (b *Builder) ExternalScanner(name string) {
	b.scanner = name
}

// NonTerminal declares a visible non-terminal.
func (b *Builder) NonTerminal(name string) Symbol {
	return b.add(name, NonTerminal)
}

// Hidden declares an auxiliary non-terminal whose nodes are transparent.
func (b *Builder) Hidden(name string) Symbol {
	return b.add(name, Auxiliary)
}

// Extra marks terminals that may appear between any two tokens.
func (b *Builder) Extra(syms ...Symbol) {
	b.extras = append(b.extras, syms...)
}

// Start sets the start symbol.
func (b *Builder) Start(sym Symbol) {
	b.start = sym
	b.hasStart = true
}

// RuleRef refines a rule added with Rule.
type RuleRef struct {
	b     *Builder
	index int
}

// Rule adds lhs → rhs.
func (b *Builder) Rule(lhs Symbol, rhs ...Symbol) RuleRef {
	b.rules = append(b.rules, Rule{LHS: lhs, RHS: append([]Symbol(nil), rhs...)})
	return RuleRef{b: b, index: len(b.rules) - 1}
}

// Prec sets the rule's precedence.
func (r RuleRef) Prec(p int) RuleRef {
	r.b.rules[r.index].Precedence = p
	return r
}

// Left makes the rule left associative.
func (r RuleRef) Left() RuleRef {
	r.b.rules[r.index].Assoc = AssocLeft
	return r
}

// Right makes the rule right associative.
func (r RuleRef) Right() RuleRef {
	r.b.rules[r.index].Assoc = AssocRight
	return r
}

// Build validates the grammar and computes the parse tables.
func (b *Builder) Build() (*Table, error) {
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	auto, err := buildAutomaton(b.symbols, b.rules, b.start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	s := layout{
		FormatMajor:     FormatMajor,
		FormatMinor:     FormatMinor,
		Name:            b.name,
		Version:         b.version,
		Symbols:         b.symbols,
		Rules:           b.rules,
		States:          auto.states,
		LexModes:        auto.modes,
		Start:           b.start,
		Extras:          b.extras,
		Lexicon:         strings.Join(b.fragments, "\n"),
		Tokens:          b.tokens,
		ExternalScanner: b.scanner,
	}
	return newTable(s)
}

func (b *Builder) validate() error {
	errs := append([]error(nil), b.errs...)
	if !b.hasStart {
		errs = append(errs, errors.New("no start symbol"))
	} else if b.start >= Symbol(len(b.symbols)) || b.symbols[b.start].Kind == Terminal {
		errs = append(errs, fmt.Errorf("start symbol %d is not a non-terminal", b.start))
	}
	if len(b.symbols) > 1<<16-1 {
		errs = append(errs, fmt.Errorf("too many symbols: %d", len(b.symbols)))
	}
	hasRule := make([]bool, len(b.symbols))
	isExtra := make([]bool, len(b.symbols))
	for _, sym := range b.extras {
		if int(sym) >= len(b.symbols) || b.symbols[sym].Kind != Terminal {
			errs = append(errs, fmt.Errorf("extra %d is not a terminal", sym))
			continue
		}
		isExtra[sym] = true
	}
	for i, r := range b.rules {
		if int(r.LHS) >= len(b.symbols) || b.symbols[r.LHS].Kind == Terminal {
			errs = append(errs, fmt.Errorf("rule %d: left-hand side is not a non-terminal", i))
			continue
		}
		hasRule[r.LHS] = true
		for _, sym := range r.RHS {
			switch {
			case int(sym) >= len(b.symbols):
				errs = append(errs, fmt.Errorf("rule %d: symbol %d out of range", i, sym))
			case sym == SymbolEnd || sym == SymbolError:
				errs = append(errs, fmt.Errorf("rule %d: built-in symbol %q in right-hand side", i, b.symbols[sym].Name))
			case isExtra[sym]:
				errs = append(errs, fmt.Errorf("rule %d: extra %q in right-hand side", i, b.symbols[sym].Name))
			}
		}
	}
	for i, info := range b.symbols {
		if info.Kind != Terminal && !hasRule[i] {
			errs = append(errs, fmt.Errorf("non-terminal %q has no rules", info.Name))
		}
	}
	if b.scanner == "" {
		for _, info := range b.symbols {
			if info.External {
				errs = append(errs, fmt.Errorf("external token %q without an external scanner", info.Name))
				break
			}
		}
	}
	return errors.Join(errs...)
}
