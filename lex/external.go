package lex

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dhamidi/reparse/grammar"
)

// ErrUnknownScanner is returned when a table names an external scanner that
// was never registered.
var ErrUnknownScanner = errors.New("unknown external scanner")

// ExternalScanner produces tokens the pattern rules cannot describe, such as
// nested comments. Scan must be a pure function of the input and state: it
// reads through the cursor, and returns the token and the state after it.
// The state is opaque to everything but the scanner.
type ExternalScanner interface {
	Scan(c *Cursor, state []byte) (Result, bool)
}

// ScanFunc adapts a function to ExternalScanner.
type ScanFunc func(c *Cursor, state []byte) (Result, bool)

func (f ScanFunc) Scan(c *Cursor, state []byte) (Result, bool) { return f(c, state) }

// Result is a token produced by an external scanner.
type Result struct {
	Symbol grammar.Symbol
	Length uint32
	State  []byte
}

// Cursor gives an external scanner read access to the input at the token
// start. Every byte read counts towards the token's lookahead.
type Cursor struct {
	lexer *Lexer
	start uint32
	valid []bool
}

// Start returns the absolute offset the token starts at.
func (c *Cursor) Start() uint32 { return c.start }

// Peek returns the byte i bytes past the token start.
func (c *Cursor) Peek(i uint32) (byte, bool) {
	return c.lexer.byteAt(c.start + i)
}

// Valid reports whether sym may be produced here.
func (c *Cursor) Valid(sym grammar.Symbol) bool {
	return int(sym) < len(c.valid) && c.valid[sym]
}

// Symbol looks up a terminal by name in the table being lexed.
func (c *Cursor) Symbol(name string) (grammar.Symbol, bool) {
	return c.lexer.table.SymbolByName(name)
}

// Factory creates the external scanner for a table.
type Factory func(t *grammar.Table) (ExternalScanner, error)

var registry = struct {
	sync.RWMutex
	factories map[string]Factory
}{factories: make(map[string]Factory)}

// Register makes an external scanner available under name. Tables refer to
// scanners by this name. Registering a name twice panics.
func Register(name string, f Factory) {
	registry.Lock()
	defer registry.Unlock()
	if _, ok := registry.factories[name]; ok {
		panic(fmt.Sprintf("lex: external scanner %q registered twice", name))
	}
	registry.factories[name] = f
}

// Scanners returns the names of the registered external scanners, sorted.
func Scanners() []string {
	registry.RLock()
	defer registry.RUnlock()
	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupExternal(t *grammar.Table) (ExternalScanner, error) {
	registry.RLock()
	f, ok := registry.factories[t.ExternalScanner()]
	registry.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScanner, t.ExternalScanner())
	}
	return f(t)
}
