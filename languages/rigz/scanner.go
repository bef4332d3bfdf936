package rigz

import (
	"fmt"

	"github.com/dhamidi/reparse/grammar"
	"github.com/dhamidi/reparse/lex"
)

const (
	// ScannerName is the external scanner the rigz table refers to.
	ScannerName = "rigz"
	// BlockComment is the external token for /* */ comments.
	BlockComment = "block_comment"
)

func init() {
	lex.Register(ScannerName, newScanner)
}

// scanner produces nested block comments. A comment left open at the end of
// the input runs to the end; the state after it holds the nesting depth that
// was never closed.
type scanner struct {
	blockComment grammar.Symbol
}

func newScanner(t *grammar.Table) (lex.ExternalScanner, error) {
	sym, ok := t.SymbolByName(BlockComment)
	if !ok {
		return nil, fmt.Errorf("rigz scanner: table %q has no %s token", t.Name(), BlockComment)
	}
	return &scanner{blockComment: sym}, nil
}

func (s *scanner) Scan(c *lex.Cursor, state []byte) (lex.Result, bool) {
	if !c.Valid(s.blockComment) {
		return lex.Result{}, false
	}
	if b, ok := c.Peek(0); !ok || b != '/' {
		return lex.Result{}, false
	}
	if b, ok := c.Peek(1); !ok || b != '*' {
		return lex.Result{}, false
	}

	depth := 1
	i := uint32(2)
	for depth > 0 {
		b, ok := c.Peek(i)
		if !ok {
			return lex.Result{Symbol: s.blockComment, Length: i, State: []byte{byte(min(depth, 255))}}, true
		}
		next, _ := c.Peek(i + 1)
		switch {
		case b == '/' && next == '*':
			depth++
			i += 2
		case b == '*' && next == '/':
			depth--
			i += 2
		default:
			i++
		}
	}
	return lex.Result{Symbol: s.blockComment, Length: i, State: state}, true
}
