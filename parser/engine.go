package parser

import (
	"context"
	"fmt"

	"github.com/dhamidi/reparse/grammar"
	"github.com/dhamidi/reparse/lex"
	"github.com/dhamidi/reparse/source"
	"github.com/dhamidi/reparse/tree"
)

// entry is one element of the parse stack.
type entry struct {
	state grammar.StateID
	node  *tree.Subtree
	end   uint32

	// extra entries, extras and ERROR nodes pushed by recovery, keep the
	// state below them and are not counted by reductions.
	extra bool
	// skipped marks ERROR nodes of skipped tokens, which later skips extend.
	skipped bool
}

// token is a lookahead terminal.
type token struct {
	sym        grammar.Symbol
	start, end uint32
	lookahead  uint32
	mode       grammar.LexModeID
	extBefore  []byte
	extAfter   []byte
	missing    bool

	// leaf is set when the token is a leaf of the previous tree.
	leaf *tree.Subtree
}

func tokenFrom(t lex.Token) token {
	return token{
		sym:       t.Symbol,
		start:     t.Start,
		end:       t.End,
		lookahead: t.Lookahead,
		mode:      t.Mode,
		extBefore: t.ExtState,
		extAfter:  t.ExtAfter,
	}
}

// run is the state of a single parse.
type run struct {
	parser *Parser
	ctx    context.Context
	table  *grammar.Table
	lexer  *lex.Lexer
	input  source.Input
	reuse  *reuseCursor

	stack     []entry
	pos       uint32
	ext       []byte
	lookahead *token
	queue     []token

	// After a reused subtree the next token is scanned in the lex mode the
	// subtree was followed by.
	follow    grammar.LexModeID
	hasFollow bool

	recovering    bool
	recoveryReach uint32
	lastRecovery  uint32
	stalls        int

	ops          int
	reusedNodes  int
	reusedLeaves int
}

func (r *run) top() entry { return r.stack[len(r.stack)-1] }

func (r *run) push(e entry) { r.stack = append(r.stack, e) }

// tick counts an operation and checks for cancellation every check interval.
func (r *run) tick() error {
	r.ops++
	if r.ops%r.parser.checkInterval != 0 {
		return nil
	}
	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if limit := r.parser.operationLimit; limit > 0 && r.ops > limit {
		return fmt.Errorf("%w: operation limit %d reached", ErrCancelled, limit)
	}
	return nil
}

func (r *run) parse() (*tree.Subtree, error) {
	r.stack = append(r.stack[:0], entry{state: 0})
	r.lastRecovery = ^uint32(0)
	for {
		if err := r.tick(); err != nil {
			return nil, err
		}
		if r.lookahead == nil && len(r.queue) == 0 && r.reuse != nil && !r.recovering {
			if r.reuseNode() {
				continue
			}
		}

		tok := r.current()
		if r.table.IsExtra(tok.sym) && !tok.missing {
			r.shiftExtra(tok)
			continue
		}
		action, ok := r.resolve(r.table.Actions(r.top().state, tok.sym))
		if !ok {
			if root := r.recover(); root != nil {
				return root, nil
			}
			continue
		}
		switch action.Kind {
		case grammar.ActionShift:
			r.shift(action.State, tok)
		case grammar.ActionReduce:
			r.reduce(action.Rule, tok)
		case grammar.ActionAccept:
			return r.accept(tok), nil
		}
	}
}

// lexMode returns the mode the next token is scanned in.
func (r *run) lexMode() grammar.LexModeID {
	if r.hasFollow {
		return r.follow
	}
	return r.table.LexMode(r.top().state)
}

// current returns the lookahead token, scanning it if needed.
func (r *run) current() *token {
	if r.lookahead != nil {
		return r.lookahead
	}
	if len(r.queue) > 0 {
		tok := r.queue[0]
		r.queue = r.queue[1:]
		r.lookahead = &tok
		return r.lookahead
	}
	tok := r.next(r.lexMode())
	if !r.table.IsExtra(tok.sym) {
		r.hasFollow = false
	}
	r.lookahead = &tok
	return r.lookahead
}

// consume advances past tok.
func (r *run) consume(tok *token) {
	r.lookahead = nil
	r.pos = tok.end
	r.ext = tok.extAfter
}

// leaf returns the subtree for tok.
func (r *run) leaf(tok *token) *tree.Subtree {
	if tok.leaf != nil {
		return tok.leaf
	}
	info := tree.Info{
		LexMode:   tok.mode,
		Lookahead: tok.lookahead,
		ExtStart:  tok.extBefore,
		ExtEnd:    tok.extAfter,
		Fragile:   tok.missing || tok.mode == r.table.ErrorLexMode(),
	}
	if tok.missing {
		return tree.NewMissing(tok.sym, info)
	}
	return tree.NewLeaf(tok.sym, tok.end-tok.start, r.table.IsExtra(tok.sym), info)
}

func (r *run) shift(state grammar.StateID, tok *token) {
	r.push(entry{state: state, node: r.leaf(tok), end: tok.end})
	r.consume(tok)
	if !tok.missing && r.recovering {
		r.recovering = false
		r.parser.log.Debugf("recovered at %d", tok.start)
	}
}

func (r *run) shiftExtra(tok *token) {
	r.push(entry{state: r.top().state, node: r.leaf(tok), end: tok.end, extra: true})
	r.consume(tok)
}

// reach returns the lookahead of a node ending at end that was reduced with
// next as its lookahead token.
func (r *run) reach(end uint32, next *token) uint32 {
	reach := next.end + next.lookahead
	if r.recoveryReach > reach {
		reach = r.recoveryReach
	}
	if reach <= end {
		return 0
	}
	return reach - end
}

func (r *run) reduce(ruleID uint16, next *token) {
	rule := r.table.Rule(ruleID)

	// Trailing extras stay outside the new node.
	i := len(r.stack)
	for i > 1 && r.stack[i-1].extra {
		i--
	}
	j := i
	for n := len(rule.RHS); n > 0 && j > 1; {
		j--
		if !r.stack[j].extra {
			n--
		}
	}

	children := make([]*tree.Subtree, 0, i-j)
	for _, e := range r.stack[j:i] {
		children = append(children, e.node)
	}
	trailing := append([]entry(nil), r.stack[i:]...)

	base := r.stack[j-1].state
	end := r.stack[i-1].end
	state, ok := r.table.Goto(base, rule.LHS)
	if !ok {
		r.parser.log.Errorf("no goto from state %d on %s", base, r.table.SymbolName(rule.LHS))
		state = base
	}
	node := tree.NewNode(rule.LHS, children, tree.Info{
		State:      base,
		LexMode:    next.mode,
		FollowMode: next.mode,
		Lookahead:  r.reach(end, next),
		ExtStart:   next.extBefore,
		ExtEnd:     next.extBefore,
		Fragile:    r.recovering || next.missing || next.mode == r.table.ErrorLexMode(),
	})

	r.stack = append(r.stack[:j], entry{state: state, node: node, end: end})
	for _, e := range trailing {
		e.state = state
		r.push(e)
	}
}

// accept builds the root from the start symbol node and the extras and
// errors around it.
func (r *run) accept(next *token) *tree.Subtree {
	start := r.table.Start()
	var children []*tree.Subtree
	for _, e := range r.stack[1:] {
		if e.extra || e.node.Symbol() != start {
			children = append(children, e.node)
			continue
		}
		for i := 0; i < e.node.ChildCount(); i++ {
			children = append(children, e.node.Child(i))
		}
	}
	return tree.NewNode(start, children, tree.Info{
		LexMode:    next.mode,
		FollowMode: next.mode,
		Lookahead:  r.reach(r.top().end, next),
		ExtStart:   next.extBefore,
		ExtEnd:     next.extBefore,
	})
}
