package parser

import (
	"github.com/dhamidi/reparse/grammar"
	"github.com/dhamidi/reparse/tree"
)

const (
	// maxStalls bounds recoveries at one position before tokens are skipped.
	maxStalls = 3
	// maxMissing is the most terminals one recovery inserts.
	maxMissing = 2
	// simSteps bounds the reductions simulated for a single token.
	simSteps = 1 << 12
)

// horizonToken is a token scanned by recovery, with the extras before it.
type horizonToken struct {
	extras []token
	tok    token
}

// recover handles a lookahead the current state has no action for. Tokens
// ahead are scanned with every terminal valid, and the first repair that
// lets the parse continue is applied, trying in order for each number of
// skipped tokens: resuming directly, then inserting missing terminals. If
// nothing works, stack entries are popped into an ERROR node, and as a last
// resort the offending token is skipped. At the end of input with no repair
// left, everything parsed so far is wrapped in an ERROR node under the root,
// which is returned.
func (r *run) recover() *tree.Subtree {
	r.markFragile()
	r.recovering = true
	r.lookahead = nil
	r.queue = nil
	r.hasFollow = false
	if r.pos == r.lastRecovery {
		r.stalls++
	} else {
		r.lastRecovery = r.pos
		r.stalls = 0
	}

	toks := r.horizon()
	if r.stalls < maxStalls {
		for k := range toks {
			if k > 0 && r.viable(r.simStack(), toks[k:]) {
				r.parser.log.Debugf("recovery at %d: skipping %d tokens", r.pos, k)
				r.resume(toks, k, nil)
				return nil
			}
			if missing := r.insertion(toks[k:]); missing != nil {
				r.parser.log.Debugf("recovery at %d: skipping %d tokens, inserting %d", r.pos, k, len(missing))
				r.resume(toks, k, missing)
				return nil
			}
		}
		if d := r.popDepth(toks); d > 0 {
			r.parser.log.Debugf("recovery at %d: popping %d entries", r.pos, d)
			r.popInto(d, toks[0])
			return nil
		}
	}

	if toks[0].tok.sym == grammar.SymbolEnd {
		r.parser.log.Debugf("recovery at end of input: wrapping everything in an error")
		return r.giveUp(toks[0])
	}
	r.parser.log.Debugf("recovery at %d: skipping one token", r.pos)
	r.skip(toks[0])
	return nil
}

// markFragile marks the last node before the failing lookahead, and the
// nodes on its right edge, which were all reduced with that lookahead.
func (r *run) markFragile() {
	for i := len(r.stack) - 1; i > 0; i-- {
		if r.stack[i].extra {
			continue
		}
		r.stack[i].node = tree.Fragile(r.stack[i].node)
		return
	}
}

// horizon scans the tokens ahead in the error lex mode.
func (r *run) horizon() []horizonToken {
	mode := r.table.ErrorLexMode()
	pos, ext := r.pos, r.ext
	var out []horizonToken
	var extras []token
	for len(out) < r.parser.horizon {
		tok := tokenFrom(r.lexer.Next(pos, mode, ext))
		pos, ext = tok.end, tok.extAfter
		if reach := tok.end + tok.lookahead; reach > r.recoveryReach {
			r.recoveryReach = reach
		}
		if r.table.IsExtra(tok.sym) {
			extras = append(extras, tok)
			continue
		}
		out = append(out, horizonToken{extras: extras, tok: tok})
		extras = nil
		if tok.sym == grammar.SymbolEnd {
			break
		}
	}
	return out
}

// simStack returns the states of the non-extra stack entries.
func (r *run) simStack() []grammar.StateID {
	states := make([]grammar.StateID, 0, len(r.stack))
	for _, e := range r.stack {
		if !e.extra {
			states = append(states, e.state)
		}
	}
	return states
}

// feed simulates the parser consuming sym. It returns the new stack and
// whether sym was accepted by a shift or by accepting the input.
func (r *run) feed(states []grammar.StateID, sym grammar.Symbol) ([]grammar.StateID, bool) {
	states = append([]grammar.StateID(nil), states...)
	for step := 0; step < simSteps; step++ {
		top := states[len(states)-1]
		action, ok := r.resolve(r.table.Actions(top, sym))
		if !ok {
			return nil, false
		}
		switch action.Kind {
		case grammar.ActionShift:
			return append(states, action.State), true
		case grammar.ActionAccept:
			return states, true
		}
		rule := r.table.Rule(action.Rule)
		if len(rule.RHS) >= len(states) {
			return nil, false
		}
		states = states[:len(states)-len(rule.RHS)]
		next, ok := r.table.Goto(states[len(states)-1], rule.LHS)
		if !ok {
			return nil, false
		}
		states = append(states, next)
	}
	return nil, false
}

// viable reports whether the parse continues through the first two of toks
// from states.
func (r *run) viable(states []grammar.StateID, toks []horizonToken) bool {
	for i := 0; i < len(toks) && i < 2; i++ {
		var ok bool
		if states, ok = r.feed(states, toks[i].tok.sym); !ok {
			return false
		}
		if toks[i].tok.sym == grammar.SymbolEnd {
			return true
		}
	}
	return true
}

// insertion finds up to maxMissing terminals that make toks viable.
func (r *run) insertion(toks []horizonToken) []grammar.Symbol {
	var search func(states []grammar.StateID, prefix []grammar.Symbol) []grammar.Symbol
	search = func(states []grammar.StateID, prefix []grammar.Symbol) []grammar.Symbol {
		if len(prefix) == maxMissing {
			return nil
		}
		for _, sym := range r.table.Expected(states[len(states)-1]) {
			if sym == grammar.SymbolEnd || r.table.IsExtra(sym) {
				continue
			}
			next, ok := r.feed(states, sym)
			if !ok {
				continue
			}
			if r.viable(next, toks) {
				return append(prefix, sym)
			}
		}
		for _, sym := range r.table.Expected(states[len(states)-1]) {
			if sym == grammar.SymbolEnd || r.table.IsExtra(sym) {
				continue
			}
			next, ok := r.feed(states, sym)
			if !ok {
				continue
			}
			if found := search(next, append(prefix, sym)); found != nil {
				return found
			}
		}
		return nil
	}
	return search(r.simStack(), nil)
}

// popDepth returns how many entries to pop so that toks become viable, or 0.
func (r *run) popDepth(toks []horizonToken) int {
	states := r.simStack()
	for d := 1; d < len(states); d++ {
		if r.viable(states[:len(states)-d], toks) {
			return d
		}
	}
	return 0
}

// errorInfo returns the parse context of ERROR nodes ending at end.
func (r *run) errorInfo(end uint32) tree.Info {
	info := tree.Info{LexMode: r.table.ErrorLexMode(), FollowMode: r.table.ErrorLexMode()}
	if r.recoveryReach > end {
		info.Lookahead = r.recoveryReach - end
	}
	return info
}

// pushError pushes an ERROR node over skipped subtrees, extending the ERROR
// node of an immediately preceding skip.
func (r *run) pushError(skipped []*tree.Subtree, end uint32) {
	i := len(r.stack)
	for i > 1 && r.stack[i-1].extra && !r.stack[i-1].skipped {
		i--
	}
	if i > 1 && r.stack[i-1].skipped {
		prev := r.stack[i-1].node
		merged := make([]*tree.Subtree, 0, prev.ChildCount()+len(r.stack)-i+len(skipped))
		for c := 0; c < prev.ChildCount(); c++ {
			merged = append(merged, prev.Child(c))
		}
		for _, e := range r.stack[i:] {
			merged = append(merged, e.node)
		}
		skipped = append(merged, skipped...)
		r.stack = r.stack[:i-1]
	}
	r.push(entry{
		state:   r.top().state,
		node:    tree.NewError(skipped, r.errorInfo(end)),
		end:     end,
		extra:   true,
		skipped: true,
	})
}

func (r *run) leaves(h horizonToken) []*tree.Subtree {
	out := make([]*tree.Subtree, 0, len(h.extras)+1)
	for i := range h.extras {
		out = append(out, r.leaf(&h.extras[i]))
	}
	return append(out, r.leaf(&h.tok))
}

// resume skips toks[:k], queues the missing terminals and continues with
// toks[k].
func (r *run) resume(toks []horizonToken, k int, missing []grammar.Symbol) {
	if k > 0 {
		var skipped []*tree.Subtree
		for _, h := range toks[:k] {
			skipped = append(skipped, r.leaves(h)...)
		}
		end := toks[k-1].tok.end
		r.pushError(skipped, end)
		r.pos = end
		r.ext = toks[k-1].tok.extAfter
	}
	r.enqueue(toks[k], missing)
}

// enqueue makes h the next token, preceded by its extras and by missing
// terminals.
func (r *run) enqueue(h horizonToken, missing []grammar.Symbol) {
	r.queue = append(r.queue[:0], h.extras...)
	for _, sym := range missing {
		r.queue = append(r.queue, token{
			sym:       sym,
			start:     h.tok.start,
			end:       h.tok.start,
			mode:      r.table.ErrorLexMode(),
			extBefore: h.tok.extBefore,
			extAfter:  h.tok.extBefore,
			missing:   true,
		})
	}
	r.queue = append(r.queue, h.tok)
}

// popInto pops d non-extra entries, and the extras among them, into an ERROR
// node, then continues with h.
func (r *run) popInto(d int, h horizonToken) {
	i := len(r.stack)
	for d > 0 && i > 1 {
		i--
		if !r.stack[i].extra {
			d--
		}
	}
	popped := make([]*tree.Subtree, 0, len(r.stack)-i)
	for _, e := range r.stack[i:] {
		popped = append(popped, e.node)
	}
	end := r.top().end
	r.stack = r.stack[:i]
	r.push(entry{
		state: r.top().state,
		node:  tree.NewError(popped, r.errorInfo(end)),
		end:   end,
		extra: true,
	})
	r.enqueue(h, nil)
}

// skip wraps h in an ERROR node.
func (r *run) skip(h horizonToken) {
	r.pushError(r.leaves(h), h.tok.end)
	r.pos = h.tok.end
	r.ext = h.tok.extAfter
}

// giveUp wraps the whole stack in an ERROR node under a root of the start
// symbol.
func (r *run) giveUp(end horizonToken) *tree.Subtree {
	var nodes []*tree.Subtree
	for _, e := range r.stack[1:] {
		nodes = append(nodes, e.node)
	}
	for i := range end.extras {
		nodes = append(nodes, r.leaf(&end.extras[i]))
	}
	info := r.errorInfo(end.tok.start)
	info.Lookahead = end.tok.lookahead
	return tree.NewNode(r.table.Start(), []*tree.Subtree{tree.NewError(nodes, info)}, info)
}
