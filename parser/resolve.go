package parser

import (
	"github.com/dhamidi/reparse/grammar"
)

// resolve picks one action among the candidates of a (state, terminal) pair.
// It reports false for an error entry.
func (r *run) resolve(actions []grammar.Action) (grammar.Action, bool) {
	if len(actions) == 0 {
		return grammar.Action{}, false
	}
	best := actions[0]
	for _, a := range actions[1:] {
		if r.prefer(a, best) {
			best = a
		}
	}
	return best, true
}

// prefer reports whether a beats b.
//
// Higher precedence wins. On equal precedence a left associative reduce
// beats a shift and a right associative one loses to it; otherwise the
// earlier rule wins, and a shift beats a reduce of the same rule.
func (r *run) prefer(a, b grammar.Action) bool {
	if a.Kind == grammar.ActionAccept || b.Kind == grammar.ActionAccept {
		return a.Kind == grammar.ActionAccept && b.Kind != grammar.ActionAccept
	}
	if a.Precedence != b.Precedence {
		return a.Precedence > b.Precedence
	}
	if a.Kind != b.Kind {
		reduce := a
		if a.Kind == grammar.ActionShift {
			reduce = b
		}
		switch r.table.Rule(reduce.Rule).Assoc {
		case grammar.AssocLeft:
			return a.Kind == grammar.ActionReduce
		case grammar.AssocRight:
			return a.Kind == grammar.ActionShift
		}
	}
	if a.Rule != b.Rule {
		return a.Rule < b.Rule
	}
	return a.Kind == grammar.ActionShift && b.Kind == grammar.ActionReduce
}
