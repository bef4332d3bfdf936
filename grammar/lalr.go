package grammar

import (
	"fmt"
	"math/bits"
	"sort"
	"strconv"
	"strings"
)

// bitset is a set of symbols.
type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (s bitset) add(sym Symbol) {
	s[sym/64] |= 1 << (sym % 64)
}

func (s bitset) has(sym Symbol) bool {
	return s[sym/64]&(1<<(sym%64)) != 0
}

// union adds o to s and reports whether s grew.
func (s bitset) union(o bitset) bool {
	changed := false
	for i := range s {
		n := s[i] | o[i]
		if n != s[i] {
			s[i] = n
			changed = true
		}
	}
	return changed
}

func (s bitset) clone() bitset {
	return append(bitset(nil), s...)
}

func (s bitset) each(fn func(Symbol)) {
	for i, word := range s {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			fn(Symbol(i*64 + b))
			word &^= 1 << b
		}
	}
}

// production is a rule; production 0 is the augmented start rule.
type production struct {
	lhs  Symbol
	rhs  []Symbol
	prec int
}

type lrItem struct {
	prod int
	dot  int
}

type lrState struct {
	kernel []lrItem
	la     map[lrItem]bitset
	items  []lrItem
	itemLA map[lrItem]bitset
	trans  map[Symbol]int
}

type automaton struct {
	states []State
	modes  []LexMode
}

type lalrBuilder struct {
	symbols  []SymbolInfo
	prods    []production
	byLHS    map[Symbol][]int
	nullable []bool
	first    []bitset
	states   []*lrState
	index    map[string]int
}

// buildAutomaton computes LALR(1) parse states by merging LR(1) states with
// equal cores as they are discovered, propagating grown lookaheads until a
// fixed point is reached. Conflicting actions are kept; the parse engine
// resolves them.
func buildAutomaton(symbols []SymbolInfo, rules []Rule, start Symbol) (*automaton, error) {
	lb := &lalrBuilder{
		symbols: symbols,
		byLHS:   make(map[Symbol][]int),
		index:   make(map[string]int),
	}
	lb.prods = append(lb.prods, production{rhs: []Symbol{start}})
	for _, r := range rules {
		lb.byLHS[r.LHS] = append(lb.byLHS[r.LHS], len(lb.prods))
		lb.prods = append(lb.prods, production{lhs: r.LHS, rhs: r.RHS, prec: r.Precedence})
	}
	lb.computeFirst()
	if err := lb.collect(); err != nil {
		return nil, err
	}
	return lb.tables(), nil
}

func (lb *lalrBuilder) terminal(sym Symbol) bool {
	return lb.symbols[sym].Kind == Terminal
}

func (lb *lalrBuilder) computeFirst() {
	n := len(lb.symbols)
	lb.nullable = make([]bool, n)
	lb.first = make([]bitset, n)
	for i := range lb.first {
		lb.first[i] = newBitset(n)
		if lb.terminal(Symbol(i)) {
			lb.first[i].add(Symbol(i))
		}
	}
	for changed := true; changed; {
		changed = false
		for _, p := range lb.prods[1:] {
			allNullable := true
			for _, sym := range p.rhs {
				if lb.first[p.lhs].union(lb.first[sym]) {
					changed = true
				}
				if !lb.nullable[sym] {
					allNullable = false
					break
				}
			}
			if allNullable && !lb.nullable[p.lhs] {
				lb.nullable[p.lhs] = true
				changed = true
			}
		}
	}
}

// firstOf returns FIRST(seq) plus la when seq is nullable.
func (lb *lalrBuilder) firstOf(seq []Symbol, la bitset) bitset {
	out := newBitset(len(lb.symbols))
	for _, sym := range seq {
		out.union(lb.first[sym])
		if !lb.nullable[sym] {
			return out
		}
	}
	out.union(la)
	return out
}

func kernelKey(items []lrItem) string {
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString(strconv.Itoa(it.prod))
		sb.WriteByte('.')
		sb.WriteString(strconv.Itoa(it.dot))
		sb.WriteByte(',')
	}
	return sb.String()
}

func (lb *lalrBuilder) closure(st *lrState) {
	st.items = append(st.items[:0], st.kernel...)
	st.itemLA = make(map[lrItem]bitset, len(st.kernel))
	for _, it := range st.kernel {
		st.itemLA[it] = st.la[it].clone()
	}
	queue := append([]lrItem(nil), st.kernel...)
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		p := lb.prods[it.prod]
		if it.dot >= len(p.rhs) || lb.terminal(p.rhs[it.dot]) {
			continue
		}
		la := lb.firstOf(p.rhs[it.dot+1:], st.itemLA[it])
		for _, prod := range lb.byLHS[p.rhs[it.dot]] {
			next := lrItem{prod: prod}
			if cur, ok := st.itemLA[next]; ok {
				if cur.union(la) {
					queue = append(queue, next)
				}
				continue
			}
			st.itemLA[next] = la.clone()
			st.items = append(st.items, next)
			queue = append(queue, next)
		}
	}
}

func (lb *lalrBuilder) collect() error {
	end := newBitset(len(lb.symbols))
	end.add(SymbolEnd)
	first := []lrItem{{prod: 0}}
	lb.states = []*lrState{{kernel: first, la: map[lrItem]bitset{first[0]: end}}}
	lb.index[kernelKey(first)] = 0

	queued := map[int]bool{0: true}
	work := []int{0}
	for len(work) > 0 {
		id := work[0]
		work = work[1:]
		queued[id] = false
		st := lb.states[id]
		lb.closure(st)

		advanced := make(map[Symbol][]lrItem)
		var order []Symbol
		for _, it := range st.items {
			p := lb.prods[it.prod]
			if it.dot >= len(p.rhs) {
				continue
			}
			sym := p.rhs[it.dot]
			if _, ok := advanced[sym]; !ok {
				order = append(order, sym)
			}
			advanced[sym] = append(advanced[sym], lrItem{prod: it.prod, dot: it.dot + 1})
		}
		sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

		st.trans = make(map[Symbol]int, len(order))
		for _, sym := range order {
			kernel := advanced[sym]
			sort.Slice(kernel, func(i, j int) bool {
				if kernel[i].prod != kernel[j].prod {
					return kernel[i].prod < kernel[j].prod
				}
				return kernel[i].dot < kernel[j].dot
			})
			key := kernelKey(kernel)
			target, ok := lb.index[key]
			if !ok {
				if len(lb.states) >= 1<<16-1 {
					return fmt.Errorf("too many parse states")
				}
				target = len(lb.states)
				la := make(map[lrItem]bitset, len(kernel))
				for _, it := range kernel {
					la[it] = st.itemLA[lrItem{prod: it.prod, dot: it.dot - 1}].clone()
				}
				lb.states = append(lb.states, &lrState{kernel: kernel, la: la})
				lb.index[key] = target
				work = append(work, target)
				queued[target] = true
			} else {
				grew := false
				for _, it := range kernel {
					if lb.states[target].la[it].union(st.itemLA[lrItem{prod: it.prod, dot: it.dot - 1}]) {
						grew = true
					}
				}
				if grew && !queued[target] {
					work = append(work, target)
					queued[target] = true
				}
			}
			st.trans[sym] = target
		}
	}
	for _, st := range lb.states {
		lb.closure(st)
	}
	return nil
}

func (lb *lalrBuilder) tables() *automaton {
	auto := &automaton{}
	modeIndex := make(map[string]LexModeID)
	for _, st := range lb.states {
		entries := make(map[Symbol][]Action)
		shifts := make(map[Symbol]int)
		var gotos []Goto
		for _, it := range st.items {
			p := lb.prods[it.prod]
			if it.dot == len(p.rhs) {
				if it.prod == 0 {
					entries[SymbolEnd] = append(entries[SymbolEnd], Action{Kind: ActionAccept})
					continue
				}
				rule := uint16(it.prod - 1)
				st.itemLA[it].each(func(sym Symbol) {
					for _, a := range entries[sym] {
						if a.Kind == ActionReduce && a.Rule == rule {
							return
						}
					}
					entries[sym] = append(entries[sym], Action{Kind: ActionReduce, Rule: rule, Precedence: p.prec})
				})
				continue
			}
			sym := p.rhs[it.dot]
			if !lb.terminal(sym) {
				continue
			}
			i, ok := shifts[sym]
			if !ok {
				shifts[sym] = len(entries[sym])
				entries[sym] = append(entries[sym], Action{
					Kind:       ActionShift,
					State:      StateID(st.trans[sym]),
					Rule:       uint16(it.prod - 1),
					Precedence: p.prec,
				})
				continue
			}
			a := &entries[sym][i]
			if p.prec > a.Precedence {
				a.Precedence = p.prec
			}
			if uint16(it.prod-1) < a.Rule {
				a.Rule = uint16(it.prod - 1)
			}
		}
		for sym, target := range st.trans {
			if !lb.terminal(sym) {
				gotos = append(gotos, Goto{Symbol: sym, State: StateID(target)})
			}
		}
		sort.Slice(gotos, func(i, j int) bool { return gotos[i].Symbol < gotos[j].Symbol })

		state := State{Gotos: gotos}
		var valid []Symbol
		for sym, actions := range entries {
			sort.SliceStable(actions, func(i, j int) bool {
				if actions[i].Kind != actions[j].Kind {
					return actions[i].Kind < actions[j].Kind
				}
				return actions[i].Rule < actions[j].Rule
			})
			state.Actions = append(state.Actions, ActionEntry{Symbol: sym, Actions: actions})
			valid = append(valid, sym)
		}
		sort.Slice(state.Actions, func(i, j int) bool { return state.Actions[i].Symbol < state.Actions[j].Symbol })
		sort.Slice(valid, func(i, j int) bool { return valid[i] < valid[j] })

		key := fmt.Sprint(valid)
		mode, ok := modeIndex[key]
		if !ok {
			mode = LexModeID(len(auto.modes))
			modeIndex[key] = mode
			auto.modes = append(auto.modes, LexMode{Valid: valid})
		}
		state.LexMode = mode
		auto.states = append(auto.states, state)
	}
	return auto
}
