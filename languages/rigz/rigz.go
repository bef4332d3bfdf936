// Package rigz provides the grammar table of the rigz scripting language.
//
// The grammar covers bindings (let, let mut, mut), assignments, function
// definitions, if/unless and do blocks, calls, lists, maps, unary and binary
// operators, and the literal forms: numbers, strings, symbols, booleans and
// none. Line comments start with '#'. Block comments nest and are produced
// by the external scanner registered under ScannerName.
package rigz

import (
	"sync"

	"github.com/dhamidi/reparse/grammar"
)

// Version is the language version recorded in the table.
const Version = 1

// binary operators by precedence, loosest first. All are left associative.
var binaryOperators = [][]string{
	{"||"},
	{"&&"},
	{"==", "!="},
	{"<", ">", "<=", ">="},
	{"|"},
	{"^"},
	{"&"},
	{"<<", ">>"},
	{"+", "-"},
	{"*", "/", "%"},
}

var assignOperators = []string{
	"+=", "-=", "*=", "/=", "%=", "&&=", "||=", "&=", "|=", "^=", "<<=", ">>=",
}

var (
	once     sync.Once
	table    *grammar.Table
	buildErr error
)

// Language returns the rigz grammar table. It is built on first use and
// shared afterwards.
func Language() *grammar.Table {
	once.Do(func() {
		table, buildErr = Build()
	})
	if buildErr != nil {
		panic("rigz: " + buildErr.Error())
	}
	return table
}

// Build constructs a fresh rigz grammar table.
func Build() (*grammar.Table, error) {
	b := grammar.NewBuilder("rigz").Version(Version)

	b.Fragment("digit", `"0" … "9"`)
	b.Fragment("letter", `"a" … "z" | "A" … "Z" | "_"`)
	b.Fragment("high", `"\u0080" … "\U0010FFFF"`)
	b.Fragment("dqchar", `" " … "!" | "#" … "~" | "\t" | high`)
	b.Fragment("sqchar", `" " … "&" | "(" … "~" | "\t" | high`)
	b.Fragment("bqchar", `" " … "_" | "a" … "~" | "\t" | high`)

	number := b.Token("number", `digit { digit | "_" } [ "." digit { digit | "_" } ]`)
	str := b.Token("string", `"\"" { dqchar } "\"" | "'" { sqchar } "'" | "\x60" { bqchar } "\x60"`)
	symbol := b.Token("symbol", `":" ( letter | digit ) { letter | digit }`)
	ident := b.Token("identifier", `( letter | "$" ) { letter | digit }`)
	ws := b.Token("whitespace", `( " " | "\t" | "\n" | "\r" | "\f" ) { " " | "\t" | "\n" | "\r" | "\f" }`)
	comment := b.Token("comment", `"#" { " " … "\U0010FFFF" | "\t" }`)
	blockComment := b.External(BlockComment)
	b.ExternalScanner(ScannerName)
	b.Extra(ws, comment, blockComment)

	lit := b.Literal
	kwLet, kwMut, kwFn, kwEnd := lit("let"), lit("mut"), lit("fn"), lit("end")
	kwIf, kwUnless, kwElse, kwDo := lit("if"), lit("unless"), lit("else"), lit("do")
	kwTrue, kwFalse, kwNone := lit("true"), lit("false"), lit("none")
	lparen, rparen := lit("("), lit(")")
	lbracket, rbracket := lit("["), lit("]")
	lcurly, rcurly := lit("{"), lit("}")
	comma, semi, assign := lit(","), lit(";"), lit("=")
	bang, minus := lit("!"), lit("-")

	program := b.NonTerminal("program")
	statements := b.Hidden("_statements")
	item := b.Hidden("_item")
	statement := b.Hidden("_statement")
	block := b.NonTerminal("block")
	letBinding := b.NonTerminal("let_binding")
	assignment := b.NonTerminal("assignment")
	function := b.NonTerminal("function_definition")
	parameters := b.NonTerminal("parameters")
	params := b.Hidden("_parameter_list")
	expr := b.Hidden("_expression")
	primary := b.Hidden("_primary")
	binary := b.NonTerminal("binary_expression")
	unary := b.NonTerminal("unary_expression")
	call := b.NonTerminal("call")
	arguments := b.NonTerminal("arguments")
	exprs := b.Hidden("_expression_list")
	list := b.NonTerminal("list")
	mapLit := b.NonTerminal("map")
	entries := b.Hidden("_map_entries")
	entry := b.NonTerminal("map_entry")
	key := b.Hidden("_map_key")
	paren := b.NonTerminal("parenthesized_expression")
	ifExpr := b.NonTerminal("if_expression")
	unlessExpr := b.NonTerminal("unless_expression")
	doBlock := b.NonTerminal("do_block")
	boolean := b.NonTerminal("boolean")

	b.Rule(program)
	b.Rule(program, statements)
	b.Rule(statements, item)
	b.Rule(statements, statements, item)
	b.Rule(item, statement)
	b.Rule(item, semi)
	b.Rule(block, statements)

	b.Rule(statement, letBinding)
	b.Rule(statement, assignment)
	b.Rule(statement, function)
	b.Rule(statement, expr)

	b.Rule(letBinding, kwLet, ident, assign, expr)
	b.Rule(letBinding, kwLet, kwMut, ident, assign, expr)
	b.Rule(letBinding, kwMut, ident, assign, expr)

	b.Rule(assignment, ident, assign, expr)
	for _, op := range assignOperators {
		b.Rule(assignment, ident, lit(op), expr)
	}

	b.Rule(function, kwFn, ident, parameters, kwEnd)
	b.Rule(function, kwFn, ident, parameters, block, kwEnd)
	b.Rule(parameters, lparen, rparen)
	b.Rule(parameters, lparen, params, rparen)
	b.Rule(params, ident)
	b.Rule(params, params, comma, ident)

	b.Rule(expr, binary)
	b.Rule(expr, unary)
	b.Rule(expr, primary)

	for i, level := range binaryOperators {
		for _, op := range level {
			b.Rule(binary, expr, lit(op), expr).Prec(i + 1).Left()
		}
	}
	unaryPrec := len(binaryOperators) + 1
	b.Rule(unary, bang, expr).Prec(unaryPrec)
	b.Rule(unary, minus, expr).Prec(unaryPrec)

	b.Rule(primary, ident)
	b.Rule(primary, number)
	b.Rule(primary, str)
	b.Rule(primary, symbol)
	b.Rule(primary, boolean)
	b.Rule(primary, kwNone)
	b.Rule(primary, call)
	b.Rule(primary, list)
	b.Rule(primary, mapLit)
	b.Rule(primary, paren)
	b.Rule(primary, ifExpr)
	b.Rule(primary, unlessExpr)
	b.Rule(primary, doBlock)

	b.Rule(boolean, kwTrue)
	b.Rule(boolean, kwFalse)

	// A parenthesis right after a name always opens call arguments.
	b.Rule(call, ident, arguments)
	b.Rule(arguments, lparen, rparen).Prec(unaryPrec + 1)
	b.Rule(arguments, lparen, exprs, rparen).Prec(unaryPrec + 1)
	b.Rule(exprs, expr)
	b.Rule(exprs, exprs, comma, expr)

	b.Rule(list, lbracket, rbracket)
	b.Rule(list, lbracket, exprs, rbracket)

	b.Rule(mapLit, lcurly, rcurly)
	b.Rule(mapLit, lcurly, entries, rcurly)
	b.Rule(entries, entry)
	b.Rule(entries, entries, comma, entry)
	b.Rule(entry, key, assign, expr)
	b.Rule(key, ident)
	b.Rule(key, str)
	b.Rule(key, number)
	b.Rule(key, symbol)

	b.Rule(paren, lparen, expr, rparen)

	for _, c := range []struct {
		sym     grammar.Symbol
		keyword grammar.Symbol
	}{{ifExpr, kwIf}, {unlessExpr, kwUnless}} {
		b.Rule(c.sym, c.keyword, expr, kwEnd)
		b.Rule(c.sym, c.keyword, expr, block, kwEnd)
		b.Rule(c.sym, c.keyword, expr, kwElse, block, kwEnd)
		b.Rule(c.sym, c.keyword, expr, block, kwElse, block, kwEnd)
	}

	b.Rule(doBlock, kwDo, kwEnd)
	b.Rule(doBlock, kwDo, block, kwEnd)

	b.Start(program)
	return b.Build()
}
