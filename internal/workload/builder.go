// Package workload builds the loop programs used by the command line driver,
// the benchmarks and the end-to-end tests. Programs are constructed directly
// as syntax trees; every node gets a distinct source position so each loop is
// its own profiling site.
package workload

import (
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
)

// Builder hands out positions on one column, a line per node.
type Builder struct {
	col  int
	line int
}

// NewBuilder creates a builder whose nodes all sit in column col. Programs
// built with different columns never share loop sites.
func NewBuilder(col int) *Builder {
	return &Builder{col: col}
}

func (b *Builder) at() ast.Pos {
	b.line++
	return ast.Pos{Line: b.line, Col: b.col}
}

func (b *Builder) Int(v int64) ast.Expr    { return &ast.IntLit{At: b.at(), Value: v} }
func (b *Builder) Float(v float64) ast.Expr { return &ast.FloatLit{At: b.at(), Value: v} }
func (b *Builder) Bool(v bool) ast.Expr    { return &ast.BoolLit{At: b.at(), Value: v} }
func (b *Builder) Ident(name string) ast.Expr {
	return &ast.Ident{At: b.at(), Name: name}
}

func (b *Builder) Bin(op ast.Op, x, y ast.Expr) ast.Expr {
	return &ast.Binary{At: b.at(), Op: op, X: x, Y: y}
}

func (b *Builder) Neg(x ast.Expr) ast.Expr { return &ast.Unary{At: b.at(), Op: ast.OpNeg, X: x} }
func (b *Builder) Not(x ast.Expr) ast.Expr { return &ast.Unary{At: b.at(), Op: ast.OpNot, X: x} }

func (b *Builder) Index(x, i ast.Expr) ast.Expr {
	return &ast.Index{At: b.at(), X: x, Index: i}
}

func (b *Builder) Call(fn string, args ...ast.Expr) ast.Expr {
	return &ast.Call{At: b.at(), Func: fn, Args: args}
}

// Ints is an array literal of the integers [0, n).
func (b *Builder) Ints(n int) ast.Expr {
	elems := make([]ast.Expr, n)
	for i := range elems {
		elems[i] = b.Int(int64(i))
	}
	return &ast.ArrayLit{At: b.at(), Elems: elems}
}

func (b *Builder) Let(name string, v ast.Expr) ast.Stmt {
	return &ast.Let{At: b.at(), Name: name, Value: v}
}

func (b *Builder) Set(name string, v ast.Expr) ast.Stmt {
	return &ast.Assign{At: b.at(), Name: name, Value: v}
}

// Op is name op= v.
func (b *Builder) Op(name string, op ast.Op, v ast.Expr) ast.Stmt {
	return &ast.CompoundAssign{At: b.at(), Name: name, Op: op, Value: v}
}

func (b *Builder) Inc(name string) ast.Stmt { return &ast.IncDec{At: b.at(), Name: name} }
func (b *Builder) Dec(name string) ast.Stmt { return &ast.IncDec{At: b.at(), Name: name, Dec: true} }

func (b *Builder) If(cond ast.Expr, then []ast.Stmt, els ...ast.Stmt) ast.Stmt {
	return &ast.If{At: b.at(), Cond: cond, Then: then, Else: els}
}

func (b *Builder) Break() ast.Stmt    { return &ast.Break{At: b.at()} }
func (b *Builder) Continue() ast.Stmt { return &ast.Continue{At: b.at()} }

func (b *Builder) Return(v ast.Expr) ast.Stmt { return &ast.Return{At: b.at(), Value: v} }

func (b *Builder) Expr(x ast.Expr) ast.Stmt { return &ast.ExprStmt{At: b.at(), X: x} }

// For is for v in start..end with step 1.
func (b *Builder) For(v string, start, end ast.Expr, body ...ast.Stmt) *ast.ForRange {
	return &ast.ForRange{At: b.at(), Var: v, Start: start, End: end, Stmts: body}
}

// ForStep is for v in start..end by step.
func (b *Builder) ForStep(v string, start, end, step ast.Expr, body ...ast.Stmt) *ast.ForRange {
	return &ast.ForRange{At: b.at(), Var: v, Start: start, End: end, Step: step, Stmts: body}
}

func (b *Builder) While(cond ast.Expr, body ...ast.Stmt) *ast.While {
	return &ast.While{At: b.at(), Cond: cond, Stmts: body}
}

func (b *Builder) Each(v string, coll ast.Expr, body ...ast.Stmt) *ast.ForEach {
	return &ast.ForEach{At: b.at(), Var: v, Collection: coll, Stmts: body}
}
