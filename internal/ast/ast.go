// Package ast holds the loop-level syntax tree handed to the execution core by
// the front end. Only the shapes the core needs to analyse are modelled.
package ast

import "fmt"

// Pos is a source position. The zero Pos is "unknown".
type Pos struct {
	Line int
	Col  int
}

func (p Pos) IsValid() bool { return p.Line > 0 }

func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Node is implemented by every expression and statement
type Node interface {
	Position() Pos
}

// Expr is an expression node
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node
type Stmt interface {
	Node
	stmtNode()
}

// Op is a unary or binary operator
type Op uint8

const (
	OpInvalid Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpShl
	OpShr
	OpBitAnd
	OpBitOr
	OpBitXor
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpAnd // short-circuit
	OpOr  // short-circuit
	OpNeg
	OpNot
)

var opNames = [...]string{
	OpInvalid: "?",
	OpAdd:     "+",
	OpSub:     "-",
	OpMul:     "*",
	OpDiv:     "/",
	OpMod:     "%",
	OpShl:     "<<",
	OpShr:     ">>",
	OpBitAnd:  "&",
	OpBitOr:   "|",
	OpBitXor:  "^",
	OpLt:      "<",
	OpLe:      "<=",
	OpGt:      ">",
	OpGe:      ">=",
	OpEq:      "==",
	OpNe:      "!=",
	OpAnd:     "&&",
	OpOr:      "||",
	OpNeg:     "neg",
	OpNot:     "!",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// IsComparison reports whether o yields a bool from two operands.
func (o Op) IsComparison() bool {
	return o >= OpLt && o <= OpNe
}

// Faults reports whether evaluating o can raise a runtime error on well-typed
// numeric operands.
func (o Op) Faults() bool {
	return o == OpDiv || o == OpMod
}

// ----------------------------------------------------------------------------
// Expressions

type IntLit struct {
	At    Pos
	Value int64
}

type FloatLit struct {
	At    Pos
	Value float64
}

type BoolLit struct {
	At    Pos
	Value bool
}

// ArrayLit: [a, b, c]
type ArrayLit struct {
	At    Pos
	Elems []Expr
}

type Ident struct {
	At   Pos
	Name string
}

// Binary expression: x op y
type Binary struct {
	At Pos
	Op Op
	X  Expr
	Y  Expr
}

// Unary expression: -x, !x
type Unary struct {
	At Pos
	Op Op
	X  Expr
}

// Index expression: x[i]
type Index struct {
	At    Pos
	X     Expr
	Index Expr
}

// Call is a call to a function resolved by name at run time.
type Call struct {
	At   Pos
	Func string
	Args []Expr
}

func (e *IntLit) Position() Pos   { return e.At }
func (e *FloatLit) Position() Pos { return e.At }
func (e *BoolLit) Position() Pos  { return e.At }
func (e *ArrayLit) Position() Pos { return e.At }
func (e *Ident) Position() Pos    { return e.At }
func (e *Binary) Position() Pos   { return e.At }
func (e *Unary) Position() Pos    { return e.At }
func (e *Index) Position() Pos    { return e.At }
func (e *Call) Position() Pos     { return e.At }

func (*IntLit) exprNode()   {}
func (*FloatLit) exprNode() {}
func (*BoolLit) exprNode()  {}
func (*ArrayLit) exprNode() {}
func (*Ident) exprNode()    {}
func (*Binary) exprNode()   {}
func (*Unary) exprNode()    {}
func (*Index) exprNode()    {}
func (*Call) exprNode()     {}

// ----------------------------------------------------------------------------
// Statements

// Let declares a variable in the current scope: let x = expr
type Let struct {
	At    Pos
	Name  string
	Value Expr
}

// Assign updates an existing variable: x = expr
type Assign struct {
	At    Pos
	Name  string
	Value Expr
}

// CompoundAssign: x op= expr
type CompoundAssign struct {
	At    Pos
	Name  string
	Op    Op
	Value Expr
}

// IncDec: x++ or x--
type IncDec struct {
	At   Pos
	Name string
	Dec  bool
}

type If struct {
	At   Pos
	Cond Expr
	Then []Stmt
	Else []Stmt
}

type Break struct{ At Pos }

type Continue struct{ At Pos }

// Return leaves the enclosing function. Value may be nil.
type Return struct {
	At    Pos
	Value Expr
}

// ExprStmt evaluates an expression for its side effects.
type ExprStmt struct {
	At Pos
	X  Expr
}

func (s *Let) Position() Pos            { return s.At }
func (s *Assign) Position() Pos         { return s.At }
func (s *CompoundAssign) Position() Pos { return s.At }
func (s *IncDec) Position() Pos         { return s.At }
func (s *If) Position() Pos             { return s.At }
func (s *Break) Position() Pos          { return s.At }
func (s *Continue) Position() Pos       { return s.At }
func (s *Return) Position() Pos         { return s.At }
func (s *ExprStmt) Position() Pos       { return s.At }

func (*Let) stmtNode()            {}
func (*Assign) stmtNode()         {}
func (*CompoundAssign) stmtNode() {}
func (*IncDec) stmtNode()         {}
func (*If) stmtNode()             {}
func (*Break) stmtNode()          {}
func (*Continue) stmtNode()       {}
func (*Return) stmtNode()         {}
func (*ExprStmt) stmtNode()       {}
