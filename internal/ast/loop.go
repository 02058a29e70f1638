package ast

// LoopKind distinguishes the three loop forms: counted (for v in a..b),
// conditional (while) and collection iteration (for v in xs).
type LoopKind uint8

const (
	LoopCounted LoopKind = iota + 1
	LoopConditional
	LoopCollection
)

func (k LoopKind) String() string {
	switch k {
	case LoopCounted:
		return "counted"
	case LoopConditional:
		return "conditional"
	case LoopCollection:
		return "collection"
	}
	return "unknown"
}

// Loop is implemented by the three loop statements.
type Loop interface {
	Stmt
	Kind() LoopKind
	Body() []Stmt
}

// ForRange iterates v over the half-open range [Start, End) by Step.
// Start, End and Step are evaluated once on entry; assigning to v inside the
// body does not change the trip count. Step defaults to 1 when nil.
type ForRange struct {
	At    Pos
	Var   string
	Start Expr
	End   Expr
	Step  Expr
	Stmts []Stmt
}

// While runs Stmts as long as Cond evaluates to true.
type While struct {
	At    Pos
	Cond  Expr
	Stmts []Stmt
}

// ForEach binds Var to each element of Collection, evaluated once on entry.
type ForEach struct {
	At         Pos
	Var        string
	Collection Expr
	Stmts      []Stmt
}

func (s *ForRange) Position() Pos { return s.At }
func (s *While) Position() Pos    { return s.At }
func (s *ForEach) Position() Pos  { return s.At }

func (*ForRange) stmtNode() {}
func (*While) stmtNode()    {}
func (*ForEach) stmtNode()  {}

func (*ForRange) Kind() LoopKind { return LoopCounted }
func (*While) Kind() LoopKind    { return LoopConditional }
func (*ForEach) Kind() LoopKind  { return LoopCollection }

func (s *ForRange) Body() []Stmt { return s.Stmts }
func (s *While) Body() []Stmt    { return s.Stmts }
func (s *ForEach) Body() []Stmt  { return s.Stmts }

// LoopVar returns the variable bound by the loop header, if any.
func LoopVar(l Loop) (string, bool) {
	switch l := l.(type) {
	case *ForRange:
		return l.Var, true
	case *ForEach:
		return l.Var, true
	}
	return "", false
}
