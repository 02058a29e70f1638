package hotspot

import (
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
)

// Tier is a coarse ordinal of body complexity. It gates strategies and is
// part of the compiled loop fingerprint.
type Tier uint8

const (
	TierTrivial Tier = iota
	TierSimple
	TierModerate
	TierComplex
)

func (t Tier) String() string {
	switch t {
	case TierTrivial:
		return "trivial"
	case TierSimple:
		return "simple"
	case TierModerate:
		return "moderate"
	}
	return "complex"
}

// AccessPattern classifies how a loop body indexes arrays
type AccessPattern uint8

const (
	AccessScalarOnly AccessPattern = iota // no indexing
	AccessSequential                      // a[i], a[i+c]
	AccessStrided                         // a[i*k], a[i*k+c]
	AccessIrregular                       // anything else
)

func (p AccessPattern) String() string {
	switch p {
	case AccessScalarOnly:
		return "scalar"
	case AccessSequential:
		return "sequential"
	case AccessStrided:
		return "strided"
	}
	return "irregular"
}

// Complexity is the structural summary behind a Tier
type Complexity struct {
	Statements  int
	Depth       int // deepest statement nesting, 1 for a flat body
	Calls       int
	NestedLoops int
	Branches    int
}

// Score weighs the summary into a single number.
func (c Complexity) Score() int {
	return c.Statements + 2*(c.Depth-1) + 3*c.Calls + 4*c.NestedLoops + c.Branches
}

// Tier maps the score onto the ordinal scale.
func (c Complexity) Tier() Tier {
	switch s := c.Score(); {
	case c.Calls == 0 && c.NestedLoops == 0 && c.Branches == 0 && c.Statements <= 2:
		return TierTrivial
	case s <= 6:
		return TierSimple
	case s <= 14:
		return TierModerate
	}
	return TierComplex
}

// Measure scans a loop body.
func Measure(body []ast.Stmt) Complexity {
	var c Complexity
	measure(body, 1, &c)
	return c
}

func measure(stmts []ast.Stmt, depth int, c *Complexity) {
	if len(stmts) > 0 && depth > c.Depth {
		c.Depth = depth
	}
	for _, s := range stmts {
		c.Statements++
		ast.Inspect(s, func(n ast.Node) bool {
			if _, ok := n.(*ast.Call); ok {
				c.Calls++
			}
			// nested statements are counted by the recursion below
			if _, ok := n.(ast.Stmt); ok {
				return n == ast.Node(s)
			}
			return true
		})
		switch s := s.(type) {
		case *ast.If:
			c.Branches++
			measure(s.Then, depth+1, c)
			measure(s.Else, depth+1, c)
		case ast.Loop:
			c.NestedLoops++
			measure(s.Body(), depth+1, c)
		}
	}
}

// ClassifyComplexity returns the tier of a loop body.
func ClassifyComplexity(body []ast.Stmt) Tier {
	return Measure(body).Tier()
}

// ClassifyAccess inspects every index expression of l relative to its loop
// variable. Loops without a counter index irregularly by definition.
func ClassifyAccess(l ast.Loop) AccessPattern {
	counter := ""
	if fr, ok := l.(*ast.ForRange); ok {
		counter = fr.Var
	}

	pattern := AccessScalarOnly
	ast.InspectStmts(l.Body(), func(n ast.Node) bool {
		ix, ok := n.(*ast.Index)
		if !ok {
			return true
		}
		p := indexPattern(ix.Index, counter)
		if p > pattern {
			pattern = p
		}
		return true
	})
	return pattern
}

func indexPattern(e ast.Expr, counter string) AccessPattern {
	if counter == "" {
		return AccessIrregular
	}
	switch e := e.(type) {
	case *ast.Ident:
		if e.Name == counter {
			return AccessSequential
		}
	case *ast.Binary:
		switch e.Op {
		case ast.OpAdd, ast.OpSub:
			if isConst(e.Y) {
				return indexPattern(e.X, counter)
			}
			if e.Op == ast.OpAdd && isConst(e.X) {
				return indexPattern(e.Y, counter)
			}
		case ast.OpMul:
			if isCounter(e.X, counter) && isConst(e.Y) || isConst(e.X) && isCounter(e.Y, counter) {
				return AccessStrided
			}
		}
	}
	return AccessIrregular
}

func isConst(e ast.Expr) bool {
	_, ok := e.(*ast.IntLit)
	return ok
}

func isCounter(e ast.Expr, counter string) bool {
	id, ok := e.(*ast.Ident)
	return ok && id.Name == counter
}
