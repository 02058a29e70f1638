package memory

import (
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
)

// Role is how a promoted variable is used by its loop
type Role uint8

const (
	RoleTemporary Role = iota
	RoleCounter
	RoleAccumulator
)

func (r Role) String() string {
	switch r {
	case RoleCounter:
		return "counter"
	case RoleAccumulator:
		return "accumulator"
	}
	return "temporary"
}

// Classify assigns a role to every variable of shape, indexed canonically.
// The loop variable and variables stepped by a constant (x++, x += 2) are
// counters; a variable whose first access in the body is a read of itself is
// an accumulator; anything written before it is read is a temporary.
func Classify(l ast.Loop, shape *ast.Shape) []Role {
	roles := make([]Role, len(shape.Names))
	c := &classifier{
		shape: shape,
		first: make([]access, len(shape.Names)),
		step:  make([]bool, len(shape.Names)),
		other: make([]bool, len(shape.Names)),
	}
	c.block(l.Body())

	for i := range shape.Names {
		switch {
		case i == shape.Counter:
			roles[i] = RoleCounter
		case c.step[i] && !c.other[i]:
			roles[i] = RoleCounter
		case c.first[i] == accessRead && shape.Assigned(i):
			roles[i] = RoleAccumulator
		default:
			roles[i] = RoleTemporary
		}
	}
	return roles
}

type access uint8

const (
	accessNone access = iota
	accessRead
	accessWrite
)

type classifier struct {
	shape *ast.Shape
	first []access
	step  []bool // stepped by a constant
	other []bool // written any other way
}

func (c *classifier) touch(name string, a access) {
	if i, ok := c.shape.Index(name); ok && c.first[i] == accessNone {
		c.first[i] = a
	}
}

func (c *classifier) reads(e ast.Expr) {
	ast.Inspect(e, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok {
			c.touch(id.Name, accessRead)
		}
		return true
	})
}

func (c *classifier) written(name string, constStep bool) {
	i, ok := c.shape.Index(name)
	if !ok {
		return
	}
	if constStep {
		c.step[i] = true
	} else {
		c.other[i] = true
	}
}

func (c *classifier) block(stmts []ast.Stmt) {
	for _, s := range stmts {
		c.stmt(s)
	}
}

func (c *classifier) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Let:
		c.reads(s.Value)
		c.touch(s.Name, accessWrite)
		c.written(s.Name, false)
	case *ast.Assign:
		c.reads(s.Value)
		c.touch(s.Name, accessWrite)
		c.written(s.Name, false)
	case *ast.CompoundAssign:
		c.touch(s.Name, accessRead)
		c.reads(s.Value)
		_, lit := s.Value.(*ast.IntLit)
		c.written(s.Name, lit && (s.Op == ast.OpAdd || s.Op == ast.OpSub))
	case *ast.IncDec:
		c.touch(s.Name, accessRead)
		c.written(s.Name, true)
	case *ast.If:
		c.reads(s.Cond)
		c.block(s.Then)
		c.block(s.Else)
	case *ast.Return:
		if s.Value != nil {
			c.reads(s.Value)
		}
	case *ast.ExprStmt:
		c.reads(s.X)
	case *ast.ForRange:
		c.reads(s.Start)
		c.reads(s.End)
		if s.Step != nil {
			c.reads(s.Step)
		}
		c.touch(s.Var, accessWrite)
		c.written(s.Var, false)
		c.block(s.Stmts)
	case *ast.ForEach:
		c.reads(s.Collection)
		c.touch(s.Var, accessWrite)
		c.written(s.Var, false)
		c.block(s.Stmts)
	case *ast.While:
		c.reads(s.Cond)
		c.block(s.Stmts)
	}
}
