// Package interp is the tree-walking interpreter the loop core falls back to.
// It defines the reference semantics compiled loops must reproduce.
package interp

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	cnerrors "github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/errors"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/value"
)

// Signal is the control flow outcome of executing statements
type Signal uint8

const (
	SignalNone Signal = iota
	SignalBreak
	SignalContinue
	SignalReturn
)

// Result carries a control flow signal and, for return, its value.
type Result struct {
	Signal Signal
	Value  value.Value
}

// LoopRunner takes over execution of loop statements met by the interpreter.
type LoopRunner interface {
	RunLoop(in *Interpreter, l ast.Loop, env value.Environment) (Result, error)
}

// Interpreter evaluates statements against a value.Environment.
type Interpreter struct {
	Out    io.Writer
	Runner LoopRunner

	builtins map[string]Builtin
}

// New creates an interpreter writing print output to out (stdout when nil).
func New(out io.Writer) *Interpreter {
	if out == nil {
		out = os.Stdout
	}
	in := &Interpreter{Out: out, builtins: make(map[string]Builtin)}
	in.registerBuiltins()
	return in
}

// Exec runs a block in env.
func (in *Interpreter) Exec(stmts []ast.Stmt, env value.Environment) (Result, error) {
	for _, s := range stmts {
		res, err := in.ExecStmt(s, env)
		if err != nil || res.Signal != SignalNone {
			return res, err
		}
	}
	return Result{}, nil
}

// ExecStmt runs one statement.
func (in *Interpreter) ExecStmt(s ast.Stmt, env value.Environment) (Result, error) {
	switch s := s.(type) {
	case *ast.Let:
		v, err := in.Eval(s.Value, env)
		if err != nil {
			return Result{}, err
		}
		env.Declare(s.Name, v)

	case *ast.Assign:
		v, err := in.Eval(s.Value, env)
		if err != nil {
			return Result{}, err
		}
		if err := env.Assign(s.Name, v); err != nil {
			return Result{}, Fault(err, s.At)
		}

	case *ast.CompoundAssign:
		cur, ok := env.Lookup(s.Name)
		if !ok {
			return Result{}, Fault(Undefined(s.Name), s.At)
		}
		rhs, err := in.Eval(s.Value, env)
		if err != nil {
			return Result{}, err
		}
		v, err := value.Binary(s.Op, cur, rhs)
		if err != nil {
			return Result{}, Fault(err, s.At)
		}
		if err := env.Assign(s.Name, v); err != nil {
			return Result{}, Fault(err, s.At)
		}

	case *ast.IncDec:
		cur, ok := env.Lookup(s.Name)
		if !ok {
			return Result{}, Fault(Undefined(s.Name), s.At)
		}
		op := ast.OpAdd
		if s.Dec {
			op = ast.OpSub
		}
		v, err := value.Binary(op, cur, value.Int(1))
		if err != nil {
			return Result{}, Fault(err, s.At)
		}
		if err := env.Assign(s.Name, v); err != nil {
			return Result{}, Fault(err, s.At)
		}

	case *ast.If:
		c, err := in.Eval(s.Cond, env)
		if err != nil {
			return Result{}, err
		}
		if value.Truthy(c) {
			return in.Exec(s.Then, env)
		}
		return in.Exec(s.Else, env)

	case *ast.Break:
		return Result{Signal: SignalBreak}, nil

	case *ast.Continue:
		return Result{Signal: SignalContinue}, nil

	case *ast.Return:
		v := value.Nil
		if s.Value != nil {
			var err error
			if v, err = in.Eval(s.Value, env); err != nil {
				return Result{}, err
			}
		}
		return Result{Signal: SignalReturn, Value: v}, nil

	case *ast.ExprStmt:
		if _, err := in.Eval(s.X, env); err != nil {
			return Result{}, err
		}

	case ast.Loop:
		return in.RunLoop(s, env)

	default:
		return Result{}, errors.Errorf("interp: unexpected statement %T", s)
	}
	return Result{}, nil
}

// Eval evaluates an expression.
func (in *Interpreter) Eval(e ast.Expr, env value.Environment) (value.Value, error) {
	switch e := e.(type) {
	case *ast.IntLit:
		return value.Int(e.Value), nil
	case *ast.FloatLit:
		return value.Float(e.Value), nil
	case *ast.BoolLit:
		return value.Bool(e.Value), nil

	case *ast.ArrayLit:
		elems := make([]value.Value, len(e.Elems))
		for i, x := range e.Elems {
			v, err := in.Eval(x, env)
			if err != nil {
				return value.Nil, err
			}
			elems[i] = v
		}
		return value.Array(elems...), nil

	case *ast.Ident:
		v, ok := env.Lookup(e.Name)
		if !ok {
			return value.Nil, Fault(Undefined(e.Name), e.At)
		}
		return v, nil

	case *ast.Binary:
		x, err := in.Eval(e.X, env)
		if err != nil {
			return value.Nil, err
		}
		switch e.Op {
		case ast.OpAnd:
			if !value.Truthy(x) {
				return value.Bool(false), nil
			}
		case ast.OpOr:
			if value.Truthy(x) {
				return value.Bool(true), nil
			}
		}
		y, err := in.Eval(e.Y, env)
		if err != nil {
			return value.Nil, err
		}
		v, err := value.Binary(e.Op, x, y)
		if err != nil {
			return value.Nil, Fault(err, e.At)
		}
		return v, nil

	case *ast.Unary:
		x, err := in.Eval(e.X, env)
		if err != nil {
			return value.Nil, err
		}
		v, err := value.Unary(e.Op, x)
		if err != nil {
			return value.Nil, Fault(err, e.At)
		}
		return v, nil

	case *ast.Index:
		x, err := in.Eval(e.X, env)
		if err != nil {
			return value.Nil, err
		}
		i, err := in.Eval(e.Index, env)
		if err != nil {
			return value.Nil, err
		}
		v, err := value.IndexOf(x, i)
		if err != nil {
			return value.Nil, Fault(err, e.At)
		}
		return v, nil

	case *ast.Call:
		fn, ok := in.builtins[e.Func]
		if !ok {
			return value.Nil, Fault(errors.Errorf("unknown function %s", e.Func), e.At)
		}
		args := make([]value.Value, len(e.Args))
		for i, a := range e.Args {
			v, err := in.Eval(a, env)
			if err != nil {
				return value.Nil, err
			}
			args[i] = v
		}
		v, err := fn(in, args)
		if err != nil {
			return value.Nil, Fault(errors.Wrap(err, e.Func), e.At)
		}
		return v, nil
	}
	return value.Nil, errors.Errorf("interp: unexpected expression %T", e)
}

// Fault attaches a source position to a runtime error. Compiled loops use it
// too so both paths report identical errors.
func Fault(err error, at ast.Pos) error {
	return cnerrors.NewRuntimeError(err, at.Line, at.Col)
}
