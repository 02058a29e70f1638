package interp

import (
	"github.com/pkg/errors"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	cnerrors "github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/errors"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/value"
)

// ErrZeroStep is raised by a counted loop whose step evaluates to 0.
var ErrZeroStep = errors.New("loop step is zero")

// Header holds the loop header values, evaluated once on entry.
type Header struct {
	Start, End, Step int64
	Elems            []value.Value // collection loops
}

// Trips returns the iteration count of a counted loop header. The count is
// computed without overflow for any start, end and non-zero step.
func (h Header) Trips() uint64 {
	switch {
	case h.Step > 0 && h.Start < h.End:
		return ceilDiv(uint64(h.End-h.Start), uint64(h.Step))
	case h.Step < 0 && h.Start > h.End:
		return ceilDiv(uint64(h.Start-h.End), uint64(-h.Step))
	}
	return 0
}

func ceilDiv(a, b uint64) uint64 {
	n := a / b
	if a%b != 0 {
		n++
	}
	return n
}

// EvalHeader evaluates the header of l in env. While loops have no header.
func (in *Interpreter) EvalHeader(l ast.Loop, env value.Environment) (Header, error) {
	var h Header
	switch l := l.(type) {
	case *ast.ForRange:
		var err error
		if h.Start, err = in.evalBound(l.Start, env); err != nil {
			return h, err
		}
		if h.End, err = in.evalBound(l.End, env); err != nil {
			return h, err
		}
		h.Step = 1
		if l.Step != nil {
			if h.Step, err = in.evalBound(l.Step, env); err != nil {
				return h, err
			}
			if err = CheckStep(h.Step, l.At); err != nil {
				return h, err
			}
		}
	case *ast.ForEach:
		v, err := in.Eval(l.Collection, env)
		if err != nil {
			return h, err
		}
		if h.Elems, err = Collection(v, l.At); err != nil {
			return h, err
		}
	}
	return h, nil
}

func (in *Interpreter) evalBound(e ast.Expr, env value.Environment) (int64, error) {
	v, err := in.Eval(e, env)
	if err != nil {
		return 0, err
	}
	return Bound(v, e.Position())
}

// Bound checks a counted loop start, end or step value.
func Bound(v value.Value, at ast.Pos) (int64, error) {
	if v.Kind != value.KindInt {
		return 0, Fault(errors.Wrapf(value.ErrType, "loop bound is %s", v.Kind), at)
	}
	return v.Int, nil
}

// CheckStep rejects a zero step.
func CheckStep(step int64, at ast.Pos) error {
	if step == 0 {
		return Fault(ErrZeroStep, at)
	}
	return nil
}

// Collection checks the value iterated by a collection loop.
func Collection(v value.Value, at ast.Pos) ([]value.Value, error) {
	if v.Kind != value.KindArray {
		return nil, Fault(errors.Wrapf(value.ErrType, "cannot iterate over %s", v.Kind), at)
	}
	return v.Elems, nil
}

// RunLoop executes l, through the installed LoopRunner when there is one.
func (in *Interpreter) RunLoop(l ast.Loop, env value.Environment) (Result, error) {
	if in.Runner != nil {
		return in.Runner.RunLoop(in, l, env)
	}
	return in.Reference(l, env)
}

// Reference executes l by plain interpretation in a child scope of env.
func (in *Interpreter) Reference(l ast.Loop, env value.Environment) (Result, error) {
	h, err := in.EvalHeader(l, env)
	if err != nil {
		return Result{}, err
	}
	res, _, err := in.Iterate(l, h, NewScope(env))
	return res, err
}

// Iterate runs the iterations of l in env, which is the loop's own scope.
// It returns the number of iterations started. Break and continue are
// consumed; return propagates.
func (in *Interpreter) Iterate(l ast.Loop, h Header, env value.Environment) (Result, int64, error) {
	var n int64
	body := l.Body()

	step := func() (bool, Result, error) {
		n++
		res, err := in.Exec(body, env)
		if err != nil {
			return true, res, LoopFault(err, l)
		}
		switch res.Signal {
		case SignalBreak:
			return true, Result{}, nil
		case SignalReturn:
			return true, res, nil
		}
		return false, Result{}, nil
	}

	switch l := l.(type) {
	case *ast.ForRange:
		cur := h.Start
		for trips := h.Trips(); trips > 0; trips-- {
			env.Declare(l.Var, value.Int(cur))
			if done, res, err := step(); done {
				return res, n, err
			}
			cur += h.Step
		}
	case *ast.ForEach:
		for _, e := range h.Elems {
			env.Declare(l.Var, e)
			if done, res, err := step(); done {
				return res, n, err
			}
		}
	case *ast.While:
		for {
			c, err := in.Eval(l.Cond, env)
			if err != nil {
				return Result{}, n, LoopFault(err, l)
			}
			if !value.Truthy(c) {
				break
			}
			if done, res, err := step(); done {
				return res, n, err
			}
		}
	}
	return Result{}, n, nil
}

// LoopFault records that err propagated out of loop l.
func LoopFault(err error, l ast.Loop) error {
	var le *cnerrors.LoopError
	if errors.As(err, &le) && le.Type == cnerrors.RuntimeError {
		p := l.Position()
		le.AddLoopFrame(string(ast.IDOf(l)), p.Line, p.Col)
	}
	return err
}
