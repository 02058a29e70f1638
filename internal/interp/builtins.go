package interp

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/value"
)

// Builtin is a natively implemented function.
type Builtin func(in *Interpreter, args []value.Value) (value.Value, error)

// Register installs or replaces a builtin.
func (in *Interpreter) Register(name string, fn Builtin) {
	in.builtins[name] = fn
}

func (in *Interpreter) registerBuiltins() {
	in.Register("abs", builtinAbs)
	in.Register("min", builtinMinMax(ast.OpLt))
	in.Register("max", builtinMinMax(ast.OpGt))
	in.Register("len", builtinLen)
	in.Register("print", builtinPrint)
}

func arity(args []value.Value, n int) error {
	if len(args) != n {
		return errors.Errorf("expected %d argument(s), got %d", n, len(args))
	}
	return nil
}

func builtinAbs(_ *Interpreter, args []value.Value) (value.Value, error) {
	if err := arity(args, 1); err != nil {
		return value.Nil, err
	}
	v := args[0]
	switch v.Kind {
	case value.KindInt:
		if v.Int < 0 {
			return value.Int(-v.Int), nil
		}
		return v, nil
	case value.KindFloat:
		if v.Float < 0 {
			return value.Float(-v.Float), nil
		}
		return v, nil
	}
	return value.Nil, errors.Wrapf(value.ErrType, "abs(%s)", v.Kind)
}

func builtinMinMax(op ast.Op) Builtin {
	return func(_ *Interpreter, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Nil, errors.New("expected at least 1 argument")
		}
		best := args[0]
		for _, a := range args[1:] {
			better, err := value.Binary(op, a, best)
			if err != nil {
				return value.Nil, err
			}
			if better.Bool {
				best = a
			}
		}
		return best, nil
	}
}

func builtinLen(_ *Interpreter, args []value.Value) (value.Value, error) {
	if err := arity(args, 1); err != nil {
		return value.Nil, err
	}
	if args[0].Kind != value.KindArray {
		return value.Nil, errors.Wrapf(value.ErrType, "len(%s)", args[0].Kind)
	}
	return value.Int(int64(len(args[0].Elems))), nil
}

func builtinPrint(in *Interpreter, args []value.Value) (value.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	_, err := fmt.Fprintln(in.Out, strings.Join(parts, " "))
	return value.Nil, err
}
