package jit

import (
	"github.com/pkg/errors"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/interp"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/value"
)

// ----------------------------------------------------------------------------
// Expressions

func (c *compiler) expr(e ast.Expr) (evalFn, error) {
	if k, ok := c.sel.HoistIndex(e); ok {
		return func(r *runtime) (value.Value, error) {
			h := r.hoist[k]
			return h.v, h.err
		}, nil
	}
	return c.exprNoHoist(e)
}

func (c *compiler) exprNoHoist(e ast.Expr) (evalFn, error) {
	node := c.index[e]

	switch e := e.(type) {
	case *ast.IntLit:
		v := value.Int(e.Value)
		return func(*runtime) (value.Value, error) { return v, nil }, nil
	case *ast.FloatLit:
		v := value.Float(e.Value)
		return func(*runtime) (value.Value, error) { return v, nil }, nil
	case *ast.BoolLit:
		v := value.Bool(e.Value)
		return func(*runtime) (value.Value, error) { return v, nil }, nil

	case *ast.ArrayLit:
		elems := make([]evalFn, len(e.Elems))
		for k, x := range e.Elems {
			var err error
			if elems[k], err = c.expr(x); err != nil {
				return nil, err
			}
		}
		return func(r *runtime) (value.Value, error) {
			out := make([]value.Value, len(elems))
			for k, fn := range elems {
				v, err := fn(r)
				if err != nil {
					return value.Nil, err
				}
				out[k] = v
			}
			return value.Array(out...), nil
		}, nil

	case *ast.Ident:
		i, slot := c.slotOf(e.Name)
		if slot < 0 {
			return func(r *runtime) (value.Value, error) { return r.lookup(i, node) }, nil
		}
		return func(r *runtime) (value.Value, error) {
			if v, ok := r.f.Get(slot); ok {
				return v, nil
			}
			return r.lookup(i, node)
		}, nil

	case *ast.Binary:
		return c.binary(e, node)

	case *ast.Unary:
		x, err := c.expr(e.X)
		if err != nil {
			return nil, err
		}
		op := e.Op
		return func(r *runtime) (value.Value, error) {
			v, err := x(r)
			if err != nil {
				return value.Nil, err
			}
			if v, err = value.Unary(op, v); err != nil {
				return value.Nil, r.fault(err, node)
			}
			return v, nil
		}, nil

	case *ast.Index:
		x, err := c.expr(e.X)
		if err != nil {
			return nil, err
		}
		idx, err := c.expr(e.Index)
		if err != nil {
			return nil, err
		}
		return func(r *runtime) (value.Value, error) {
			a, err := x(r)
			if err != nil {
				return value.Nil, err
			}
			i, err := idx(r)
			if err != nil {
				return value.Nil, err
			}
			v, err := value.IndexOf(a, i)
			if err != nil {
				return value.Nil, r.fault(err, node)
			}
			return v, nil
		}, nil
	}
	return nil, errors.Wrapf(ErrUnsupported, "expression %T", e)
}

func (c *compiler) binary(e *ast.Binary, node int) (evalFn, error) {
	x, err := c.expr(e.X)
	if err != nil {
		return nil, err
	}
	y, err := c.expr(e.Y)
	if err != nil {
		return nil, err
	}
	op := e.Op

	switch op {
	case ast.OpAnd, ast.OpOr:
		short := op == ast.OpOr
		return func(r *runtime) (value.Value, error) {
			a, err := x(r)
			if err != nil {
				return value.Nil, err
			}
			if value.Truthy(a) == short {
				return value.Bool(short), nil
			}
			b, err := y(r)
			if err != nil {
				return value.Nil, err
			}
			v, err := value.Binary(op, a, b)
			if err != nil {
				return value.Nil, r.fault(err, node)
			}
			return v, nil
		}, nil
	}

	if shifts, ok := c.sel.ShiftAdd[e]; ok {
		_, litLeft := e.X.(*ast.IntLit)
		return func(r *runtime) (value.Value, error) {
			a, err := x(r)
			if err != nil {
				return value.Nil, err
			}
			b, err := y(r)
			if err != nil {
				return value.Nil, err
			}
			operand := a
			if litLeft {
				operand = b
			}
			if operand.Kind == value.KindInt {
				return value.Int(shiftAdd(operand.Int, shifts)), nil
			}
			v, err := value.Binary(op, a, b)
			if err != nil {
				return value.Nil, r.fault(err, node)
			}
			return v, nil
		}, nil
	}

	return func(r *runtime) (value.Value, error) {
		a, err := x(r)
		if err != nil {
			return value.Nil, err
		}
		b, err := y(r)
		if err != nil {
			return value.Nil, err
		}
		v, err := value.Binary(op, a, b)
		if err != nil {
			return value.Nil, r.fault(err, node)
		}
		return v, nil
	}, nil
}

// shiftAdd multiplies x by the constant whose set bits are shifts. The sum
// wraps exactly like the multiplication it replaces.
func shiftAdd(x int64, shifts []uint) int64 {
	var acc int64
	for _, s := range shifts {
		acc += x << s
	}
	return acc
}

// ----------------------------------------------------------------------------
// Variables

// read returns the current value of name as the statement at node sees it.
func (c *compiler) read(name string, node int) func(r *runtime) (value.Value, error) {
	i, slot := c.slotOf(name)
	return func(r *runtime) (value.Value, error) {
		if slot >= 0 {
			if v, ok := r.f.Get(slot); ok {
				return v, nil
			}
		}
		return r.lookup(i, node)
	}
}

// write stores into name. An unset slot passes the write to the enclosing
// environment, which fails for an unbound name.
func (c *compiler) write(name string, node int) func(r *runtime, v value.Value) error {
	i, slot := c.slotOf(name)
	return func(r *runtime, v value.Value) error {
		if slot >= 0 && r.f.IsSet(slot) {
			r.f.Put(slot, v)
			return nil
		}
		if err := r.f.Parent().Assign(r.names[i], v); err != nil {
			return r.fault(err, node)
		}
		return nil
	}
}

// ----------------------------------------------------------------------------
// Statements

func (c *compiler) block(stmts []ast.Stmt) (execFn, error) {
	fns := make([]execFn, len(stmts))
	for k, s := range stmts {
		var err error
		if fns[k], err = c.stmt(s); err != nil {
			return nil, err
		}
	}
	switch len(fns) {
	case 0:
		return func(*runtime) (interp.Result, error) { return interp.Result{}, nil }, nil
	case 1:
		return fns[0], nil
	}
	return func(r *runtime) (interp.Result, error) {
		for _, fn := range fns {
			res, err := fn(r)
			if err != nil || res.Signal != interp.SignalNone {
				return res, err
			}
		}
		return interp.Result{}, nil
	}, nil
}

func (c *compiler) stmt(s ast.Stmt) (execFn, error) {
	node := c.index[s]

	switch s := s.(type) {
	case *ast.Let:
		val, err := c.expr(s.Value)
		if err != nil {
			return nil, err
		}
		_, slot := c.slotOf(s.Name)
		return func(r *runtime) (interp.Result, error) {
			v, err := val(r)
			if err != nil {
				return interp.Result{}, err
			}
			r.f.Put(slot, v)
			return interp.Result{}, nil
		}, nil

	case *ast.Assign:
		if j, ok := c.sel.ReductionOf(s); ok {
			return c.reduction(j, node)
		}
		val, err := c.expr(s.Value)
		if err != nil {
			return nil, err
		}
		store := c.write(s.Name, node)
		return func(r *runtime) (interp.Result, error) {
			v, err := val(r)
			if err != nil {
				return interp.Result{}, err
			}
			return interp.Result{}, store(r, v)
		}, nil

	case *ast.CompoundAssign:
		if j, ok := c.sel.ReductionOf(s); ok {
			return c.reduction(j, node)
		}
		return c.compound(s, node)

	case *ast.IncDec:
		load := c.read(s.Name, node)
		store := c.write(s.Name, node)
		_, slot := c.slotOf(s.Name)
		delta := int64(1)
		op := ast.OpAdd
		if s.Dec {
			delta, op = -1, ast.OpSub
		}
		return func(r *runtime) (interp.Result, error) {
			if r.f.IsSet(slot) && r.f.Kind(slot) == value.KindInt {
				r.f.PutInt(slot, r.f.Int(slot)+delta)
				return interp.Result{}, nil
			}
			cur, err := load(r)
			if err != nil {
				return interp.Result{}, err
			}
			v, err := value.Binary(op, cur, value.Int(1))
			if err != nil {
				return interp.Result{}, r.fault(err, node)
			}
			return interp.Result{}, store(r, v)
		}, nil

	case *ast.If:
		return c.ifStmt(s)

	case *ast.Break:
		return func(*runtime) (interp.Result, error) {
			return interp.Result{Signal: interp.SignalBreak}, nil
		}, nil

	case *ast.Continue:
		return func(*runtime) (interp.Result, error) {
			return interp.Result{Signal: interp.SignalContinue}, nil
		}, nil

	case *ast.Return:
		if s.Value == nil {
			return func(*runtime) (interp.Result, error) {
				return interp.Result{Signal: interp.SignalReturn}, nil
			}, nil
		}
		val, err := c.expr(s.Value)
		if err != nil {
			return nil, err
		}
		return func(r *runtime) (interp.Result, error) {
			v, err := val(r)
			if err != nil {
				return interp.Result{}, err
			}
			return interp.Result{Signal: interp.SignalReturn, Value: v}, nil
		}, nil

	case *ast.ExprStmt:
		val, err := c.expr(s.X)
		if err != nil {
			return nil, err
		}
		return func(r *runtime) (interp.Result, error) {
			_, err := val(r)
			return interp.Result{}, err
		}, nil

	case ast.Loop:
		return c.nested(s, node)
	}
	return nil, errors.Wrapf(ErrUnsupported, "statement %T", s)
}

func (c *compiler) compound(s *ast.CompoundAssign, node int) (execFn, error) {
	load := c.read(s.Name, node)
	store := c.write(s.Name, node)
	rhs, err := c.expr(s.Value)
	if err != nil {
		return nil, err
	}
	op := s.Op
	shifts, reduced := c.sel.ShiftAdd[s]

	return func(r *runtime) (interp.Result, error) {
		cur, err := load(r)
		if err != nil {
			return interp.Result{}, err
		}
		y, err := rhs(r)
		if err != nil {
			return interp.Result{}, err
		}
		var v value.Value
		if reduced && cur.Kind == value.KindInt {
			v = value.Int(shiftAdd(cur.Int, shifts))
		} else if v, err = value.Binary(op, cur, y); err != nil {
			return interp.Result{}, r.fault(err, node)
		}
		return interp.Result{}, store(r, v)
	}, nil
}

func (c *compiler) ifStmt(s *ast.If) (execFn, error) {
	cond, err := c.expr(s.Cond)
	if err != nil {
		return nil, err
	}
	then, err := c.block(s.Then)
	if err != nil {
		return nil, err
	}
	els, err := c.block(s.Else)
	if err != nil {
		return nil, err
	}

	if likely, ok := c.sel.Hints[s]; ok && !likely {
		return func(r *runtime) (interp.Result, error) {
			v, err := cond(r)
			if err != nil {
				return interp.Result{}, err
			}
			if !value.Truthy(v) {
				return els(r)
			}
			return then(r)
		}, nil
	}
	return func(r *runtime) (interp.Result, error) {
		v, err := cond(r)
		if err != nil {
			return interp.Result{}, err
		}
		if value.Truthy(v) {
			return then(r)
		}
		return els(r)
	}, nil
}

// reduction updates accumulator j in its lane while the lane is open and
// falls back to the sequential update once a contribution is not an int.
func (c *compiler) reduction(j, stmtNode int) (execFn, error) {
	red := c.sel.Reductions[j]
	_, slot := c.slotOf(c.shape.Names[red.Index])
	contrib, err := c.expr(red.Contribution)
	if err != nil {
		return nil, err
	}
	op := red.Op
	width := int64(c.sel.Width)

	// the node reporting a failed update and the operand order of the
	// sequential form
	node, accLeft := stmtNode, true
	if a, ok := red.Stmt.(*ast.Assign); ok {
		b := a.Value.(*ast.Binary)
		node = c.index[b]
		id, ok := b.X.(*ast.Ident)
		accLeft = ok && id.Name == a.Name
	}

	var seq execFn
	switch s := red.Stmt.(type) {
	case *ast.CompoundAssign:
		if seq, err = c.compound(s, stmtNode); err != nil {
			return nil, err
		}
	case *ast.Assign:
		val, err := c.expr(s.Value)
		if err != nil {
			return nil, err
		}
		store := c.write(s.Name, stmtNode)
		seq = func(r *runtime) (interp.Result, error) {
			v, err := val(r)
			if err != nil {
				return interp.Result{}, err
			}
			return interp.Result{}, store(r, v)
		}
	}

	return func(r *runtime) (interp.Result, error) {
		if !r.laneOn[j] {
			return seq(r)
		}
		y, err := contrib(r)
		if err != nil {
			return interp.Result{}, err
		}
		if y.Kind == value.KindInt {
			lane := r.iter % width
			r.lanes[j][lane] = combine(op, r.lanes[j][lane], y.Int)
			return interp.Result{}, nil
		}

		r.flushLane(j, slot, op)
		cur := value.Int(r.f.Int(slot))
		a, b := cur, y
		if !accLeft {
			a, b = y, cur
		}
		v, err := value.Binary(op, a, b)
		if err != nil {
			return interp.Result{}, r.fault(err, node)
		}
		r.f.Put(slot, v)
		return interp.Result{}, nil
	}, nil
}

// ----------------------------------------------------------------------------
// Nested loops

// nested compiles an inner loop in place. Names the inner loop declares live
// in the outer frame while it runs and are cleared when it ends, as if it
// had its own scope.
func (c *compiler) nested(l ast.Loop, node int) (execFn, error) {
	body, err := c.block(l.Body())
	if err != nil {
		return nil, err
	}

	var scoped []int
	for name := range declaredIn(l) {
		_, slot := c.slotOf(name)
		scoped = append(scoped, slot)
	}
	unscope := func(r *runtime) {
		for _, slot := range scoped {
			r.f.Unset(slot)
		}
	}

	// step runs one iteration; done reports that the loop must stop
	step := func(r *runtime) (done bool, res interp.Result, err error) {
		res, err = body(r)
		if err != nil {
			return true, res, interp.LoopFault(err, r.loop(node))
		}
		switch res.Signal {
		case interp.SignalBreak:
			return true, interp.Result{}, nil
		case interp.SignalReturn:
			return true, res, nil
		}
		return false, interp.Result{}, nil
	}

	switch l := l.(type) {
	case *ast.ForRange:
		start, err := c.bound(l.Start)
		if err != nil {
			return nil, err
		}
		end, err := c.bound(l.End)
		if err != nil {
			return nil, err
		}
		var stepBound func(r *runtime) (int64, error)
		if l.Step != nil {
			if stepBound, err = c.bound(l.Step); err != nil {
				return nil, err
			}
		}
		_, counter := c.slotOf(l.Var)

		return func(r *runtime) (interp.Result, error) {
			var (
				h   interp.Header
				err error
			)
			if h.Start, err = start(r); err != nil {
				return interp.Result{}, err
			}
			if h.End, err = end(r); err != nil {
				return interp.Result{}, err
			}
			h.Step = 1
			if stepBound != nil {
				if h.Step, err = stepBound(r); err != nil {
					return interp.Result{}, err
				}
				if err = interp.CheckStep(h.Step, r.nodes[node].Position()); err != nil {
					return interp.Result{}, err
				}
			}
			defer unscope(r)
			cur := h.Start
			for trips := h.Trips(); trips > 0; trips-- {
				r.f.PutInt(counter, cur)
				if done, res, err := step(r); done {
					return res, err
				}
				cur += h.Step
			}
			return interp.Result{}, nil
		}, nil

	case *ast.ForEach:
		coll, err := c.expr(l.Collection)
		if err != nil {
			return nil, err
		}
		_, slot := c.slotOf(l.Var)
		return func(r *runtime) (interp.Result, error) {
			v, err := coll(r)
			if err != nil {
				return interp.Result{}, err
			}
			elems, err := interp.Collection(v, r.nodes[node].Position())
			if err != nil {
				return interp.Result{}, err
			}
			defer unscope(r)
			for _, e := range elems {
				r.f.Put(slot, e)
				if done, res, err := step(r); done {
					return res, err
				}
			}
			return interp.Result{}, nil
		}, nil

	case *ast.While:
		cond, err := c.expr(l.Cond)
		if err != nil {
			return nil, err
		}
		return func(r *runtime) (interp.Result, error) {
			defer unscope(r)
			for {
				v, err := cond(r)
				if err != nil {
					return interp.Result{}, interp.LoopFault(err, r.loop(node))
				}
				if !value.Truthy(v) {
					return interp.Result{}, nil
				}
				if done, res, err := step(r); done {
					return res, err
				}
			}
		}, nil
	}
	return nil, errors.Wrapf(ErrUnsupported, "loop %T", l)
}

// bound compiles a counted loop start, end or step expression.
func (c *compiler) bound(e ast.Expr) (func(r *runtime) (int64, error), error) {
	fn, err := c.expr(e)
	if err != nil {
		return nil, err
	}
	node := c.index[e]
	return func(r *runtime) (int64, error) {
		v, err := fn(r)
		if err != nil {
			return 0, err
		}
		return interp.Bound(v, r.nodes[node].Position())
	}, nil
}
