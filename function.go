/*
Copyright © 2019 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

package insflow

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"

	"github.com/spatialmodel/insflow/amr"
)

// CartGridFunction sets data on a hierarchy as a function of position
// and time.
type CartGridFunction interface {
	// SetDataOnPatchHierarchy sets the interior of idx on levels
	// coarsest through finest at time t.
	SetDataOnPatchHierarchy(idx amr.DataIndex, h *amr.Hierarchy, t float64, coarsest, finest int) error
	IsTimeDependent() bool
}

// ExpressionFunction is a CartGridFunction given by one expression per
// component in the variables x, y, t and pi.
type ExpressionFunction struct {
	exprs         []*govaluate.EvaluableExpression
	timeDependent bool
}

// expressionFunctions are the functions available in expressions.
var expressionFunctions = map[string]govaluate.ExpressionFunction{
	"sin":  unary("sin", math.Sin),
	"cos":  unary("cos", math.Cos),
	"tan":  unary("tan", math.Tan),
	"exp":  unary("exp", math.Exp),
	"log":  unary("log", math.Log),
	"sqrt": unary("sqrt", math.Sqrt),
	"tanh": unary("tanh", math.Tanh),
	"abs":  unary("abs", math.Abs),
}

func unary(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("insflow: got %d arguments for function '%s', but needs 1", len(arg), name)
		}
		v, ok := arg[0].(float64)
		if !ok {
			return nil, fmt.Errorf("insflow: argument of '%s' is %T, not a number", name, arg[0])
		}
		return f(v), nil
	}
}

// NewExpressionFunction parses one expression per component.
func NewExpressionFunction(exprs ...string) (*ExpressionFunction, error) {
	e := new(ExpressionFunction)
	for _, s := range exprs {
		ex, err := govaluate.NewEvaluableExpressionWithFunctions(s, expressionFunctions)
		if err != nil {
			return nil, fmt.Errorf("insflow: parsing expression %q: %v", s, err)
		}
		for _, v := range ex.Vars() {
			switch v {
			case "t":
				e.timeDependent = true
			case "x", "y", "pi":
			default:
				return nil, fmt.Errorf("insflow: expression %q uses unknown variable %q", s, v)
			}
		}
		e.exprs = append(e.exprs, ex)
	}
	return e, nil
}

// IsTimeDependent returns whether any expression uses t.
func (e *ExpressionFunction) IsTimeDependent() bool { return e.timeDependent }

// Eval evaluates component d at (x, y, t).
func (e *ExpressionFunction) Eval(d int, x, y, t float64) (float64, error) {
	r, err := e.exprs[d].Evaluate(map[string]interface{}{"x": x, "y": y, "t": t, "pi": math.Pi})
	if err != nil {
		return math.NaN(), err
	}
	v, ok := r.(float64)
	if !ok {
		return math.NaN(), fmt.Errorf("insflow: expression %q evaluated to %T, not a number", e.exprs[d].String(), r)
	}
	return v, nil
}

// SetDataOnPatchHierarchy implements CartGridFunction.
func (e *ExpressionFunction) SetDataOnPatchHierarchy(idx amr.DataIndex, h *amr.Hierarchy, t float64, coarsest, finest int) error {
	depth := h.Variable(idx).Depth
	if len(e.exprs) != depth {
		return fmt.Errorf("insflow: %d expressions given for %s with %d components", len(e.exprs), h.Variable(idx).Name, depth)
	}
	for ln := coarsest; ln <= finest; ln++ {
		l := h.Level(ln)
		for _, p := range l.Patches {
			cd := p.Cell(idx)
			for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
				for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
					x, y := l.CellCenter(i, j)
					for d := 0; d < depth; d++ {
						v, err := e.Eval(d, x, y, t)
						if err != nil {
							return err
						}
						cd.Set(d, i, j, v)
					}
				}
			}
		}
	}
	return nil
}

// expressionFunction parses exprs, returning nil if every expression is
// empty.
func expressionFunction(field string, exprs ...string) (CartGridFunction, error) {
	exprs = append([]string(nil), exprs...)
	empty := true
	for i, s := range exprs {
		if s != "" {
			empty = false
		} else {
			exprs[i] = "0"
		}
	}
	if empty {
		return nil, nil
	}
	f, err := NewExpressionFunction(exprs...)
	if err != nil {
		return nil, &ConfigError{Field: "InitialConditions." + field, Err: err}
	}
	return f, nil
}
