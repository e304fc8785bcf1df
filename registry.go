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

	"github.com/spatialmodel/insflow/amr"
)

// FieldID names a quantity managed by the integrator.
type FieldID int

// Fields managed by the integrator.
const (
	FieldU FieldID = iota
	FieldUADV
	FieldP
	FieldF
	FieldQ
	FieldN
	FieldNOld
	FieldURHS
	FieldOmega
	FieldDivU
	FieldDivUADV
	FieldGradP
	FieldPhi
	FieldPhiRHS
	FieldGradPhiCC
	FieldGradPhiFC
	FieldScratch
	FieldTag
)

var fieldNames = map[FieldID]string{
	FieldU:         "U",
	FieldUADV:      "u_ADV",
	FieldP:         "P",
	FieldF:         "F",
	FieldQ:         "Q",
	FieldN:         "N",
	FieldNOld:      "N_old",
	FieldURHS:      "U_rhs",
	FieldOmega:     "Omega",
	FieldDivU:      "Div_U",
	FieldDivUADV:   "Div_u_ADV",
	FieldGradP:     "Grad_P",
	FieldPhi:       "Phi",
	FieldPhiRHS:    "Phi_rhs",
	FieldGradPhiCC: "Grad_Phi_cc",
	FieldGradPhiFC: "Grad_Phi_fc",
	FieldScratch:   "Div_scratch",
	FieldTag:       "Tag",
}

func (f FieldID) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return fmt.Sprintf("FieldID(%d)", int(f))
}

// ContextID names a time level or role of a field.
type ContextID int

// Contexts in which a field may be stored.
const (
	Current ContextID = iota
	New
	Scratch
)

func (c ContextID) String() string {
	switch c {
	case Current:
		return "CURRENT"
	case New:
		return "NEW"
	case Scratch:
		return "SCRATCH"
	default:
		return fmt.Sprintf("ContextID(%d)", int(c))
	}
}

type fieldContext struct {
	f FieldID
	c ContextID
}

// Registry maps each (field, context) pair to the data index of its
// storage on the hierarchy. Each pair is registered at most once and its
// index never changes afterwards.
type Registry struct {
	h     *amr.Hierarchy
	vars  map[FieldID]amr.Variable
	index map[fieldContext]amr.DataIndex
	order []fieldContext
}

// NewRegistry returns an empty registry whose indices are minted by h.
func NewRegistry(h *amr.Hierarchy) *Registry {
	return &Registry{
		h:     h,
		vars:  make(map[FieldID]amr.Variable),
		index: make(map[fieldContext]amr.DataIndex),
	}
}

// Register creates data indices for field f in each of the contexts.
func (r *Registry) Register(f FieldID, v amr.Variable, contexts ...ContextID) error {
	if _, ok := r.vars[f]; ok {
		return fmt.Errorf("insflow: field %s is already registered", f)
	}
	if v.Name == "" {
		v.Name = f.String()
	}
	r.vars[f] = v
	for _, c := range contexts {
		fc := fieldContext{f, c}
		if _, ok := r.index[fc]; ok {
			return fmt.Errorf("insflow: field %s context %s is listed twice", f, c)
		}
		cv := v
		cv.Name = v.Name + "::" + c.String()
		r.index[fc] = r.h.RegisterIndex(cv)
		r.order = append(r.order, fc)
	}
	return nil
}

// Has returns whether field f is registered.
func (r *Registry) Has(f FieldID) bool {
	_, ok := r.vars[f]
	return ok
}

// Index returns the data index of field f in context c.
func (r *Registry) Index(f FieldID, c ContextID) (amr.DataIndex, bool) {
	idx, ok := r.index[fieldContext{f, c}]
	return idx, ok
}

// idx is Index for pairs the integrator registered itself.
func (r *Registry) idx(f FieldID, c ContextID) amr.DataIndex {
	idx, ok := r.index[fieldContext{f, c}]
	if !ok {
		panic(fmt.Errorf("insflow: field %s has no %s context", f, c))
	}
	return idx
}

// Indices returns the data indices of every field registered in
// context c, in registration order.
func (r *Registry) Indices(c ContextID) []amr.DataIndex {
	var o []amr.DataIndex
	for _, fc := range r.order {
		if fc.c == c {
			o = append(o, r.index[fc])
		}
	}
	return o
}

// Fields returns the registered (field, context) pairs of context c.
func (r *Registry) Fields(c ContextID) []FieldID {
	var o []FieldID
	for _, fc := range r.order {
		if fc.c == c {
			o = append(o, fc.f)
		}
	}
	return o
}

// Variable returns the layout of field f.
func (r *Registry) Variable(f FieldID) amr.Variable { return r.vars[f] }
