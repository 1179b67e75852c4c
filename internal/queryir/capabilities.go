package queryir

import (
	"github.com/roach88/polystore/internal/ir"
)

// Capabilities lists, as data, the parts of the model a backend can
// express. A false field means the compiler rejects the feature with
// UNSUPPORTED_OPERATION.
type Capabilities struct {
	Backend string `json:"backend"`
	Or      bool   `json:"or"`
	Not     bool   `json:"not"`
	In      bool   `json:"in"`
	Like    bool   `json:"like"`
	Nested  bool   `json:"nested"`
	Skip    bool   `json:"skip"`
	Sort    bool   `json:"sort"`
	Cursor  bool   `json:"cursor"`
}

// CheckCondition walks c and returns the first construct the backend
// cannot express.
func (caps Capabilities) CheckCondition(c Condition) error {
	var err error
	Walk(c, func(n Condition) bool {
		if err != nil {
			return false
		}
		err = caps.checkNode(n)
		return err == nil
	})
	return err
}

func (caps Capabilities) checkNode(n Condition) error {
	if op, el, ok := Leaf(n); ok {
		switch {
		case op == OpIn && !caps.In:
			return Unsupported(caps.Backend, "in")
		case op == OpLike && !caps.Like:
			return Unsupported(caps.Backend, "like")
		case !caps.Nested && containsNested(el.Value()):
			return Unsupported(caps.Backend, "nested sub-record in condition on "+el.Name())
		}
		return nil
	}
	switch n.(type) {
	case Or:
		if !caps.Or {
			return Unsupported(caps.Backend, "or")
		}
	case Not:
		if !caps.Not {
			return Unsupported(caps.Backend, "not")
		}
	}
	return nil
}

// CheckQuery validates q and checks the condition, skip, sort and cursor
// against the capabilities.
func (caps Capabilities) CheckQuery(q Query) error {
	if err := q.Check(caps.Backend); err != nil {
		return err
	}
	if q.Skip > 0 && !caps.Skip {
		return Unsupported(caps.Backend, "skip")
	}
	if len(q.Sorts) > 0 && !caps.Sort {
		return Unsupported(caps.Backend, "sort")
	}
	if q.Cursor != nil && !caps.Cursor {
		return Unsupported(caps.Backend, "cursor")
	}
	return caps.CheckCondition(q.Condition)
}

// CheckDelete validates d and checks its condition.
func (caps Capabilities) CheckDelete(d DeleteQuery) error {
	if err := d.Check(caps.Backend); err != nil {
		return err
	}
	return caps.CheckCondition(d.Condition)
}

func containsNested(v ir.Value) bool {
	switch val := v.(type) {
	case ir.Nested:
		return true
	case ir.List:
		for _, item := range val {
			if containsNested(item) {
				return true
			}
		}
	}
	return false
}
