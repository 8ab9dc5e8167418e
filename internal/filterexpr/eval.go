package filterexpr

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type node interface {
	eval(Row) (any, error)
}

type literalNode struct{ v any }

func (n literalNode) eval(Row) (any, error) { return n.v, nil }

type columnNode struct{ name string }

func (n columnNode) eval(r Row) (any, error) {
	v, ok := r.Value(n.name)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownColumn, n.name)
	}
	return normalize(v), nil
}

type notNode struct{ inner node }

func (n notNode) eval(r Row) (any, error) {
	v, err := n.inner.eval(r)
	if err != nil {
		return nil, err
	}
	b, err := truth(v)
	if err != nil {
		return nil, err
	}
	return !b, nil
}

type logicNode struct {
	or          bool
	left, right node
}

// eval evaluates both sides so that an unknown column on either side is
// always reported, matching a vectorized evaluator.
func (n logicNode) eval(r Row) (any, error) {
	lv, err := n.left.eval(r)
	if err != nil {
		return nil, err
	}
	rv, err := n.right.eval(r)
	if err != nil {
		return nil, err
	}
	lb, err := truth(lv)
	if err != nil {
		return nil, err
	}
	rb, err := truth(rv)
	if err != nil {
		return nil, err
	}
	if n.or {
		return lb || rb, nil
	}
	return lb && rb, nil
}

type compareNode struct {
	op          string
	left, right node
}

func (n compareNode) eval(r Row) (any, error) {
	lv, err := n.left.eval(r)
	if err != nil {
		return nil, err
	}
	rv, err := n.right.eval(r)
	if err != nil {
		return nil, err
	}
	// Missing cells never compare equal, ordered or otherwise.
	if lv == nil || rv == nil {
		return n.op == "!=", nil
	}
	c, ok := compare(lv, rv)
	if !ok {
		switch n.op {
		case "==":
			return false, nil
		case "!=":
			return true, nil
		}
		return nil, fmt.Errorf("filterexpr: cannot compare %T with %T", lv, rv)
	}
	switch n.op {
	case "==":
		return c == 0, nil
	case "!=":
		return c != 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

type inNode struct {
	item node
	list []any
}

func (n inNode) eval(r Row) (any, error) {
	v, err := n.item.eval(r)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return false, nil
	}
	for _, candidate := range n.list {
		if candidate == nil {
			continue
		}
		if c, ok := compare(v, candidate); ok && c == 0 {
			return true, nil
		}
	}
	return false, nil
}

// normalize folds row cells into the small value set the evaluator knows:
// nil, bool, float64, string and time.Time.
func normalize(v any) any {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		if math.IsNaN(x) {
			return nil
		}
		return x
	}
	return v
}

func truth(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case nil:
		return false, nil
	}
	return false, fmt.Errorf("filterexpr: %v is not a boolean", v)
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "2006/01/02", "2006"}

// compare orders two values of compatible types. Datetime cells compare
// against string literals parsed as dates.
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			return cmpFloat(x, y), true
		}
	case string:
		switch y := b.(type) {
		case string:
			return strings.Compare(x, y), true
		case time.Time:
			if tx, ok := parseTime(x); ok {
				return tx.Compare(y), true
			}
		}
	case bool:
		if y, ok := b.(bool); ok {
			return cmpBool(x, y), true
		}
	case time.Time:
		switch y := b.(type) {
		case time.Time:
			return x.Compare(y), true
		case string:
			if ty, ok := parseTime(y); ok {
				return x.Compare(ty), true
			}
		}
	}
	return 0, false
}

func cmpFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func cmpBool(x, y bool) int {
	switch {
	case x == y:
		return 0
	case !x:
		return -1
	}
	return 1
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
