package store

import "fmt"

// FilterOp is a leaf comparison operator in the Filter DSL.
type FilterOp string

const (
	FilterOpEq  FilterOp = "$eq"
	FilterOpNe  FilterOp = "$ne"
	FilterOpGt  FilterOp = "$gt"
	FilterOpGte FilterOp = "$gte"
	FilterOpLt  FilterOp = "$lt"
	FilterOpLte FilterOp = "$lte"
	FilterOpIn  FilterOp = "$in"
	FilterOpNin FilterOp = "$nin"
)

// Filter is the nestable filter algebra: a leaf comparison, or a
// conjunction/disjunction of sub-expressions. A nil Filter matches
// everything.
type Filter interface {
	isFilter()
}

// FilterLeaf compares a single field against a value.
type FilterLeaf struct {
	Field string
	Op    FilterOp
	Value any
}

func (FilterLeaf) isFilter() {}

// FilterAnd requires every clause to match.
type FilterAnd struct {
	Clauses []Filter
}

func (FilterAnd) isFilter() {}

// FilterOr requires at least one clause to match.
type FilterOr struct {
	Clauses []Filter
}

func (FilterOr) isFilter() {}

// Matches evaluates a filter against a record's field values, where record
// is a flattened view combining document/chunk columns and metadata
// attributes. Used as a read-time safety net: chunks lacking a vector or
// metadata row are invisible regardless of what Matches returns, because
// the caller never includes them in record.
func Matches(f Filter, record map[string]any) (bool, error) {
	if f == nil {
		return true, nil
	}
	switch v := f.(type) {
	case FilterLeaf:
		return matchLeaf(v, record)
	case FilterAnd:
		for _, clause := range v.Clauses {
			ok, err := Matches(clause, record)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case FilterOr:
		for _, clause := range v.Clauses {
			ok, err := Matches(clause, record)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("store: unknown filter type %T", f)
	}
}

func matchLeaf(leaf FilterLeaf, record map[string]any) (bool, error) {
	actual, present := record[leaf.Field]

	switch leaf.Op {
	case FilterOpEq:
		return present && equalValue(actual, leaf.Value), nil
	case FilterOpNe:
		return !present || !equalValue(actual, leaf.Value), nil
	case FilterOpIn:
		values, ok := leaf.Value.([]any)
		if !ok {
			return false, fmt.Errorf("store: $in requires a list value for field %q", leaf.Field)
		}
		if !present {
			return false, nil
		}
		for _, v := range values {
			if equalValue(actual, v) {
				return true, nil
			}
		}
		return false, nil
	case FilterOpNin:
		values, ok := leaf.Value.([]any)
		if !ok {
			return false, fmt.Errorf("store: $nin requires a list value for field %q", leaf.Field)
		}
		if !present {
			return true, nil
		}
		for _, v := range values {
			if equalValue(actual, v) {
				return false, nil
			}
		}
		return true, nil
	case FilterOpGt, FilterOpGte, FilterOpLt, FilterOpLte:
		if !present {
			return false, nil
		}
		cmp, err := compareValue(actual, leaf.Value)
		if err != nil {
			return false, err
		}
		switch leaf.Op {
		case FilterOpGt:
			return cmp > 0, nil
		case FilterOpGte:
			return cmp >= 0, nil
		case FilterOpLt:
			return cmp < 0, nil
		default: // FilterOpLte
			return cmp <= 0, nil
		}
	default:
		return false, fmt.Errorf("store: unknown filter operator %q", leaf.Op)
	}
}

func equalValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareValue(a, b any) (int, error) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		switch {
		case as < bs:
			return -1, nil
		case as > bs:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, fmt.Errorf("store: cannot compare %T with %T", a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
