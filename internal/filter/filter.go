// Package filter holds the equality/inequality filter used by every list query.
package filter

import (
	"strconv"
	"strings"
)

// NeqPrefix marks an inequality value on the wire.
const NeqPrefix = "neq."

// Op is the comparison operator of a Filter.
type Op int

const (
	// OpEq matches rows whose column equals the value.
	OpEq Op = iota
	// OpNeq matches rows whose column differs from the value.
	OpNeq
)

// Filter is a single column comparison. Build it with Eq or Neq.
type Filter struct {
	Op    Op
	Value string
}

// Eq builds an equality filter.
func Eq(value string) Filter { return Filter{Op: OpEq, Value: value} }

// Neq builds an inequality filter.
func Neq(value string) Filter { return Filter{Op: OpNeq, Value: value} }

// Parse decodes the wire form: "neq.x" is Neq("x"), anything else is Eq.
func Parse(raw string) Filter {
	if strings.HasPrefix(raw, NeqPrefix) {
		return Neq(strings.TrimPrefix(raw, NeqPrefix))
	}
	return Eq(raw)
}

// String encodes the filter in wire form.
func (f Filter) String() string {
	if f.Op == OpNeq {
		return NeqPrefix + f.Value
	}
	return f.Value
}

// SQLOperator returns "=" or "!=".
func (f Filter) SQLOperator() string {
	if f.Op == OpNeq {
		return "!="
	}
	return "="
}

// ApplyProviderFilter appends a WHERE clause on the provider column.
// The placeholder index is len(params)+1, so every earlier parameter must already be in params.
func ApplyProviderFilter(query string, params []any, f Filter) (string, []any) {
	return ApplyColumnFilter(query, params, "provider", f)
}

// ApplyColumnFilter appends "WHERE <column> <op> $n" and the bound value.
func ApplyColumnFilter(query string, params []any, column string, f Filter) (string, []any) {
	index := len(params) + 1
	query += " WHERE " + column + " " + f.SQLOperator() + " $" + strconv.Itoa(index)
	return query, append(params, f.Value)
}
