package store

import "strings"

// Filter composes optional predicate clauses into one parameterized WHERE
// expression. Each clause owns its parameter slots, so optional filters
// cannot shift positional placeholders out of alignment: clauses render in
// the order they were added and their arguments follow the same order.
type Filter struct {
	clauses []string
	args    []any
}

// Add appends one clause with its arguments. The clause must contain as
// many placeholders as there are args.
func (f *Filter) Add(clause string, args ...any) *Filter {
	f.clauses = append(f.clauses, clause)
	f.args = append(f.args, args...)
	return f
}

// In appends a "column IN (?, ...)" clause for the given values. A call
// with no values is a no-op rather than invalid SQL.
func (f *Filter) In(column string, values []string) *Filter {
	if len(values) == 0 {
		return f
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	f.clauses = append(f.clauses, column+" IN ("+placeholders+")")
	for _, v := range values {
		f.args = append(f.args, v)
	}
	return f
}

// Empty reports whether no clauses were added.
func (f *Filter) Empty() bool { return len(f.clauses) == 0 }

// SQL renders prefix plus the WHERE expression (or prefix alone when the
// filter is empty) and returns the arguments in clause order.
func (f *Filter) SQL(prefix string) (string, []any) {
	if len(f.clauses) == 0 {
		return prefix, nil
	}
	return prefix + " WHERE " + strings.Join(f.clauses, " AND "), f.args
}
