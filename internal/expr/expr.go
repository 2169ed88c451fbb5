// Package expr implements the small comparison-and-conjunction predicate
// language shared by ra.Selection/Theta-join predicates and tm ASSERT
// constraints. There is no arithmetic and no function calls, only
// `<operand> <cmp> <operand> [and <operand> <cmp> <operand>]*` where an
// operand is either an identifier bound at evaluation time or a literal
// (integer, float, or quoted string); a bare word is read as an identifier.
package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is one of the five comparison operators the grammar supports.
type Op string

const (
	Eq Op = "=="
	Le Op = "<="
	Lt Op = "<"
	Ge Op = ">="
	Gt Op = ">"
)

var ops = []Op{Eq, Le, Ge, Lt, Gt} // longest-match-first order matters: "<=" before "<"

// Clause is a single `left op right` comparison.
type Clause struct {
	Left  string
	Op    Op
	Right string
}

// Parse splits a predicate of the form `p1 and p2 and ... and pn` into its
// clauses. Parentheses and disjunction are rejected, matching the grammar's
// stated limitations.
func Parse(predicate string) ([]Clause, error) {
	if strings.ContainsAny(predicate, "()") {
		return nil, fmt.Errorf("expr: parenthesized predicates are not supported: %q", predicate)
	}
	if strings.Contains(predicate, " or ") {
		return nil, fmt.Errorf("expr: disjunctive predicates are not supported: %q", predicate)
	}
	parts := strings.Split(predicate, " and ")
	clauses := make([]Clause, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		c, err := parseClause(p)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	return clauses, nil
}

func parseClause(s string) (Clause, error) {
	for _, op := range ops {
		if idx := strings.Index(s, string(op)); idx >= 0 {
			left := strings.TrimSpace(s[:idx])
			right := strings.TrimSpace(s[idx+len(op):])
			if left == "" || right == "" {
				return Clause{}, fmt.Errorf("expr: malformed clause %q", s)
			}
			return Clause{Left: left, Op: op, Right: right}, nil
		}
	}
	return Clause{}, fmt.Errorf("expr: no comparison operator found in %q", s)
}

// Identifiers returns the set of operand tokens in predicate that are not
// literals, i.e. the attribute/variable names it references. Used by the
// relational algebra operators and rewrite rules to determine dependencies.
func Identifiers(predicate string) (map[string]struct{}, error) {
	clauses, err := Parse(predicate)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{})
	for _, c := range clauses {
		if isIdentifier(c.Left) {
			out[c.Left] = struct{}{}
		}
		if isIdentifier(c.Right) {
			out[c.Right] = struct{}{}
		}
	}
	return out, nil
}

func isIdentifier(token string) bool {
	if token == "" {
		return false
	}
	if strings.HasPrefix(token, "'") || strings.HasPrefix(token, "\"") {
		return false
	}
	if _, err := strconv.ParseFloat(token, 64); err == nil {
		return false
	}
	r := rune(token[0])
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func literal(token string) (interface{}, bool) {
	if len(token) >= 2 {
		if (token[0] == '\'' && token[len(token)-1] == '\'') || (token[0] == '"' && token[len(token)-1] == '"') {
			return token[1 : len(token)-1], true
		}
	}
	if i, err := strconv.ParseInt(token, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f, true
	}
	return nil, false
}

// resolve looks up token in bindings if it is an identifier, else parses it
// as a literal.
func resolve(token string, bindings map[string]interface{}) (interface{}, error) {
	if isIdentifier(token) {
		v, ok := bindings[token]
		if !ok {
			return nil, fmt.Errorf("expr: unbound identifier %q", token)
		}
		return v, nil
	}
	if v, ok := literal(token); ok {
		return v, nil
	}
	return nil, fmt.Errorf("expr: cannot parse operand %q", token)
}

// Eval evaluates the conjunction of clauses against bindings.
func Eval(clauses []Clause, bindings map[string]interface{}) (bool, error) {
	for _, c := range clauses {
		lv, err := resolve(c.Left, bindings)
		if err != nil {
			return false, err
		}
		rv, err := resolve(c.Right, bindings)
		if err != nil {
			return false, err
		}
		ok, err := compare(lv, c.Op, rv)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// EvalString parses and evaluates predicate in one call.
func EvalString(predicate string, bindings map[string]interface{}) (bool, error) {
	clauses, err := Parse(predicate)
	if err != nil {
		return false, err
	}
	return Eval(clauses, bindings)
}

func compare(l interface{}, op Op, r interface{}) (bool, error) {
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if lok && rok {
		switch op {
		case Eq:
			return lf == rf, nil
		case Lt:
			return lf < rf, nil
		case Le:
			return lf <= rf, nil
		case Gt:
			return lf > rf, nil
		case Ge:
			return lf >= rf, nil
		}
	}
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		switch op {
		case Eq:
			return ls == rs, nil
		case Lt:
			return ls < rs, nil
		case Le:
			return ls <= rs, nil
		case Gt:
			return ls > rs, nil
		case Ge:
			return ls >= rs, nil
		}
	}
	return false, fmt.Errorf("expr: cannot compare %v (%T) and %v (%T)", l, l, r, r)
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
