package ra

import (
	"fmt"
	"strings"

	"github.com/BigDataAnalyticsGroup/radb/internal/dberr"
)

// Value is a single attribute value: int64, float64, or string depending
// on the owning attribute's Domain. Declared as an alias (not a defined
// type) so map[string]ra.Value interoperates directly with APIs typed
// over plain interface{}, such as internal/expr's bindings.
type Value = interface{}

// Tuple is a fixed-arity ordered record whose component types match a
// schema.
type Tuple []Value

func (t Tuple) key() string {
	var b strings.Builder
	for _, v := range t {
		fmt.Fprintf(&b, "%T:%v|", v, v)
	}
	return b.String()
}

// Relation is a (name, schema, set of tuples). Duplicates are not
// retained; a Relation exclusively owns its tuples.
type Relation struct {
	Name   string
	Schema Schema

	tuples []Tuple
	index  map[string]struct{}

	indexes map[string]*Index
}

func NewRelation(name string, schema Schema) *Relation {
	return &Relation{Name: name, Schema: schema, index: make(map[string]struct{})}
}

// CreateIndex builds and registers a secondary Index on attr, replacing any
// prior index on the same attribute.
func (r *Relation) CreateIndex(attr string) (*Index, error) {
	idx, err := NewIndex(r, attr)
	if err != nil {
		return nil, err
	}
	if r.indexes == nil {
		r.indexes = make(map[string]*Index)
	}
	r.indexes[attr] = idx
	return idx, nil
}

func (r *Relation) HasIndexOn(attr string) bool {
	_, ok := r.indexes[attr]
	return ok
}

func (r *Relation) IndexOn(attr string) (*Index, bool) {
	idx, ok := r.indexes[attr]
	return idx, ok
}

// AddTuple inserts t, rejecting arity/domain mismatches. Returns whether it
// was newly inserted (false if it was already present, per set semantics).
func (r *Relation) AddTuple(t Tuple) (bool, error) {
	if err := r.checkTuple(t); err != nil {
		return false, err
	}
	k := t.key()
	if _, ok := r.index[k]; ok {
		return false, nil
	}
	r.index[k] = struct{}{}
	r.tuples = append(r.tuples, t)
	return true, nil
}

func (r *Relation) checkTuple(t Tuple) error {
	if len(t) != len(r.Schema.Attributes) {
		return dberr.New(dberr.SchemaViolation, "tuple has arity %d, schema has %d", len(t), len(r.Schema.Attributes))
	}
	for i, a := range r.Schema.Attributes {
		if !domainMatches(a.Domain, t[i]) {
			return dberr.New(dberr.SchemaViolation, "attribute %s expects %s, got %T", a.Name, a.Domain, t[i])
		}
	}
	return nil
}

func domainMatches(d Domain, v Value) bool {
	switch d {
	case Integer:
		_, ok := v.(int64)
		return ok
	case Floating:
		_, ok := v.(float64)
		return ok
	case String:
		_, ok := v.(string)
		return ok
	default:
		return false
	}
}

func (r *Relation) HasAttribute(name string) bool { return r.Schema.HasAttribute(name) }

func (r *Relation) AttributeIndex(name string) (int, error) {
	i, ok := r.Schema.IndexOf(name)
	if !ok {
		return 0, dberr.New(dberr.MissingAttribute, "relation %s has no attribute %s", r.Name, name)
	}
	return i, nil
}

func (r *Relation) AttributeDomain(name string) (Domain, error) {
	a, ok := r.Schema.Attribute(name)
	if !ok {
		return 0, dberr.New(dberr.MissingAttribute, "relation %s has no attribute %s", r.Name, name)
	}
	return a.Domain, nil
}

// BuildIndex constructs a sorted secondary Index over attr, rebuilt from
// the relation's current tuple set.
func (r *Relation) BuildIndex(attr string) (*Index, error) {
	return NewIndex(r, attr)
}

func (r *Relation) Len() int { return len(r.tuples) }

// Tuples returns the relation's tuples in insertion order. Callers must
// not mutate the returned slice.
func (r *Relation) Tuples() []Tuple { return r.tuples }

// Equal reports tuple-set equality, ignoring attribute names (per §4.1).
func (r *Relation) Equal(o *Relation) bool {
	if len(r.tuples) != len(o.tuples) {
		return false
	}
	seen := make(map[string]struct{}, len(r.tuples))
	for _, t := range r.tuples {
		seen[t.key()] = struct{}{}
	}
	for _, t := range o.tuples {
		if _, ok := seen[t.key()]; !ok {
			return false
		}
	}
	return true
}

func (r *Relation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s\n", r.Name, r.Schema)
	for _, t := range r.tuples {
		fmt.Fprintf(&b, "  %v\n", []Value(t))
	}
	return b.String()
}
