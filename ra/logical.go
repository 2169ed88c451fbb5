package ra

import (
	"fmt"
	"strings"

	"github.com/BigDataAnalyticsGroup/radb/internal/dberr"
	"github.com/BigDataAnalyticsGroup/radb/internal/expr"
)

// --- Selection ---------------------------------------------------------

type Selection struct {
	unary
	Predicate string
}

func NewSelection(input Operator, predicate string) *Selection {
	return &Selection{unary: unary{Input: input}, Predicate: predicate}
}

func (s *Selection) Kind() Kind { return KindSelectionLog }

func (s *Selection) Schema() (Schema, error) {
	sc, err := s.Input.Schema()
	if err != nil {
		return Schema{}, err
	}
	attrs, err := s.GetAttributesInPredicate()
	if err != nil {
		return Schema{}, err
	}
	for a := range attrs {
		if !sc.HasAttribute(a) {
			return Schema{}, dberr.New(dberr.MissingAttribute, "selection predicate references unknown attribute %s", a)
		}
	}
	return sc, nil
}

func (s *Selection) HasAttribute(name string) bool {
	sc, err := s.Schema()
	return err == nil && sc.HasAttribute(name)
}

// GetAttributesInPredicate splits the predicate on whitespace and
// comparison-operator tokens, returning the operand tokens that are
// identifiers rather than literals.
func (s *Selection) GetAttributesInPredicate() (map[string]struct{}, error) {
	return expr.Identifiers(s.Predicate)
}

func (s *Selection) String() string { return fmt.Sprintf("σ[%s]", s.Predicate) }

// --- Projection ----------------------------------------------------------

type Projection struct {
	unary
	Attributes []string
}

func NewProjection(input Operator, attrs []string) *Projection {
	return &Projection{unary: unary{Input: input}, Attributes: attrs}
}

func (p *Projection) Kind() Kind { return KindProjectionLog }

func (p *Projection) Schema() (Schema, error) {
	sc, err := p.Input.Schema()
	if err != nil {
		return Schema{}, err
	}
	out := make([]Attribute, 0, len(p.Attributes))
	for _, name := range p.Attributes {
		a, ok := sc.Attribute(name)
		if !ok {
			return Schema{}, dberr.New(dberr.MissingAttribute, "projection references unknown attribute %s", name)
		}
		out = append(out, a)
	}
	return NewSchema(out...), nil
}

func (p *Projection) HasAttribute(name string) bool {
	for _, a := range p.Attributes {
		if a == name {
			return true
		}
	}
	return false
}

func (p *Projection) String() string { return fmt.Sprintf("π[%s]", strings.Join(p.Attributes, ",")) }

// --- Cartesian product -----------------------------------------------------

type CartesianProduct struct {
	binary
}

func NewCartesianProduct(l, r Operator) *CartesianProduct {
	return &CartesianProduct{binary: binary{Left: l, Right: r}}
}

func (c *CartesianProduct) Kind() Kind { return KindCartesianLog }

func (c *CartesianProduct) Schema() (Schema, error) {
	ls, err := c.Left.Schema()
	if err != nil {
		return Schema{}, err
	}
	rs, err := c.Right.Schema()
	if err != nil {
		return Schema{}, err
	}
	if !ls.Disjoint(rs) {
		return Schema{}, dberr.New(dberr.SchemaViolation, "cartesian product operands share attribute names")
	}
	return NewSchema(append(append([]Attribute{}, ls.Attributes...), rs.Attributes...)...), nil
}

func (c *CartesianProduct) HasAttribute(name string) bool {
	sc, err := c.Schema()
	return err == nil && sc.HasAttribute(name)
}

func (c *CartesianProduct) String() string { return "×" }

// --- Theta-join ------------------------------------------------------------

type ThetaJoin struct {
	binary
	Predicate string
}

func NewThetaJoin(l, r Operator, predicate string) *ThetaJoin {
	return &ThetaJoin{binary: binary{Left: l, Right: r}, Predicate: predicate}
}

func (t *ThetaJoin) Kind() Kind { return KindThetaJoinLog }

func (t *ThetaJoin) Schema() (Schema, error) {
	ls, err := t.Left.Schema()
	if err != nil {
		return Schema{}, err
	}
	rs, err := t.Right.Schema()
	if err != nil {
		return Schema{}, err
	}
	if !ls.Disjoint(rs) {
		return Schema{}, dberr.New(dberr.SchemaViolation, "theta-join operands share attribute names")
	}
	attrs, err := t.GetAttributesInPredicate()
	if err != nil {
		return Schema{}, err
	}
	sc := NewSchema(append(append([]Attribute{}, ls.Attributes...), rs.Attributes...)...)
	for a := range attrs {
		if !sc.HasAttribute(a) {
			return Schema{}, dberr.New(dberr.MissingAttribute, "theta-join predicate references unknown attribute %s", a)
		}
	}
	return sc, nil
}

func (t *ThetaJoin) GetAttributesInPredicate() (map[string]struct{}, error) {
	return expr.Identifiers(t.Predicate)
}

func (t *ThetaJoin) HasAttribute(name string) bool {
	sc, err := t.Schema()
	return err == nil && sc.HasAttribute(name)
}

func (t *ThetaJoin) String() string { return fmt.Sprintf("⋈[%s]", t.Predicate) }

// --- Rename-relation ---------------------------------------------------

type RenameRelation struct {
	unary
	NewName string
}

func NewRenameRelation(input Operator, newName string) (*RenameRelation, error) {
	if !IsIdentifier(newName) {
		return nil, dberr.New(dberr.ParseError, "rename-relation target %q is not a valid identifier", newName)
	}
	return &RenameRelation{unary: unary{Input: input}, NewName: newName}, nil
}

func (r *RenameRelation) Kind() Kind { return KindRenameRelationLog }

func (r *RenameRelation) Schema() (Schema, error) { return r.Input.Schema() }

func (r *RenameRelation) HasAttribute(name string) bool {
	sc, err := r.Schema()
	return err == nil && sc.HasAttribute(name)
}

func (r *RenameRelation) String() string { return fmt.Sprintf("ρ[%s]", r.NewName) }

// --- Rename-attributes ---------------------------------------------------

// AttributeRename is one `new<-old` change.
type AttributeRename struct {
	New string
	Old string
}

type RenameAttributes struct {
	unary
	Changes []AttributeRename
}

func NewRenameAttributes(input Operator, changes []AttributeRename) (*RenameAttributes, error) {
	for _, c := range changes {
		if !IsIdentifier(c.New) || !IsIdentifier(c.Old) {
			return nil, dberr.New(dberr.ParseError, "rename-attributes change %s<-%s is not a valid identifier pair", c.New, c.Old)
		}
	}
	return &RenameAttributes{unary: unary{Input: input}, Changes: changes}, nil
}

func (r *RenameAttributes) Kind() Kind { return KindRenameAttributesLog }

func (r *RenameAttributes) Schema() (Schema, error) {
	sc, err := r.Input.Schema()
	if err != nil {
		return Schema{}, err
	}
	attrs := append([]Attribute(nil), sc.Attributes...)
	for _, c := range r.Changes {
		found := false
		for i, a := range attrs {
			if a.Name == c.Old {
				attrs[i].Name = c.New
				found = true
				break
			}
		}
		if !found {
			return Schema{}, dberr.New(dberr.MissingAttribute, "rename-attributes: no attribute named %s", c.Old)
		}
	}
	return NewSchema(attrs...), nil
}

func (r *RenameAttributes) HasAttribute(name string) bool {
	sc, err := r.Schema()
	return err == nil && sc.HasAttribute(name)
}

func (r *RenameAttributes) String() string {
	parts := make([]string, len(r.Changes))
	for i, c := range r.Changes {
		parts[i] = c.New + "<-" + c.Old
	}
	return fmt.Sprintf("ρ[%s]", strings.Join(parts, ","))
}

// --- Grouping --------------------------------------------------------------

type AggFn string

const (
	AggCount AggFn = "count"
	AggSum   AggFn = "sum"
	AggMin   AggFn = "min"
	AggMax   AggFn = "max"
	AggAvg   AggFn = "avg"
)

// Aggregation is one `fn(attr)` term, with Attr == "*" for count(*).
type Aggregation struct {
	Fn   AggFn
	Attr string
}

func (a Aggregation) outputName() string {
	if a.Fn == AggCount && a.Attr == "*" {
		return "count_star"
	}
	return string(a.Fn) + "_" + a.Attr
}

func (a Aggregation) outputDomain() Domain {
	if a.Fn == AggAvg {
		return Floating
	}
	return Integer
}

type Grouping struct {
	unary
	GroupBy      []string
	Aggregations []Aggregation
}

func NewGrouping(input Operator, groupBy []string, aggs []Aggregation) *Grouping {
	return &Grouping{unary: unary{Input: input}, GroupBy: groupBy, Aggregations: aggs}
}

func (g *Grouping) Kind() Kind { return KindGroupingLog }

func (g *Grouping) Schema() (Schema, error) {
	sc, err := g.Input.Schema()
	if err != nil {
		return Schema{}, err
	}
	var out []Attribute
	for _, name := range g.GroupBy {
		a, ok := sc.Attribute(name)
		if !ok {
			return Schema{}, dberr.New(dberr.MissingAttribute, "grouping references unknown attribute %s", name)
		}
		out = append(out, a)
	}
	for _, agg := range g.Aggregations {
		if agg.Attr != "*" && !sc.HasAttribute(agg.Attr) {
			return Schema{}, dberr.New(dberr.MissingAttribute, "aggregation references unknown attribute %s", agg.Attr)
		}
		out = append(out, Attribute{Name: agg.outputName(), Domain: agg.outputDomain()})
	}
	return NewSchema(out...), nil
}

func (g *Grouping) HasAttribute(name string) bool {
	sc, err := g.Schema()
	return err == nil && sc.HasAttribute(name)
}

func (g *Grouping) String() string {
	parts := make([]string, len(g.Aggregations))
	for i, a := range g.Aggregations {
		parts[i] = a.outputName()
	}
	return fmt.Sprintf("γ[%s; %s]", strings.Join(g.GroupBy, ","), strings.Join(parts, ","))
}

// --- Set operators -----------------------------------------------------

type setKind int

const (
	setIntersection setKind = iota
	setUnion
	setDifference
)

type setOp struct {
	binary
	kind setKind
}

func (s *setOp) Kind() Kind {
	switch s.kind {
	case setIntersection:
		return KindIntersectionLog
	case setUnion:
		return KindUnionLog
	default:
		return KindDifferenceLog
	}
}

func (s *setOp) Schema() (Schema, error) {
	ls, err := s.Left.Schema()
	if err != nil {
		return Schema{}, err
	}
	rs, err := s.Right.Schema()
	if err != nil {
		return Schema{}, err
	}
	if !ls.Equal(rs) {
		return Schema{}, dberr.New(dberr.SchemaViolation, "set operator operands have different schemas: %s vs %s", ls, rs)
	}
	return ls, nil
}

func (s *setOp) HasAttribute(name string) bool {
	sc, err := s.Schema()
	return err == nil && sc.HasAttribute(name)
}

type Intersection struct{ setOp }
type Union struct{ setOp }
type Difference struct{ setOp }

func NewIntersection(l, r Operator) *Intersection {
	return &Intersection{setOp{binary: binary{Left: l, Right: r}, kind: setIntersection}}
}
func NewUnion(l, r Operator) *Union {
	return &Union{setOp{binary: binary{Left: l, Right: r}, kind: setUnion}}
}
func NewDifference(l, r Operator) *Difference {
	return &Difference{setOp{binary: binary{Left: l, Right: r}, kind: setDifference}}
}

func (i *Intersection) String() string { return "∩" }
func (u *Union) String() string        { return "∪" }
func (d *Difference) String() string   { return "−" }
