package ra

import (
	"sort"

	"github.com/BigDataAnalyticsGroup/radb/internal/dberr"
)

// CompareOp is one of the five comparison operators an Index lookup
// supports.
type CompareOp string

const (
	OpEq CompareOp = "=="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

type indexEntry struct {
	key   Value
	tuple Tuple
}

// Index is a sorted secondary index bound to (relation, attribute). It is
// rebuilt from scratch, never maintained incrementally, matching §4.2.
type Index struct {
	Relation *Relation
	Attr     string

	attrIdx int
	entries []indexEntry
}

// NewIndex collects (tuple[attr], tuple) pairs from relation and stable-
// sorts them by key.
func NewIndex(relation *Relation, attr string) (*Index, error) {
	i, err := relation.AttributeIndex(attr)
	if err != nil {
		return nil, err
	}
	idx := &Index{Relation: relation, Attr: attr, attrIdx: i}
	idx.rebuild()
	return idx, nil
}

func (idx *Index) rebuild() {
	idx.entries = idx.entries[:0]
	for _, t := range idx.Relation.Tuples() {
		idx.entries = append(idx.entries, indexEntry{key: t[idx.attrIdx], tuple: t})
	}
	sort.SliceStable(idx.entries, func(i, j int) bool {
		return compareValues(idx.entries[i].key, idx.entries[j].key) < 0
	})
}

// Rebuild refreshes the index from the current relation contents. The
// underlying relations are not maintained incrementally, so callers that
// mutate a relation after indexing must call this explicitly.
func (idx *Index) Rebuild() { idx.rebuild() }

func compareValues(a, b Value) int {
	switch av := a.(type) {
	case int64:
		bv := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

// Lookup returns every tuple satisfying `tuple.attr op key`, in O(log n + k).
func (idx *Index) Lookup(op CompareOp, key Value) ([]Tuple, error) {
	n := len(idx.entries)
	switch op {
	case OpEq:
		lo := sort.Search(n, func(i int) bool { return compareValues(idx.entries[i].key, key) >= 0 })
		var out []Tuple
		for i := lo; i < n && compareValues(idx.entries[i].key, key) == 0; i++ {
			out = append(out, idx.entries[i].tuple)
		}
		return out, nil
	case OpGe:
		lo := sort.Search(n, func(i int) bool { return compareValues(idx.entries[i].key, key) >= 0 })
		return idx.collect(lo, n), nil
	case OpGt:
		hi := sort.Search(n, func(i int) bool { return compareValues(idx.entries[i].key, key) > 0 })
		return idx.collect(hi, n), nil
	case OpLe:
		hi := sort.Search(n, func(i int) bool { return compareValues(idx.entries[i].key, key) > 0 })
		return idx.collect(0, hi), nil
	case OpLt:
		lo := sort.Search(n, func(i int) bool { return compareValues(idx.entries[i].key, key) >= 0 })
		return idx.collect(0, lo), nil
	default:
		return nil, dberr.New(dberr.ParseError, "unknown comparison operator %q", op)
	}
}

func (idx *Index) collect(lo, hi int) []Tuple {
	out := make([]Tuple, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, idx.entries[i].tuple)
	}
	return out
}

// EstimatedResultSize is the cost estimate used by the compiler (§4.4) to
// pick between candidate Selection-IndexBased sources: the number of
// entries satisfying op, obtained by running the lookup and counting the
// tuples it returns (or every entry, if the lookup fails).
func (idx *Index) EstimatedResultSize(op CompareOp, key Value) int {
	tuples, err := idx.Lookup(op, key)
	if err != nil {
		return len(idx.entries)
	}
	return len(tuples)
}
