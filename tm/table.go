package tm

import (
	"fmt"
	"io"
	"strings"

	"github.com/BigDataAnalyticsGroup/radb/internal/dberr"
	"github.com/BigDataAnalyticsGroup/radb/ra"
)

// RowIDAttr and the MVCC reserved attribute names, always prepended to a
// Table's schema in that order (row_id first, then begin_ts/end_ts for
// MVCC tables) per §3.
const (
	RowIDAttr   = "row_id"
	BeginTSAttr = "begin_ts"
	EndTSAttr   = "end_ts"
)

// EndOfTime is the "+∞" sentinel for a version's end_ts while it remains
// the current version (§9: the source alternates sentinel constants; this
// treats it abstractly as +∞).
const EndOfTime uint64 = ^uint64(0)

// Table extends ra.Relation with row-id-addressed, optionally
// multi-versioned storage (§4.3).
type Table struct {
	*ra.Relation

	chains          [][]ra.Tuple
	deletedRowIDs   []uint64
	useMultiversion bool
}

// NewTable constructs a Table whose schema already has its reserved
// attributes prepended (the caller -- normally TransactionManager.AddTable
// -- is responsible for that, so Table itself stays agnostic of which CC
// protocol owns it).
func NewTable(name string, schema ra.Schema, useMultiversion bool) *Table {
	return &Table{
		Relation:        ra.NewRelation(name, schema),
		useMultiversion: useMultiversion,
	}
}

// Get returns the version chain for rowID (empty if unused, out of range,
// or deleted). The most recent version is always chain[len-1].
func (t *Table) Get(rowID uint64) []ra.Tuple {
	if rowID >= uint64(len(t.chains)) {
		return nil
	}
	return t.chains[rowID]
}

// Put places row where row[row_id] indexes the chain: single-version mode
// overwrites, multi-version mode appends.
func (t *Table) Put(row ra.Tuple) error {
	idx, err := t.Relation.AttributeIndex(RowIDAttr)
	if err != nil {
		return err
	}
	rid, ok := row[idx].(int64)
	if !ok {
		return dberr.New(dberr.SchemaViolation, "row_id attribute must be an integer")
	}
	if rid < 0 || rid >= int64(len(t.chains)) {
		return dberr.New(dberr.MissingRow, "row_id %d out of range", rid)
	}
	if len(row) != len(t.Relation.Schema.Attributes) {
		return dberr.New(dberr.SchemaViolation, "row has arity %d, schema has %d", len(row), len(t.Relation.Schema.Attributes))
	}
	if t.useMultiversion {
		t.chains[rid] = append(t.chains[rid], row)
	} else {
		t.chains[rid] = []ra.Tuple{row}
	}
	return nil
}

// GetNextRowID pops a free row id if one exists, otherwise appends a fresh
// empty chain and returns its index.
func (t *Table) GetNextRowID() uint64 {
	if n := len(t.deletedRowIDs); n > 0 {
		rid := t.deletedRowIDs[n-1]
		t.deletedRowIDs = t.deletedRowIDs[:n-1]
		return rid
	}
	rid := uint64(len(t.chains))
	t.chains = append(t.chains, nil)
	return rid
}

// Delete empties rowID's chain. In single-version mode the id is returned
// to the free list so a later insert may reuse it; multi-version tables
// never recycle ids.
func (t *Table) Delete(rowID uint64) error {
	if rowID >= uint64(len(t.chains)) {
		return dberr.New(dberr.MissingRow, "row_id %d out of range", rowID)
	}
	t.chains[rowID] = nil
	if !t.useMultiversion {
		t.deletedRowIDs = append(t.deletedRowIDs, rowID)
	}
	return nil
}

// NumRows is the dense length of the row-id address space (includes holes
// left by deletion).
func (t *Table) NumRows() int { return len(t.chains) }

// FormatTable renders the table in the teacher's tabular style: current
// versions first, then an "older_versions" section for any row with more
// than one version (supplemented from original_source/tm/table.py).
func (t *Table) FormatTable(w io.Writer, limit int) {
	colWidth := t.colWidth()
	var current, older [][]ra.Value

	for _, chain := range t.chains {
		if len(chain) == 0 {
			continue
		}
		current = append(current, toValues(chain[len(chain)-1]))
		for _, v := range chain[:len(chain)-1] {
			older = append(older, toValues(v))
		}
	}

	t.printSection(w, t.Relation.Name, current, colWidth, limit, false)
	if len(older) > 0 {
		fmt.Fprint(w, "\n\n")
		t.printSection(w, t.Relation.Name, older, colWidth, limit, true)
	}
}

func toValues(t ra.Tuple) []ra.Value { return []ra.Value(t) }

func (t *Table) colWidth() int {
	maxName := 0
	for _, a := range t.Relation.Schema.Attributes {
		if len(a.Name) > maxName {
			maxName = len(a.Name)
		}
	}
	maxVal := 0
	for _, chain := range t.chains {
		for _, v := range chain {
			for _, val := range v {
				s := fmt.Sprintf("%v", val)
				if len(s) > maxVal {
					maxVal = len(s)
				}
			}
		}
	}
	w := maxName
	if maxVal > w {
		w = maxVal
	}
	return w + 2
}

func (t *Table) printSection(w io.Writer, name string, rows [][]ra.Value, colWidth, limit int, olderVersions bool) {
	header := name
	if olderVersions {
		header = name + " (older_versions)"
	}
	rule := strings.Repeat("-", max(len(name), colWidth*len(t.Relation.Schema.Attributes)))
	fmt.Fprintf(w, "%s\n%s\n%s\n", strings.Repeat("-", len(name)), header, rule)
	for _, a := range t.Relation.Schema.Attributes {
		fmt.Fprint(w, padRight(a.Name, colWidth))
	}
	fmt.Fprintf(w, "\n%s\n", rule)
	for i, row := range rows {
		if limit > 0 && i >= limit {
			fmt.Fprintf(w, "\nWARNING: skipping %d out of %d tuples...\n", len(rows)-limit, len(rows))
			break
		}
		for _, v := range row {
			fmt.Fprint(w, padRight(fmt.Sprintf("%v", v), colWidth))
		}
		fmt.Fprintln(w)
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (t *Table) String() string {
	var b strings.Builder
	t.FormatTable(&b, 0)
	return b.String()
}
