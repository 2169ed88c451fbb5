package tm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/BigDataAnalyticsGroup/radb/internal/dberr"
)

// Schedule parsing mirrors the pseudocode grammar of the original codegen
// step, hand-rolled instead of generating and eval-ing Python source
// (§9 design notes: no eval, a small typed parser instead).
var (
	reRead   = regexp.MustCompile(`^([^\s=]+)\s*=\s*READ\s*\(\s*table_name\s*=\s*([^\s,]+)\s*,\s*rowid\s*=\s*([^\s,]+)\s*,\s*column\s*=\s*([^\s)]+)\s*\)$`)
	reUpdate = regexp.MustCompile(`^UPDATE\s*\(\s*table_name\s*=\s*([^\s,]+)\s*,\s*rowid\s*=\s*([^\s,]+)\s*,\s*values\s*=\s*(\{.*\})\s*\)$`)
	reInsert = regexp.MustCompile(`^INSERT\s*\(\s*table_name\s*=\s*([^\s,]+)\s*,\s*values\s*=\s*(\{.*\})\s*\)$`)
	reDelete = regexp.MustCompile(`^DELETE\s*\(\s*table_name\s*=\s*([^\s,]+)\s*,\s*rowid\s*=\s*([^\s,]+)\s*\)$`)
	reAssert = regexp.MustCompile(`^ASSERT\s*\(\s*constraint\s*=\s*(.*)\)$`)
	reBegin  = regexp.MustCompile(`^BEGIN\s*\(\s*\)$`)
	reCommit = regexp.MustCompile(`^COMMIT\s*\(\s*\)$`)
	reAbort  = regexp.MustCompile(`^ABORT\s*\(\s*\)$`)

	reDictEntry = regexp.MustCompile(`'([^']+)'\s*:\s*([^,}]+)`)
)

// ParseSchedule parses a full schedule: one "<transaction-id>;<statement>"
// per line (§6). Blank lines are ignored.
func ParseSchedule(lines []string) ([]Statement, error) {
	stmts := make([]Statement, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ";", 2)
		if len(parts) != 2 {
			return nil, dberr.New(dberr.ParseError, "invalid schedule line %q: expected '<tx>;<statement>'", line)
		}
		tx := strings.TrimSpace(parts[0])
		body := strings.TrimSpace(parts[1])
		stmt, err := ParseStatement(tx, body)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// ParseStatement parses a single pseudocode statement body already split
// from its leading "<tx>;".
func ParseStatement(tx, body string) (Statement, error) {
	base := Statement{TxID: tx, Raw: body}

	switch {
	case reBegin.MatchString(body):
		base.Kind = StmtBegin
		return base, nil

	case reCommit.MatchString(body):
		base.Kind = StmtCommit
		return base, nil

	case reAbort.MatchString(body):
		base.Kind = StmtAbort
		return base, nil

	case reRead.MatchString(body):
		m := reRead.FindStringSubmatch(body)
		rowID, err := strconv.ParseUint(m[3], 10, 64)
		if err != nil {
			return Statement{}, dberr.New(dberr.ParseError, "invalid rowid in %q: %v", body, err)
		}
		base.Kind = StmtRead
		base.VarName = m[1]
		base.Table = m[2]
		base.RowID = rowID
		base.Column = m[4]
		return base, nil

	case reUpdate.MatchString(body):
		m := reUpdate.FindStringSubmatch(body)
		rowID, err := strconv.ParseUint(m[2], 10, 64)
		if err != nil {
			return Statement{}, dberr.New(dberr.ParseError, "invalid rowid in %q: %v", body, err)
		}
		values, err := parseValueDict(m[3])
		if err != nil {
			return Statement{}, err
		}
		base.Kind = StmtUpdate
		base.Table = m[1]
		base.RowID = rowID
		base.Values = values
		return base, nil

	case reInsert.MatchString(body):
		m := reInsert.FindStringSubmatch(body)
		values, err := parseValueDict(m[2])
		if err != nil {
			return Statement{}, err
		}
		base.Kind = StmtInsert
		base.Table = m[1]
		base.Values = values
		return base, nil

	case reDelete.MatchString(body):
		m := reDelete.FindStringSubmatch(body)
		rowID, err := strconv.ParseUint(m[2], 10, 64)
		if err != nil {
			return Statement{}, dberr.New(dberr.ParseError, "invalid rowid in %q: %v", body, err)
		}
		base.Kind = StmtDelete
		base.Table = m[1]
		base.RowID = rowID
		return base, nil

	case reAssert.MatchString(body):
		m := reAssert.FindStringSubmatch(body)
		base.Kind = StmtAssert
		base.Predicate = strings.TrimSpace(m[1])
		return base, nil

	default:
		return Statement{}, dberr.New(dberr.ParseError, "unrecognized statement: %q", body)
	}
}

// parseValueDict parses a Python-dict-literal fragment like
// {'Balance': 10, 'Name': 'bob'} into typed Go values, without eval.
func parseValueDict(src string) (map[string]interface{}, error) {
	src = strings.TrimSpace(src)
	src = strings.TrimPrefix(src, "{")
	src = strings.TrimSuffix(src, "}")
	out := make(map[string]interface{})
	for _, m := range reDictEntry.FindAllStringSubmatch(src, -1) {
		key := m[1]
		raw := strings.TrimSpace(m[2])
		out[key] = parseScalar(raw)
	}
	return out, nil
}

func parseScalar(raw string) interface{} {
	if len(raw) >= 2 && (raw[0] == '\'' || raw[0] == '"') && raw[len(raw)-1] == raw[0] {
		return raw[1 : len(raw)-1]
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
