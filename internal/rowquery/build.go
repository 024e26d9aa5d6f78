package rowquery

import (
	"fmt"
	"strconv"
	"strings"
)

// And adds a fixed condition. Placeholders are written as "?" and are
// renumbered when the query is built.
func (q *Query) And(sql string, args ...any) {
	q.extra = append(q.extra, condition{sql: sql, args: args})
}

type builder struct {
	sb   strings.Builder
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// Where renders the WHERE clause (with leading space) and its args. Numbering
// starts at $1. Empty when the query has no conditions.
func (q Query) Where() (string, []any) {
	b := &builder{}
	q.writeWhere(b)
	return b.sb.String(), b.args
}

func (q Query) writeWhere(b *builder) {
	var conds []string

	for _, p := range q.Predicates {
		conds = append(conds, predicateSQL(b, p))
	}

	if q.Search != "" && len(q.searchColumns) > 0 {
		ph := b.arg("%" + escapeLike(q.Search) + "%")
		parts := make([]string, 0, len(q.searchColumns))
		for _, c := range q.searchColumns {
			parts = append(parts, quoteIdent(c)+" ILIKE "+ph)
		}
		conds = append(conds, "("+strings.Join(parts, " OR ")+")")
	}

	for _, c := range q.extra {
		conds = append(conds, "("+renumber(b, c)+")")
	}

	if len(conds) == 0 {
		return
	}
	b.sb.WriteString(" WHERE ")
	b.sb.WriteString(strings.Join(conds, " AND "))
}

func predicateSQL(b *builder, p Predicate) string {
	col := quoteIdent(p.Column)

	switch p.Op {
	case OpEq:
		return col + " = " + b.arg(p.Values[0])
	case OpNeq:
		return col + " <> " + b.arg(p.Values[0])
	case OpGt:
		return col + " > " + b.arg(p.Values[0])
	case OpGte:
		return col + " >= " + b.arg(p.Values[0])
	case OpLt:
		return col + " < " + b.arg(p.Values[0])
	case OpLte:
		return col + " <= " + b.arg(p.Values[0])
	case OpLike:
		return col + " LIKE " + b.arg(p.Values[0])
	case OpILike:
		return col + " ILIKE " + b.arg(p.Values[0])
	case OpIn:
		phs := make([]string, 0, len(p.Values))
		for _, v := range p.Values {
			phs = append(phs, b.arg(v))
		}
		return col + " IN (" + strings.Join(phs, ", ") + ")"
	case OpIs:
		switch p.Values[0] {
		case "notnull":
			return col + " IS NOT NULL"
		case "true":
			return col + " IS TRUE"
		case "false":
			return col + " IS FALSE"
		default:
			return col + " IS NULL"
		}
	}
	// unreachable for parsed queries
	return "FALSE"
}

func renumber(b *builder, c condition) string {
	var out strings.Builder
	next := 0
	for _, r := range c.sql {
		if r == '?' && next < len(c.args) {
			out.WriteString(b.arg(c.args[next]))
			next++
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

// OrderBy renders the ORDER BY clause with a trailing id tie-breaker so
// offset pages are stable.
func (q Query) OrderBy() string {
	parts := make([]string, 0, len(q.Orders)+1)
	hasID := false
	for _, o := range q.Orders {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		if o.Column == "id" {
			hasID = true
		}
		parts = append(parts, quoteIdent(o.Column)+" "+dir)
	}
	if !hasID {
		parts = append(parts, `"id" ASC`)
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// Select builds a paged query that also returns the unpaged match count as
// the last column.
func (q Query) Select(columns string) (string, []any) {
	b := &builder{}
	b.sb.WriteString("SELECT ")
	b.sb.WriteString(columns)
	b.sb.WriteString(", COUNT(*) OVER() AS total_count FROM ")
	b.sb.WriteString(quoteIdent(q.Table))
	q.writeWhere(b)
	b.sb.WriteString(q.OrderBy())
	fmt.Fprintf(&b.sb, " LIMIT %s OFFSET %s", b.arg(q.Limit), b.arg(q.Offset))
	return b.sb.String(), b.args
}

// Count builds a SELECT COUNT(*) with the same filters.
func (q Query) Count() (string, []any) {
	b := &builder{}
	b.sb.WriteString("SELECT COUNT(*) FROM ")
	b.sb.WriteString(quoteIdent(q.Table))
	q.writeWhere(b)
	return b.sb.String(), b.args
}

// Column names come from a Schema whitelist; quoting guards against schemas
// that use reserved words.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
