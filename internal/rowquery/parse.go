package rowquery

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Op string

const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpGt    Op = "gt"
	OpGte   Op = "gte"
	OpLt    Op = "lt"
	OpLte   Op = "lte"
	OpLike  Op = "like"
	OpILike Op = "ilike"
	OpIn    Op = "in"
	OpIs    Op = "is"
)

var knownOps = map[Op]struct{}{
	OpEq: {}, OpNeq: {}, OpGt: {}, OpGte: {}, OpLt: {}, OpLte: {},
	OpLike: {}, OpILike: {}, OpIn: {}, OpIs: {},
}

type Predicate struct {
	Column string
	Op     Op
	// Values holds one converted value, or several for OpIn. For OpIs it
	// holds one of "null", "notnull", "true", "false".
	Values []any
}

type Order struct {
	Column string
	Desc   bool
}

type condition struct {
	sql  string
	args []any
}

type Query struct {
	Table      string
	Predicates []Predicate
	Search     string
	Orders     []Order
	Limit      int
	Offset     int

	searchColumns []string
	extra         []condition
}

// Parse reads filters, order, limit, offset and q from values. Parameters in
// allowExtra are skipped so handlers can accept their own parameters
// alongside column filters.
func Parse(s Schema, values url.Values, allowExtra ...string) (Query, error) {
	defLimit, maxLimit := s.limits()

	q := Query{
		Table:         s.Table,
		Limit:         defLimit,
		searchColumns: s.SearchColumns,
	}

	extra := make(map[string]struct{}, len(allowExtra))
	for _, name := range allowExtra {
		extra[name] = struct{}{}
	}

	for name, raws := range values {
		if _, ok := reservedParams[name]; ok {
			continue
		}
		if _, ok := extra[name]; ok {
			continue
		}

		colType, ok := s.Columns[name]
		if !ok {
			return Query{}, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}

		for _, raw := range raws {
			p, err := parsePredicate(name, colType, raw)
			if err != nil {
				return Query{}, err
			}
			q.Predicates = append(q.Predicates, p)
		}
	}

	// map iteration order is random; keep SQL stable
	sortPredicates(q.Predicates)

	q.Search = strings.TrimSpace(values.Get("q"))
	if q.Search != "" && len(s.SearchColumns) == 0 {
		return Query{}, fmt.Errorf("%w: q is not supported for %s", ErrUnknownColumn, s.Table)
	}

	orders, err := parseOrder(s, values.Get("order"))
	if err != nil {
		return Query{}, err
	}
	q.Orders = orders

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Query{}, fmt.Errorf("%w: limit must be a positive integer", ErrInvalidPagination)
		}
		if n > maxLimit {
			n = maxLimit
		}
		q.Limit = n
	}

	if raw := values.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Query{}, fmt.Errorf("%w: offset must be a non-negative integer", ErrInvalidPagination)
		}
		q.Offset = n
	}

	return q, nil
}

func parsePredicate(column string, colType ColumnType, raw string) (Predicate, error) {
	op, value, err := splitOp(raw, colType)
	if err != nil {
		return Predicate{}, fmt.Errorf("%w on %s", err, column)
	}

	if !opAllowed(op, colType) {
		return Predicate{}, fmt.Errorf("%w: %s not supported on %s column %s", ErrInvalidOperator, op, colType, column)
	}

	p := Predicate{Column: column, Op: op}

	switch op {
	case OpIs:
		v := strings.ToLower(value)
		switch v {
		case "null", "notnull":
		case "true", "false":
			if colType != Bool {
				return Predicate{}, fmt.Errorf("%w: is.%s requires a bool column", ErrInvalidValue, v)
			}
		default:
			return Predicate{}, fmt.Errorf("%w: is.%s", ErrInvalidValue, value)
		}
		p.Values = []any{v}

	case OpIn:
		if !strings.HasPrefix(value, "(") || !strings.HasSuffix(value, ")") {
			return Predicate{}, fmt.Errorf("%w: in expects (a,b,...) for %s", ErrInvalidValue, column)
		}
		inner := strings.TrimSpace(value[1 : len(value)-1])
		if inner == "" {
			return Predicate{}, fmt.Errorf("%w: empty in list for %s", ErrInvalidValue, column)
		}
		for _, part := range strings.Split(inner, ",") {
			v, err := convert(colType, strings.TrimSpace(part))
			if err != nil {
				return Predicate{}, fmt.Errorf("%w: %s: %v", ErrInvalidValue, column, err)
			}
			p.Values = append(p.Values, v)
		}

	case OpLike, OpILike:
		p.Values = []any{strings.ReplaceAll(value, "*", "%")}

	default:
		v, err := convert(colType, value)
		if err != nil {
			return Predicate{}, fmt.Errorf("%w: %s: %v", ErrInvalidValue, column, err)
		}
		p.Values = []any{v}
	}

	return p, nil
}

// splitOp separates "op.value". On text columns anything without a known
// operator prefix is an equality value, so "a.b@example.com" stays intact.
// Other column types never hold a letters-only prefix followed by a dot, so
// there it names an operator we do not support.
func splitOp(raw string, t ColumnType) (Op, string, error) {
	prefix, rest, found := strings.Cut(raw, ".")
	if !found {
		return OpEq, raw, nil
	}
	if _, ok := knownOps[Op(prefix)]; ok {
		return Op(prefix), rest, nil
	}
	if t != Text && isWord(prefix) {
		return "", "", fmt.Errorf("%w: unknown operator %s", ErrInvalidOperator, prefix)
	}
	return OpEq, raw, nil
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func opAllowed(op Op, t ColumnType) bool {
	switch op {
	case OpEq, OpNeq, OpIn, OpIs:
		return true
	case OpGt, OpGte, OpLt, OpLte:
		return t == Int || t == Time || t == Text
	case OpLike, OpILike:
		return t == Text
	default:
		return false
	}
}

func convert(t ColumnType, raw string) (any, error) {
	switch t {
	case Text:
		return raw, nil
	case Int:
		return strconv.ParseInt(raw, 10, 64)
	case Bool:
		return strconv.ParseBool(raw)
	case Time:
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts, nil
		}
		return time.Parse("2006-01-02", raw)
	case UUID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	default:
		return nil, fmt.Errorf("unsupported column type %d", t)
	}
}

func parseOrder(s Schema, raw string) ([]Order, error) {
	if strings.TrimSpace(raw) == "" {
		return append([]Order(nil), s.DefaultOrder...), nil
	}

	var out []Order
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		col, dir, _ := strings.Cut(part, ".")
		if _, ok := s.Columns[col]; !ok {
			return nil, fmt.Errorf("%w: cannot order by %s", ErrUnknownColumn, col)
		}

		o := Order{Column: col}
		switch strings.ToLower(dir) {
		case "", "asc":
		case "desc":
			o.Desc = true
		default:
			return nil, fmt.Errorf("%w: order direction %q", ErrInvalidValue, dir)
		}
		out = append(out, o)
	}

	return out, nil
}

func sortPredicates(ps []Predicate) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Column < ps[j].Column })
}
