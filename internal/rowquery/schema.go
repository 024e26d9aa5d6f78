// Package rowquery turns URL query parameters into parameterized SQL
// predicates over a whitelisted set of columns.
//
// A parameter named after a column carries "op.value", e.g.
//
//	?status=in.(paid,shipped)&price_cents=gte.1000&order=created_at.desc&limit=20
//
// A value without a recognised operator prefix is an equality match.
package rowquery

import "errors"

type ColumnType int

const (
	Text ColumnType = iota
	Int
	Bool
	Time
	UUID
)

func (t ColumnType) String() string {
	switch t {
	case Text:
		return "text"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Time:
		return "time"
	case UUID:
		return "uuid"
	default:
		return "unknown"
	}
}

// Schema describes one table as exposed to filtering.
type Schema struct {
	Table         string
	Columns       map[string]ColumnType
	SearchColumns []string
	DefaultOrder  []Order
	DefaultLimit  int
	MaxLimit      int
}

var (
	ErrUnknownColumn     = errors.New("unknown column")
	ErrInvalidOperator   = errors.New("invalid operator")
	ErrInvalidValue      = errors.New("invalid value")
	ErrInvalidPagination = errors.New("invalid pagination")
)

// Reserved parameters are never treated as column filters.
var reservedParams = map[string]struct{}{
	"order":  {},
	"limit":  {},
	"offset": {},
	"q":      {},
	"cursor": {},
	"select": {},
}

func (s Schema) limits() (def, max int) {
	def, max = s.DefaultLimit, s.MaxLimit
	if max <= 0 {
		max = 100
	}
	if def <= 0 || def > max {
		def = 20
		if def > max {
			def = max
		}
	}
	return def, max
}
