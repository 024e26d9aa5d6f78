package rowquery

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var productSchema = Schema{
	Table: "products",
	Columns: map[string]ColumnType{
		"id":          UUID,
		"name":        Text,
		"sku":         Text,
		"category":    Text,
		"price_cents": Int,
		"stock":       Int,
		"active":      Bool,
		"image_url":   Text,
		"created_at":  Time,
	},
	SearchColumns: []string{"name", "sku"},
	DefaultOrder:  []Order{{Column: "created_at", Desc: true}},
	DefaultLimit:  20,
	MaxLimit:      50,
}

func parse(t *testing.T, raw string, extra ...string) Query {
	t.Helper()
	v, err := url.ParseQuery(raw)
	require.NoError(t, err)
	q, err := Parse(productSchema, v, extra...)
	require.NoError(t, err)
	return q
}

func TestParse_Defaults(t *testing.T) {
	q := parse(t, "")

	assert.Equal(t, 20, q.Limit)
	assert.Equal(t, 0, q.Offset)
	assert.Empty(t, q.Predicates)
	assert.Equal(t, []Order{{Column: "created_at", Desc: true}}, q.Orders)
}

func TestParse_Operators(t *testing.T) {
	q := parse(t, "price_cents=gte.1000&price_cents=lt.5000&active=is.true&category=eq.tools")

	require.Len(t, q.Predicates, 4)
	assert.Equal(t, Predicate{Column: "active", Op: OpIs, Values: []any{"true"}}, q.Predicates[0])
	assert.Equal(t, Predicate{Column: "category", Op: OpEq, Values: []any{"tools"}}, q.Predicates[1])
	assert.Equal(t, OpGte, q.Predicates[2].Op)
	assert.Equal(t, int64(1000), q.Predicates[2].Values[0])
	assert.Equal(t, OpLt, q.Predicates[3].Op)
}

func TestParse_BareValueIsEquality(t *testing.T) {
	q := parse(t, "name=a.b%40example.com")

	require.Len(t, q.Predicates, 1)
	assert.Equal(t, OpEq, q.Predicates[0].Op)
	assert.Equal(t, "a.b@example.com", q.Predicates[0].Values[0])
}

func TestParse_UnknownPrefixOnTextIsEquality(t *testing.T) {
	q := parse(t, "name=foo.bar")

	require.Len(t, q.Predicates, 1)
	assert.Equal(t, Predicate{Column: "name", Op: OpEq, Values: []any{"foo.bar"}}, q.Predicates[0])
}

func TestParse_InList(t *testing.T) {
	q := parse(t, "stock=in.(1,%202,3)")

	require.Len(t, q.Predicates, 1)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, q.Predicates[0].Values)
}

func TestParse_LikeWildcards(t *testing.T) {
	q := parse(t, "name=ilike.*hammer*")
	assert.Equal(t, "%hammer%", q.Predicates[0].Values[0])
}

func TestParse_TimeAcceptsDate(t *testing.T) {
	q := parse(t, "created_at=gte.2024-03-01")
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), q.Predicates[0].Values[0])
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"unknown column", "password_hash=eq.x", ErrUnknownColumn},
		{"like on int", "stock=like.1*", ErrInvalidOperator},
		{"range on bool", "active=gt.true", ErrInvalidOperator},
		{"unknown op on int", "price_cents=between.5", ErrInvalidOperator},
		{"unknown op on bool", "active=isnt.true", ErrInvalidOperator},
		{"unknown op on time", "created_at=after.2024-03-01", ErrInvalidOperator},
		{"bad int", "stock=gt.ten", ErrInvalidValue},
		{"bad uuid", "id=eq.nope", ErrInvalidValue},
		{"in without parens", "stock=in.1,2", ErrInvalidValue},
		{"empty in", "stock=in.()", ErrInvalidValue},
		{"is true on text", "name=is.true", ErrInvalidValue},
		{"is garbage", "name=is.maybe", ErrInvalidValue},
		{"order unknown column", "order=secret.asc", ErrUnknownColumn},
		{"order bad direction", "order=name.sideways", ErrInvalidValue},
		{"zero limit", "limit=0", ErrInvalidPagination},
		{"negative offset", "offset=-1", ErrInvalidPagination},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := url.ParseQuery(tc.raw)
			require.NoError(t, err)

			_, err = Parse(productSchema, v)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestParse_LimitClampedToMax(t *testing.T) {
	q := parse(t, "limit=500&offset=40")
	assert.Equal(t, 50, q.Limit)
	assert.Equal(t, 40, q.Offset)
}

func TestParse_ExtraParamsSkipped(t *testing.T) {
	q := parse(t, "low_stock=true&name=drill", "low_stock")
	require.Len(t, q.Predicates, 1)
	assert.Equal(t, "name", q.Predicates[0].Column)
}

func TestParse_SearchWithoutSearchColumns(t *testing.T) {
	s := productSchema
	s.SearchColumns = nil

	_, err := Parse(s, url.Values{"q": {"x"}})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestSelect_BuildsNumberedSQL(t *testing.T) {
	q := parse(t, "category=tools&stock=in.(1,2)&q=50%25_off&order=name.asc&limit=10&offset=20")
	q.And("stock <= low_stock_threshold AND price_cents > ?", int64(0))

	sql, args := q.Select("id, name")

	assert.Equal(t,
		`SELECT id, name, COUNT(*) OVER() AS total_count FROM "products"`+
			` WHERE "category" = $1 AND "stock" IN ($2, $3)`+
			` AND ("name" ILIKE $4 OR "sku" ILIKE $4)`+
			` AND (stock <= low_stock_threshold AND price_cents > $5)`+
			` ORDER BY "name" ASC, "id" ASC LIMIT $6 OFFSET $7`,
		sql)
	assert.Equal(t, []any{"tools", int64(1), int64(2), `%50\%\_off%`, int64(0), 10, 20}, args)
}

func TestWhere_IsNullAndNotNull(t *testing.T) {
	q := parse(t, "image_url=is.null&category=is.notnull")

	sql, args := q.Where()

	assert.Equal(t, ` WHERE "category" IS NOT NULL AND "image_url" IS NULL`, sql)
	assert.Empty(t, args)
}

func TestWhere_Empty(t *testing.T) {
	sql, args := parse(t, "").Where()
	assert.Empty(t, sql)
	assert.Empty(t, args)
}

func TestOrderBy_KeepsExplicitID(t *testing.T) {
	q := parse(t, "order=created_at.desc,id.desc")
	assert.Equal(t, ` ORDER BY "created_at" DESC, "id" DESC`, q.OrderBy())
}

func TestCount_SharesFilters(t *testing.T) {
	q := parse(t, "active=is.false")
	sql, args := q.Count()
	assert.Equal(t, `SELECT COUNT(*) FROM "products" WHERE "active" IS FALSE`, sql)
	assert.Empty(t, args)
}
