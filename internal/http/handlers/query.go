package handlers

import (
	"errors"
	"time"

	"github.com/geocoder89/backoffice/internal/rowquery"
	"github.com/geocoder89/backoffice/internal/utils"
	"github.com/gin-gonic/gin"
)

func isUUID(s string) bool { return utils.IsUUID(s) }

// parseQuery turns the request's query string into a rowquery.Query and
// writes a 400 when it does not fit schema. extra names the endpoint's own
// parameters, which are left for the caller.
func parseQuery(ctx *gin.Context, schema rowquery.Schema, extra ...string) (rowquery.Query, bool) {
	q, err := rowquery.Parse(schema, ctx.Request.URL.Query(), extra...)
	if err != nil {
		switch {
		case errors.Is(err, rowquery.ErrUnknownColumn),
			errors.Is(err, rowquery.ErrInvalidOperator),
			errors.Is(err, rowquery.ErrInvalidValue),
			errors.Is(err, rowquery.ErrInvalidPagination):
			RespondInvalidQuery(ctx, err.Error())
		default:
			RespondInternal(ctx, "Could not parse query")
		}
		return rowquery.Query{}, false
	}
	return q, true
}

// optionalTime parses an RFC 3339 timestamp or a bare date from the query.
func optionalTime(ctx *gin.Context, name string) (*time.Time, bool) {
	raw := ctx.Query(name)
	if raw == "" {
		return nil, true
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, true
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return &t, true
	}

	RespondInvalidQuery(ctx, name+" must be an RFC 3339 timestamp or YYYY-MM-DD date")
	return nil, false
}
