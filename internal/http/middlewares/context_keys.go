package middlewares

// Keys stored on the gin context. Code below the HTTP layer reads the actor
// from the request context via actorctx instead.
const (
	CtxRequestID = "request_id"
	CtxUserID    = "auth.user_id"
	CtxEmail     = "auth.email"
	CtxRole      = "auth.role"
)
