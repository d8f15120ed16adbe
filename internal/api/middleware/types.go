package middleware

// contextKey namespaces values this package stores on a request context.
type contextKey string

const (
	RequestIDContextKey contextKey = "request_id"
	UserContextKey      contextKey = "user"
)

const (
	RequestIDHeader          = "X-Request-ID"
	AuthorizationHeader      = "Authorization"
	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitResetHeader     = "X-RateLimit-Reset"
	APIVersionHeader         = "X-API-Version"
)

// User is the caller identity attached to the request context once
// AuthMiddleware accepts an API key.
type User struct {
	APIKey string
	Role   string // viewer, operator, admin
}

const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

var roleRank = map[string]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// HasRequiredRole reports whether userRole outranks or matches required.
func HasRequiredRole(userRole, required string) bool {
	u, uok := roleRank[userRole]
	r, rok := roleRank[required]
	return uok && rok && u >= r
}
