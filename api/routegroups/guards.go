package routegroups

import (
	"net/http"

	"civic-dispatch/core/rbac"
)

// Guards carries the server middleware every routegroup handler is wrapped in.
type Guards struct {
	WithPrincipal     func(http.HandlerFunc) http.HandlerFunc
	RequirePermission func(rbac.Permission) func(http.HandlerFunc) http.HandlerFunc
}

// PrincipalPerm wraps h so it runs only for an authenticated caller holding
// perm.
func (g Guards) PrincipalPerm(perm rbac.Permission, h http.HandlerFunc) http.HandlerFunc {
	return g.WithPrincipal(g.RequirePermission(perm)(h))
}
