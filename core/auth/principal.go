package auth

import (
	"context"
	"net/http"
	"strings"
)

// Headers set by the portal gateway after it has authenticated the caller.
const (
	HeaderUser  = "X-Portal-User"
	HeaderRoles = "X-Portal-Role"
)

type contextKey string

const PrincipalContextKey contextKey = "principal"

type Principal struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// FromRequest reads the principal from the gateway headers. Roles may be
// comma separated. It returns nil when no user is present.
func FromRequest(r *http.Request) *Principal {
	username := strings.TrimSpace(r.Header.Get(HeaderUser))
	if username == "" {
		return nil
	}
	var roles []string
	for _, v := range r.Header.Values(HeaderRoles) {
		for _, part := range strings.Split(v, ",") {
			if role := strings.ToLower(strings.TrimSpace(part)); role != "" {
				roles = append(roles, role)
			}
		}
	}
	return &Principal{Username: username, Roles: roles}
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(PrincipalContextKey).(*Principal)
	return p
}

// Username returns the acting username or "-" for anonymous calls.
func Username(ctx context.Context) string {
	if p := PrincipalFrom(ctx); p != nil {
		return p.Username
	}
	return "-"
}
