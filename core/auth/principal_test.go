package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Nil(t, FromRequest(r))

	r.Header.Set(HeaderUser, " priya ")
	r.Header.Add(HeaderRoles, "Admin, official")
	r.Header.Add(HeaderRoles, "citizen")
	p := FromRequest(r)
	require.NotNil(t, p)
	assert.Equal(t, "priya", p.Username)
	assert.Equal(t, []string{"admin", "official", "citizen"}, p.Roles)
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, PrincipalFrom(ctx))
	assert.Equal(t, "-", Username(ctx))
	ctx = WithPrincipal(ctx, &Principal{Username: "ravi"})
	assert.Equal(t, "ravi", Username(ctx))
}
