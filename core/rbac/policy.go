package rbac

import (
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	PermIssuesView        Permission = "issues.view"
	PermIssuesCreate      Permission = "issues.create"
	PermIssuesStatus      Permission = "issues.status"
	PermIssuesBulk        Permission = "issues.bulk"
	PermDispatchAssign    Permission = "dispatch.assign"
	PermOfficialsView     Permission = "officials.view"
	PermOfficialsManage   Permission = "officials.manage"
	PermDepartmentsView   Permission = "departments.view"
	PermDepartmentsManage Permission = "departments.manage"
	PermRegionsLookup     Permission = "regions.lookup"
)

const (
	RoleAdmin    = "admin"
	RoleOfficial = "official"
	RoleCitizen  = "citizen"
)

const modelText = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.obj == "*" || r.obj == p.obj)
`

type Role struct {
	Name        string
	Permissions []Permission
}

// DefaultRoles is the built-in role table. "*" grants everything.
func DefaultRoles() []Role {
	return []Role{
		{Name: RoleAdmin, Permissions: []Permission{"*"}},
		{Name: RoleOfficial, Permissions: []Permission{
			PermIssuesView, PermIssuesStatus, PermOfficialsView, PermDepartmentsView, PermRegionsLookup,
		}},
		{Name: RoleCitizen, Permissions: []Permission{
			PermIssuesCreate, PermDepartmentsView, PermRegionsLookup,
		}},
	}
}

type Policy struct {
	enforcer *casbin.Enforcer
	roles    map[string]struct{}
}

func NewPolicy(roles []Role) (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	p := &Policy{enforcer: e, roles: map[string]struct{}{}}
	for _, role := range roles {
		name := normalizeRole(role.Name)
		if name == "" {
			continue
		}
		p.roles[name] = struct{}{}
		for _, perm := range role.Permissions {
			if _, err := e.AddPolicy(name, string(perm)); err != nil {
				return nil, fmt.Errorf("rbac policy %s/%s: %w", name, perm, err)
			}
		}
	}
	return p, nil
}

// Allowed reports whether any of roles grants perm. Unknown roles grant
// nothing.
func (p *Policy) Allowed(roles []string, perm Permission) bool {
	if p == nil || perm == "" {
		return false
	}
	for _, role := range roles {
		name := normalizeRole(role)
		if _, ok := p.roles[name]; !ok {
			continue
		}
		ok, err := p.enforcer.Enforce(name, string(perm))
		if err == nil && ok {
			return true
		}
	}
	return false
}

func (p *Policy) Roles() []string {
	out := make([]string, 0, len(p.roles))
	for r := range p.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func normalizeRole(r string) string {
	return strings.ToLower(strings.TrimSpace(r))
}
