package routegroups

import (
	"civic-dispatch/api/handlers"
	"civic-dispatch/core/rbac"

	"github.com/go-chi/chi/v5"
)

func RegisterAdmin(apiRouter chi.Router, g Guards, dispatch *handlers.DispatchHandler, issues *handlers.IssuesHandler, directory *handlers.DirectoryHandler) {
	apiRouter.Route("/admin", func(adminRouter chi.Router) {
		adminRouter.MethodFunc("GET", "/issues", g.PrincipalPerm(rbac.PermIssuesView, issues.List))
		adminRouter.MethodFunc("POST", "/issues/bulk", g.PrincipalPerm(rbac.PermIssuesBulk, dispatch.Bulk))
		adminRouter.MethodFunc("GET", "/issues/{id:[0-9]+}", g.PrincipalPerm(rbac.PermIssuesView, issues.Get))
		adminRouter.MethodFunc("GET", "/issues/{id:[0-9]+}/history", g.PrincipalPerm(rbac.PermIssuesView, issues.History))
		adminRouter.MethodFunc("PUT", "/issues/{id:[0-9]+}/assign", g.PrincipalPerm(rbac.PermDispatchAssign, dispatch.Assign))
		adminRouter.MethodFunc("PUT", "/issues/{id:[0-9]+}/status", g.PrincipalPerm(rbac.PermIssuesStatus, dispatch.SetStatus))
		adminRouter.MethodFunc("PUT", "/issues/{id:[0-9]+}/department", g.PrincipalPerm(rbac.PermDispatchAssign, issues.SetDepartment))
		adminRouter.MethodFunc("GET", "/issues/{id:[0-9]+}/candidates", g.PrincipalPerm(rbac.PermDispatchAssign, dispatch.Candidates))
		adminRouter.MethodFunc("GET", "/officials", g.PrincipalPerm(rbac.PermOfficialsView, dispatch.ListOfficials))
		adminRouter.MethodFunc("POST", "/officials", g.PrincipalPerm(rbac.PermOfficialsManage, directory.CreateOfficial))
		adminRouter.MethodFunc("GET", "/departments", g.PrincipalPerm(rbac.PermDepartmentsView, directory.ListDepartments))
		adminRouter.MethodFunc("POST", "/departments", g.PrincipalPerm(rbac.PermDepartmentsManage, directory.CreateDepartment))
		adminRouter.MethodFunc("GET", "/departments/{id:[0-9]+}/categories", g.PrincipalPerm(rbac.PermDepartmentsView, directory.ListCategories))
		adminRouter.MethodFunc("POST", "/departments/{id:[0-9]+}/categories", g.PrincipalPerm(rbac.PermDepartmentsManage, directory.AddCategory))
		adminRouter.MethodFunc("DELETE", "/departments/{id:[0-9]+}/categories", g.PrincipalPerm(rbac.PermDepartmentsManage, directory.RemoveCategory))
	})
}

func RegisterPublic(apiRouter chi.Router, g Guards, issues *handlers.IssuesHandler, regions *handlers.RegionsHandler) {
	apiRouter.MethodFunc("POST", "/issues", g.PrincipalPerm(rbac.PermIssuesCreate, issues.Create))
	apiRouter.Route("/external", func(externalRouter chi.Router) {
		externalRouter.MethodFunc("GET", "/geocode", g.PrincipalPerm(rbac.PermRegionsLookup, regions.Geocode))
	})
}
