package api

import "civic-dispatch/api/handlers"

type routeHandlers struct {
	dispatch  *handlers.DispatchHandler
	issues    *handlers.IssuesHandler
	directory *handlers.DirectoryHandler
	regions   *handlers.RegionsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		dispatch:  handlers.NewDispatchHandler(s.ledger, s.bulk, s.advisor, s.ranker, s.logger),
		issues:    handlers.NewIssuesHandler(s.issues, s.departments, s.audits, s.logger),
		directory: handlers.NewDirectoryHandler(s.departments, s.officials, s.audits, s.logger),
		regions:   handlers.NewRegionsHandler(s.resolver),
	}
}
