package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// pathParams reads chi URL params. Handlers called without a chi route context
// get the segment after "issues" as "id".
func pathParams(r *http.Request) map[string]string {
	out := map[string]string{}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		for i, key := range rc.URLParams.Keys {
			if i < len(rc.URLParams.Values) {
				out[key] = rc.URLParams.Values[i]
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] == "issues" && segments[i+1] != "" {
			out["id"] = segments[i+1]
			break
		}
	}
	return out
}
