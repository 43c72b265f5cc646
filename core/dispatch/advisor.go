package dispatch

import (
	"context"

	"civic-dispatch/core/store"
)

type IssueGetter interface {
	GetIssue(ctx context.Context, id int64) (*store.Issue, error)
}

// Suggestion is what the dispatch dialog shows for one issue: where it is and
// who could take it.
type Suggestion struct {
	IssueID      int64   `json:"issue_id"`
	DepartmentID int64   `json:"department_id"`
	Location     Region  `json:"location"`
	Ranking      Ranking `json:"ranking"`
}

// Advisor chains region resolution and ranking for a stored issue.
type Advisor struct {
	issues   IssueGetter
	resolver *Resolver
	ranker   *Ranker
}

func NewAdvisor(issues IssueGetter, resolver *Resolver, ranker *Ranker) *Advisor {
	return &Advisor{issues: issues, resolver: resolver, ranker: ranker}
}

// Suggest ranks the officials of the issue's department. With broaden set the
// region filter is skipped, which is how callers follow SuggestBroaden.
func (a *Advisor) Suggest(ctx context.Context, issueID int64, broaden bool) (*Suggestion, error) {
	if issueID <= 0 {
		return nil, validationError("invalid_issue", "issue id must be positive")
	}
	issue, err := a.issues.GetIssue(ctx, issueID)
	if err != nil {
		return nil, translateStoreError(err, "issue_not_found", "issue not found")
	}
	if issue.DepartmentID == nil {
		return nil, notFoundError("department_not_found", "Could not find department for this issue")
	}
	loc := a.resolver.Resolve(ctx, IssueCoordinates(issue.Latitude, issue.Longitude))
	region := loc.Label
	if broaden {
		region = RegionAll
	}
	ranking, err := a.ranker.Candidates(ctx, *issue.DepartmentID, region)
	if err != nil {
		return nil, err
	}
	return &Suggestion{IssueID: issue.ID, DepartmentID: *issue.DepartmentID, Location: loc, Ranking: ranking}, nil
}
