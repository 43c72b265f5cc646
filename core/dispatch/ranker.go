package dispatch

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"civic-dispatch/core/store"
)

const (
	ScopeRegional   = "regional"
	ScopeDepartment = "department"
)

// Ranking is the ordered candidate list for one department. Scope tells
// whether the region filter was applied. SuggestBroaden is set when a concrete
// region matched nobody although the department has officials.
type Ranking struct {
	Scope          string            `json:"scope"`
	Region         string            `json:"region"`
	Candidates     []store.Candidate `json:"candidates"`
	SuggestBroaden bool              `json:"suggest_broaden"`
}

// IsConcreteRegion reports whether label names an actual place and should
// narrow the candidate list.
func IsConcreteRegion(label string) bool {
	l := strings.TrimSpace(label)
	if l == "" {
		return false
	}
	switch strings.ToLower(l) {
	case strings.ToLower(RegionUnknown), strings.ToLower(RegionLocationMissing), strings.ToLower(RegionAll):
		return false
	}
	for _, r := range l {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// RegionMatches is a case-insensitive containment test in either direction.
// An official without a region never matches a concrete label.
func RegionMatches(officialRegion, label string) bool {
	o := strings.ToLower(strings.TrimSpace(officialRegion))
	l := strings.ToLower(strings.TrimSpace(label))
	if o == "" || l == "" {
		return false
	}
	return strings.Contains(o, l) || strings.Contains(l, o)
}

// Rank filters roster by region when the region is concrete and orders the
// result by ascending workload. Ties keep roster order.
func Rank(roster []store.Candidate, region string) Ranking {
	out := Ranking{Scope: ScopeDepartment, Region: strings.TrimSpace(region)}
	pool := roster
	if IsConcreteRegion(region) {
		out.Scope = ScopeRegional
		pool = make([]store.Candidate, 0, len(roster))
		for _, c := range roster {
			if RegionMatches(c.Region, region) {
				pool = append(pool, c)
			}
		}
		out.SuggestBroaden = len(pool) == 0 && len(roster) > 0
	}
	ranked := make([]store.Candidate, len(pool))
	copy(ranked, pool)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Workload < ranked[j].Workload
	})
	out.Candidates = ranked
	return out
}

type Ranker struct {
	departments store.DepartmentsStore
	officials   store.OfficialsStore
	metrics     *Metrics
}

func NewRanker(departments store.DepartmentsStore, officials store.OfficialsStore, metrics *Metrics) *Ranker {
	return &Ranker{departments: departments, officials: officials, metrics: metrics}
}

// Candidates loads the department roster with fresh workloads and ranks it.
func (r *Ranker) Candidates(ctx context.Context, departmentID int64, region string) (Ranking, error) {
	if departmentID <= 0 {
		return Ranking{}, validationError("department_required", "departmentId is required")
	}
	if _, err := r.departments.GetDepartment(ctx, departmentID); err != nil {
		return Ranking{}, translateStoreError(err, "department_not_found", "department not found")
	}
	roster, err := r.officials.Roster(ctx, departmentID)
	if err != nil {
		return Ranking{}, err
	}
	ranking := Rank(roster, region)
	r.metrics.ranked(len(ranking.Candidates))
	return ranking, nil
}
