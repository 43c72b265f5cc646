package dispatch

import (
	"strings"

	"civic-dispatch/core/store"
)

type Trigger string

const (
	TriggerCreate   Trigger = "create"
	TriggerAssign   Trigger = "assign"
	TriggerUnassign Trigger = "unassign"
	TriggerManual   Trigger = "manual"
)

// Machine decides issue status transitions.
//
//	create   -> active
//	assign   -> under_progress (see ReassignReopens)
//	unassign -> active
//	manual   -> any requested status
type Machine struct {
	// ReassignReopens makes every assignment move the issue to
	// under_progress. When false an issue under review or closed keeps its
	// status on re-assignment.
	ReassignReopens bool
}

func ValidStatus(s string) bool {
	for _, st := range store.IssueStatuses {
		if st == s {
			return true
		}
	}
	return false
}

func NormalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (m Machine) Next(current string, trigger Trigger, requested string) (string, error) {
	switch trigger {
	case TriggerCreate:
		return store.StatusActive, nil
	case TriggerAssign:
		if !m.ReassignReopens && (current == store.StatusUnderReview || current == store.StatusClosed) {
			return current, nil
		}
		return store.StatusUnderProgress, nil
	case TriggerUnassign:
		return store.StatusActive, nil
	case TriggerManual:
		st := NormalizeStatus(requested)
		if !ValidStatus(st) {
			return "", validationError("invalid_status", "status must be one of %s", strings.Join(store.IssueStatuses, ", "))
		}
		return st, nil
	}
	return "", validationError("invalid_trigger", "unknown trigger %q", string(trigger))
}

// Decider binds a trigger and requested status into the callback the store
// runs inside its transaction.
func (m Machine) Decider(trigger Trigger, requested string) store.StatusDecider {
	return func(current string) (string, error) {
		return m.Next(current, trigger, requested)
	}
}
