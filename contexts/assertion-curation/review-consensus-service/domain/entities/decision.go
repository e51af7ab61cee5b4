package entities

import (
	"sort"
	"strings"
	"time"
)

type Action string

const (
	ActionAccept    Action = "accept"
	ActionReject    Action = "reject"
	ActionModify    Action = "modify"
	ActionUncertain Action = "uncertain"
	ActionAdd       Action = "add"
	ActionArbitrate Action = "arbitrate"
)

type ActorRole string

const (
	ActorRoleReviewer ActorRole = "reviewer"
	ActorRoleAdmin    ActorRole = "admin"
)

// ParseReviewAction normalizes a reviewer-supplied action. "add" is never
// accepted here because it is implied by authoring a new assertion.
func ParseReviewAction(raw string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionAccept:
		return ActionAccept, true
	case ActionReject:
		return ActionReject, true
	case ActionModify:
		return ActionModify, true
	case ActionUncertain:
		return ActionUncertain, true
	default:
		return "", false
	}
}

// ParseArbitrationDecision accepts the same four terminal outcomes.
func ParseArbitrationDecision(raw string) (Action, bool) {
	return ParseReviewAction(raw)
}

// RequiresComment reports whether an action must carry a non-empty comment.
func (a Action) RequiresComment() bool {
	return a == ActionReject || a == ActionModify || a == ActionUncertain
}

// Comparable maps "add" onto "accept": the author of an assertion endorses it.
func (a Action) Comparable() Action {
	if a == ActionAdd {
		return ActionAccept
	}
	return a
}

// DecisionEntry is one append-only row of an assertion's decision log.
type DecisionEntry struct {
	EntryID      string
	DocumentID   string
	AssertionKey string
	ActorID      string
	ActorRole    ActorRole
	Action       Action
	// Decision holds the terminal outcome of an arbitrate entry.
	Decision     Action
	Comment      string
	SubmissionID string
	Proposed     *AssertionContent
	CreatedAt    time.Time
	Sequence     int64
}

func (e DecisionEntry) IsArbitration() bool {
	return e.ActorRole == ActorRoleAdmin && e.Action == ActionArbitrate
}

// SortDecisions orders a log by time, then by sequence.
func SortDecisions(entries []DecisionEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Sequence < entries[j].Sequence
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}

// GroupDecisions splits a document log by assertion key, each group time-ordered.
func GroupDecisions(entries []DecisionEntry) map[string][]DecisionEntry {
	grouped := make(map[string][]DecisionEntry)
	for _, entry := range entries {
		grouped[entry.AssertionKey] = append(grouped[entry.AssertionKey], entry)
	}
	for key := range grouped {
		SortDecisions(grouped[key])
	}
	return grouped
}

// ReviewerIDs returns the distinct reviewer actors that ever wrote to the log.
func ReviewerIDs(entries []DecisionEntry) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, entry := range entries {
		if entry.ActorRole != ActorRoleReviewer {
			continue
		}
		if _, ok := seen[entry.ActorID]; ok {
			continue
		}
		seen[entry.ActorID] = struct{}{}
		out = append(out, entry.ActorID)
	}
	sort.Strings(out)
	return out
}

// ArbitrationDecision is the terminal admin ruling projected from the log.
type ArbitrationDecision struct {
	AssertionKey string
	DocumentID   string
	AdminID      string
	Decision     Action
	Comment      string
	DecidedAt    time.Time
}

// LatestArbitration returns the first arbitrate entry; later ones cannot exist
// because arbitration is terminal.
func LatestArbitration(log []DecisionEntry) (ArbitrationDecision, bool) {
	for _, entry := range log {
		if entry.IsArbitration() {
			return ArbitrationDecision{
				AssertionKey: entry.AssertionKey,
				DocumentID:   entry.DocumentID,
				AdminID:      entry.ActorID,
				Decision:     entry.Decision,
				Comment:      entry.Comment,
				DecidedAt:    entry.CreatedAt,
			}, true
		}
	}
	return ArbitrationDecision{}, false
}
