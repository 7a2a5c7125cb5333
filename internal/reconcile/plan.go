package reconcile

import "github.com/docmesh/sharekit/internal/access"

// CommitPlan is the snapshot of a session's staged edits as remote
// operations. It is produced once per commit attempt and not retained.
//
// The three lists are disjoint by construction (they come from one map).
// Execution order is grants, then regrants, then revokes: revokes are
// irreversible, so they go last.
type CommitPlan struct {
	// Grants are principals to be granted access for the first time.
	Grants []access.PrincipalRef

	// Revokes are ids whose baseline access is to be removed.
	Revokes []access.PrincipalID

	// Regrants are baseline principals whose access level changes.
	// Each ref carries the new level.
	Regrants []access.PrincipalRef
}

// Empty reports whether the plan contains no operations.
func (p CommitPlan) Empty() bool {
	return len(p.Grants) == 0 && len(p.Revokes) == 0 && len(p.Regrants) == 0
}

// Len returns the total number of planned operations.
func (p CommitPlan) Len() int {
	return len(p.Grants) + len(p.Revokes) + len(p.Regrants)
}

// Plan snapshots the session's staged edits. Locked refs never make it
// into a plan; the session already refuses to stage them, so this is a
// second line of defense against a server-side lock appearing after a
// reload.
func Plan(s *Session) CommitPlan {
	var plan CommitPlan
	for _, id := range s.stagedSeq {
		if e, ok := s.pending[id]; ok && e.kind == editAdd && !e.add.Locked {
			plan.Grants = append(plan.Grants, e.add)
		}
	}
	for _, id := range s.order {
		e, ok := s.pending[id]
		if !ok {
			continue
		}
		ref := s.baseline[id]
		if ref.Locked {
			continue
		}
		switch e.kind {
		case editRemove:
			plan.Revokes = append(plan.Revokes, id)
		case editChange:
			ref.Access = e.change
			plan.Regrants = append(plan.Regrants, ref)
		}
	}
	return plan
}
