// Package reconcile implements the staged access-control edit session.
//
// A Session holds the server-confirmed baseline of granted principals
// plus the edits the user has staged against it (adds, removals, access
// changes). Edits are kept in a single map keyed by principal id, so an
// id can be staged in at most one way at a time; the disjointness of
// the three edit kinds is structural, not maintained by hand.
//
// The session performs no I/O and never blocks. It is owned by one
// sharing screen at a time and mutated only by that screen's sequential
// intents, so it carries no locking.
package reconcile

import (
	"errors"

	"github.com/docmesh/sharekit/internal/access"
)

// ErrInvalidTransition is returned when a staging call is made in a
// state it cannot act on. With a well-behaved caller this never fires;
// the branch exists so a misuse is loud instead of corrupting state.
var ErrInvalidTransition = errors.New("invalid staging transition")

// editKind discriminates the staged-edit union.
type editKind int

const (
	editAdd editKind = iota + 1
	editRemove
	editChange
)

// pendingEdit is the tagged union stored per principal id.
// Exactly one interpretation applies, selected by kind:
// add carries the full ref to grant, change carries the new level,
// remove needs no payload.
type pendingEdit struct {
	kind   editKind
	add    access.PrincipalRef
	change access.Level
}

// Session is the reconciliation state for one sharing screen.
type Session struct {
	baseline  map[access.PrincipalID]access.PrincipalRef
	order     []access.PrincipalID // baseline ids in load order
	pending   map[access.PrincipalID]pendingEdit
	stagedSeq []access.PrincipalID // ids staged as adds, in stage order

	onChange func()
}

// NewSession returns an empty session. Call LoadBaseline before staging
// edits against server state.
func NewSession() *Session {
	return &Session{
		baseline: make(map[access.PrincipalID]access.PrincipalRef),
		pending:  make(map[access.PrincipalID]pendingEdit),
	}
}

// OnChange registers a single callback invoked after every mutation
// that changed observable state. Replaces any previous callback.
// The core deliberately has no global notification bus; the owning
// screen re-projects from this one hook.
func (s *Session) OnChange(fn func()) {
	s.onChange = fn
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// LoadBaseline replaces the baseline with the given server-confirmed
// principal list and discards all staged edits. Used on initial load,
// explicit reload, and after a successful commit.
func (s *Session) LoadBaseline(principals []access.PrincipalRef) {
	s.baseline = make(map[access.PrincipalID]access.PrincipalRef, len(principals))
	s.order = s.order[:0]
	for _, p := range principals {
		if _, dup := s.baseline[p.ID]; dup {
			continue
		}
		s.baseline[p.ID] = p
		s.order = append(s.order, p.ID)
	}
	s.pending = make(map[access.PrincipalID]pendingEdit)
	s.stagedSeq = nil
	s.notify()
}

// StageAdd stages a grant for a principal that is not in the baseline.
// Staging the same id again is an upsert (the new ref wins). An id
// already in the baseline is redefined as an access change, never a
// second add. An id staged for removal cannot be re-added without the
// removal being discarded first; that call reports ErrInvalidTransition.
func (s *Session) StageAdd(p access.PrincipalRef) error {
	// A removal may also cover a baseline id, so it must be ruled out
	// before baseline membership redefines the call as a change.
	if e, ok := s.pending[p.ID]; ok && e.kind == editRemove {
		return ErrInvalidTransition
	}
	if _, ok := s.baseline[p.ID]; ok {
		s.StageAccessChange(p.ID, p.Access)
		return nil
	}
	if _, ok := s.pending[p.ID]; !ok {
		s.stagedSeq = append(s.stagedSeq, p.ID)
	}
	s.pending[p.ID] = pendingEdit{kind: editAdd, add: p}
	s.notify()
	return nil
}

// StageAccessChange stages a new access level for a known principal.
// Changing a staged add updates the add in place. Changing a baseline
// principal back to its baseline level collapses to no edit at all.
// Changing to None is a removal. Unknown ids, ids staged for removal,
// and locked refs are ignored.
func (s *Session) StageAccessChange(id access.PrincipalID, level access.Level) {
	if level == access.None {
		s.StageRemove(id)
		return
	}

	if e, ok := s.pending[id]; ok {
		switch e.kind {
		case editAdd:
			if e.add.Access == level {
				return
			}
			e.add.Access = level
			s.pending[id] = e
			s.notify()
			return
		case editRemove:
			// A removal in progress is not reversible by an access
			// change; the caller must discard the removal explicitly.
			return
		}
	}

	base, ok := s.baseline[id]
	if !ok || base.Locked {
		return
	}
	if base.Access == level {
		if _, staged := s.pending[id]; staged {
			delete(s.pending, id)
			s.notify()
		}
		return
	}
	s.pending[id] = pendingEdit{kind: editChange, change: level}
	s.notify()
}

// StageRemove stages a revocation. Removing a staged add cancels the
// add outright: nothing was ever granted, so there is nothing to
// revoke. Removing a baseline principal discards any staged change for
// it first. Unknown ids and locked refs are ignored.
func (s *Session) StageRemove(id access.PrincipalID) {
	if e, ok := s.pending[id]; ok && e.kind == editAdd {
		delete(s.pending, id)
		s.dropStaged(id)
		s.notify()
		return
	}

	base, ok := s.baseline[id]
	if !ok || base.Locked {
		return
	}
	s.pending[id] = pendingEdit{kind: editRemove}
	s.notify()
}

// EffectiveView returns the principal list as the user currently sees
// it: the baseline with removals excluded and staged changes applied,
// followed by staged adds. Each id appears exactly once, in a stable
// order (baseline load order, then stage order).
func (s *Session) EffectiveView() []access.PrincipalRef {
	out := make([]access.PrincipalRef, 0, len(s.order)+len(s.stagedSeq))
	for _, id := range s.order {
		ref := s.baseline[id]
		if e, ok := s.pending[id]; ok {
			switch e.kind {
			case editRemove:
				continue
			case editChange:
				ref.Access = e.change
			}
		}
		out = append(out, ref)
	}
	for _, id := range s.stagedSeq {
		if e, ok := s.pending[id]; ok && e.kind == editAdd {
			out = append(out, e.add)
		}
	}
	return out
}

// Baseline returns the baseline ref for id, if present.
func (s *Session) Baseline(id access.PrincipalID) (access.PrincipalRef, bool) {
	ref, ok := s.baseline[id]
	return ref, ok
}

// HasPendingEdits reports whether anything is staged.
func (s *Session) HasPendingEdits() bool {
	return len(s.pending) > 0
}

// ClearPending discards all staged edits, keeping the baseline. Used
// when the user abandons the edit session.
func (s *Session) ClearPending() {
	if len(s.pending) == 0 {
		return
	}
	s.pending = make(map[access.PrincipalID]pendingEdit)
	s.stagedSeq = nil
	s.notify()
}

// AbsorbGrant folds a successfully committed add into the baseline and
// drops it from the staged edits, so a retry after a partial failure
// does not re-submit it.
func (s *Session) AbsorbGrant(ref access.PrincipalRef) {
	if e, ok := s.pending[ref.ID]; !ok || e.kind != editAdd {
		return
	}
	delete(s.pending, ref.ID)
	s.dropStaged(ref.ID)
	if _, ok := s.baseline[ref.ID]; !ok {
		s.order = append(s.order, ref.ID)
	}
	s.baseline[ref.ID] = ref
	s.notify()
}

// AbsorbRevoke folds a successfully committed removal into the
// baseline: the principal is gone from both baseline and staged edits.
func (s *Session) AbsorbRevoke(id access.PrincipalID) {
	if e, ok := s.pending[id]; !ok || e.kind != editRemove {
		return
	}
	delete(s.pending, id)
	if _, ok := s.baseline[id]; ok {
		delete(s.baseline, id)
		for i, bid := range s.order {
			if bid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.notify()
}

// AbsorbChange folds a successfully committed access change into the
// baseline ref and drops the staged change.
func (s *Session) AbsorbChange(id access.PrincipalID, level access.Level) {
	if e, ok := s.pending[id]; !ok || e.kind != editChange {
		return
	}
	delete(s.pending, id)
	if ref, ok := s.baseline[id]; ok {
		ref.Access = level
		s.baseline[id] = ref
	}
	s.notify()
}

func (s *Session) dropStaged(id access.PrincipalID) {
	for i, sid := range s.stagedSeq {
		if sid == id {
			s.stagedSeq = append(s.stagedSeq[:i], s.stagedSeq[i+1:]...)
			return
		}
	}
}
