package reconcile

import "github.com/docmesh/sharekit/internal/access"

// RowState tells the UI how a display row relates to the baseline.
type RowState int

const (
	// RowUnchanged is a baseline principal with no staged edit.
	RowUnchanged RowState = iota
	// RowAdded is a staged grant not yet on the server.
	RowAdded
	// RowChanged is a baseline principal with a staged access change.
	RowChanged
)

func (s RowState) String() string {
	switch s {
	case RowUnchanged:
		return "unchanged"
	case RowAdded:
		return "added"
	case RowChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// DisplayRow is one rendered line of the sharing screen: the principal
// with the access the user would get if the session were committed now,
// plus a staged marker for highlighting.
type DisplayRow struct {
	Ref   access.PrincipalRef
	State RowState
}

// Staged reports whether the row differs from the baseline.
func (r DisplayRow) Staged() bool { return r.State != RowUnchanged }

// Project derives the display rows for a session. It is a pure read:
// calling it never mutates the session, and two calls without an
// intervening mutation return equal slices. Principals staged for
// removal do not appear at all.
func Project(s *Session) []DisplayRow {
	rows := make([]DisplayRow, 0, len(s.order)+len(s.stagedSeq))
	for _, id := range s.order {
		ref := s.baseline[id]
		state := RowUnchanged
		if e, ok := s.pending[id]; ok {
			switch e.kind {
			case editRemove:
				continue
			case editChange:
				ref.Access = e.change
				state = RowChanged
			}
		}
		rows = append(rows, DisplayRow{Ref: ref, State: state})
	}
	for _, id := range s.stagedSeq {
		if e, ok := s.pending[id]; ok && e.kind == editAdd {
			rows = append(rows, DisplayRow{Ref: e.add, State: RowAdded})
		}
	}
	return rows
}
