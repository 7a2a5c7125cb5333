// Package access defines the principal and access-level value types shared
// across the reconciliation core.
package access

import "fmt"

// Level is an access level as the document platform encodes it on the wire.
// The numeric values are fixed by the remote API and must not be reordered.
type Level int

const (
	// None means no access is recorded for the principal. It is also the
	// value a UI uses to express "remove this principal".
	None Level = 0

	// Full grants read/write plus share management.
	Full Level = 1

	// Read grants read-only access.
	Read Level = 2

	// Deny explicitly blocks access. Distinct from None on the wire.
	Deny Level = 3

	// Review allows suggesting changes without direct editing.
	Review Level = 5

	// Comment allows commenting only.
	Comment Level = 6

	// FillForms allows filling form fields only.
	FillForms Level = 7

	// Edit grants document editing without share management.
	Edit Level = 10
)

// String returns the lowercase name used in logs and CLI output.
func (l Level) String() string {
	switch l {
	case None:
		return "none"
	case Full:
		return "full"
	case Read:
		return "read"
	case Deny:
		return "deny"
	case Review:
		return "review"
	case Comment:
		return "comment"
	case FillForms:
		return "fillforms"
	case Edit:
		return "edit"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel parses a level name as printed by String.
func ParseLevel(s string) (Level, error) {
	for _, l := range []Level{None, Full, Read, Deny, Review, Comment, FillForms, Edit} {
		if l.String() == s {
			return l, nil
		}
	}
	return None, fmt.Errorf("unknown access level %q", s)
}

// Grants reports whether the level represents an actual grant.
// None and Deny both mean the principal cannot reach the resource.
func (l Level) Grants() bool {
	return l != None && l != Deny
}
