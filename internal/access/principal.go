package access

import "fmt"

// PrincipalID is the platform-assigned identifier of a user, group, or
// shareable link. Opaque, and unique within one resource's share list,
// so it is sufficient on its own as a map key.
type PrincipalID string

// PrincipalKind discriminates the three shareable target types.
type PrincipalKind string

const (
	KindUser  PrincipalKind = "user"
	KindGroup PrincipalKind = "group"
	KindLink  PrincipalKind = "link"
)

// PrincipalRef identifies a shareable target together with its access
// level. ID and Kind identify the target; Access and the metadata
// fields are payload.
type PrincipalRef struct {
	ID   PrincipalID
	Kind PrincipalKind

	Access Level

	// DisplayName is informational only (never part of identity).
	DisplayName string

	// Locked marks refs the server forbids editing, such as the resource
	// owner. Staging operations on a locked ref are no-ops.
	Locked bool
}

func (r PrincipalRef) String() string {
	return fmt.Sprintf("%s:%s(%s)", r.Kind, r.ID, r.Access)
}
