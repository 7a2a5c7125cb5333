// Package apiclient talks to the document platform's sharing API.
//
// It defines the abstract contract the reconciliation core depends on
// (the API interface) and an HTTP implementation of it. The contract is
// deliberately narrow: fetch the share list, mutate one principal's
// access, manage room links, and track long-running operations.
package apiclient

import (
	"context"
	"errors"

	"github.com/docmesh/sharekit/internal/access"
)

var (
	// ErrNetwork wraps transport and HTTP-level failures.
	ErrNetwork = errors.New("network error")

	// ErrServerRejected marks calls that reached the server but were
	// refused as a business error (insufficient permission, quota, ...).
	ErrServerRejected = errors.New("server rejected request")
)

// ResourceKind tells the client what kind of entity it is sharing.
// Link-deletion policy differs per kind (see the commit package).
type ResourceKind string

const (
	ResourceFile       ResourceKind = "file"
	ResourceFolder     ResourceKind = "folder"
	ResourcePublicRoom ResourceKind = "public_room"
	ResourceCustomRoom ResourceKind = "custom_room"
)

// Resource identifies a shared entity on the platform.
type Resource struct {
	ID   string
	Kind ResourceKind
}

// Receipt is the server's answer to a share mutation. When the server
// chose to process the mutation asynchronously, Operation carries the
// tracking handle and the caller must poll it to completion before
// counting the mutation as done.
type Receipt struct {
	Operation *OperationHandle
}

// Async reports whether the mutation completed asynchronously.
func (r Receipt) Async() bool { return r.Operation != nil }

// OperationHandle tracks one long-running server-side operation.
type OperationHandle struct {
	ID string
}

// OperationKind names the long-running operations the platform offers.
type OperationKind string

const (
	OpDuplicateRoom OperationKind = "duplicate"
	OpDeleteVersion OperationKind = "delete_version"
	OpBulkDelete    OperationKind = "bulk_delete"
)

// OperationStatus is one status snapshot of a long-running operation.
// A non-empty Error is terminal regardless of Progress.
type OperationStatus struct {
	ID       string
	Progress int // 0-100
	Error    string
}

// RoomLink is a shareable link granting access to a room.
type RoomLink struct {
	ID      string
	Title   string
	Access  access.Level
	General bool // a public room always has exactly one general link
}

// NotifyOptions optionally delivers a message to newly granted
// principals alongside the grant batch.
type NotifyOptions struct {
	Notify  bool
	Message string
}

// API is the remote contract the reconciliation core is written
// against. All calls honor ctx cancellation and deadlines.
type API interface {
	// FetchPrincipals returns the authoritative share list.
	FetchPrincipals(ctx context.Context, res Resource) ([]access.PrincipalRef, error)

	// GrantAccess grants a principal access for the first time.
	GrantAccess(ctx context.Context, res Resource, ref access.PrincipalRef, opts NotifyOptions) (Receipt, error)

	// ChangeAccess alters the access level of an already granted principal.
	ChangeAccess(ctx context.Context, res Resource, id access.PrincipalID, level access.Level) (Receipt, error)

	// RevokeAccess removes a principal's access entirely.
	RevokeAccess(ctx context.Context, res Resource, id access.PrincipalID) (Receipt, error)

	// ListRoomLinks returns the room's shareable links.
	ListRoomLinks(ctx context.Context, res Resource) ([]RoomLink, error)

	// SetRoomLink creates (empty link ID) or updates a room link.
	SetRoomLink(ctx context.Context, res Resource, link RoomLink) (RoomLink, error)

	// DeleteRoomLink removes a link permanently.
	DeleteRoomLink(ctx context.Context, res Resource, linkID string) error

	// RevokeRoomLink invalidates a link's current URL and issues a
	// fresh one, keeping the link itself. Used where a hard delete is
	// not allowed (general link of a public room).
	RevokeRoomLink(ctx context.Context, res Resource, linkID string) (RoomLink, error)

	// SubmitOperation starts a long-running server-side operation.
	SubmitOperation(ctx context.Context, res Resource, kind OperationKind) (OperationHandle, error)

	// FetchOperationStatus returns the current status of an operation.
	FetchOperationStatus(ctx context.Context, handle OperationHandle) (OperationStatus, error)
}
