// Package commit turns a reconciliation session's staged edits into
// remote API calls and reports a single outcome back to the caller.
package commit

import (
	"context"
	"log/slog"

	"github.com/docmesh/sharekit/internal/access"
	"github.com/docmesh/sharekit/internal/apiclient"
	"github.com/docmesh/sharekit/internal/logutil"
	"github.com/docmesh/sharekit/internal/operations"
	"github.com/docmesh/sharekit/internal/reconcile"
)

// ItemKind names the three remote mutations a plan can contain.
type ItemKind int

const (
	ItemGrant ItemKind = iota
	ItemRegrant
	ItemRevoke
)

func (k ItemKind) String() string {
	switch k {
	case ItemGrant:
		return "grant"
	case ItemRegrant:
		return "regrant"
	case ItemRevoke:
		return "revoke"
	default:
		return "unknown"
	}
}

// Item is one planned mutation, identified by the principal it touches.
type Item struct {
	Kind ItemKind
	ID   access.PrincipalID

	// Ref carries the principal and target access for grants and
	// regrants; zero for revokes.
	Ref access.PrincipalRef
}

// ItemError pairs a failed item with its error.
type ItemError struct {
	Item Item
	Err  error
}

// Outcome classifies a whole commit attempt.
type Outcome int

const (
	// OutcomeNoOp means there was nothing staged.
	OutcomeNoOp Outcome = iota
	// OutcomeSuccess means every item succeeded.
	OutcomeSuccess
	// OutcomePartialFailure means some items succeeded and some failed.
	// Failed items remain staged in the session so the user can retry
	// just those.
	OutcomePartialFailure
	// OutcomeFailure means every item failed; the session is untouched.
	OutcomeFailure
	// OutcomeCancelled means the context was cancelled before the plan
	// ran to completion. Items already absorbed did succeed; the
	// unattempted remainder is in an unknown server state.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoOp:
		return "noop"
	case OutcomeSuccess:
		return "success"
	case OutcomePartialFailure:
		return "partial_failure"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is the aggregate outcome of one commit attempt.
type Result struct {
	Outcome   Outcome
	Succeeded []Item
	Failed    []ItemError
}

// LinkPolicy decides whether the general link of a room may be deleted
// outright. The platform forbids it for public rooms: a public room
// must always have exactly one general link, so "delete" there means
// revoke-and-recreate. The policy is injected rather than hard-coded
// because room types keep growing on the server side.
type LinkPolicy interface {
	CanHardDeleteGeneralLink(kind apiclient.ResourceKind) bool
}

// DefaultLinkPolicy allows hard deletes everywhere except public rooms.
type DefaultLinkPolicy struct{}

func (DefaultLinkPolicy) CanHardDeleteGeneralLink(kind apiclient.ResourceKind) bool {
	return kind != apiclient.ResourcePublicRoom
}

// Coordinator executes commit plans for one resource's edit session.
type Coordinator struct {
	api     apiclient.API
	poller  *operations.Poller
	res     apiclient.Resource
	session *reconcile.Session
	policy  LinkPolicy
	logger  *slog.Logger
}

// NewCoordinator wires a coordinator for one resource and session.
// A nil policy falls back to DefaultLinkPolicy.
func NewCoordinator(api apiclient.API, poller *operations.Poller, res apiclient.Resource, session *reconcile.Session, policy LinkPolicy, logger *slog.Logger) *Coordinator {
	if policy == nil {
		policy = DefaultLinkPolicy{}
	}
	return &Coordinator{
		api:     api,
		poller:  poller,
		res:     res,
		session: session,
		policy:  policy,
		logger:  logutil.OrDiscard(logger),
	}
}

// Commit executes the session's staged edits: grants first, then
// regrants, then revokes (revokes are irreversible, so they go last).
// Each successful item is folded into the session's baseline
// immediately, so a retry after a partial failure re-submits only the
// failed items. On full success the baseline is refreshed from the
// server's authoritative list.
//
// A non-nil error is returned only when the context is cancelled
// mid-commit; the result then carries OutcomeCancelled, items already
// accepted by the server keep running there, and the caller should
// reload rather than trust the local state.
func (c *Coordinator) Commit(ctx context.Context, notify apiclient.NotifyOptions) (Result, error) {
	if !c.session.HasPendingEdits() {
		return Result{Outcome: OutcomeNoOp}, nil
	}

	plan := reconcile.Plan(c.session)
	var result Result

	for _, ref := range plan.Grants {
		if err := ctx.Err(); err != nil {
			return c.abort(result), err
		}
		item := Item{Kind: ItemGrant, ID: ref.ID, Ref: ref}
		err := c.execute(ctx, item, func() (apiclient.Receipt, error) {
			return c.api.GrantAccess(ctx, c.res, ref, notify)
		})
		if err != nil {
			result.Failed = append(result.Failed, ItemError{Item: item, Err: err})
			continue
		}
		c.session.AbsorbGrant(ref)
		result.Succeeded = append(result.Succeeded, item)
	}

	for _, ref := range plan.Regrants {
		if err := ctx.Err(); err != nil {
			return c.abort(result), err
		}
		item := Item{Kind: ItemRegrant, ID: ref.ID, Ref: ref}
		err := c.execute(ctx, item, func() (apiclient.Receipt, error) {
			return c.api.ChangeAccess(ctx, c.res, ref.ID, ref.Access)
		})
		if err != nil {
			result.Failed = append(result.Failed, ItemError{Item: item, Err: err})
			continue
		}
		c.session.AbsorbChange(ref.ID, ref.Access)
		result.Succeeded = append(result.Succeeded, item)
	}

	for _, id := range plan.Revokes {
		if err := ctx.Err(); err != nil {
			return c.abort(result), err
		}
		item := Item{Kind: ItemRevoke, ID: id}
		err := c.execute(ctx, item, func() (apiclient.Receipt, error) {
			return c.api.RevokeAccess(ctx, c.res, id)
		})
		if err != nil {
			result.Failed = append(result.Failed, ItemError{Item: item, Err: err})
			continue
		}
		c.session.AbsorbRevoke(id)
		result.Succeeded = append(result.Succeeded, item)
	}

	result = c.finish(result)
	if result.Outcome == OutcomeSuccess {
		c.reloadBaseline(ctx)
	}
	return result, nil
}

// execute runs one mutation and, when the server answered with a
// tracking id, waits for the operation to reach a terminal state.
func (c *Coordinator) execute(ctx context.Context, item Item, call func() (apiclient.Receipt, error)) error {
	receipt, err := call()
	if err != nil {
		c.logger.Warn("commit item failed", "kind", item.Kind, "principal", item.ID, "error", err)
		return err
	}
	if !receipt.Async() {
		return nil
	}

	op := c.poller.Track(*receipt.Operation, apiclient.OperationKind(item.Kind.String()))
	if err := c.poller.Watch(ctx, op); err != nil {
		c.logger.Warn("commit item operation failed",
			"kind", item.Kind, "principal", item.ID, "operation", op.Handle.ID, "error", err)
		return err
	}
	return nil
}

// abort classifies a commit cut short by cancellation. Even when every
// item attempted so far succeeded, the unattempted remainder makes the
// run as a whole neither a success nor a failure.
func (c *Coordinator) abort(result Result) Result {
	result.Outcome = OutcomeCancelled
	c.logger.Warn("commit cancelled",
		"resource", c.res.ID,
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed))
	return result
}

func (c *Coordinator) finish(result Result) Result {
	switch {
	case len(result.Failed) == 0 && len(result.Succeeded) == 0:
		result.Outcome = OutcomeNoOp
	case len(result.Failed) == 0:
		result.Outcome = OutcomeSuccess
	case len(result.Succeeded) == 0:
		result.Outcome = OutcomeFailure
	default:
		result.Outcome = OutcomePartialFailure
	}
	c.logger.Info("commit finished",
		"resource", c.res.ID,
		"outcome", result.Outcome,
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed))
	return result
}

// reloadBaseline replaces the session baseline with the server's
// authoritative list. The absorbed local state is already correct, so
// a fetch failure here only costs freshness, not correctness.
func (c *Coordinator) reloadBaseline(ctx context.Context) {
	principals, err := c.api.FetchPrincipals(ctx, c.res)
	if err != nil {
		c.logger.Warn("post-commit reload failed, keeping local baseline", "resource", c.res.ID, "error", err)
		return
	}
	c.session.LoadBaseline(principals)
}

// RemoveLink deletes a room link under the injected policy. For a
// general link the policy may demand revoke-and-recreate instead of a
// hard delete; in that case the replacement link is returned with
// replaced=true.
func (c *Coordinator) RemoveLink(ctx context.Context, link apiclient.RoomLink) (replacement apiclient.RoomLink, replaced bool, err error) {
	if link.General && !c.policy.CanHardDeleteGeneralLink(c.res.Kind) {
		fresh, err := c.api.RevokeRoomLink(ctx, c.res, link.ID)
		if err != nil {
			return apiclient.RoomLink{}, false, err
		}
		c.logger.Info("general link revoked and recreated", "resource", c.res.ID, "link", link.ID)
		return fresh, true, nil
	}
	if err := c.api.DeleteRoomLink(ctx, c.res, link.ID); err != nil {
		return apiclient.RoomLink{}, false, err
	}
	c.logger.Info("link deleted", "resource", c.res.ID, "link", link.ID)
	return apiclient.RoomLink{}, false, nil
}

// DuplicateRoom starts a server-side room duplication and waits for it
// to finish, reporting progress through the poller's OnProgress hook.
func (c *Coordinator) DuplicateRoom(ctx context.Context) (*operations.Operation, error) {
	return c.poller.Await(ctx, apiclient.OpDuplicateRoom, func(ctx context.Context) (apiclient.OperationHandle, error) {
		return c.api.SubmitOperation(ctx, c.res, apiclient.OpDuplicateRoom)
	})
}
