package apiclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docmesh/sharekit/internal/access"
	"github.com/docmesh/sharekit/internal/apiclient"
	"github.com/docmesh/sharekit/internal/config"
	"github.com/docmesh/sharekit/internal/httpclient"
	"github.com/docmesh/sharekit/internal/mockapi"
)

const testToken = "test-token"

func newTestClient(t *testing.T) (*apiclient.Client, *mockapi.Server) {
	t.Helper()

	platform := mockapi.New(testToken, nil)
	srv := httptest.NewServer(platform.Handler())
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig().OutboundHTTP
	cfg.SSRFMode = "off" // httptest binds loopback
	hc := httpclient.New(&cfg, testToken)
	return apiclient.New(srv.URL, hc, nil), platform
}

func TestFetchPrincipals(t *testing.T) {
	client, platform := newTestClient(t)
	platform.Seed("room1", []access.PrincipalRef{
		{ID: "U1", Kind: access.KindUser, Access: access.Full, DisplayName: "Alice", Locked: true},
		{ID: "G1", Kind: access.KindGroup, Access: access.Read, DisplayName: "Readers"},
	})

	refs, err := client.FetchPrincipals(context.Background(), apiclient.Resource{ID: "room1"})
	if err != nil {
		t.Fatalf("FetchPrincipals failed: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 principals, got %d", len(refs))
	}
	if refs[0].ID != "U1" || !refs[0].Locked || refs[0].Access != access.Full {
		t.Errorf("first principal mismatched: %+v", refs[0])
	}
	if refs[1].Kind != access.KindGroup {
		t.Errorf("expected group kind, got %q", refs[1].Kind)
	}
}

func TestFetchPrincipals_EmptyResource(t *testing.T) {
	client, _ := newTestClient(t)

	refs, err := client.FetchPrincipals(context.Background(), apiclient.Resource{ID: "unknown"})
	if err != nil {
		t.Fatalf("FetchPrincipals failed: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("expected empty list, got %d entries", len(refs))
	}
}

func TestGrantChangeRevoke_RoundTrip(t *testing.T) {
	client, platform := newTestClient(t)
	ctx := context.Background()
	res := apiclient.Resource{ID: "room1"}

	ref := access.PrincipalRef{ID: "U1", Kind: access.KindUser, Access: access.Read, DisplayName: "Alice"}
	receipt, err := client.GrantAccess(ctx, res, ref, apiclient.NotifyOptions{Notify: true, Message: "welcome"})
	if err != nil {
		t.Fatalf("GrantAccess failed: %v", err)
	}
	if receipt.Async() {
		t.Fatal("synchronous grant reported an operation")
	}

	if _, err := client.ChangeAccess(ctx, res, "U1", access.Edit); err != nil {
		t.Fatalf("ChangeAccess failed: %v", err)
	}
	if got := platform.Shares("room1"); len(got) != 1 || got[0].Access != access.Edit {
		t.Fatalf("change not applied on server: %+v", got)
	}

	if _, err := client.RevokeAccess(ctx, res, "U1"); err != nil {
		t.Fatalf("RevokeAccess failed: %v", err)
	}
	if got := platform.Shares("room1"); len(got) != 0 {
		t.Errorf("revoke not applied on server: %+v", got)
	}
}

func TestGrantAccess_AsyncReceipt(t *testing.T) {
	client, platform := newTestClient(t)
	platform.SetAsync("room1", true)

	receipt, err := client.GrantAccess(context.Background(), apiclient.Resource{ID: "room1"},
		access.PrincipalRef{ID: "U1", Kind: access.KindUser, Access: access.Read}, apiclient.NotifyOptions{})
	if err != nil {
		t.Fatalf("GrantAccess failed: %v", err)
	}
	if !receipt.Async() {
		t.Fatal("expected an operation receipt for an async resource")
	}

	// The handed-back operation is pollable to completion.
	status, err := client.FetchOperationStatus(context.Background(), *receipt.Operation)
	if err != nil {
		t.Fatalf("FetchOperationStatus failed: %v", err)
	}
	if status.ID != receipt.Operation.ID {
		t.Errorf("status id %q does not match receipt %q", status.ID, receipt.Operation.ID)
	}
}

func TestEnvelopeError_MapsToServerRejected(t *testing.T) {
	client, platform := newTestClient(t)
	platform.RejectNext("quota exceeded")

	_, err := client.GrantAccess(context.Background(), apiclient.Resource{ID: "room1"},
		access.PrincipalRef{ID: "U1", Kind: access.KindUser, Access: access.Read}, apiclient.NotifyOptions{})
	if !errors.Is(err, apiclient.ErrServerRejected) {
		t.Fatalf("expected ErrServerRejected, got %v", err)
	}
}

func TestChangeAccess_UnknownPrincipal(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.ChangeAccess(context.Background(), apiclient.Resource{ID: "room1"}, "ghost", access.Read)
	if !errors.Is(err, apiclient.ErrServerRejected) {
		t.Fatalf("expected ErrServerRejected for unknown principal, got %v", err)
	}
}

func TestBadToken_MapsToServerRejected(t *testing.T) {
	platform := mockapi.New(testToken, nil)
	srv := httptest.NewServer(platform.Handler())
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig().OutboundHTTP
	cfg.SSRFMode = "off"
	client := apiclient.New(srv.URL, httpclient.New(&cfg, "wrong-token"), nil)

	_, err := client.FetchPrincipals(context.Background(), apiclient.Resource{ID: "room1"})
	if !errors.Is(err, apiclient.ErrServerRejected) {
		t.Fatalf("expected ErrServerRejected for bad token, got %v", err)
	}
}

func TestServerError_MapsToNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig().OutboundHTTP
	cfg.SSRFMode = "off"
	client := apiclient.New(srv.URL, httpclient.New(&cfg, testToken), nil)

	_, err := client.FetchPrincipals(context.Background(), apiclient.Resource{ID: "room1"})
	if !errors.Is(err, apiclient.ErrNetwork) {
		t.Fatalf("expected ErrNetwork for a 5xx, got %v", err)
	}
}

func TestTransportFailure_MapsToNetwork(t *testing.T) {
	cfg := config.DefaultConfig().OutboundHTTP
	cfg.SSRFMode = "off"
	cfg.TimeoutMS = 200
	client := apiclient.New("http://127.0.0.1:1", httpclient.New(&cfg, testToken), nil)

	_, err := client.FetchPrincipals(context.Background(), apiclient.Resource{ID: "room1"})
	if !errors.Is(err, apiclient.ErrNetwork) {
		t.Fatalf("expected ErrNetwork for a refused connection, got %v", err)
	}
}

func TestRoomLinks_RevokeRotatesID(t *testing.T) {
	client, platform := newTestClient(t)
	ctx := context.Background()
	res := apiclient.Resource{ID: "room1", Kind: apiclient.ResourcePublicRoom}

	oldID := platform.SeedLink("room1", "Shared link", access.Read, true)

	rotated, err := client.RevokeRoomLink(ctx, res, oldID)
	if err != nil {
		t.Fatalf("RevokeRoomLink failed: %v", err)
	}
	if rotated.ID == oldID {
		t.Error("revoke kept the old link id")
	}

	links, err := client.ListRoomLinks(ctx, res)
	if err != nil {
		t.Fatalf("ListRoomLinks failed: %v", err)
	}
	if len(links) != 1 || links[0].ID != rotated.ID {
		t.Errorf("expected the rotated link to replace the old one: %+v", links)
	}
}

func TestRoomLinks_SetAndDelete(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	res := apiclient.Resource{ID: "room1", Kind: apiclient.ResourceCustomRoom}

	created, err := client.SetRoomLink(ctx, res, apiclient.RoomLink{Title: "Review copy", Access: access.Comment})
	if err != nil {
		t.Fatalf("SetRoomLink failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("server did not assign a link id")
	}

	if err := client.DeleteRoomLink(ctx, res, created.ID); err != nil {
		t.Fatalf("DeleteRoomLink failed: %v", err)
	}
	links, err := client.ListRoomLinks(ctx, res)
	if err != nil {
		t.Fatalf("ListRoomLinks failed: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("expected no links after delete, got %+v", links)
	}
}

func TestOperations_SubmitAndPollToCompletion(t *testing.T) {
	client, platform := newTestClient(t)
	platform.OpSteps = []int{40, 80, 100}
	ctx := context.Background()

	handle, err := client.SubmitOperation(ctx, apiclient.Resource{ID: "room1"}, apiclient.OpDuplicateRoom)
	if err != nil {
		t.Fatalf("SubmitOperation failed: %v", err)
	}

	var last apiclient.OperationStatus
	for i := 0; i < 5; i++ {
		last, err = client.FetchOperationStatus(ctx, handle)
		if err != nil {
			t.Fatalf("FetchOperationStatus failed: %v", err)
		}
		if last.Progress >= 100 {
			break
		}
	}
	if last.Progress != 100 {
		t.Fatalf("operation never completed, last progress %d", last.Progress)
	}
	if last.Error != "" {
		t.Errorf("unexpected operation error %q", last.Error)
	}
}

func TestOperations_ScriptedFailure(t *testing.T) {
	client, platform := newTestClient(t)
	platform.OpSteps = []int{30, 60}
	platform.FailOperationsAt(1, "room is locked")
	ctx := context.Background()

	handle, err := client.SubmitOperation(ctx, apiclient.Resource{ID: "room1"}, apiclient.OpDuplicateRoom)
	if err != nil {
		t.Fatalf("SubmitOperation failed: %v", err)
	}

	var last apiclient.OperationStatus
	for i := 0; i < 4; i++ {
		last, err = client.FetchOperationStatus(ctx, handle)
		if err != nil {
			t.Fatalf("FetchOperationStatus failed: %v", err)
		}
		if last.Error != "" {
			break
		}
	}
	if last.Error != "room is locked" {
		t.Fatalf("expected scripted failure, got %+v", last)
	}
}
