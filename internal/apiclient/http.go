package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/docmesh/sharekit/internal/access"
	"github.com/docmesh/sharekit/internal/httpclient"
	"github.com/docmesh/sharekit/internal/logutil"
)

// HTTPClient is the transport dependency. Satisfied by
// *httpclient.Client; tests substitute a recorder.
type HTTPClient interface {
	DoJSON(ctx context.Context, method, url string, body any, out any) (*http.Response, error)
}

var _ HTTPClient = (*httpclient.Client)(nil)

// Client is the HTTP implementation of the API contract.
type Client struct {
	baseURL string
	http    HTTPClient
	logger  *slog.Logger
}

var _ API = (*Client)(nil)

// New creates an API client for the portal at baseURL.
func New(baseURL string, hc HTTPClient, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    hc,
		logger:  logutil.OrDiscard(logger),
	}
}

// envelope is the platform's uniform response wrapper.
type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
}

// shareDTO is the wire form of one share-list entry.
type shareDTO struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Access      int    `json:"access"`
	DisplayName string `json:"displayName,omitempty"`
	Locked      bool   `json:"locked,omitempty"`
}

func toDTO(ref access.PrincipalRef) shareDTO {
	return shareDTO{
		ID:          string(ref.ID),
		Kind:        string(ref.Kind),
		Access:      int(ref.Access),
		DisplayName: ref.DisplayName,
		Locked:      ref.Locked,
	}
}

func fromDTO(d shareDTO) access.PrincipalRef {
	return access.PrincipalRef{
		ID:          access.PrincipalID(d.ID),
		Kind:        access.PrincipalKind(d.Kind),
		Access:      access.Level(d.Access),
		DisplayName: d.DisplayName,
		Locked:      d.Locked,
	}
}

// linkDTO is the wire form of a room link.
type linkDTO struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Access  int    `json:"access"`
	General bool   `json:"general"`
}

func toLinkDTO(l RoomLink) linkDTO {
	return linkDTO{ID: l.ID, Title: l.Title, Access: int(l.Access), General: l.General}
}

func fromLinkDTO(d linkDTO) RoomLink {
	return RoomLink{ID: d.ID, Title: d.Title, Access: access.Level(d.Access), General: d.General}
}

// receiptDTO is the wire form of a mutation acknowledgement. A
// non-empty operationId means the server processes the mutation
// asynchronously.
type receiptDTO struct {
	OperationID string `json:"operationId,omitempty"`
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/api/2.0/" + strings.Join(escaped, "/")
}

// call performs one request and unwraps the response envelope into out.
// Transport failures map to ErrNetwork; business errors from the
// envelope or a non-2xx status map to ErrServerRejected.
func (c *Client) call(ctx context.Context, method, url string, body, out any) error {
	var env envelope
	resp, err := c.http.DoJSON(ctx, method, url, body, &env)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, url, err)
	}

	if env.Error != nil && env.Error.Message != "" {
		return fmt.Errorf("%w: %s", ErrServerRejected, env.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %s %s: status %d", ErrNetwork, method, url, resp.StatusCode)
		}
		return fmt.Errorf("%w: status %d", ErrServerRejected, resp.StatusCode)
	}

	if out != nil && len(env.Response) > 0 {
		if err := json.Unmarshal(env.Response, out); err != nil {
			return fmt.Errorf("%w: malformed response: %v", ErrNetwork, err)
		}
	}
	return nil
}

func (c *Client) FetchPrincipals(ctx context.Context, res Resource) ([]access.PrincipalRef, error) {
	var dtos []shareDTO
	if err := c.call(ctx, http.MethodGet, c.endpoint("shares", res.ID), nil, &dtos); err != nil {
		return nil, err
	}
	refs := make([]access.PrincipalRef, len(dtos))
	for i, d := range dtos {
		refs[i] = fromDTO(d)
	}
	return refs, nil
}

type grantRequest struct {
	Share   shareDTO `json:"share"`
	Notify  bool     `json:"notify"`
	Message string   `json:"message,omitempty"`
}

func (c *Client) GrantAccess(ctx context.Context, res Resource, ref access.PrincipalRef, opts NotifyOptions) (Receipt, error) {
	body := grantRequest{Share: toDTO(ref), Notify: opts.Notify, Message: opts.Message}
	var out receiptDTO
	if err := c.call(ctx, http.MethodPost, c.endpoint("shares", res.ID), body, &out); err != nil {
		return Receipt{}, err
	}
	c.logger.Debug("granted access", "resource", res.ID, "principal", ref.ID, "access", ref.Access)
	return toReceipt(out), nil
}

type changeRequest struct {
	Access int `json:"access"`
}

func (c *Client) ChangeAccess(ctx context.Context, res Resource, id access.PrincipalID, level access.Level) (Receipt, error) {
	var out receiptDTO
	if err := c.call(ctx, http.MethodPut, c.endpoint("shares", res.ID, string(id)), changeRequest{Access: int(level)}, &out); err != nil {
		return Receipt{}, err
	}
	c.logger.Debug("changed access", "resource", res.ID, "principal", id, "access", level)
	return toReceipt(out), nil
}

func (c *Client) RevokeAccess(ctx context.Context, res Resource, id access.PrincipalID) (Receipt, error) {
	var out receiptDTO
	if err := c.call(ctx, http.MethodDelete, c.endpoint("shares", res.ID, string(id)), nil, &out); err != nil {
		return Receipt{}, err
	}
	c.logger.Debug("revoked access", "resource", res.ID, "principal", id)
	return toReceipt(out), nil
}

func toReceipt(d receiptDTO) Receipt {
	if d.OperationID == "" {
		return Receipt{}
	}
	return Receipt{Operation: &OperationHandle{ID: d.OperationID}}
}

func (c *Client) ListRoomLinks(ctx context.Context, res Resource) ([]RoomLink, error) {
	var dtos []linkDTO
	if err := c.call(ctx, http.MethodGet, c.endpoint("rooms", res.ID, "links"), nil, &dtos); err != nil {
		return nil, err
	}
	links := make([]RoomLink, len(dtos))
	for i, d := range dtos {
		links[i] = fromLinkDTO(d)
	}
	return links, nil
}

func (c *Client) SetRoomLink(ctx context.Context, res Resource, link RoomLink) (RoomLink, error) {
	var out linkDTO
	if err := c.call(ctx, http.MethodPut, c.endpoint("rooms", res.ID, "links"), toLinkDTO(link), &out); err != nil {
		return RoomLink{}, err
	}
	return fromLinkDTO(out), nil
}

func (c *Client) DeleteRoomLink(ctx context.Context, res Resource, linkID string) error {
	return c.call(ctx, http.MethodDelete, c.endpoint("rooms", res.ID, "links", linkID), nil, nil)
}

func (c *Client) RevokeRoomLink(ctx context.Context, res Resource, linkID string) (RoomLink, error) {
	var out linkDTO
	if err := c.call(ctx, http.MethodPost, c.endpoint("rooms", res.ID, "links", linkID, "revoke"), nil, &out); err != nil {
		return RoomLink{}, err
	}
	return fromLinkDTO(out), nil
}

type submitRequest struct {
	ResourceID string `json:"resourceId"`
}

type operationDTO struct {
	ID       string `json:"id"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

func (c *Client) SubmitOperation(ctx context.Context, res Resource, kind OperationKind) (OperationHandle, error) {
	var out operationDTO
	if err := c.call(ctx, http.MethodPost, c.endpoint("operations", string(kind)), submitRequest{ResourceID: res.ID}, &out); err != nil {
		return OperationHandle{}, err
	}
	if out.ID == "" {
		return OperationHandle{}, fmt.Errorf("%w: operation accepted without a tracking id", ErrNetwork)
	}
	c.logger.Info("operation submitted", "kind", kind, "resource", res.ID, "operation", out.ID)
	return OperationHandle{ID: out.ID}, nil
}

func (c *Client) FetchOperationStatus(ctx context.Context, handle OperationHandle) (OperationStatus, error) {
	var out operationDTO
	if err := c.call(ctx, http.MethodGet, c.endpoint("operations", handle.ID), nil, &out); err != nil {
		return OperationStatus{}, err
	}
	return OperationStatus{ID: out.ID, Progress: out.Progress, Error: out.Error}, nil
}
