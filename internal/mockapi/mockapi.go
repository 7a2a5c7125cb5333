// Package mockapi implements an in-memory document platform speaking the
// portal's REST envelope contract. It backs apiclient tests and the CLI's
// --dev mode, so flows can run end to end without a real deployment.
package mockapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docmesh/sharekit/internal/access"
	"github.com/docmesh/sharekit/internal/logutil"
)

type shareDTO struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Access      int    `json:"access"`
	DisplayName string `json:"displayName,omitempty"`
	Locked      bool   `json:"locked,omitempty"`
}

type linkDTO struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Access  int    `json:"access"`
	General bool   `json:"general"`
}

type operationDTO struct {
	ID       string `json:"id"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

type scriptedOp struct {
	steps  []int
	errAt  int // index into steps at which Error fires; -1 for never
	errMsg string
	idx    int
}

// Server is an in-memory document platform.
type Server struct {
	mu     sync.Mutex
	token  string
	logger *slog.Logger

	shares map[string][]shareDTO
	links  map[string][]linkDTO
	ops    map[string]*scriptedOp

	// OpSteps is the progress sequence assigned to newly submitted
	// operations. Defaults to a short ramp ending at 100.
	OpSteps []int

	// asyncShares marks resources whose share mutations return an
	// operation receipt instead of completing synchronously.
	asyncShares map[string]bool

	rejectNext string
	failAt     int
	failMsg    string
}

// New creates an empty platform. Requests must carry the given bearer
// token; pass "" to disable the check.
func New(token string, logger *slog.Logger) *Server {
	return &Server{
		token:       token,
		logger:      logutil.OrDiscard(logger),
		shares:      make(map[string][]shareDTO),
		links:       make(map[string][]linkDTO),
		ops:         make(map[string]*scriptedOp),
		asyncShares: make(map[string]bool),
		OpSteps:     []int{25, 50, 100},
	}
}

// Seed installs the share list for a resource, replacing any prior state.
func (s *Server) Seed(resource string, refs []access.PrincipalRef) {
	dtos := make([]shareDTO, len(refs))
	for i, ref := range refs {
		dtos[i] = shareDTO{
			ID:          string(ref.ID),
			Kind:        string(ref.Kind),
			Access:      int(ref.Access),
			DisplayName: ref.DisplayName,
			Locked:      ref.Locked,
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shares[resource] = dtos
}

// SeedLink installs a room link and returns its generated id.
func (s *Server) SeedLink(resource, title string, level access.Level, general bool) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[resource] = append(s.links[resource], linkDTO{
		ID: id, Title: title, Access: int(level), General: general,
	})
	return id
}

// Shares returns the current share list for a resource.
func (s *Server) Shares(resource string) []access.PrincipalRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]access.PrincipalRef, len(s.shares[resource]))
	for i, d := range s.shares[resource] {
		refs[i] = access.PrincipalRef{
			ID:          access.PrincipalID(d.ID),
			Kind:        access.PrincipalKind(d.Kind),
			Access:      access.Level(d.Access),
			DisplayName: d.DisplayName,
			Locked:      d.Locked,
		}
	}
	return refs
}

// RejectNext makes the next envelope carry the given business error.
func (s *Server) RejectNext(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext = message
}

// SetAsync makes share mutations on the resource return operation
// receipts. The operations follow OpSteps when polled.
func (s *Server) SetAsync(resource string, async bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asyncShares[resource] = async
}

// FailOperationsAt makes newly submitted operations report the given
// error once their progress sequence reaches step index i.
func (s *Server) FailOperationsAt(i int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt = i
	s.failMsg = message
}

// Handler returns the platform's HTTP surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/2.0", func(r chi.Router) {
		r.Route("/shares/{resourceId}", func(r chi.Router) {
			r.Get("/", s.handleListShares)
			r.Post("/", s.handleGrant)
			r.Put("/{principalId}", s.handleChange)
			r.Delete("/{principalId}", s.handleRevoke)
		})
		r.Route("/rooms/{resourceId}/links", func(r chi.Router) {
			r.Get("/", s.handleListLinks)
			r.Put("/", s.handleSetLink)
			r.Delete("/{linkId}", s.handleDeleteLink)
			r.Post("/{linkId}/revoke", s.handleRevokeLink)
		})
		r.Post("/operations/{kind}", s.handleSubmitOperation)
		r.Get("/operations/{operationId}", s.handleOperationStatus)
	})
	return s.authenticated(r)
}

func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeEnvelope(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	var raw json.RawMessage
	if response != nil {
		raw, _ = json.Marshal(response)
	}
	_ = json.NewEncoder(w).Encode(struct {
		Response json.RawMessage `json:"response,omitempty"`
		Error    any             `json:"error,omitempty"`
	}{Response: raw})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}{Error: struct {
		Message string `json:"message"`
	}{Message: message}})
}

// takeRejection consumes a pending RejectNext, if any. Callers hold mu.
func (s *Server) takeRejection() (string, bool) {
	if s.rejectNext == "" {
		return "", false
	}
	msg := s.rejectNext
	s.rejectNext = ""
	return msg, true
}

func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resourceId")

	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.takeRejection(); ok {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}
	dtos := s.shares[resource]
	if dtos == nil {
		dtos = []shareDTO{}
	}
	s.writeEnvelope(w, http.StatusOK, dtos)
}

type grantRequest struct {
	Share   shareDTO `json:"share"`
	Notify  bool     `json:"notify"`
	Message string   `json:"message,omitempty"`
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resourceId")

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Share.ID == "" {
		s.writeError(w, http.StatusBadRequest, "share id is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.takeRejection(); ok {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	replaced := false
	for i, d := range s.shares[resource] {
		if d.ID == req.Share.ID {
			s.shares[resource][i] = req.Share
			replaced = true
			break
		}
	}
	if !replaced {
		s.shares[resource] = append(s.shares[resource], req.Share)
	}
	s.logger.Debug("share granted", "resource", resource, "principal", req.Share.ID, "notify", req.Notify)
	s.writeEnvelope(w, http.StatusOK, s.receiptLocked(resource))
}

type changeRequest struct {
	Access int `json:"access"`
}

func (s *Server) handleChange(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resourceId")
	principal := chi.URLParam(r, "principalId")

	var req changeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.takeRejection(); ok {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	for i, d := range s.shares[resource] {
		if d.ID == principal {
			s.shares[resource][i].Access = req.Access
			s.writeEnvelope(w, http.StatusOK, s.receiptLocked(resource))
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "principal not found")
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resourceId")
	principal := chi.URLParam(r, "principalId")

	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.takeRejection(); ok {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	dtos := s.shares[resource]
	for i, d := range dtos {
		if d.ID == principal {
			s.shares[resource] = append(dtos[:i:i], dtos[i+1:]...)
			s.writeEnvelope(w, http.StatusOK, s.receiptLocked(resource))
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "principal not found")
}

type receiptDTO struct {
	OperationID string `json:"operationId,omitempty"`
}

// receiptLocked builds the mutation acknowledgement, registering a
// scripted operation when the resource is marked async. Callers hold mu.
func (s *Server) receiptLocked(resource string) receiptDTO {
	if !s.asyncShares[resource] {
		return receiptDTO{}
	}
	id := uuid.NewString()
	s.ops[id] = s.newOpLocked()
	return receiptDTO{OperationID: id}
}

func (s *Server) newOpLocked() *scriptedOp {
	op := &scriptedOp{
		steps:  append([]int(nil), s.OpSteps...),
		errAt:  -1,
		errMsg: s.failMsg,
	}
	if s.failMsg != "" {
		op.errAt = s.failAt
	}
	return op
}

func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resourceId")

	s.mu.Lock()
	defer s.mu.Unlock()
	links := s.links[resource]
	if links == nil {
		links = []linkDTO{}
	}
	s.writeEnvelope(w, http.StatusOK, links)
}

func (s *Server) handleSetLink(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resourceId")

	var link linkDTO
	if err := json.NewDecoder(r.Body).Decode(&link); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if link.ID == "" {
		link.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	replaced := false
	for i, l := range s.links[resource] {
		if l.ID == link.ID {
			s.links[resource][i] = link
			replaced = true
			break
		}
	}
	if !replaced {
		s.links[resource] = append(s.links[resource], link)
	}
	s.writeEnvelope(w, http.StatusOK, link)
}

func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resourceId")
	linkID := chi.URLParam(r, "linkId")

	s.mu.Lock()
	defer s.mu.Unlock()
	links := s.links[resource]
	for i, l := range links {
		if l.ID == linkID {
			s.links[resource] = append(links[:i:i], links[i+1:]...)
			s.writeEnvelope(w, http.StatusOK, nil)
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "link not found")
}

// handleRevokeLink rotates the link: the old id stops working and the
// entry comes back with a fresh id and no external access.
func (s *Server) handleRevokeLink(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resourceId")
	linkID := chi.URLParam(r, "linkId")

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.links[resource] {
		if l.ID == linkID {
			l.ID = uuid.NewString()
			l.Access = 0
			s.links[resource][i] = l
			s.writeEnvelope(w, http.StatusOK, l)
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "link not found")
}

type submitRequest struct {
	ResourceID string `json:"resourceId"`
}

func (s *Server) handleSubmitOperation(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.ResourceID == "" {
		s.writeError(w, http.StatusBadRequest, "resourceId is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.takeRejection(); ok {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	id := uuid.NewString()
	s.ops[id] = s.newOpLocked()
	s.logger.Debug("operation submitted", "kind", kind, "resource", req.ResourceID, "operation", id)
	s.writeEnvelope(w, http.StatusOK, operationDTO{ID: id, Progress: 0})
}

// handleOperationStatus advances the scripted progress by one step per
// poll, matching how the real platform reports trailing progress.
func (s *Server) handleOperationStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationId")

	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[id]
	if !ok {
		s.writeError(w, http.StatusNotFound, "operation not found")
		return
	}

	dto := operationDTO{ID: id}
	if len(op.steps) > 0 {
		i := op.idx
		if i >= len(op.steps) {
			i = len(op.steps) - 1
		}
		dto.Progress = op.steps[i]
		if op.errAt >= 0 && i >= op.errAt {
			dto.Error = op.errMsg
		}
		if op.idx < len(op.steps) {
			op.idx++
		}
	}
	s.writeEnvelope(w, http.StatusOK, dto)
}
