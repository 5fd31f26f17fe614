// Package api exposes the approver over HTTP.
//
// Reads are public. Policy mutations and approval requests must be signed
// (see package auth); the recovered signer is the caller the decision engine
// sees.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/gipsh/safe-approver-go/internal/approver"
	"github.com/gipsh/safe-approver-go/internal/auth"
	"github.com/gipsh/safe-approver-go/internal/policy"
	"github.com/gipsh/safe-approver-go/internal/types"
	"github.com/gipsh/safe-approver-go/internal/units"
)

const maxBodyBytes = 1 << 20

// Gate is the decision engine as seen by the HTTP layer.
type Gate interface {
	Evaluate(ctx context.Context, caller common.Address, tx types.SafeTx) (common.Hash, error)
	Safe() common.Address
	Admin() common.Address
	Limit() *big.Int
	IsWhitelisted(protocol common.Address) bool
	Whitelist() []common.Address
	SetLimit(caller common.Address, limit *big.Int) error
	AddToWhitelist(caller, protocol common.Address) error
	RemoveFromWhitelist(caller, protocol common.Address) error
	TransferAdmin(caller, newAdmin common.Address) error
}

// Server routes approver requests.
type Server struct {
	gate     Gate
	verifier *auth.Verifier
	events   http.Handler
	timeout  time.Duration
}

// Option customizes a Server.
type Option func(*Server)

// WithEvents mounts h (normally a ws.Hub) at GET /v1/events.
func WithEvents(h http.Handler) Option {
	return func(s *Server) { s.events = h }
}

// WithCallTimeout bounds each approval, including its Safe calls.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// NewServer creates a Server in front of gate.
func NewServer(gate Gate, verifier *auth.Verifier, opts ...Option) *Server {
	s := &Server{gate: gate, verifier: verifier, timeout: 15 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(api chi.Router) {
		api.Get("/policy", s.handlePolicy)
		api.Get("/whitelist/{address}", s.handleCheckWhitelist)
		if s.events != nil {
			api.Get("/events", s.events.ServeHTTP)
		}

		api.Group(func(signed chi.Router) {
			signed.Use(s.authenticate)
			signed.Put("/limit", s.handleSetLimit)
			signed.Post("/whitelist/{address}", s.handleAddWhitelist)
			signed.Delete("/whitelist/{address}", s.handleRemoveWhitelist)
			signed.Put("/admin", s.handleTransferAdmin)
			signed.Post("/approve", s.handleApprove)
		})
	})
	return r
}

// ── Middleware ───────────────────────────────────────────────────────────

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxCaller
)

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxRequestID, id)))
	})
}

func reqID(r *http.Request) string {
	id, _ := r.Context().Value(ctxRequestID).(string)
	return id
}

func callerOf(r *http.Request) common.Address {
	caller, _ := r.Context().Value(ctxCaller).(common.Address)
	return caller
}

// authenticate buffers the body, verifies the signature over it and puts the
// signer in the request context. The body is replayed for the handler.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: CodeBadRequest, Message: err.Error()})
			return
		}
		caller, err := s.verifier.Verify(r, body)
		if err != nil {
			log.Printf("[api] %s %s %s: %v", reqID(r), r.Method, r.URL.Path, err)
			writeError(w, r, http.StatusUnauthorized, ErrorResponse{Error: CodeAuthenticationFailed, Message: err.Error()})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxCaller, caller)))
	})
}

// ── Handlers ─────────────────────────────────────────────────────────────

func (s *Server) handlePolicy(w http.ResponseWriter, _ *http.Request) {
	limit := s.gate.Limit()
	writeJSON(w, http.StatusOK, PolicyResponse{
		Safe:       s.gate.Safe(),
		Admin:      s.gate.Admin(),
		Limit:      limit.String(),
		LimitEther: units.FormatEther(limit),
		Whitelist:  s.gate.Whitelist(),
	})
}

func (s *Server) handleCheckWhitelist(w http.ResponseWriter, r *http.Request) {
	protocol, ok := pathAddress(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, WhitelistResponse{Protocol: protocol, Whitelisted: s.gate.IsWhitelisted(protocol)})
}

func (s *Server) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	var req LimitRequest
	if !decode(w, r, &req) {
		return
	}
	limit, err := units.ParseAmount(req.Limit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: CodeBadRequest, Message: err.Error()})
		return
	}
	if err := s.gate.SetLimit(callerOf(r), limit); err != nil {
		s.fail(w, r, err)
		return
	}
	s.handlePolicy(w, r)
}

func (s *Server) handleAddWhitelist(w http.ResponseWriter, r *http.Request) {
	s.mutateWhitelist(w, r, s.gate.AddToWhitelist)
}

func (s *Server) handleRemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	s.mutateWhitelist(w, r, s.gate.RemoveFromWhitelist)
}

func (s *Server) mutateWhitelist(w http.ResponseWriter, r *http.Request, op func(caller, protocol common.Address) error) {
	protocol, ok := pathAddress(w, r)
	if !ok {
		return
	}
	if err := op(callerOf(r), protocol); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WhitelistResponse{Protocol: protocol, Whitelisted: s.gate.IsWhitelisted(protocol)})
}

func (s *Server) handleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	var req AdminRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.gate.TransferAdmin(callerOf(r), req.Admin); err != nil {
		s.fail(w, r, err)
		return
	}
	s.handlePolicy(w, r)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var tx types.SafeTx
	if !decode(w, r, &tx) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	hash, err := s.gate.Evaluate(ctx, callerOf(r), tx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ApproveResponse{SafeTxHash: hash})
}

// ── Helpers ──────────────────────────────────────────────────────────────

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	var invalid *approver.InvalidTransactionError
	switch {
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
	case errors.Is(err, policy.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, approver.ErrRejected):
		status = http.StatusForbidden
	case errors.Is(err, policy.ErrInvalid):
		status = http.StatusBadRequest
	}
	body := ErrorBody(err)
	if errors.Is(err, policy.ErrInvalid) {
		body.Error = CodeBadRequest
	}
	log.Printf("[api] %s %s %s caller=%s → %d %s", reqID(r), r.Method, r.URL.Path, callerOf(r).Hex(), status, body.Error)
	writeError(w, r, status, body)
}

func pathAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: CodeBadRequest, Message: "invalid address " + raw})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: CodeBadRequest, Message: "decode body: " + err.Error()})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, status int, body ErrorResponse) {
	body.RequestID = reqID(r)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}
