package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"verity/internal/identity"
	smodels "verity/internal/security/models"
	"verity/internal/transport/http/shared"
	dErrors "verity/pkg/domain-errors"

	httpjson "verity/internal/transport/http/json"
)

const defaultEventLimit = 50

// SecurityAdmin exposes the audit log read surface and the manual unlock
// operation to operators.
type SecurityAdmin interface {
	EventsByIdentifier(ctx context.Context, ident identity.Identifier, kind *smodels.EventKind, limit int) []*smodels.SecurityEvent
	EventsByKind(ctx context.Context, kind smodels.EventKind, limit int) []*smodels.SecurityEvent
	RecentFailures(ctx context.Context, n int) []*smodels.SecurityEvent
	Stats(ctx context.Context, ident identity.Identifier) *smodels.IdentifierStats
	UnlockAccount(ctx context.Context, ident identity.Identifier) error
}

// RateLimitAdmin clears issuance quotas on operator request.
type RateLimitAdmin interface {
	Reset(ctx context.Context, ident identity.Identifier) error
}

type AdminHandler struct {
	security SecurityAdmin
	limiter  RateLimitAdmin
}

func NewAdminHandler(security SecurityAdmin, limiter RateLimitAdmin) *AdminHandler {
	return &AdminHandler{security: security, limiter: limiter}
}

func (h *AdminHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ident, ok := identFromQuery(w, r)
	if !ok {
		return
	}

	var kind *smodels.EventKind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k := smodels.EventKind(raw)
		if !k.IsValid() {
			shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "unknown event kind"))
			return
		}
		kind = &k
	}

	events := h.security.EventsByIdentifier(r.Context(), ident, kind, limitFromQuery(r))
	httpjson.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *AdminHandler) handleEventsByKind(w http.ResponseWriter, r *http.Request) {
	kind := smodels.EventKind(chi.URLParam(r, "kind"))
	if !kind.IsValid() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "unknown event kind"))
		return
	}

	events := h.security.EventsByKind(r.Context(), kind, limitFromQuery(r))
	httpjson.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *AdminHandler) handleRecentFailures(w http.ResponseWriter, r *http.Request) {
	events := h.security.RecentFailures(r.Context(), limitFromQuery(r))
	httpjson.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *AdminHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	ident, ok := identFromQuery(w, r)
	if !ok {
		return
	}

	stats := h.security.Stats(r.Context(), ident)
	httpjson.WriteJSON(w, http.StatusOK, stats)
}

type identRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

func (h *AdminHandler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	ident, ok := identFromBody(w, r)
	if !ok {
		return
	}

	if err := h.security.UnlockAccount(r.Context(), ident); err != nil {
		shared.WriteError(w, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

func (h *AdminHandler) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	ident, ok := identFromBody(w, r)
	if !ok {
		return
	}

	if err := h.limiter.Reset(r.Context(), ident); err != nil {
		shared.WriteError(w, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func identFromQuery(w http.ResponseWriter, r *http.Request) (identity.Identifier, bool) {
	q := r.URL.Query()
	ident, err := identity.Parse(q.Get("identifier_kind"), q.Get("identifier"))
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "identifier_kind and identifier are required"))
		return identity.Identifier{}, false
	}
	return ident, true
}

func identFromBody(w http.ResponseWriter, r *http.Request) (identity.Identifier, bool) {
	var req identRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return identity.Identifier{}, false
	}
	ident, err := identity.Parse(req.Kind, req.Value)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "kind and value are required"))
		return identity.Identifier{}, false
	}
	return ident, true
}

func limitFromQuery(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultEventLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultEventLimit
	}
	return limit
}
