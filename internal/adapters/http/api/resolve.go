package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/okian/lastcall/internal/domain/types"
	"github.com/okian/lastcall/pkg/logger"
)

// AdminSecretHeader carries the admin secret on privileged routes.
const AdminSecretHeader = "X-Admin-Secret"

// ResolveDependencies defines the interface for recording booking dates.
type ResolveDependencies interface {
	Resolve(ctx context.Context, marketID string, bookings []types.Booking, requireQuorum bool) (types.ResolveOutcome, error)
}

type resolveRequest struct {
	Bookings []types.Booking `json:"bookings" validate:"required,min=1,dive"`
}

// ResolveHandler handles admin resolve requests.
type ResolveHandler struct {
	handler
	deps   ResolveDependencies
	secret []byte
}

// NewResolveHandler creates a resolve handler guarded by secret. With an
// empty secret every request is forbidden.
func NewResolveHandler(deps ResolveDependencies, secret string) *ResolveHandler {
	return &ResolveHandler{handler: handler{logger: logger.Nop()}, deps: deps, secret: []byte(secret)}
}

// HandleResolve handles POST /markets/{id}/resolve. The market must hold at
// least the engine minimum of predictions.
func (h *ResolveHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	const op = "api.resolve"
	if !h.authorized(r) {
		h.fail(w, r, NewKind(op, ErrForbidden))
		return
	}

	var req resolveRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}

	out, err := h.deps.Resolve(r.Context(), r.PathValue("id"), req.Bookings, true)
	if err != nil {
		h.fail(w, r, Wrap(op, err))
		return
	}
	h.logger.Info(r.Context(), "resolve accepted",
		logger.String("market_id", out.MarketID),
		logger.Bool("resolved", out.Resolved),
	)
	writeJSON(w, http.StatusOK, out)
}

func (h *ResolveHandler) authorized(r *http.Request) bool {
	if len(h.secret) == 0 {
		return false
	}
	got := []byte(r.Header.Get(AdminSecretHeader))
	return subtle.ConstantTimeCompare(got, h.secret) == 1
}
