package api

import (
	"context"
	"net/http"

	"github.com/okian/lastcall/internal/domain/types"
	"github.com/okian/lastcall/pkg/logger"
)

// StandingsDependencies defines the interface for ranked market views.
type StandingsDependencies interface {
	Standings(ctx context.Context, marketID string) (types.Standings, error)
	Settlement(ctx context.Context, marketID string) (types.Settlement, error)
}

// StandingsHandler handles standings and settlement requests.
type StandingsHandler struct {
	handler
	deps StandingsDependencies
}

// NewStandingsHandler creates a new standings handler.
func NewStandingsHandler(deps StandingsDependencies) *StandingsHandler {
	return &StandingsHandler{handler: handler{logger: logger.Nop()}, deps: deps}
}

// HandleGetStandings handles GET /markets/{id}/standings.
func (h *StandingsHandler) HandleGetStandings(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_standings"
	st, err := h.deps.Standings(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleGetSettlement handles GET /markets/{id}/settlement. Until the
// market settles the answer is 404.
func (h *StandingsHandler) HandleGetSettlement(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_settlement"
	st, err := h.deps.Settlement(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
