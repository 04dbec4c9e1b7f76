package api

import (
	"context"
	"net/http"

	"github.com/okian/lastcall/internal/domain/types"
	"github.com/okian/lastcall/pkg/logger"
)

// MarketDependencies defines the interface for market operations.
type MarketDependencies interface {
	CreateMarket(ctx context.Context, name string, horseNames []string) (types.Market, error)
	GetMarket(ctx context.Context, marketID string) (types.Market, error)
}

// handler holds what every route handler shares.
type handler struct {
	logger logger.Logger
}

// fail writes err and logs it when it maps to a server error.
func (h handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := statusOf(err); status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeError(w, err)
}

// createMarketRequest mirrors the OpenAPI schema for POST /markets.
type createMarketRequest struct {
	Name   string   `json:"name" validate:"required,max=128"`
	Horses []string `json:"horses" validate:"required,min=1,dive,required,max=64"`
}

// MarketsHandler handles market requests.
type MarketsHandler struct {
	handler
	deps MarketDependencies
}

// NewMarketsHandler creates a new markets handler.
func NewMarketsHandler(deps MarketDependencies) *MarketsHandler {
	return &MarketsHandler{handler: handler{logger: logger.Nop()}, deps: deps}
}

// HandleCreateMarket handles POST /markets.
func (h *MarketsHandler) HandleCreateMarket(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_market"
	var req createMarketRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	m, err := h.deps.CreateMarket(r.Context(), req.Name, req.Horses)
	if err != nil {
		h.fail(w, r, Wrap(op, err))
		return
	}
	w.Header().Set("Location", "/markets/"+m.ID)
	writeJSON(w, http.StatusCreated, m)
}

// HandleGetMarket handles GET /markets/{id}.
func (h *MarketsHandler) HandleGetMarket(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_market"
	m, err := h.deps.GetMarket(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}
