package api

import (
	"context"
	"net/http"

	"github.com/okian/lastcall/internal/domain/types"
	"github.com/okian/lastcall/pkg/logger"
)

// PredictionDependencies defines the interface for submitting predictions.
type PredictionDependencies interface {
	SubmitPrediction(ctx context.Context, in types.PredictionInput) (types.PredictionReceipt, error)
}

// PredictionHandler handles prediction requests.
type PredictionHandler struct {
	handler
	deps PredictionDependencies
}

// NewPredictionHandler creates a new prediction handler.
func NewPredictionHandler(deps PredictionDependencies) *PredictionHandler {
	return &PredictionHandler{handler: handler{logger: logger.Nop()}, deps: deps}
}

// HandlePostPrediction handles POST /markets/{id}/predictions. A replayed
// request_id answers 200 with duplicate=true instead of 201.
func (h *PredictionHandler) HandlePostPrediction(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_prediction"
	var in types.PredictionInput
	if err := decode(r, &in); err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	in.MarketID = r.PathValue("id")

	receipt, err := h.deps.SubmitPrediction(r.Context(), in)
	if err != nil {
		h.fail(w, r, Wrap(op, err))
		return
	}
	if receipt.Duplicate {
		writeJSON(w, http.StatusOK, receipt)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}
