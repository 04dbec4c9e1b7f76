package service

import (
	"context"

	"github.com/okian/lastcall/internal/adapters/repository"
	"github.com/okian/lastcall/internal/domain/model"
	"github.com/okian/lastcall/internal/domain/resolve"
	"github.com/okian/lastcall/internal/domain/types"
)

// snapshot is one market's state as the engine sees it.
type snapshot struct {
	market      model.Market
	horses      map[string]model.Horse
	predictions map[string]model.Prediction
	entries     []model.Entry
}

func loadSnapshot(ctx context.Context, store repository.Store, marketID string, mode resolve.Mode) (snapshot, error) {
	m, err := store.Market(ctx, marketID)
	if err != nil {
		return snapshot{}, err
	}
	horses, err := store.Horses(ctx, m.ID)
	if err != nil {
		return snapshot{}, err
	}
	preds, err := store.Predictions(ctx, m.ID)
	if err != nil {
		return snapshot{}, err
	}

	snap := snapshot{
		market:      m,
		horses:      make(map[string]model.Horse, len(horses)),
		predictions: make(map[string]model.Prediction, len(preds)),
	}
	for _, h := range horses {
		snap.horses[h.ID] = h
	}
	for _, p := range preds {
		snap.predictions[p.ID] = p
	}
	snap.entries = buildEntries(m, snap.horses, preds, mode)
	return snap, nil
}

// buildEntries maps stored predictions to engine entries. Each horse is a
// submarket; its actual date resolves every entry on it.
func buildEntries(m model.Market, horses map[string]model.Horse, preds []model.Prediction, mode resolve.Mode) []model.Entry {
	entries := make([]model.Entry, len(preds))
	for i, p := range preds {
		e := model.Entry{
			ID:            p.ID,
			ParticipantID: p.ParticipantID,
			Predicted:     p.PredictedDate,
			Stake:         p.Stake,
			SubmittedAt:   p.SubmittedAt,
			MarketOpenAt:  m.OpenedAt,
		}
		if mode == resolve.PerSubmarket {
			e.SubmarketKey = p.HorseID
		}
		if h, ok := horses[p.HorseID]; ok && h.ActualDate != nil {
			actual := *h.ActualDate
			e.Actual = &actual
		}
		entries[i] = e
	}
	return entries
}

func (s snapshot) rows(results []model.PayoutResult) []types.Standing {
	rows := make([]types.Standing, len(results))
	for i, r := range results {
		p := s.predictions[r.EntryID]
		rows[i] = types.Standing{
			Rank:          r.Rank,
			EntryID:       r.EntryID,
			ParticipantID: p.ParticipantID,
			HorseID:       p.HorseID,
			Horse:         s.horses[p.HorseID].Name,
			Stake:         r.Stake,
			Score:         r.Score,
			Payout:        r.Payout,
			Net:           r.Net,
		}
		if !p.PredictedDate.IsZero() {
			rows[i].PredictedDate = p.PredictedDate.Format(model.DateLayout)
		}
	}
	return rows
}

func marketView(m model.Market, horses []model.Horse, predictions int) types.Market {
	v := types.Market{
		ID:             m.ID,
		Name:           m.Name,
		Status:         string(m.Status),
		OpenedAt:       m.OpenedAt,
		WindowClosesAt: m.WindowClosesAt(),
		Horses:         make([]types.Horse, len(horses)),
		Predictions:    predictions,
	}
	for i, h := range horses {
		v.Horses[i] = types.Horse{ID: h.ID, Name: h.Name}
		if h.ActualDate != nil {
			v.Horses[i].ActualDate = h.ActualDate.Format(model.DateLayout)
		}
	}
	return v
}
