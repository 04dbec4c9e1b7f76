package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/lastcall/internal/adapters/repository"
	"github.com/okian/lastcall/internal/domain/model"
)

var opened = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func date(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	s, err := repository.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *repository.SQLiteStore, id, name string, openedAt time.Time) {
	t.Helper()
	m := model.Market{ID: id, Name: name, Status: model.StatusOpen, OpenedAt: openedAt, WindowDays: 28}
	horses := []model.Horse{
		{ID: id + "-bryan", Name: "Bryan"},
		{ID: id + "-alex", Name: "Alex"},
	}
	require.NoError(t, s.CreateMarket(context.Background(), m, horses))
}

func TestSQLiteStore_CreateAndLoadMarket(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seed(t, s, "m1", "Bachelor party", opened)

	m, err := s.Market(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Bachelor party", m.Name)
	assert.Equal(t, model.StatusOpen, m.Status)
	assert.True(t, opened.Equal(m.OpenedAt))
	assert.Equal(t, 28, m.WindowDays)

	byName, err := s.MarketByName(ctx, "Bachelor party")
	require.NoError(t, err)
	assert.Equal(t, "m1", byName.ID)

	horses, err := s.Horses(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, horses, 2)
	assert.Equal(t, "Alex", horses[0].Name)
	assert.Nil(t, horses[0].ActualDate)
}

func TestSQLiteStore_DuplicateName(t *testing.T) {
	s := newStore(t)
	seed(t, s, "m1", "Party", opened)

	err := s.CreateMarket(context.Background(), model.Market{ID: "m2", Name: "Party", Status: model.StatusOpen, OpenedAt: opened}, nil)
	assert.ErrorIs(t, err, repository.ErrDuplicateName)
}

func TestSQLiteStore_NotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Market(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.EarliestMarket(ctx)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Settlement(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, s.SetActualDate(ctx, "ghost", date("2026-04-01")), repository.ErrNotFound)
	assert.ErrorIs(t, s.SetMarketStatus(ctx, "ghost", model.StatusResolved), repository.ErrNotFound)
}

func TestSQLiteStore_EarliestAndList(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seed(t, s, "late", "Later", opened.Add(48*time.Hour))
	seed(t, s, "early", "Earlier", opened)

	m, err := s.EarliestMarket(ctx)
	require.NoError(t, err)
	assert.Equal(t, "early", m.ID)

	all, err := s.ListMarkets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "late", all[1].ID)
}

func TestSQLiteStore_PredictionsAndResolution(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seed(t, s, "m1", "Party", opened)

	for i, id := range []string{"p2", "p1", "p3"} {
		require.NoError(t, s.AddPrediction(ctx, model.Prediction{
			ID:            id,
			MarketID:      "m1",
			HorseID:       "m1-alex",
			ParticipantID: "user-" + id,
			PredictedDate: date("2026-04-10"),
			Stake:         float64(10 * (i + 1)),
			SubmittedAt:   opened.Add(time.Duration(i) * time.Hour),
		}))
	}

	preds, err := s.Predictions(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, preds, 3)
	assert.Equal(t, "p2", preds[0].ID, "submission order is kept")
	assert.Equal(t, date("2026-04-10"), preds[0].PredictedDate)
	assert.InDelta(t, 30.0, preds[2].Stake, 1e-9)

	n, err := s.CountPredictions(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, s.SetActualDate(ctx, "m1-alex", date("2026-04-12")))
	require.NoError(t, s.SetMarketStatus(ctx, "m1", model.StatusResolved))

	horses, err := s.Horses(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, horses[0].ActualDate)
	assert.Equal(t, date("2026-04-12"), *horses[0].ActualDate)

	m, err := s.Market(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, m.Status)
}

func TestSQLiteStore_Settlement(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seed(t, s, "m1", "Party", opened)

	st := model.Settlement{
		MarketID:  "m1",
		SettledAt: opened.Add(30 * 24 * time.Hour),
		Pot:       100,
		Results: []model.PayoutResult{
			{EntryID: "b", Pool: "", Score: 8, Stake: 30, Payout: 100.0 / 3, Net: 100.0/3 - 30, Rank: 2},
			{EntryID: "a", Pool: "", Score: 10, Stake: 70, Payout: 200.0 / 3, Net: 200.0/3 - 70, Rank: 1},
		},
	}
	require.NoError(t, s.SaveSettlement(ctx, st))

	got, err := s.Settlement(ctx, "m1")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, got.Pot, 1e-9)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "b", got.Results[0].EntryID)
	assert.InDelta(t, 33.33, got.Results[0].Payout, 1e-9, "money is rounded to cents")
	assert.InDelta(t, 66.67, got.Results[1].Payout, 1e-9)
	assert.InDelta(t, -3.33, got.Results[1].Net, 1e-9)
	assert.Equal(t, 1, got.Results[1].Rank)

	st.Results = st.Results[:1]
	require.NoError(t, s.SaveSettlement(ctx, st))
	got, err = s.Settlement(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, got.Results, 1, "saving again replaces the results")
}

func TestSQLiteStore_DeleteAllCascades(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seed(t, s, "m1", "Party", opened)
	require.NoError(t, s.AddPrediction(ctx, model.Prediction{
		ID: "p1", MarketID: "m1", HorseID: "m1-alex", ParticipantID: "u1",
		PredictedDate: date("2026-04-10"), Stake: 10, SubmittedAt: opened,
	}))

	n, err := s.DeleteAllMarkets(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := s.CountPredictions(ctx, "m1")
	require.NoError(t, err)
	assert.Zero(t, count)
	horses, err := s.Horses(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, horses)
}

func TestSQLiteStore_ForeignKeysEnforced(t *testing.T) {
	s := newStore(t)
	err := s.AddPrediction(context.Background(), model.Prediction{
		ID: "p1", MarketID: "ghost", HorseID: "ghost-alex", ParticipantID: "u1",
		PredictedDate: date("2026-04-10"), Stake: 10, SubmittedAt: opened,
	})
	require.Error(t, err, "a prediction must reference an existing market and horse")
}
