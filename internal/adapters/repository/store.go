// Package repository persists markets, horses, predictions and settlements.
package repository

import (
	"context"
	"time"

	"github.com/okian/lastcall/internal/domain/model"
)

// Store provides read/write access to market state.
type Store interface {
	// CreateMarket inserts a market and its horses atomically.
	// Returns ErrDuplicateName if a market with the same name exists.
	CreateMarket(ctx context.Context, m model.Market, horses []model.Horse) error

	// Market returns ErrNotFound for unknown ids.
	Market(ctx context.Context, id string) (model.Market, error)
	MarketByName(ctx context.Context, name string) (model.Market, error)
	// EarliestMarket returns the oldest market by open time.
	EarliestMarket(ctx context.Context) (model.Market, error)
	ListMarkets(ctx context.Context) ([]model.Market, error)
	SetMarketStatus(ctx context.Context, id string, status model.MarketStatus) error

	// Horses returns the market's horses ordered by name.
	Horses(ctx context.Context, marketID string) ([]model.Horse, error)
	SetActualDate(ctx context.Context, horseID string, date time.Time) error

	AddPrediction(ctx context.Context, p model.Prediction) error
	// Predictions returns the market's predictions in submission order.
	Predictions(ctx context.Context, marketID string) ([]model.Prediction, error)
	CountPredictions(ctx context.Context, marketID string) (int, error)

	// SaveSettlement replaces any previous settlement of the market.
	SaveSettlement(ctx context.Context, s model.Settlement) error
	Settlement(ctx context.Context, marketID string) (model.Settlement, error)

	// DeleteAllMarkets removes every market and everything attached to it.
	DeleteAllMarkets(ctx context.Context) (int64, error)

	Close() error
}
