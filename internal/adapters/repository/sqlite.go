package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/lastcall/internal/domain/model"
	"github.com/okian/lastcall/pkg/logger"
	"github.com/okian/lastcall/pkg/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS markets (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    status      TEXT NOT NULL,
    opened_at   TEXT NOT NULL,
    window_days INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS horses (
    id          TEXT PRIMARY KEY,
    market_id   TEXT NOT NULL REFERENCES markets(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    actual_date TEXT,
    UNIQUE (market_id, name)
);

CREATE TABLE IF NOT EXISTS predictions (
    seq            INTEGER PRIMARY KEY AUTOINCREMENT,
    id             TEXT NOT NULL UNIQUE,
    market_id      TEXT NOT NULL REFERENCES markets(id) ON DELETE CASCADE,
    horse_id       TEXT NOT NULL REFERENCES horses(id) ON DELETE CASCADE,
    participant_id TEXT NOT NULL,
    predicted_date TEXT NOT NULL,
    stake          REAL NOT NULL,
    submitted_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settlements (
    market_id  TEXT PRIMARY KEY REFERENCES markets(id) ON DELETE CASCADE,
    settled_at TEXT NOT NULL,
    pot        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settlement_results (
    market_id TEXT NOT NULL REFERENCES settlements(market_id) ON DELETE CASCADE,
    position  INTEGER NOT NULL,
    entry_id  TEXT NOT NULL,
    pool      TEXT NOT NULL,
    score     REAL NOT NULL,
    stake     TEXT NOT NULL,
    payout    TEXT NOT NULL,
    net       TEXT NOT NULL,
    rank      INTEGER NOT NULL,
    PRIMARY KEY (market_id, position)
);

CREATE INDEX IF NOT EXISTS idx_horses_market      ON horses(market_id);
CREATE INDEX IF NOT EXISTS idx_predictions_market ON predictions(market_id, seq);
`

// Money columns are stored as fixed two-decimal strings.
const moneyPlaces = 2

// SQLiteStore implements Store on SQLite (pure Go, no CGo).
type SQLiteStore struct {
	db  *sql.DB
	log logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dsn and applies the
// schema. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(dsn string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository.NewSQLiteStore: open %q: %w", dsn, err)
	}
	// single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// cascade deletes depend on it
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository.NewSQLiteStore: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository.NewSQLiteStore: apply schema: %w", err)
	}

	s.db = db
	s.log.Info(context.Background(), "store opened", logger.String("dsn", dsn))
	return s, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryQueryLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// CreateMarket inserts the market and its horses in one transaction.
func (s *SQLiteStore) CreateMarket(ctx context.Context, m model.Market, horses []model.Horse) error {
	defer observe("create_market", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository.CreateMarket: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM markets WHERE name = ?`, m.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("repository.CreateMarket: check name: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("repository.CreateMarket: %q: %w", m.Name, ErrDuplicateName)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO markets (id, name, status, opened_at, window_days) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Name, string(m.Status), formatTime(m.OpenedAt), m.WindowDays,
	); err != nil {
		return fmt.Errorf("repository.CreateMarket: insert market: %w", err)
	}

	for _, h := range horses {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO horses (id, market_id, name, actual_date) VALUES (?, ?, ?, ?)`,
			h.ID, m.ID, h.Name, formatDate(h.ActualDate),
		); err != nil {
			return fmt.Errorf("repository.CreateMarket: insert horse %q: %w", h.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository.CreateMarket: commit: %w", err)
	}
	return nil
}

const marketColumns = `id, name, status, opened_at, window_days`

func scanMarket(row interface{ Scan(...any) error }) (model.Market, error) {
	var (
		m        model.Market
		status   string
		openedAt string
	)
	if err := row.Scan(&m.ID, &m.Name, &status, &openedAt, &m.WindowDays); err != nil {
		return model.Market{}, err
	}
	t, err := parseTime(openedAt)
	if err != nil {
		return model.Market{}, err
	}
	m.Status = model.MarketStatus(status)
	m.OpenedAt = t
	return m, nil
}

func (s *SQLiteStore) marketWhere(ctx context.Context, op, where string, args ...any) (model.Market, error) {
	defer observe(op, time.Now())

	row := s.db.QueryRowContext(ctx, `SELECT `+marketColumns+` FROM markets `+where, args...)
	m, err := scanMarket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Market{}, fmt.Errorf("repository.%s: market: %w", op, ErrNotFound)
	}
	if err != nil {
		return model.Market{}, fmt.Errorf("repository.%s: %w", op, err)
	}
	return m, nil
}

// Market returns the market with the given id.
func (s *SQLiteStore) Market(ctx context.Context, id string) (model.Market, error) {
	return s.marketWhere(ctx, "market", `WHERE id = ?`, id)
}

// MarketByName returns the market with the given name.
func (s *SQLiteStore) MarketByName(ctx context.Context, name string) (model.Market, error) {
	return s.marketWhere(ctx, "market_by_name", `WHERE name = ?`, name)
}

// EarliestMarket returns the first market ever opened.
func (s *SQLiteStore) EarliestMarket(ctx context.Context) (model.Market, error) {
	return s.marketWhere(ctx, "earliest_market", `ORDER BY opened_at ASC, name ASC LIMIT 1`)
}

// ListMarkets returns every market ordered by open time.
func (s *SQLiteStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	defer observe("list_markets", time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY opened_at ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("repository.ListMarkets: %w", err)
	}
	defer rows.Close()

	var out []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.ListMarkets: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetMarketStatus updates the lifecycle state of a market.
func (s *SQLiteStore) SetMarketStatus(ctx context.Context, id string, status model.MarketStatus) error {
	defer observe("set_market_status", time.Now())

	res, err := s.db.ExecContext(ctx, `UPDATE markets SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("repository.SetMarketStatus: %w", err)
	}
	return requireRow(res, "SetMarketStatus")
}

// Horses returns the market's horses ordered by name.
func (s *SQLiteStore) Horses(ctx context.Context, marketID string) ([]model.Horse, error) {
	defer observe("horses", time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, market_id, name, actual_date FROM horses WHERE market_id = ? ORDER BY name`, marketID)
	if err != nil {
		return nil, fmt.Errorf("repository.Horses: %w", err)
	}
	defer rows.Close()

	var out []model.Horse
	for rows.Next() {
		var (
			h      model.Horse
			actual sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.MarketID, &h.Name, &actual); err != nil {
			return nil, fmt.Errorf("repository.Horses: scan: %w", err)
		}
		if h.ActualDate, err = parseDate(actual); err != nil {
			return nil, fmt.Errorf("repository.Horses: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SetActualDate records a horse's booking date.
func (s *SQLiteStore) SetActualDate(ctx context.Context, horseID string, date time.Time) error {
	defer observe("set_actual_date", time.Now())

	res, err := s.db.ExecContext(ctx, `UPDATE horses SET actual_date = ? WHERE id = ?`, formatDate(&date), horseID)
	if err != nil {
		return fmt.Errorf("repository.SetActualDate: %w", err)
	}
	return requireRow(res, "SetActualDate")
}

// AddPrediction stores a prediction.
func (s *SQLiteStore) AddPrediction(ctx context.Context, p model.Prediction) error {
	defer observe("add_prediction", time.Now())

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, market_id, horse_id, participant_id, predicted_date, stake, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MarketID, p.HorseID, p.ParticipantID, p.PredictedDate.Format(model.DateLayout), p.Stake, formatTime(p.SubmittedAt),
	); err != nil {
		return fmt.Errorf("repository.AddPrediction: %w", err)
	}
	return nil
}

// Predictions returns the market's predictions in submission order.
func (s *SQLiteStore) Predictions(ctx context.Context, marketID string) ([]model.Prediction, error) {
	defer observe("predictions", time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, market_id, horse_id, participant_id, predicted_date, stake, submitted_at
		 FROM predictions WHERE market_id = ? ORDER BY seq`, marketID)
	if err != nil {
		return nil, fmt.Errorf("repository.Predictions: %w", err)
	}
	defer rows.Close()

	var out []model.Prediction
	for rows.Next() {
		var (
			p                    model.Prediction
			predicted, submitted string
		)
		if err := rows.Scan(&p.ID, &p.MarketID, &p.HorseID, &p.ParticipantID, &predicted, &p.Stake, &submitted); err != nil {
			return nil, fmt.Errorf("repository.Predictions: scan: %w", err)
		}
		if p.PredictedDate, err = time.Parse(model.DateLayout, predicted); err != nil {
			return nil, fmt.Errorf("repository.Predictions: predicted date: %w", err)
		}
		if p.SubmittedAt, err = parseTime(submitted); err != nil {
			return nil, fmt.Errorf("repository.Predictions: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPredictions returns how many predictions the market holds.
func (s *SQLiteStore) CountPredictions(ctx context.Context, marketID string) (int, error) {
	defer observe("count_predictions", time.Now())

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions WHERE market_id = ?`, marketID).Scan(&n); err != nil {
		return 0, fmt.Errorf("repository.CountPredictions: %w", err)
	}
	return n, nil
}

// SaveSettlement replaces the market's settlement. Money values are rounded
// to cents.
func (s *SQLiteStore) SaveSettlement(ctx context.Context, st model.Settlement) error {
	defer observe("save_settlement", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository.SaveSettlement: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM settlement_results WHERE market_id = ?`, st.MarketID); err != nil {
		return fmt.Errorf("repository.SaveSettlement: clear results: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO settlements (market_id, settled_at, pot) VALUES (?, ?, ?)
		 ON CONFLICT(market_id) DO UPDATE SET settled_at = excluded.settled_at, pot = excluded.pot`,
		st.MarketID, formatTime(st.SettledAt), money(st.Pot),
	); err != nil {
		return fmt.Errorf("repository.SaveSettlement: upsert settlement: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO settlement_results (market_id, position, entry_id, pool, score, stake, payout, net, rank)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("repository.SaveSettlement: prepare: %w", err)
	}
	defer stmt.Close()

	for i, r := range st.Results {
		if _, err := stmt.ExecContext(ctx,
			st.MarketID, i, r.EntryID, r.Pool, r.Score, money(r.Stake), money(r.Payout), money(r.Net), r.Rank,
		); err != nil {
			return fmt.Errorf("repository.SaveSettlement: insert result %q: %w", r.EntryID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository.SaveSettlement: commit: %w", err)
	}
	s.log.Debug(ctx, "settlement saved", logger.String("market_id", st.MarketID), logger.Int("results", len(st.Results)))
	return nil
}

// Settlement loads the persisted settlement of a market.
func (s *SQLiteStore) Settlement(ctx context.Context, marketID string) (model.Settlement, error) {
	defer observe("settlement", time.Now())

	st := model.Settlement{MarketID: marketID}
	var settledAt, pot string
	err := s.db.QueryRowContext(ctx,
		`SELECT settled_at, pot FROM settlements WHERE market_id = ?`, marketID).Scan(&settledAt, &pot)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Settlement{}, fmt.Errorf("repository.Settlement: %w", ErrNotFound)
	}
	if err != nil {
		return model.Settlement{}, fmt.Errorf("repository.Settlement: %w", err)
	}
	if st.SettledAt, err = parseTime(settledAt); err != nil {
		return model.Settlement{}, fmt.Errorf("repository.Settlement: %w", err)
	}
	if st.Pot, err = parseMoney(pot); err != nil {
		return model.Settlement{}, fmt.Errorf("repository.Settlement: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, pool, score, stake, payout, net, rank
		 FROM settlement_results WHERE market_id = ? ORDER BY position`, marketID)
	if err != nil {
		return model.Settlement{}, fmt.Errorf("repository.Settlement: results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r                model.PayoutResult
			stake, paid, net string
		)
		if err := rows.Scan(&r.EntryID, &r.Pool, &r.Score, &stake, &paid, &net, &r.Rank); err != nil {
			return model.Settlement{}, fmt.Errorf("repository.Settlement: scan: %w", err)
		}
		if r.Stake, err = parseMoney(stake); err != nil {
			return model.Settlement{}, fmt.Errorf("repository.Settlement: %w", err)
		}
		if r.Payout, err = parseMoney(paid); err != nil {
			return model.Settlement{}, fmt.Errorf("repository.Settlement: %w", err)
		}
		if r.Net, err = parseMoney(net); err != nil {
			return model.Settlement{}, fmt.Errorf("repository.Settlement: %w", err)
		}
		st.Results = append(st.Results, r)
	}
	return st, rows.Err()
}

// DeleteAllMarkets removes every market; horses, predictions and
// settlements cascade.
func (s *SQLiteStore) DeleteAllMarkets(ctx context.Context) (int64, error) {
	defer observe("delete_all_markets", time.Now())

	res, err := s.db.ExecContext(ctx, `DELETE FROM markets`)
	if err != nil {
		return 0, fmt.Errorf("repository.DeleteAllMarkets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repository.DeleteAllMarkets: %w", err)
	}
	s.log.Info(ctx, "markets deleted", logger.Int64("count", n))
	return n, nil
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository.%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("repository.%s: %w", op, ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func formatDate(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.Format(model.DateLayout)
}

func parseDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(model.DateLayout, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", s.String, err)
	}
	return &t, nil
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(moneyPlaces)
}

func parseMoney(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}
