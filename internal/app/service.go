// Package service wires the store, the resolve engine and the settlement
// pipeline, and implements the operations used by the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/lastcall/internal/adapters/mq/queue"
	"github.com/okian/lastcall/internal/adapters/mq/worker"
	"github.com/okian/lastcall/internal/adapters/repository"
	"github.com/okian/lastcall/internal/domain/dedupe"
	"github.com/okian/lastcall/internal/domain/model"
	"github.com/okian/lastcall/internal/domain/resolve"
	"github.com/okian/lastcall/internal/domain/types"
	"github.com/okian/lastcall/pkg/logger"
	"github.com/okian/lastcall/pkg/metrics"
)

// Defaults.
const (
	DefaultMinWager     = 10
	DefaultMaxWager     = 100
	defaultDSN          = "lastcall.db"
	defaultQueueSize    = 1024
	defaultWorkers      = 4
	stopDrainTimeout    = 30 * time.Second
	settleKeyPrefix     = "settle:"
	predictionKeyPrefix = "prediction:"
)

// Service implements the market operations.
type Service struct {
	mu sync.RWMutex

	store     repository.Store
	ownsStore bool
	engine    *resolve.Engine
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	pool      *worker.Pool

	dsn         string
	engineCfg   resolve.Config
	workerCount int
	queueSize   int
	dedupeSize  int
	minWager    int
	maxWager    int
	now         func() time.Time

	started bool
	logger  logger.Logger
}

// New validates the configuration and builds a Service. Call Start before use.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		ownsStore:   true,
		dsn:         defaultDSN,
		engineCfg:   resolve.DefaultConfig(),
		workerCount: defaultWorkers,
		queueSize:   defaultQueueSize,
		dedupeSize:  dedupe.DefaultMaxSize,
		minWager:    DefaultMinWager,
		maxWager:    DefaultMaxWager,
		now:         time.Now,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.minWager <= 0 || s.maxWager < s.minWager {
		return nil, fmt.Errorf("service.New: wager range [%d, %d]: %w", s.minWager, s.maxWager, ErrInvalidInput)
	}
	engine, err := resolve.New(s.engineCfg)
	if err != nil {
		return nil, fmt.Errorf("service.New: %w", err)
	}
	s.engine = engine
	s.engineCfg = engine.Config()
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s, nil
}

// Start opens the store and starts the settlement workers. Resolved markets
// that have no saved settlement are queued again.
func (s *Service) Start(ctx context.Context) error {
	fresh, err := s.start(ctx)
	if err != nil || !fresh {
		return err
	}
	s.requeueUnsettled(ctx)
	return nil
}

func (s *Service) start(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return false, nil
	}
	s.logger.Info(ctx, "starting lastcall service...")

	if s.store == nil {
		store, err := repository.NewSQLiteStore(s.dsn, repository.WithLogger(s.logger.Named("store")))
		if err != nil {
			return false, fmt.Errorf("service.Start: %w", err)
		}
		s.store = store
		s.ownsStore = true
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s, s.store,
		worker.WithLogger(s.logger),
		worker.WithFailureHandler(func(ctx context.Context, job worker.Job, _ error) {
			s.deduper.Unrecord(ctx, settleKeyPrefix+job.MarketID)
		}),
	)
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "lastcall service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.String("mode", s.engineCfg.Mode.String()),
		logger.String("gate_scope", s.engineCfg.GateScope.String()),
	)
	s.refreshOpenMarkets(ctx, s.store)
	return true, nil
}

// requeueUnsettled requests a settlement for every resolved market without
// one, covering jobs lost with the previous queue or failed by a worker.
func (s *Service) requeueUnsettled(ctx context.Context) {
	store, err := s.storeOrErr()
	if err != nil {
		return
	}
	markets, err := store.ListMarkets(ctx)
	if err != nil {
		s.logger.Error(ctx, "list markets for settlement recovery", logger.Error(err))
		return
	}
	for _, m := range markets {
		if m.Status != model.StatusResolved {
			continue
		}
		_, err := store.Settlement(ctx, m.ID)
		if !errors.Is(err, model.ErrNotFound) {
			continue
		}
		// no worker holds the job before Start returns
		s.deduper.Unrecord(ctx, settleKeyPrefix+m.ID)
		if _, err := s.requestSettlement(ctx, m.ID); err != nil {
			s.logger.Error(ctx, "requeue settlement",
				logger.String("market_id", m.ID),
				logger.Error(err),
			)
			continue
		}
		s.logger.Info(ctx, "settlement requeued", logger.String("market_id", m.ID))
	}
}

// Stop drains pending settlements and closes the store if the service
// opened it.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.RLock()
	started, pool := s.started, s.pool
	s.mu.RUnlock()
	if !started {
		return nil
	}
	s.logger.Info(ctx, "stopping lastcall service...")

	// workers still need the store while draining
	drainCtx, cancel := context.WithTimeout(ctx, stopDrainTimeout)
	defer cancel()

	var errs []error
	if err := pool.Shutdown(drainCtx); err != nil {
		errs = append(errs, fmt.Errorf("drain workers: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.Join(errs...)
	}
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		s.store = nil
	}

	s.started = false
	s.logger.Info(ctx, "lastcall service stopped")
	return errors.Join(errs...)
}

func (s *Service) storeOrErr() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// EngineConfig returns the active engine configuration.
func (s *Service) EngineConfig() resolve.Config {
	return s.engine.Config()
}

// CreateMarket opens a new market with the given horses.
func (s *Service) CreateMarket(ctx context.Context, name string, horseNames []string) (types.Market, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return types.Market{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return types.Market{}, fmt.Errorf("market name is required: %w", ErrInvalidInput)
	}
	horses, err := newHorses(horseNames)
	if err != nil {
		return types.Market{}, err
	}

	m := model.Market{
		ID:         uuid.NewString(),
		Name:       name,
		Status:     model.StatusOpen,
		OpenedAt:   s.now().UTC(),
		WindowDays: s.engineCfg.WindowDays,
	}
	for i := range horses {
		horses[i].MarketID = m.ID
	}

	if err := store.CreateMarket(ctx, m, horses); err != nil {
		return types.Market{}, err
	}
	s.logger.Info(ctx, "market created",
		logger.String("market_id", m.ID),
		logger.String("name", m.Name),
		logger.Int("horses", len(horses)),
	)
	s.refreshOpenMarkets(ctx, store)
	return marketView(m, horses, 0), nil
}

func newHorses(names []string) ([]model.Horse, error) {
	seen := make(map[string]struct{}, len(names))
	horses := make([]model.Horse, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("horse %q listed twice: %w", n, ErrInvalidInput)
		}
		seen[key] = struct{}{}
		horses = append(horses, model.Horse{ID: uuid.NewString(), Name: n})
	}
	if len(horses) == 0 {
		return nil, fmt.Errorf("at least one horse is required: %w", ErrInvalidInput)
	}
	return horses, nil
}

// GetMarket returns a market with its horses.
func (s *Service) GetMarket(ctx context.Context, marketID string) (types.Market, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return types.Market{}, err
	}
	m, err := store.Market(ctx, marketID)
	if err != nil {
		return types.Market{}, err
	}
	return s.marketWithHorses(ctx, store, m)
}

// EarliestMarket returns the first market ever created.
func (s *Service) EarliestMarket(ctx context.Context) (types.Market, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return types.Market{}, err
	}
	m, err := store.EarliestMarket(ctx)
	if err != nil {
		return types.Market{}, err
	}
	return s.marketWithHorses(ctx, store, m)
}

// ListMarkets returns every market.
func (s *Service) ListMarkets(ctx context.Context) ([]types.Market, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return nil, err
	}
	markets, err := store.ListMarkets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Market, 0, len(markets))
	for _, m := range markets {
		v, err := s.marketWithHorses(ctx, store, m)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) marketWithHorses(ctx context.Context, store repository.Store, m model.Market) (types.Market, error) {
	horses, err := store.Horses(ctx, m.ID)
	if err != nil {
		return types.Market{}, err
	}
	n, err := store.CountPredictions(ctx, m.ID)
	if err != nil {
		return types.Market{}, err
	}
	return marketView(m, horses, n), nil
}

// SubmitPrediction validates and stores a wager. A repeated request id for
// the same market is acknowledged as a duplicate without storing anything.
func (s *Service) SubmitPrediction(ctx context.Context, in types.PredictionInput) (types.PredictionReceipt, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return types.PredictionReceipt{}, err
	}

	receipt := types.PredictionReceipt{MarketID: in.MarketID}
	key := ""
	if in.RequestID != "" {
		key = predictionKeyPrefix + in.MarketID + ":" + in.RequestID
		if s.deduper.SeenAndRecord(ctx, key) {
			metrics.RecordPredictionDuplicate()
			receipt.Duplicate = true
			return receipt, nil
		}
	}

	p, err := s.validatePrediction(ctx, store, in)
	if err == nil {
		err = store.AddPrediction(ctx, p)
	}
	if err != nil {
		if key != "" {
			s.deduper.Unrecord(ctx, key)
		}
		metrics.RecordPredictionRejected(rejectReason(err))
		return types.PredictionReceipt{}, err
	}

	metrics.RecordPredictionAccepted()
	s.logger.Debug(ctx, "prediction stored",
		logger.String("market_id", p.MarketID),
		logger.String("horse_id", p.HorseID),
		logger.String("participant_id", p.ParticipantID),
		logger.Float64("stake", p.Stake),
	)
	receipt.ID = p.ID
	receipt.Accepted = p.SubmittedAt
	return receipt, nil
}

func (s *Service) validatePrediction(ctx context.Context, store repository.Store, in types.PredictionInput) (model.Prediction, error) {
	participant := strings.TrimSpace(in.ParticipantID)
	if participant == "" {
		return model.Prediction{}, fmt.Errorf("participant_id is required: %w", ErrInvalidInput)
	}
	predicted, err := time.Parse(model.DateLayout, in.PredictedDate)
	if err != nil {
		return model.Prediction{}, fmt.Errorf("predicted_date must be YYYY-MM-DD: %w", ErrInvalidInput)
	}
	if in.Stake != math.Trunc(in.Stake) || in.Stake < float64(s.minWager) || in.Stake > float64(s.maxWager) {
		return model.Prediction{}, fmt.Errorf("stake must be a whole number between %d and %d: %w",
			s.minWager, s.maxWager, model.ErrInvalidWager)
	}

	m, err := store.Market(ctx, in.MarketID)
	if err != nil {
		return model.Prediction{}, err
	}
	now := s.now().UTC()
	if m.Status != model.StatusOpen {
		return model.Prediction{}, model.ErrMarketClosed
	}
	if now.After(m.WindowClosesAt()) {
		return model.Prediction{}, model.ErrWindowClosed
	}

	horses, err := store.Horses(ctx, m.ID)
	if err != nil {
		return model.Prediction{}, err
	}
	horse, ok := findHorse(horses, in.HorseID)
	if !ok {
		return model.Prediction{}, model.ErrUnknownHorse
	}
	if horse.ActualDate != nil {
		return model.Prediction{}, model.ErrHorseResolved
	}

	return model.Prediction{
		ID:            uuid.NewString(),
		MarketID:      m.ID,
		HorseID:       horse.ID,
		ParticipantID: participant,
		PredictedDate: predicted,
		Stake:         in.Stake,
		SubmittedAt:   now,
	}, nil
}

// findHorse matches by id, then by case-insensitive name.
func findHorse(horses []model.Horse, ref string) (model.Horse, bool) {
	ref = strings.TrimSpace(ref)
	for _, h := range horses {
		if h.ID == ref {
			return h, true
		}
	}
	for _, h := range horses {
		if strings.EqualFold(h.Name, ref) {
			return h, true
		}
	}
	return model.Horse{}, false
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, model.ErrInvalidWager):
		return "invalid_wager"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrMarketClosed):
		return "market_closed"
	case errors.Is(err, model.ErrWindowClosed):
		return "window_closed"
	case errors.Is(err, model.ErrUnknownHorse):
		return "unknown_horse"
	case errors.Is(err, model.ErrHorseResolved):
		return "horse_resolved"
	default:
		return "internal"
	}
}

// Resolve records actual booking dates. Once every horse has a date the
// market is marked resolved and a settlement job is queued; if the queue is
// full the market is settled inline. With requireQuorum the call is refused
// while the market has fewer predictions than the engine minimum.
//
// On a resolved market whose settlement was never saved, the stored dates are
// kept, bookings are ignored and the settlement is requested again. A settled
// market returns ErrMarketClosed.
func (s *Service) Resolve(ctx context.Context, marketID string, bookings []types.Booking, requireQuorum bool) (types.ResolveOutcome, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return types.ResolveOutcome{}, err
	}
	if len(bookings) == 0 {
		return types.ResolveOutcome{}, fmt.Errorf("at least one booking is required: %w", ErrInvalidInput)
	}

	m, err := store.Market(ctx, marketID)
	if err != nil {
		return types.ResolveOutcome{}, err
	}
	if m.Status == model.StatusResolved {
		return s.resettle(ctx, store, m.ID)
	}
	if m.Status != model.StatusOpen {
		return types.ResolveOutcome{}, model.ErrMarketClosed
	}

	if requireQuorum {
		n, err := store.CountPredictions(ctx, m.ID)
		if err != nil {
			return types.ResolveOutcome{}, err
		}
		if n < s.engineCfg.MinParticipants {
			return types.ResolveOutcome{}, fmt.Errorf("minimum %d players required, have %d: %w",
				s.engineCfg.MinParticipants, n, model.ErrNotEnoughPlayers)
		}
	}

	horses, err := store.Horses(ctx, m.ID)
	if err != nil {
		return types.ResolveOutcome{}, err
	}

	// validate everything before writing anything
	type update struct {
		idx  int
		date time.Time
	}
	updates := make([]update, 0, len(bookings))
	for _, b := range bookings {
		date, err := time.Parse(model.DateLayout, strings.TrimSpace(b.Date))
		if err != nil {
			return types.ResolveOutcome{}, fmt.Errorf("invalid date %q for %q: %w", b.Date, b.Horse, ErrInvalidInput)
		}
		h, ok := findHorse(horses, b.Horse)
		if !ok {
			return types.ResolveOutcome{}, fmt.Errorf("horse %q (known: %s): %w", b.Horse, horseNames(horses), model.ErrUnknownHorse)
		}
		for i := range horses {
			if horses[i].ID == h.ID {
				updates = append(updates, update{idx: i, date: date})
			}
		}
	}

	out := types.ResolveOutcome{MarketID: m.ID}
	for _, u := range updates {
		h := &horses[u.idx]
		if err := store.SetActualDate(ctx, h.ID, u.date); err != nil {
			return types.ResolveOutcome{}, err
		}
		d := u.date
		h.ActualDate = &d
		out.Updated = append(out.Updated, h.Name)
	}

	for _, h := range horses {
		if h.ActualDate == nil {
			out.Missing = append(out.Missing, h.Name)
		}
	}
	if len(out.Missing) > 0 {
		s.logger.Info(ctx, "booking dates recorded, market still open",
			logger.String("market_id", m.ID),
			logger.Any("missing", out.Missing),
		)
		return out, nil
	}

	if err := store.SetMarketStatus(ctx, m.ID, model.StatusResolved); err != nil {
		return types.ResolveOutcome{}, err
	}
	out.Resolved = true
	s.refreshOpenMarkets(ctx, store)
	s.logger.Info(ctx, "market resolved", logger.String("market_id", m.ID))

	enqueued, err := s.requestSettlement(ctx, m.ID)
	if err != nil {
		return out, err
	}
	out.Enqueued = enqueued
	return out, nil
}

func (s *Service) resettle(ctx context.Context, store repository.Store, marketID string) (types.ResolveOutcome, error) {
	_, err := store.Settlement(ctx, marketID)
	switch {
	case err == nil:
		return types.ResolveOutcome{}, model.ErrMarketClosed
	case !errors.Is(err, model.ErrNotFound):
		return types.ResolveOutcome{}, err
	}

	s.logger.Warn(ctx, "resolved market has no settlement, requesting it again",
		logger.String("market_id", marketID))
	out := types.ResolveOutcome{MarketID: marketID, Resolved: true}
	enqueued, err := s.requestSettlement(ctx, marketID)
	out.Enqueued = enqueued
	return out, err
}

func horseNames(horses []model.Horse) string {
	names := make([]string, len(horses))
	for i, h := range horses {
		names[i] = h.Name
	}
	return strings.Join(names, ", ")
}

// requestSettlement queues a settlement once per market. It falls back to an
// inline settlement when the queue refuses the job.
func (s *Service) requestSettlement(ctx context.Context, marketID string) (bool, error) {
	key := settleKeyPrefix + marketID
	if s.deduper.SeenAndRecord(ctx, key) {
		return false, nil
	}

	err := s.queue.Enqueue(ctx, model.SettlementJob{MarketID: marketID, RequestedAt: s.now()})
	if err == nil {
		return true, nil
	}

	s.logger.Warn(ctx, "settlement not queued, settling inline",
		logger.String("market_id", marketID),
		logger.Error(err),
	)
	if serr := s.SettleMarket(ctx, marketID); serr != nil {
		s.deduper.Unrecord(ctx, key)
		return false, fmt.Errorf("%w: %w", ErrBackpressure, serr)
	}
	return false, nil
}

// Settle implements worker.Settler: it validates the market's current
// snapshot and runs the engine over it.
func (s *Service) Settle(ctx context.Context, marketID string) (model.Settlement, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return model.Settlement{}, err
	}
	snap, err := loadSnapshot(ctx, store, marketID, s.engineCfg.Mode)
	if err != nil {
		return model.Settlement{}, err
	}
	if err := resolve.ValidateEntries(snap.entries); err != nil {
		return model.Settlement{}, err
	}
	out := s.run(ctx, snap)
	return model.Settlement{
		MarketID:  marketID,
		SettledAt: s.now().UTC(),
		Pot:       out.Pot,
		Results:   out.Results,
	}, nil
}

// SettleMarket settles and persists synchronously.
func (s *Service) SettleMarket(ctx context.Context, marketID string) error {
	store, err := s.storeOrErr()
	if err != nil {
		return err
	}
	st, err := s.Settle(ctx, marketID)
	if err != nil {
		return err
	}
	if err := store.SaveSettlement(ctx, st); err != nil {
		return err
	}
	metrics.RecordSettlement()
	return nil
}

func (s *Service) run(ctx context.Context, snap snapshot) resolve.Outcome {
	start := time.Now()
	out := s.engine.Resolve(snap.entries, snap.market.OpenedAt)
	took := time.Since(start)

	metrics.RecordResolution(s.engineCfg.Mode.String(), len(snap.entries), out.FrozenPools, float64(took.Microseconds())/1000)
	s.logger.Debug(ctx, "engine run",
		logger.String("market_id", snap.market.ID),
		logger.Int("entries", len(snap.entries)),
		logger.Int("pools", out.Pools),
		logger.Int("frozen_pools", out.FrozenPools),
		logger.Float64("pot", out.Pot),
		logger.Duration("took", took),
	)
	return out
}

// Standings runs the engine over the current snapshot and returns the
// ranked rows.
func (s *Service) Standings(ctx context.Context, marketID string) (types.Standings, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return types.Standings{}, err
	}
	snap, err := loadSnapshot(ctx, store, marketID, s.engineCfg.Mode)
	if err != nil {
		return types.Standings{}, err
	}
	out := s.run(ctx, snap)

	return types.Standings{
		MarketID:    snap.market.ID,
		Status:      string(snap.market.Status),
		Mode:        s.engineCfg.Mode.String(),
		Pot:         out.Pot,
		FrozenPools: out.FrozenPools,
		Rows:        snap.rows(resolve.Standings(out.Results)),
	}, nil
}

// Settlement returns the persisted settlement in display order.
func (s *Service) Settlement(ctx context.Context, marketID string) (types.Settlement, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return types.Settlement{}, err
	}
	st, err := store.Settlement(ctx, marketID)
	if err != nil {
		return types.Settlement{}, err
	}
	snap, err := loadSnapshot(ctx, store, marketID, s.engineCfg.Mode)
	if err != nil {
		return types.Settlement{}, err
	}
	return types.Settlement{
		MarketID:  st.MarketID,
		SettledAt: st.SettledAt,
		Pot:       st.Pot,
		Rows:      snap.rows(resolve.Standings(st.Results)),
	}, nil
}

// Reset deletes every market.
func (s *Service) Reset(ctx context.Context) (int64, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return 0, err
	}
	n, err := store.DeleteAllMarkets(ctx)
	if err != nil {
		return 0, err
	}
	s.refreshOpenMarkets(ctx, store)
	return n, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":          s.started,
		"workerCount":      s.workerCount,
		"queueSize":        s.queueSize,
		"dedupeSize":       s.dedupeSize,
		"dedupeEntries":    s.deduper.Size(),
		"mode":             s.engineCfg.Mode.String(),
		"gateScope":        s.engineCfg.GateScope.String(),
		"minParticipants":  s.engineCfg.MinParticipants,
		"tiers":            s.engineCfg.Tiers,
		"stakeWeight":      s.engineCfg.StakeWeight.String(),
		"windowDays":       s.engineCfg.WindowDays,
		"alpha":            s.engineCfg.Alpha,
		"minWager":         s.minWager,
		"maxWager":         s.maxWager,
		"settlementsQueue": 0,
	}
	if s.started {
		stats["settlementsQueue"] = s.queue.Len()
	}
	return stats
}

func (s *Service) refreshOpenMarkets(ctx context.Context, store repository.Store) {
	markets, err := store.ListMarkets(ctx)
	if err != nil {
		s.logger.Warn(ctx, "could not count open markets", logger.Error(err))
		return
	}
	open := 0
	for _, m := range markets {
		if m.Status == model.StatusOpen {
			open++
		}
	}
	metrics.UpdateOpenMarkets(open)
}
