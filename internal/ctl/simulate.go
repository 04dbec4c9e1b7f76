package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/lastcall/internal/adapters/http/api"
	"github.com/okian/lastcall/internal/domain/model"
	"github.com/okian/lastcall/internal/domain/types"
	"github.com/okian/lastcall/pkg/logger"
)

// SimConfig configures a simulation run against a live server.
type SimConfig struct {
	BaseURL     string
	AdminSecret string
	Players     int
	Horses      []string
	Workers     int
	Replays     int // request_ids resubmitted to exercise dedupe
	Timeout     time.Duration
	Seed        uint64
	MinWager    int
	MaxWager    int
	WindowDays  int
}

// SimReport summarises a simulation run.
type SimReport struct {
	MarketID   string
	Submitted  int
	Accepted   int
	Duplicates int
	Failed     int
	Pot        float64
	Paid       float64
	Settlement types.Settlement
	Duration   time.Duration
}

type simPrediction struct {
	input types.PredictionInput
	stake int
}

// Simulate creates a market on a running server, submits predictions from
// concurrent workers, resolves the market and checks the settlement: the pot
// equals accepted stakes, payouts sum to the pot, and ranks never decrease.
func Simulate(ctx context.Context, cfg SimConfig, log logger.Logger) (SimReport, error) {
	start := time.Now()
	client := newSimClient(cfg.BaseURL, cfg.Timeout)
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // simulation data

	if err := client.do(ctx, http.MethodGet, "/healthz", nil, nil, nil); err != nil {
		return SimReport{}, fmt.Errorf("%w: health check: %w", ErrSimulation, err)
	}

	var market types.Market
	create := map[string]any{
		"name":   "sim-" + uuid.NewString()[:8],
		"horses": cfg.Horses,
	}
	if err := client.do(ctx, http.MethodPost, "/markets", create, nil, &market); err != nil {
		return SimReport{}, fmt.Errorf("%w: create market: %w", ErrSimulation, err)
	}
	log.Info(ctx, "simulation market created",
		logger.String("market_id", market.ID),
		logger.Int("players", cfg.Players),
	)

	preds := generatePredictions(rng, market, cfg)
	report := submitPredictions(ctx, client, market.ID, preds, cfg)
	report.MarketID = market.ID
	log.Info(ctx, "predictions submitted",
		logger.Int("accepted", report.Accepted),
		logger.Int("duplicates", report.Duplicates),
		logger.Int("failed", report.Failed),
	)

	bookings := make([]types.Booking, len(market.Horses))
	for i, h := range market.Horses {
		bookings[i] = types.Booking{Horse: h.Name, Date: randomDate(rng, market.OpenedAt, cfg.WindowDays)}
	}
	var outcome types.ResolveOutcome
	headers := map[string]string{api.AdminSecretHeader: cfg.AdminSecret}
	err := client.do(ctx, http.MethodPost, "/markets/"+market.ID+"/resolve",
		map[string]any{"bookings": bookings}, headers, &outcome)
	if err != nil {
		return report, fmt.Errorf("%w: resolve: %w", ErrSimulation, err)
	}

	st, err := waitForSettlement(ctx, client, market.ID, cfg.Timeout)
	if err != nil {
		return report, fmt.Errorf("%w: settlement: %w", ErrSimulation, err)
	}
	report.Settlement = st
	report.Pot = st.Pot
	for _, r := range st.Rows {
		report.Paid += r.Payout
	}
	report.Duration = time.Since(start)

	if err := verifySettlement(report); err != nil {
		return report, fmt.Errorf("%w: %w", ErrSimulation, err)
	}
	log.Info(ctx, "simulation verified",
		logger.String("market_id", market.ID),
		logger.Float64("pot", report.Pot),
		logger.Duration("duration", report.Duration),
	)
	return report, nil
}

func generatePredictions(rng *rand.Rand, m types.Market, cfg SimConfig) []simPrediction {
	preds := make([]simPrediction, cfg.Players)
	for i := range preds {
		h := m.Horses[rng.IntN(len(m.Horses))]
		stake := cfg.MinWager + rng.IntN(cfg.MaxWager-cfg.MinWager+1)
		preds[i] = simPrediction{
			stake: stake,
			input: types.PredictionInput{
				HorseID:       h.ID,
				ParticipantID: fmt.Sprintf("player-%03d", i+1),
				PredictedDate: randomDate(rng, m.OpenedAt, cfg.WindowDays),
				Stake:         float64(stake),
				RequestID:     uuid.NewString(),
			},
		}
	}
	return preds
}

func randomDate(rng *rand.Rand, from time.Time, days int) string {
	return from.AddDate(0, 0, rng.IntN(days)).Format(model.DateLayout)
}

// submitPredictions fans preds out to cfg.Workers goroutines, then replays
// the first cfg.Replays request ids, which the server must report as
// duplicates.
func submitPredictions(ctx context.Context, client *simClient, marketID string, preds []simPrediction, cfg SimConfig) SimReport {
	var (
		mu     sync.Mutex
		report SimReport
		wg     sync.WaitGroup
	)
	jobs := make(chan simPrediction, cfg.Workers*2)

	submit := func(p simPrediction) {
		var receipt types.PredictionReceipt
		err := client.do(ctx, http.MethodPost, "/markets/"+marketID+"/predictions", p.input, nil, &receipt)
		mu.Lock()
		defer mu.Unlock()
		report.Submitted++
		switch {
		case err != nil:
			report.Failed++
		case receipt.Duplicate:
			report.Duplicates++
		default:
			report.Accepted++
		}
	}

	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				submit(p)
			}
		}()
	}
	for _, p := range preds {
		select {
		case jobs <- p:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	for i := 0; i < cfg.Replays && i < len(preds); i++ {
		submit(preds[i])
	}
	return report
}

func waitForSettlement(ctx context.Context, client *simClient, marketID string, timeout time.Duration) (types.Settlement, error) {
	deadline := time.Now().Add(timeout)
	for {
		var st types.Settlement
		err := client.do(ctx, http.MethodGet, "/markets/"+marketID+"/settlement", nil, nil, &st)
		if err == nil {
			return st, nil
		}
		if time.Now().After(deadline) {
			return types.Settlement{}, err
		}
		select {
		case <-ctx.Done():
			return types.Settlement{}, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func verifySettlement(r SimReport) error {
	if len(r.Settlement.Rows) != r.Accepted {
		return fmt.Errorf("settlement has %d rows, %d predictions accepted", len(r.Settlement.Rows), r.Accepted)
	}
	var staked float64
	prevRank := 0
	for _, row := range r.Settlement.Rows {
		staked += row.Stake
		if row.Rank < prevRank {
			return fmt.Errorf("rank %d listed after rank %d", row.Rank, prevRank)
		}
		prevRank = row.Rank
	}
	if math.Abs(staked-r.Pot) > 0.005 {
		return fmt.Errorf("pot %.2f differs from stakes %.2f", r.Pot, staked)
	}
	if r.Paid == 0 {
		// below the participant minimum nothing is paid
		return nil
	}
	// each payout is rounded to cents
	tolerance := 0.005 * float64(len(r.Settlement.Rows)+1)
	if math.Abs(r.Paid-r.Pot) > tolerance {
		return fmt.Errorf("payouts %.2f do not add up to pot %.2f", r.Paid, r.Pot)
	}
	return nil
}

// simClient is a small JSON client for the lastcall API.
type simClient struct {
	baseURL string
	client  *http.Client
}

func newSimClient(baseURL string, timeout time.Duration) *simClient {
	return &simClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// do sends body as JSON and decodes a 2xx response into out. Non-2xx
// responses become errors carrying the server's error code.
func (c *simClient) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var rd io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %d %s: %s", method, path, resp.StatusCode, e.Code, e.Message)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
