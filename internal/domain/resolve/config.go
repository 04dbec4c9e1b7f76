package resolve

import (
	"fmt"
	"strings"

	"github.com/okian/lastcall/internal/domain/payout"
	"github.com/okian/lastcall/internal/domain/scoring"
)

// DefaultMinParticipants is the smallest market that pays out.
const DefaultMinParticipants = 3

// Mode selects whether a market is one pot or one pot per submarket.
type Mode int

// Allocation modes.
const (
	SinglePool Mode = iota
	PerSubmarket
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case SinglePool:
		return "single_pool"
	case PerSubmarket:
		return "per_submarket"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "single_pool" or "per_submarket".
func ParseMode(s string) (Mode, error) {
	switch normalize(s) {
	case "", "single", "singlepool":
		return SinglePool, nil
	case "persubmarket", "submarket":
		return PerSubmarket, nil
	default:
		return SinglePool, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
	}
}

// GateScope selects where the minimum-participant gate is evaluated.
type GateScope int

// Gate scopes.
const (
	GateGlobal GateScope = iota
	GatePerSubmarket
)

// String returns the configuration name of the scope.
func (g GateScope) String() string {
	switch g {
	case GateGlobal:
		return "global"
	case GatePerSubmarket:
		return "per_submarket"
	default:
		return fmt.Sprintf("gate_scope(%d)", int(g))
	}
}

// ParseGateScope parses "global" or "per_submarket".
func ParseGateScope(s string) (GateScope, error) {
	switch normalize(s) {
	case "", "global":
		return GateGlobal, nil
	case "persubmarket", "submarket":
		return GatePerSubmarket, nil
	default:
		return GateGlobal, fmt.Errorf("%w: unknown gate scope %q", ErrInvalidConfig, s)
	}
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}

// Config is the full engine configuration surface.
type Config struct {
	MinParticipants int
	Mode            Mode
	GateScope       GateScope
	Tiers           []float64
	WindowDays      int
	Alpha           float64
	StakeWeight     scoring.StakeWeight
}

// DefaultConfig returns the configuration the game ships with.
func DefaultConfig() Config {
	return Config{
		MinParticipants: DefaultMinParticipants,
		Mode:            SinglePool,
		GateScope:       GateGlobal,
		Tiers:           append([]float64(nil), payout.DefaultFractions...),
		WindowDays:      scoring.DefaultWindowDays,
		Alpha:           scoring.DefaultAlpha,
		StakeWeight:     scoring.Linear,
	}
}

// Validate checks every field. Scoring and schedule errors are reported
// wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	_, _, err := c.build()
	return err
}

func (c Config) build() (*scoring.Calculator, payout.Schedule, error) {
	if c.MinParticipants < 0 {
		return nil, payout.Schedule{}, fmt.Errorf("%w: min_participants must not be negative, got %d", ErrInvalidConfig, c.MinParticipants)
	}
	if c.Mode != SinglePool && c.Mode != PerSubmarket {
		return nil, payout.Schedule{}, fmt.Errorf("%w: unknown mode %d", ErrInvalidConfig, int(c.Mode))
	}
	if c.GateScope != GateGlobal && c.GateScope != GatePerSubmarket {
		return nil, payout.Schedule{}, fmt.Errorf("%w: unknown gate scope %d", ErrInvalidConfig, int(c.GateScope))
	}

	schedule, err := payout.NewSchedule(c.Tiers...)
	if err != nil {
		return nil, payout.Schedule{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	calc, err := scoring.NewCalculator(
		scoring.WithWindowDays(c.WindowDays),
		scoring.WithAlpha(c.Alpha),
		scoring.WithStakeWeight(c.StakeWeight),
	)
	if err != nil {
		return nil, payout.Schedule{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return calc, schedule, nil
}
