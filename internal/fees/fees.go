// Package fees computes exchange fees over flat, percentage and tiered
// schedules for maker/taker/deposit/withdrawal/network fee types.
package fees

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"execsim/internal/domain"
)

// Type is a fee category.
type Type string

const (
	Maker      Type = "maker"
	Taker      Type = "taker"
	Deposit    Type = "deposit"
	Withdrawal Type = "withdrawal"
	Network    Type = "network"
)

// Structure is a fee calculation structure.
type Structure string

const (
	Flat       Structure = "flat"       // fixed amount regardless of trade size
	Percentage Structure = "percentage" // trade value × rate
	Tiered     Structure = "tiered"     // rate selected by cumulative volume bracket
)

// Tier is one volume bracket: the rate applies from VolumeMin (inclusive) up
// to the next bracket's minimum (exclusive).
type Tier struct {
	VolumeMin decimal.Decimal `yaml:"volume_min"`
	Rate      decimal.Decimal `yaml:"rate"`
}

// Schedule maps fee type × structure to a rate, amount or bracket table.
// Combinations absent from the schedule are configuration errors when used.
type Schedule struct {
	Percentage map[Type]decimal.Decimal `yaml:"percentage"`
	Flat       map[Type]decimal.Decimal `yaml:"flat"`
	Tiers      map[Type][]Tier          `yaml:"tiers"`
}

// TierContext carries the caller's cumulative trading volume for bracket
// selection.
type TierContext struct {
	TradingVolume decimal.Decimal
}

// DefaultSchedule mirrors a typical spot exchange: 0.1%/0.2% maker/taker,
// OKX-style volume brackets.
func DefaultSchedule() Schedule {
	return Schedule{
		Percentage: map[Type]decimal.Decimal{
			Maker:      decimal.NewFromFloat(0.001),
			Taker:      decimal.NewFromFloat(0.002),
			Deposit:    decimal.Zero,
			Withdrawal: decimal.NewFromFloat(0.0005),
			Network:    decimal.Zero,
		},
		Flat: map[Type]decimal.Decimal{
			Maker:      decimal.NewFromInt(1),
			Taker:      decimal.NewFromInt(2),
			Deposit:    decimal.Zero,
			Withdrawal: decimal.NewFromInt(5),
			Network:    decimal.Zero,
		},
		Tiers: map[Type][]Tier{
			Maker: {
				{VolumeMin: decimal.Zero, Rate: decimal.NewFromFloat(0.001)},
				{VolumeMin: decimal.NewFromInt(50_000), Rate: decimal.NewFromFloat(0.0008)},
				{VolumeMin: decimal.NewFromInt(100_000), Rate: decimal.NewFromFloat(0.0006)},
				{VolumeMin: decimal.NewFromInt(500_000), Rate: decimal.NewFromFloat(0.0004)},
				{VolumeMin: decimal.NewFromInt(1_000_000), Rate: decimal.NewFromFloat(0.0002)},
			},
			Taker: {
				{VolumeMin: decimal.Zero, Rate: decimal.NewFromFloat(0.002)},
				{VolumeMin: decimal.NewFromInt(50_000), Rate: decimal.NewFromFloat(0.0018)},
				{VolumeMin: decimal.NewFromInt(100_000), Rate: decimal.NewFromFloat(0.0016)},
				{VolumeMin: decimal.NewFromInt(500_000), Rate: decimal.NewFromFloat(0.0014)},
				{VolumeMin: decimal.NewFromInt(1_000_000), Rate: decimal.NewFromFloat(0.0012)},
			},
		},
	}
}

// Calculator evaluates fees against one schedule. It is a pure function of
// its inputs and safe for concurrent use.
type Calculator struct {
	schedule Schedule
}

// NewCalculator validates the schedule and builds a calculator.
func NewCalculator(s Schedule) (*Calculator, error) {
	for t, rate := range s.Percentage {
		if rate.IsNegative() {
			return nil, &domain.ConfigError{Field: fmt.Sprintf("percentage.%s", t), Err: domain.ErrNonPositive}
		}
	}
	for t, amount := range s.Flat {
		if amount.IsNegative() {
			return nil, &domain.ConfigError{Field: fmt.Sprintf("flat.%s", t), Err: domain.ErrNonPositive}
		}
	}
	for t, tiers := range s.Tiers {
		if len(tiers) == 0 {
			return nil, &domain.ConfigError{Field: fmt.Sprintf("tiers.%s", t), Err: fmt.Errorf("empty bracket table")}
		}
		sort.SliceStable(tiers, func(i, j int) bool {
			if tiers[i].VolumeMin.Equal(tiers[j].VolumeMin) {
				// Equal thresholds break toward the lower fee.
				return tiers[i].Rate.LessThan(tiers[j].Rate)
			}
			return tiers[i].VolumeMin.LessThan(tiers[j].VolumeMin)
		})
		if !tiers[0].VolumeMin.IsZero() {
			return nil, &domain.ConfigError{Field: fmt.Sprintf("tiers.%s", t), Err: fmt.Errorf("lowest bracket must start at volume 0")}
		}
		for _, tier := range tiers {
			if tier.Rate.IsNegative() {
				return nil, &domain.ConfigError{Field: fmt.Sprintf("tiers.%s", t), Err: domain.ErrNonPositive}
			}
		}
		s.Tiers[t] = tiers
	}
	return &Calculator{schedule: s}, nil
}

// Calculate returns the fee for a trade of the given notional value.
// An unknown (fee type, structure) combination is a configuration error,
// never a silent default.
func (c *Calculator) Calculate(ft Type, fs Structure, tradeValue decimal.Decimal, tctx TierContext) (decimal.Decimal, error) {
	if tradeValue.IsNegative() {
		return decimal.Zero, &domain.ConfigError{Field: "trade_value", Err: domain.ErrNonPositive}
	}

	switch fs {
	case Flat:
		amount, ok := c.schedule.Flat[ft]
		if !ok {
			return decimal.Zero, c.unknown(ft, fs)
		}
		return amount, nil

	case Percentage:
		rate, ok := c.schedule.Percentage[ft]
		if !ok {
			return decimal.Zero, c.unknown(ft, fs)
		}
		return tradeValue.Mul(rate), nil

	case Tiered:
		tiers, ok := c.schedule.Tiers[ft]
		if !ok {
			return decimal.Zero, c.unknown(ft, fs)
		}
		return tradeValue.Mul(selectTier(tiers, tctx.TradingVolume)), nil

	default:
		return decimal.Zero, c.unknown(ft, fs)
	}
}

// selectTier picks the bracket whose half-open [min, nextMin) range contains
// the volume. Brackets are sorted ascending with equal thresholds ordered by
// rate, so at each distinct threshold the lower fee wins ties.
func selectTier(tiers []Tier, volume decimal.Decimal) decimal.Decimal {
	rate := tiers[0].Rate
	chosen := tiers[0].VolumeMin
	for _, tier := range tiers[1:] {
		if volume.LessThan(tier.VolumeMin) {
			break
		}
		if tier.VolumeMin.Equal(chosen) {
			continue // equal threshold: the lower-fee entry is already chosen
		}
		rate = tier.Rate
		chosen = tier.VolumeMin
	}
	return rate
}

func (c *Calculator) unknown(ft Type, fs Structure) error {
	return &domain.ConfigError{
		Field: fmt.Sprintf("%s/%s", ft, fs),
		Err:   domain.ErrUnknownFeeCombination,
	}
}
