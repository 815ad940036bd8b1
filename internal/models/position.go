package models

import "time"

// ContractMultiplier converts per-share option prices to currency per
// contract.
const ContractMultiplier = 100

// LegSide is the direction of one leg.
type LegSide string

const (
	SideLong  LegSide = "long"
	SideShort LegSide = "short"
)

// Sign returns +1 for long legs and -1 for short legs.
func (s LegSide) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// PositionStatus tracks a position's lifecycle.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Leg is one contract within a position, carrying its entry state and the
// latest mark.
type Leg struct {
	Type     OptionType
	Strike   float64
	Expiry   time.Time
	Side     LegSide
	Quantity int

	EntryPrice  float64
	EntryGreeks Greeks
	EntrySpread float64

	CurrentPrice  float64
	CurrentGreeks Greeks
	CurrentSpread float64
}

// Position is a multi-leg holding. Only the position manager mutates it.
type Position struct {
	ID       string
	Strategy string
	Status   PositionStatus
	Legs     []Leg

	EntryTime       time.Time
	EntryUnderlying float64

	// Credit is the net per-share premium collected at entry, short legs
	// positive.
	Credit float64

	// Greeks is the signed, quantity-weighted, contract-scaled aggregate
	// over all legs, refreshed on every mark.
	Greeks        Greeks
	UnrealizedPnL float64

	ExitTime       time.Time
	ExitPrice      float64
	ExitReason     string
	ExitUnderlying float64
}

// AggregateGreeks sums leg Greeks signed by side, weighted by quantity, and
// scaled by the contract multiplier. Current selects the marked Greeks;
// otherwise the entry Greeks are used.
func (p *Position) AggregateGreeks(current bool) Greeks {
	var agg Greeks
	for _, leg := range p.Legs {
		g := leg.EntryGreeks
		if current {
			g = leg.CurrentGreeks
		}
		w := leg.Side.Sign() * float64(leg.Quantity) * ContractMultiplier
		agg.Delta += g.Delta * w
		agg.Gamma += g.Gamma * w
		agg.Theta += g.Theta * w
		agg.Vega += g.Vega * w
		agg.Rho += g.Rho * w
	}
	return agg
}

// NetPrice returns the position's per-share premium with short legs
// contributing positively. At entry prices it is the credit collected;
// against current marks it is the cost to close.
func (p *Position) NetPrice(current bool) float64 {
	var net float64
	for _, leg := range p.Legs {
		price := leg.EntryPrice
		if current {
			price = leg.CurrentPrice
		}
		net -= leg.Side.Sign() * price * float64(leg.Quantity)
	}
	return net
}

// ShortStrikes returns the strikes of the short legs.
func (p *Position) ShortStrikes() []float64 {
	var strikes []float64
	for _, leg := range p.Legs {
		if leg.Side == SideShort {
			strikes = append(strikes, leg.Strike)
		}
	}
	return strikes
}
