package engine

import (
	"math"
	"sort"

	"options-backtester/internal/models"
)

// Relaxation stages, evaluated in a fixed order with early exit on the
// first stage that yields a match.
const (
	StageStrict   = "strict"
	StageNoSpread = "no_spread_filter"
	StageNoVolume = "no_volume_filter"
)

// SelectCriteria describes the contract a strategy leg is looking for.
// TargetDelta is an absolute value; put deltas are compared by magnitude.
type SelectCriteria struct {
	Type           models.OptionType
	TargetDelta    float64
	DeltaTolerance float64
	MinVolume      int64
	MaxSpreadPct   float64 // 0 disables
	MaxSpreadAbs   float64 // 0 disables
}

// Selection is a successful contract match and the relaxation stage that
// produced it.
type Selection struct {
	Quote models.ContractQuote
	Stage string
}

// ContractSelector finds the contract closest to a target delta under
// liquidity filters, relaxing the filter set in a fixed, documented order
// when nothing matches. "No contract found" is a normal skip condition,
// not an error.
type ContractSelector struct{}

// NewContractSelector creates a selector.
func NewContractSelector() *ContractSelector {
	return &ContractSelector{}
}

// stageFilter controls which liquidity filters a relaxation stage applies.
type stageFilter struct {
	name        string
	checkSpread bool
	checkVolume bool
}

var stages = []stageFilter{
	{name: StageStrict, checkSpread: true, checkVolume: true},
	{name: StageNoSpread, checkSpread: false, checkVolume: true},
	{name: StageNoVolume, checkSpread: false, checkVolume: false},
}

// Select returns the best-matching contract for the criteria, or ok=false
// when no stage yields a match.
func (s *ContractSelector) Select(snap *models.MarketSnapshot, crit SelectCriteria) (Selection, bool) {
	for _, stage := range stages {
		if best, ok := s.selectStage(snap, crit, stage); ok {
			return Selection{Quote: best, Stage: stage.name}, true
		}
	}
	return Selection{}, false
}

// selectStage runs one relaxation stage in isolation.
func (s *ContractSelector) selectStage(snap *models.MarketSnapshot, crit SelectCriteria, stage stageFilter) (models.ContractQuote, bool) {
	var candidates []models.ContractQuote

	for _, q := range snap.Contracts {
		if q.Type != crit.Type {
			continue
		}
		// A contract with a non-positive midpoint is unpriceable and is
		// excluded at every stage, as is a zero bid.
		if q.Bid <= 0 || q.Midpoint() <= 0 {
			continue
		}
		if crit.DeltaTolerance > 0 && deltaDistance(q, crit.TargetDelta) > crit.DeltaTolerance {
			continue
		}
		if stage.checkVolume && crit.MinVolume > 0 && q.Volume < crit.MinVolume {
			continue
		}
		if stage.checkSpread && !spreadOK(q, crit) {
			continue
		}
		candidates = append(candidates, q)
	}

	if len(candidates) == 0 {
		return models.ContractQuote{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di := deltaDistance(candidates[i], crit.TargetDelta)
		dj := deltaDistance(candidates[j], crit.TargetDelta)
		if di != dj {
			return di < dj
		}
		// Tie-breaks: higher open interest, then lower spread.
		if candidates[i].OpenInterest != candidates[j].OpenInterest {
			return candidates[i].OpenInterest > candidates[j].OpenInterest
		}
		return candidates[i].Spread() < candidates[j].Spread()
	})

	return candidates[0], true
}

func deltaDistance(q models.ContractQuote, target float64) float64 {
	return math.Abs(math.Abs(q.Greeks.Delta) - target)
}

func spreadOK(q models.ContractQuote, crit SelectCriteria) bool {
	if crit.MaxSpreadAbs > 0 && q.Spread() > crit.MaxSpreadAbs {
		return false
	}
	if crit.MaxSpreadPct > 0 && q.SpreadPercent() > crit.MaxSpreadPct {
		return false
	}
	return true
}
