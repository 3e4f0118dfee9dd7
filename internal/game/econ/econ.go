// Package econ implements resource generation, conversion math, and the
// scoring/victory calculations. Everything is a pure function of catalog and
// player state except ApplyGeneration, which mutates the passed player.
package econ

import (
	"fmt"
	"math"

	"pixeldominion/internal/game/catalog"
	"pixeldominion/internal/game/state"
)

const (
	BaseGenerationRate = 1 // px per interval with no buildings

	DominanceThreshold = 0.25

	PxToExpCost  = 10
	PxToExpYield = 1
	ExpToPxCost  = 1
	ExpToPxYield = 8
)

// Rates sums the base rate and every owned building's on_tick contribution.
func Rates(cat *catalog.Catalog, p *state.Player) (px, exp, apx int) {
	px = BaseGenerationRate
	for _, b := range p.Buildings {
		t, err := cat.Building(b.Kind)
		if err != nil || t.Effects.OnTick == nil {
			continue
		}
		px += t.Effects.OnTick.PxRate
		exp += t.Effects.OnTick.ExpRate
		apx += t.Effects.OnTick.ApxRate
	}
	return px, exp, apx
}

// CalculateGeneration returns the resource deltas for the elapsed time.
// Ticks are atomic units: less than one full interval generates nothing.
func CalculateGeneration(cat *catalog.Catalog, p *state.Player, elapsedMs, intervalMs int64) state.Resources {
	if intervalMs <= 0 {
		return state.Resources{}
	}
	ticks := elapsedMs / intervalMs
	if ticks <= 0 {
		return state.Resources{}
	}
	px, exp, apx := Rates(cat, p)
	return state.Resources{
		Px:  int(ticks) * px,
		Exp: int(ticks) * exp,
		Apx: int(ticks) * apx,
	}
}

// ApplyGeneration credits whole elapsed ticks to the player. last_tick
// advances by exactly ticks*interval, never to "now", so fractional-tick
// credit is preserved. px clamps at storage capacity; exp/apx are uncapped.
// Returns the number of ticks applied.
func ApplyGeneration(cat *catalog.Catalog, p *state.Player, nowMs, intervalMs int64) int64 {
	if intervalMs <= 0 {
		return 0
	}
	elapsed := nowMs - p.LastTick
	ticks := elapsed / intervalMs
	if ticks <= 0 {
		return 0
	}
	gen := CalculateGeneration(cat, p, elapsed, intervalMs)
	p.Resources.Px = min(p.Resources.Px+gen.Px, p.StorageCapacity)
	p.Resources.Exp += gen.Exp
	p.Resources.Apx += gen.Apx
	pxRate, _, _ := Rates(cat, p)
	p.GenerationRate = pxRate
	p.LastTick += ticks * intervalMs
	return ticks
}

// Quote is the whole-unit outcome of a conversion request. Amount is
// denominated in the yield resource; fractional remainders are neither
// charged nor yielded.
type Quote struct {
	Units int
	Cost  int
	Yield int
}

func QuotePxToExp(amount int) Quote {
	units := amount / PxToExpYield
	return Quote{Units: units, Cost: units * PxToExpCost, Yield: units * PxToExpYield}
}

func QuoteExpToPx(amount int) Quote {
	units := amount / ExpToPxYield
	return Quote{Units: units, Cost: units * ExpToPxCost, Yield: units * ExpToPxYield}
}

// DominanceScore is the player's owned-tile fraction of the world.
func DominanceScore(p *state.Player, totalWorldTiles int) float64 {
	if totalWorldTiles == 0 {
		return 0
	}
	return float64(len(p.OwnedTerritories)) / float64(totalWorldTiles)
}

// TechAdvancement scores building diversity weighted by average tier.
func TechAdvancement(cat *catalog.Catalog, p *state.Player) float64 {
	if len(p.Buildings) == 0 {
		return 0
	}
	kinds := map[string]struct{}{}
	tierSum := 0
	for _, b := range p.Buildings {
		kinds[b.Kind] = struct{}{}
		if t, err := cat.Building(b.Kind); err == nil {
			tierSum += t.Prerequisites.TechTier
		}
	}
	avgTier := float64(tierSum) / float64(len(p.Buildings))
	return float64(len(kinds)) * avgTier * 0.1
}

// MilitaryStrength scores APX stockpile plus military buildings, capped at 100.
func MilitaryStrength(cat *catalog.Catalog, p *state.Player) float64 {
	strength := float64(p.Resources.Apx) * 0.1
	for _, b := range p.Buildings {
		t, err := cat.Building(b.Kind)
		if err != nil || t.Effects.OnTick == nil {
			continue
		}
		if t.Effects.OnTick.ApxRate > 0 {
			strength += 5
		}
	}
	return math.Min(strength, 100)
}

// VictoryResult reports a met victory condition.
type VictoryResult struct {
	HasWon bool   `json:"has_won"`
	Reason string `json:"reason,omitempty"`
}

func CheckVictory(p *state.Player, totalWorldTiles, activePlayers int) VictoryResult {
	score := DominanceScore(p, totalWorldTiles)
	if score >= DominanceThreshold {
		return VictoryResult{HasWon: true, Reason: fmt.Sprintf("territorial dominance: %.1f%% of world controlled", score*100)}
	}
	if activePlayers <= 1 {
		return VictoryResult{HasWon: true, Reason: "all opponents eliminated"}
	}
	return VictoryResult{}
}

// DefeatResult reports a met defeat condition.
type DefeatResult struct {
	IsDefeated bool   `json:"is_defeated"`
	Reason     string `json:"reason,omitempty"`
}

func CheckDefeat(cat *catalog.Catalog, p *state.Player, nowMs, gracePeriodMs int64) DefeatResult {
	if !p.HasBuilding("Base") {
		return DefeatResult{IsDefeated: true, Reason: "all bases destroyed"}
	}
	pxRate, _, _ := Rates(cat, p)
	if pxRate == 0 && nowMs-p.LastTick > gracePeriodMs {
		return DefeatResult{IsDefeated: true, Reason: "no resource generation for extended period"}
	}
	return DefeatResult{}
}

// Pressure carries the late-game cost/scarcity multipliers.
type Pressure struct {
	TerritoryExpansion float64
	BuildingDemand     float64
	ResourceScarcity   float64
}

func EconomicPressure(cat *catalog.Catalog, p *state.Player, worldPlayers []*state.Player) Pressure {
	expansion := math.Min(1+float64(len(p.OwnedTerritories))/1000*0.5, 2.0)
	demand := math.Min(1+float64(len(p.Buildings))/50*0.3, 1.8)

	total := 0
	for _, wp := range worldPlayers {
		r, _, _ := Rates(cat, wp)
		total += r
	}
	mine, _, _ := Rates(cat, p)
	ratio := float64(mine) / math.Max(float64(total), 1)
	scarcity := math.Max(0.5, 1-ratio*0.5)

	return Pressure{TerritoryExpansion: expansion, BuildingDemand: demand, ResourceScarcity: scarcity}
}

// Inflation grows logarithmically with world economy size, clamped to [1,2].
func Inflation(worldEconomySize float64) float64 {
	base := math.Log(worldEconomySize/1000) * 0.1
	return math.Max(1.0, math.Min(base, 2.0))
}

// TaxRate is progressive in the player's share of world wealth.
func TaxRate(p *state.Player, totalWorldWealth float64) float64 {
	wealth := float64(p.Resources.Px + p.Resources.Exp*ExpToPxYield)
	ratio := wealth / math.Max(totalWorldWealth, 1)
	switch {
	case ratio < 0.05:
		return 0.0
	case ratio < 0.15:
		return 0.05
	case ratio < 0.30:
		return 0.10
	default:
		return 0.15
	}
}
