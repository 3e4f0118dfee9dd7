package econ

import (
	"testing"

	"pixeldominion/internal/game/catalog"
	"pixeldominion/internal/game/grid"
	"pixeldominion/internal/game/state"
)

const intervalMs = int64(30_000)

func loadCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func playerWith(kinds ...string) *state.Player {
	p := state.NewPlayer("p1", "", 0)
	p.StorageCapacity = 200
	for i, k := range kinds {
		p.Buildings = append(p.Buildings, &state.Building{
			ID: k, Kind: k, OwnerID: "p1", Position: grid.TileCoord{LatIdx: i * 10},
		})
	}
	return p
}

func TestRates_BaseOnly(t *testing.T) {
	cat := loadCatalog(t)
	px, exp, apx := Rates(cat, playerWith())
	if px != 1 || exp != 0 || apx != 0 {
		t.Fatalf("rates = %d, %d, %d", px, exp, apx)
	}
}

func TestRates_BuildingsSum(t *testing.T) {
	cat := loadCatalog(t)
	p := playerWith("GenPx", "GenPx", "EXP_Mine", "AntiPxGen", "AdvGenPx")
	px, exp, apx := Rates(cat, p)
	if px != 1+1+1+3 {
		t.Errorf("px rate = %d", px)
	}
	if exp != 1 {
		t.Errorf("exp rate = %d", exp)
	}
	if apx != 1 {
		t.Errorf("apx rate = %d", apx)
	}
}

func TestCalculateGeneration_SubInterval(t *testing.T) {
	cat := loadCatalog(t)
	p := playerWith("GenPx")
	got := CalculateGeneration(cat, p, intervalMs-1, intervalMs)
	if got != (state.Resources{}) {
		t.Fatalf("sub-interval elapsed generated %+v", got)
	}
}

func TestApplyGeneration_AdvancesByWholeTicks(t *testing.T) {
	cat := loadCatalog(t)
	p := playerWith("GenPx")
	p.LastTick = 1000

	// 2.5 intervals elapsed: exactly 2 ticks credit, last_tick moves 2
	// intervals, the half interval stays pending.
	now := p.LastTick + intervalMs*2 + intervalMs/2
	ticks := ApplyGeneration(cat, p, now, intervalMs)
	if ticks != 2 {
		t.Fatalf("ticks = %d", ticks)
	}
	if p.Resources.Px != 4 { // rate 2 (base + GenPx) * 2 ticks
		t.Fatalf("px = %d", p.Resources.Px)
	}
	if p.LastTick != 1000+2*intervalMs {
		t.Fatalf("last_tick = %d", p.LastTick)
	}

	// The pending half interval completes after another half.
	ticks = ApplyGeneration(cat, p, now+intervalMs/2, intervalMs)
	if ticks != 1 || p.Resources.Px != 6 {
		t.Fatalf("ticks = %d, px = %d", ticks, p.Resources.Px)
	}
}

func TestApplyGeneration_ClampsAtStorage(t *testing.T) {
	cat := loadCatalog(t)
	p := playerWith("QuantumPxFactory")
	p.StorageCapacity = 20
	p.Resources.Px = 18
	ApplyGeneration(cat, p, intervalMs, intervalMs)
	if p.Resources.Px != 20 {
		t.Fatalf("px = %d, want clamped at 20", p.Resources.Px)
	}
	// exp/apx are not capped.
	p2 := playerWith("CrystalExpMine")
	p2.StorageCapacity = 0
	ApplyGeneration(cat, p2, intervalMs, intervalMs)
	if p2.Resources.Exp != 5 {
		t.Fatalf("exp = %d", p2.Resources.Exp)
	}
}

func TestQuotes(t *testing.T) {
	// px -> exp: amount denominated in exp, 10 px each.
	q := QuotePxToExp(3)
	if q.Units != 3 || q.Cost != 30 || q.Yield != 3 {
		t.Fatalf("QuotePxToExp(3) = %+v", q)
	}
	// exp -> px: amount denominated in px, whole units of 8.
	q = QuoteExpToPx(20)
	if q.Units != 2 || q.Cost != 2 || q.Yield != 16 {
		t.Fatalf("QuoteExpToPx(20) = %+v", q)
	}
	// Below one unit nothing converts.
	q = QuoteExpToPx(7)
	if q.Units != 0 || q.Cost != 0 || q.Yield != 0 {
		t.Fatalf("QuoteExpToPx(7) = %+v", q)
	}
}

func TestDominanceAndVictory(t *testing.T) {
	p := playerWith()
	for i := 0; i < 25; i++ {
		p.OwnedTerritories[grid.TileCoord{LatIdx: i}.ID()] = struct{}{}
	}
	score := DominanceScore(p, 100)
	if score != 0.25 {
		t.Fatalf("score = %v", score)
	}
	if v := CheckVictory(p, 100, 5); !v.HasWon {
		t.Fatalf("25%% dominance should win")
	}
	if v := CheckVictory(playerWith(), 100, 1); !v.HasWon {
		t.Fatalf("last player standing should win")
	}
	if v := CheckVictory(playerWith(), 100, 5); v.HasWon {
		t.Fatalf("fresh player should not win")
	}
}

func TestCheckDefeat(t *testing.T) {
	cat := loadCatalog(t)

	noBase := playerWith("GenPx")
	if d := CheckDefeat(cat, noBase, 0, 300_000); !d.IsDefeated {
		t.Fatalf("no base should defeat")
	}

	// Base exists and generation is positive: never defeated by stall.
	alive := playerWith("Base")
	alive.LastTick = 0
	if d := CheckDefeat(cat, alive, 10_000_000, 300_000); d.IsDefeated {
		t.Fatalf("generating player defeated: %s", d.Reason)
	}
}

func TestEconomicCurves(t *testing.T) {
	if r := Inflation(500); r != 1.0 {
		t.Errorf("small economy inflation = %v", r)
	}
	if r := Inflation(1e12); r != 2.0 {
		t.Errorf("huge economy inflation = %v", r)
	}

	p := playerWith()
	p.Resources.Px = 100
	if r := TaxRate(p, 1e9); r != 0 {
		t.Errorf("tiny share taxed at %v", r)
	}
	p.Resources.Px = 500
	if r := TaxRate(p, 1000); r != 0.15 {
		t.Errorf("dominant share taxed at %v", r)
	}
}

func TestMilitaryStrength_Capped(t *testing.T) {
	cat := loadCatalog(t)
	p := playerWith("AntiPxGen", "ChaosTower")
	p.Resources.Apx = 5000
	if s := MilitaryStrength(cat, p); s != 100 {
		t.Fatalf("strength = %v, want capped at 100", s)
	}
}
