package rules

import (
	"errors"
	"testing"

	"pixeldominion/internal/game/catalog"
	"pixeldominion/internal/game/grid"
	"pixeldominion/internal/game/state"
	"pixeldominion/internal/game/tuning"
	"pixeldominion/internal/protocol"
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) now() int64      { return c.ms }
func (c *fakeClock) advance(d int64) { c.ms += d }

type fakeOcc map[grid.TileID]struct{}

func (o fakeOcc) Occupied(id grid.TileID) bool {
	_, ok := o[id]
	return ok
}

func newEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	cat, err := catalog.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	clock := &fakeClock{ms: 1_000_000}
	return NewEngine(cat, tuning.Defaults(), clock.now), clock
}

func freshPlayer(px int) *state.Player {
	p := state.NewPlayer("p1", "", 0)
	p.Resources.Px = px
	p.StorageCapacity = 200
	for _, c := range []string{"#000000", "#ffffff", "#ef4444", "#22c55e", "#3b82f6", "#eab308", "#06b6d4", "#d946ef"} {
		p.Palette[c] = struct{}{}
	}
	return p
}

func code(t *testing.T, err error) string {
	t.Helper()
	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("not a Violation: %v", err)
	}
	return v.Code
}

func tiles(coords ...grid.TileCoord) []grid.TileCoord { return coords }

func TestRateLimiter_FixedWindow(t *testing.T) {
	clock := &fakeClock{ms: 0}
	r := NewRateLimiter(clock.now)

	for i := 0; i < 3; i++ {
		if !r.Allow("k", 3, 60_000) {
			t.Fatalf("call %d rejected", i)
		}
	}
	if r.Allow("k", 3, 60_000) {
		t.Fatalf("over-limit call accepted")
	}
	if got := r.Remaining("k", 3); got != 0 {
		t.Fatalf("remaining = %d", got)
	}

	// The window resets at its deadline, not gradually.
	clock.advance(59_999)
	if r.Allow("k", 3, 60_000) {
		t.Fatalf("accepted just before reset")
	}
	clock.advance(1)
	if !r.Allow("k", 3, 60_000) {
		t.Fatalf("rejected at reset time")
	}
	if got := r.Remaining("k", 3); got != 2 {
		t.Fatalf("remaining after reset = %d", got)
	}
}

func TestCooldown_BoundarySemantics(t *testing.T) {
	clock := &fakeClock{ms: 0}
	c := NewCooldownStore(clock.now)
	c.Set("k", 10_000)

	clock.advance(9_999)
	if !c.OnCooldown("k") {
		t.Fatalf("1ms before deadline should still cool")
	}
	clock.advance(1)
	if !c.OnCooldown("k") {
		t.Fatalf("at the deadline should still cool")
	}
	clock.advance(1)
	if c.OnCooldown("k") {
		t.Fatalf("1ms after deadline should be free")
	}
	// Expired entries are gone after the query.
	if got := c.RemainingMs("k"); got != 0 {
		t.Fatalf("remaining = %d", got)
	}
}

func TestIsGrayscale(t *testing.T) {
	for _, ok := range []string{"#000000", "#ffffff", "#7f7f7f", "#AAAAAA"} {
		if !IsGrayscale(ok) {
			t.Errorf("%s should be grayscale", ok)
		}
	}
	for _, bad := range []string{"#ff0000", "#7f7f80", "808080", "#80808", "", "#gggggg"} {
		if IsGrayscale(bad) {
			t.Errorf("%s should not be grayscale", bad)
		}
	}
}

func TestTerritoryDraw(t *testing.T) {
	e, _ := newEngine(t)
	p := freshPlayer(30)
	occ := fakeOcc{}

	cost, err := e.ValidateTerritoryDraw(p, tiles(grid.TileCoord{LatIdx: 1}, grid.TileCoord{LatIdx: 2}), "#808080", occ)
	if err != nil || cost != 2 {
		t.Fatalf("cost = %d, err = %v", cost, err)
	}

	_, err = e.ValidateTerritoryDraw(p, tiles(grid.TileCoord{LatIdx: 3}), "#ff0000", occ)
	if code(t, err) != protocol.CodeNotGrayscale {
		t.Fatalf("err = %v", err)
	}

	occ[grid.TileCoord{LatIdx: 4}.ID()] = struct{}{}
	_, err = e.ValidateTerritoryDraw(p, tiles(grid.TileCoord{LatIdx: 4}), "#808080", occ)
	if code(t, err) != protocol.CodeOccupied {
		t.Fatalf("err = %v", err)
	}

	broke := freshPlayer(1)
	_, err = e.ValidateTerritoryDraw(broke, tiles(grid.TileCoord{LatIdx: 5}, grid.TileCoord{LatIdx: 6}), "#808080", occ)
	if code(t, err) != protocol.CodeNoResource {
		t.Fatalf("err = %v", err)
	}

	_, err = e.ValidateTerritoryDraw(p, nil, "#808080", occ)
	if code(t, err) != protocol.CodeBadRequest {
		t.Fatalf("err = %v", err)
	}
}

func TestTerritoryDraw_RateLimit(t *testing.T) {
	e, clock := newEngine(t)
	p := freshPlayer(1_000_000)
	occ := fakeOcc{}
	cfg := tuning.Defaults()

	// Burn the whole per-region minute budget with distinct tiles.
	for i := 0; i < cfg.RateLimits.TerritoryPerRegionPerMinute; i++ {
		if _, err := e.ValidateTerritoryDraw(p, tiles(grid.TileCoord{LatIdx: i}), "#808080", occ); err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
	}
	_, err := e.ValidateTerritoryDraw(p, tiles(grid.TileCoord{LatIdx: 99}), "#808080", occ)
	if code(t, err) != protocol.CodeRateLimit {
		t.Fatalf("err = %v", err)
	}

	// Another region has its own budget.
	if _, err := e.ValidateTerritoryDraw(p, tiles(grid.TileCoord{LatIdx: 150}), "#808080", occ); err != nil {
		t.Fatalf("other region: %v", err)
	}

	clock.advance(60_000)
	if _, err := e.ValidateTerritoryDraw(p, tiles(grid.TileCoord{LatIdx: 50}), "#808080", occ); err != nil {
		t.Fatalf("after window reset: %v", err)
	}
}

func TestBuildingPlacement_Prereqs(t *testing.T) {
	e, _ := newEngine(t)
	occ := fakeOcc{}

	// A fresh player (30 px) cannot afford a Base (36 px).
	p := freshPlayer(30)
	_, _, err := e.ValidateBuildingPlacement(p, "Base", grid.TileCoord{}, occ, nil)
	if code(t, err) != protocol.CodeNoResource {
		t.Fatalf("err = %v", err)
	}

	// GenPx is affordable at 30 px but requires a Base first.
	_, _, err = e.ValidateBuildingPlacement(p, "GenPx", grid.TileCoord{}, occ, nil)
	if code(t, err) != protocol.CodePrereq {
		t.Fatalf("err = %v", err)
	}

	// With funds, the chain works: Base, then GenPx.
	rich := freshPlayer(1000)
	tmpl, footprint, err := e.ValidateBuildingPlacement(rich, "Base", grid.TileCoord{}, occ, nil)
	if err != nil {
		t.Fatalf("Base: %v", err)
	}
	if tmpl.CostPx != 36 || len(footprint) != 36 {
		t.Fatalf("Base tmpl = %+v, footprint %d", tmpl, len(footprint))
	}
	rich.Buildings = append(rich.Buildings, &state.Building{ID: "b1", Kind: "Base", OwnerID: rich.ID})
	if _, _, err := e.ValidateBuildingPlacement(rich, "GenPx", grid.TileCoord{LatIdx: 100}, occ, nil); err != nil {
		t.Fatalf("GenPx after Base: %v", err)
	}

	// Tier 2 needs tech level 2.
	if _, _, err := e.ValidateBuildingPlacement(rich, "AdvGenPx", grid.TileCoord{LatIdx: 200}, occ, nil); code(t, err) != protocol.CodePrereq {
		t.Fatalf("tier err = %v", err)
	}

	_, _, err = e.ValidateBuildingPlacement(rich, "Castle", grid.TileCoord{}, occ, nil)
	if code(t, err) != protocol.CodeUnknownKind {
		t.Fatalf("err = %v", err)
	}
}

func TestBuildingPlacement_FootprintAndSpacing(t *testing.T) {
	e, _ := newEngine(t)
	p := freshPlayer(1000)

	occ := fakeOcc{grid.TileCoord{LatIdx: 1, LonIdx: 1}.ID(): {}}
	_, _, err := e.ValidateBuildingPlacement(p, "Base", grid.TileCoord{}, occ, nil)
	if code(t, err) != protocol.CodeOccupied {
		t.Fatalf("err = %v", err)
	}

	// Base spacing: 50 tiles Euclidean from any existing base.
	bases := []grid.TileCoord{{LatIdx: 0, LonIdx: 0}}
	_, _, err = e.ValidateBuildingPlacement(p, "Base", grid.TileCoord{LatIdx: 30, LonIdx: 30}, fakeOcc{}, bases)
	if code(t, err) != protocol.CodeTooClose {
		t.Fatalf("err = %v", err)
	}
	if _, _, err := e.ValidateBuildingPlacement(p, "Base", grid.TileCoord{LatIdx: 0, LonIdx: 50}, fakeOcc{}, bases); err != nil {
		t.Fatalf("50 tiles away: %v", err)
	}
}

func TestApxAttack_ShapesAndBudget(t *testing.T) {
	e, clock := newEngine(t)
	p := freshPlayer(0)
	p.Resources.Apx = 100
	target := grid.TileCoord{LatIdx: 10, LonIdx: 10}

	wantSizes := map[string]int{"point": 1, "line": 5, "area": 9, "building": 25}
	for name, size := range wantSizes {
		shape, affected, err := e.ValidateApxAttack(p, name, target)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(affected) != size {
			t.Errorf("%s affects %d tiles, want %d", name, len(affected), size)
		}
		e.SetApxCooldown(p.ID, shape, target)
	}

	// Same shape, same region: cooldown blocks.
	_, _, err := e.ValidateApxAttack(p, "point", target)
	if code(t, err) != protocol.CodeCooldown {
		t.Fatalf("err = %v", err)
	}

	// Unknown shape is checked before anything else.
	broke := freshPlayer(0)
	_, _, err = e.ValidateApxAttack(broke, "spiral", target)
	if code(t, err) != protocol.CodeUnknownKind {
		t.Fatalf("err = %v", err)
	}
	_, _, err = e.ValidateApxAttack(broke, "point", target)
	if code(t, err) != protocol.CodeNoResource {
		t.Fatalf("err = %v", err)
	}

	// Hourly budget: 10 per region. 4 spent above; cooldowns expire after
	// 90s, the hour window does not.
	clock.advance(100_000)
	for i := 0; i < 6; i++ {
		shape, _, err := e.ValidateApxAttack(p, "point", target)
		if err != nil {
			t.Fatalf("attack %d: %v", i, err)
		}
		e.SetApxCooldown(p.ID, shape, target)
		clock.advance(11_000)
	}
	_, _, err = e.ValidateApxAttack(p, "point", target)
	if code(t, err) != protocol.CodeRateLimit {
		t.Fatalf("err = %v", err)
	}
}

func TestConversion(t *testing.T) {
	e, _ := newEngine(t)

	p := freshPlayer(100)
	q, err := e.ValidateConversion(p, "px", "exp", 5)
	if err != nil || q.Cost != 50 || q.Yield != 5 {
		t.Fatalf("q = %+v, err = %v", q, err)
	}

	p.Resources.Exp = 10
	q, err = e.ValidateConversion(p, "exp", "px", 16)
	if err != nil || q.Cost != 2 || q.Yield != 16 {
		t.Fatalf("q = %+v, err = %v", q, err)
	}

	// Yield overflowing storage rejects the whole request.
	p.Resources.Px = 195
	_, err = e.ValidateConversion(p, "exp", "px", 16)
	if code(t, err) != protocol.CodeStorage {
		t.Fatalf("err = %v", err)
	}

	_, err = e.ValidateConversion(p, "exp", "px", 7)
	if code(t, err) != protocol.CodeBadRequest {
		t.Fatalf("sub-unit err = %v", err)
	}
	_, err = e.ValidateConversion(p, "px", "apx", 5)
	if code(t, err) != protocol.CodeBadRequest {
		t.Fatalf("pair err = %v", err)
	}
	_, err = e.ValidateConversion(p, "px", "exp", 0)
	if code(t, err) != protocol.CodeBadRequest {
		t.Fatalf("zero err = %v", err)
	}

	broke := freshPlayer(9)
	_, err = e.ValidateConversion(broke, "px", "exp", 1)
	if code(t, err) != protocol.CodeNoResource {
		t.Fatalf("err = %v", err)
	}
}

func TestAllianceAction(t *testing.T) {
	e, _ := newEngine(t)
	p := freshPlayer(0)

	if err := e.ValidateAllianceAction(p, "create", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.ValidateAllianceAction(p, "invite", ""); code(t, err) != protocol.CodeBadRequest {
		t.Fatalf("invite without membership: %v", err)
	}
	if err := e.ValidateAllianceAction(p, "join", ""); code(t, err) != protocol.CodeBadRequest {
		t.Fatalf("join without id: %v", err)
	}
	if err := e.ValidateAllianceAction(p, "join", "alliance_1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := e.ValidateAllianceAction(p, "leave", ""); code(t, err) != protocol.CodeBadRequest {
		t.Fatalf("leave without id: %v", err)
	}

	p.Alliances["alliance_1"] = struct{}{}
	if err := e.ValidateAllianceAction(p, "create", ""); code(t, err) != protocol.CodeBadRequest {
		t.Fatalf("create while in an alliance: %v", err)
	}
	if err := e.ValidateAllianceAction(p, "invite", ""); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if err := e.ValidateAllianceAction(p, "leave", "alliance_1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := e.ValidateAllianceAction(p, "disband", "alliance_1"); code(t, err) != protocol.CodeBadRequest {
		t.Fatalf("unknown action: %v", err)
	}
}

func TestDetectGriefing(t *testing.T) {
	if got := DetectGriefing(ActivityWindow{}); len(got) != 0 {
		t.Fatalf("clean window flagged: %v", got)
	}
	reports := DetectGriefing(ActivityWindow{
		TerritoryClaims: 501,
		SingleTileDraws: 101,
		ApxByTarget:     map[string]int{"victim": 11},
	})
	if len(reports) != 3 {
		t.Fatalf("reports = %v", reports)
	}
	high := 0
	for _, r := range reports {
		if r.Severity == SeverityHigh {
			high++
		}
	}
	if high != 2 {
		t.Fatalf("high count = %d", high)
	}
}
