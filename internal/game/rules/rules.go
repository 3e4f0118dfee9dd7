// Package rules is the validation gate in front of every state mutation:
// resource costs, prerequisites, occupancy, per-region rate limits, and APX
// cooldowns. The engine never mutates player or tile state itself; it returns
// a Violation and the world decides.
package rules

import (
	"fmt"
	"strings"

	"pixeldominion/internal/game/catalog"
	"pixeldominion/internal/game/econ"
	"pixeldominion/internal/game/grid"
	"pixeldominion/internal/game/state"
	"pixeldominion/internal/game/tuning"
	"pixeldominion/internal/protocol"
)

const (
	minuteMs = int64(60_000)
	hourMs   = int64(3_600_000)
)

// Violation is a rejected action. Code is one of the protocol E_* constants.
type Violation struct {
	Code   string
	Reason string
}

func (v *Violation) Error() string {
	return v.Code + ": " + v.Reason
}

func reject(code, format string, args ...any) *Violation {
	return &Violation{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Occupancy is the world's tile-ownership view, queried during validation.
type Occupancy interface {
	Occupied(id grid.TileID) bool
}

type window struct {
	count     int
	resetTime int64
}

// RateLimiter enforces fixed-window counters keyed by arbitrary strings.
// Windows reset at their deadline rather than sliding; a burst that lands
// just after a reset sees a fresh allowance.
type RateLimiter struct {
	windows map[string]window
	now     func() int64
}

func NewRateLimiter(now func() int64) *RateLimiter {
	return &RateLimiter{windows: map[string]window{}, now: now}
}

// Allow records one action against key and reports whether it fit inside the
// window.
func (r *RateLimiter) Allow(key string, limit int, windowMs int64) bool {
	now := r.now()
	w, ok := r.windows[key]
	if !ok || now >= w.resetTime {
		r.windows[key] = window{count: 1, resetTime: now + windowMs}
		return true
	}
	if w.count >= limit {
		return false
	}
	w.count++
	r.windows[key] = w
	return true
}

// Remaining reports how many actions key has left without consuming one.
func (r *RateLimiter) Remaining(key string, limit int) int {
	w, ok := r.windows[key]
	if !ok || r.now() >= w.resetTime {
		return limit
	}
	if w.count >= limit {
		return 0
	}
	return limit - w.count
}

// CooldownStore tracks per-key cooldown deadlines with lazy deletion: expired
// entries are removed on the next query, never by a sweeper.
type CooldownStore struct {
	until map[string]int64
	now   func() int64
}

func NewCooldownStore(now func() int64) *CooldownStore {
	return &CooldownStore{until: map[string]int64{}, now: now}
}

// OnCooldown reports whether key is still cooling. A query at exactly the
// deadline is still on cooldown; one millisecond later is not.
func (c *CooldownStore) OnCooldown(key string) bool {
	end, ok := c.until[key]
	if !ok {
		return false
	}
	if c.now() > end {
		delete(c.until, key)
		return false
	}
	return true
}

func (c *CooldownStore) Set(key string, durationMs int64) {
	c.until[key] = c.now() + durationMs
}

// RemainingMs returns the time left on key's cooldown, zero if none.
func (c *CooldownStore) RemainingMs(key string) int64 {
	end, ok := c.until[key]
	if !ok {
		return 0
	}
	left := end - c.now()
	if left < 0 {
		delete(c.until, key)
		return 0
	}
	return left
}

// Engine bundles the catalog, tuning, and the limiter/cooldown state. One
// engine per world; only the world goroutine touches it.
type Engine struct {
	cat       *catalog.Catalog
	cfg       tuning.Tuning
	rates     *RateLimiter
	cooldowns *CooldownStore
}

func NewEngine(cat *catalog.Catalog, cfg tuning.Tuning, now func() int64) *Engine {
	return &Engine{
		cat:       cat,
		cfg:       cfg,
		rates:     NewRateLimiter(now),
		cooldowns: NewCooldownStore(now),
	}
}

func (e *Engine) regionOf(c grid.TileCoord) string {
	return grid.RegionKey(c, e.cfg.RegionSize)
}

// ValidateTerritoryDraw checks a multi-tile territory claim and returns its px
// cost. The rate limit charges one draw per request regardless of tile count;
// the px cost is one per tile.
func (e *Engine) ValidateTerritoryDraw(p *state.Player, tiles []grid.TileCoord, color string, occ Occupancy) (int, error) {
	if len(tiles) == 0 {
		return 0, reject(protocol.CodeBadRequest, "no tiles in request")
	}
	if !IsGrayscale(color) {
		return 0, reject(protocol.CodeNotGrayscale, "territory color %q is not grayscale", color)
	}
	key := p.ID + "_territory_" + e.regionOf(tiles[0])
	if !e.rates.Allow(key, e.cfg.RateLimits.TerritoryPerRegionPerMinute, minuteMs) {
		return 0, reject(protocol.CodeRateLimit, "territory rate limit exceeded in region")
	}
	cost := len(tiles)
	if p.Resources.Px < cost {
		return 0, reject(protocol.CodeNoResource, "need %d px, have %d", cost, p.Resources.Px)
	}
	for _, t := range tiles {
		if occ.Occupied(t.ID()) {
			return 0, reject(protocol.CodeOccupied, "tile %s is already claimed", t.ID())
		}
	}
	return cost, nil
}

// ValidateBuildingPlacement checks cost, palette, tech tier, dependency, rate
// limit, footprint occupancy, and base spacing. Returns the template and the
// enumerated footprint on success.
func (e *Engine) ValidateBuildingPlacement(p *state.Player, kind string, pos grid.TileCoord, occ Occupancy, bases []grid.TileCoord) (catalog.BuildingTemplate, []grid.TileCoord, error) {
	tmpl, err := e.cat.Building(kind)
	if err != nil {
		return catalog.BuildingTemplate{}, nil, reject(protocol.CodeUnknownKind, "no such building kind %q", kind)
	}
	if p.Resources.Px < tmpl.CostPx {
		return catalog.BuildingTemplate{}, nil, reject(protocol.CodeNoResource, "%s costs %d px, have %d", kind, tmpl.CostPx, p.Resources.Px)
	}
	if len(p.Palette) < tmpl.MinColorsRequired {
		return catalog.BuildingTemplate{}, nil, reject(protocol.CodePrereq, "%s needs %d palette colors, have %d", kind, tmpl.MinColorsRequired, len(p.Palette))
	}
	if p.TechLevel < tmpl.Prerequisites.TechTier {
		return catalog.BuildingTemplate{}, nil, reject(protocol.CodePrereq, "%s needs tech tier %d, at %d", kind, tmpl.Prerequisites.TechTier, p.TechLevel)
	}
	for _, dep := range tmpl.Prerequisites.Deps {
		if !p.HasBuilding(dep) {
			return catalog.BuildingTemplate{}, nil, reject(protocol.CodePrereq, "%s requires a %s first", kind, dep)
		}
	}
	key := p.ID + "_building_" + e.regionOf(pos)
	if !e.rates.Allow(key, e.cfg.RateLimits.BuildingPerRegionPerMinute, minuteMs) {
		return catalog.BuildingTemplate{}, nil, reject(protocol.CodeRateLimit, "building rate limit exceeded in region")
	}
	footprint := grid.TileArea(pos, tmpl.Size.Width, tmpl.Size.Height)
	for _, t := range footprint {
		if occ.Occupied(t.ID()) {
			return catalog.BuildingTemplate{}, nil, reject(protocol.CodeOccupied, "footprint tile %s is already claimed", t.ID())
		}
	}
	if kind == "Base" {
		minDist := float64(e.cfg.BaseMinDistance)
		for _, b := range bases {
			if grid.Distance(pos, b) < minDist {
				return catalog.BuildingTemplate{}, nil, reject(protocol.CodeTooClose, "base within %d tiles of an existing base", e.cfg.BaseMinDistance)
			}
		}
	}
	return tmpl, footprint, nil
}

// ValidateApxAttack checks shape, APX stock, per-shape cooldown, and the
// hourly attack budget, and returns the literal affected-tile set.
func (e *Engine) ValidateApxAttack(p *state.Player, shapeName string, target grid.TileCoord) (catalog.ApxShape, []grid.TileCoord, error) {
	shape, err := e.cat.Shape(shapeName)
	if err != nil {
		return catalog.ApxShape{}, nil, reject(protocol.CodeUnknownKind, "no such attack shape %q", shapeName)
	}
	if p.Resources.Apx < shape.Cost {
		return catalog.ApxShape{}, nil, reject(protocol.CodeNoResource, "%s attack costs %d apx, have %d", shape.Name, shape.Cost, p.Resources.Apx)
	}
	region := e.regionOf(target)
	cdKey := p.ID + "_apx_" + strings.ToLower(shape.Name) + "_" + region
	if e.cooldowns.OnCooldown(cdKey) {
		return catalog.ApxShape{}, nil, reject(protocol.CodeCooldown, "%s attack cooling down for %dms", shape.Name, e.cooldowns.RemainingMs(cdKey))
	}
	rateKey := p.ID + "_apx_" + region
	if !e.rates.Allow(rateKey, e.cfg.RateLimits.ApxPerRegionPerHour, hourMs) {
		return catalog.ApxShape{}, nil, reject(protocol.CodeRateLimit, "attack rate limit exceeded in region")
	}
	return shape, AttackTiles(shape.Name, target), nil
}

// SetApxCooldown arms the per-shape per-region cooldown after a successful
// attack.
func (e *Engine) SetApxCooldown(playerID string, shape catalog.ApxShape, target grid.TileCoord) {
	key := playerID + "_apx_" + strings.ToLower(shape.Name) + "_" + e.regionOf(target)
	e.cooldowns.Set(key, int64(shape.CooldownSeconds)*1000)
}

// AttackTiles enumerates the tiles an attack shape touches. The shapes are
// fixed patterns, not derived from the catalog size field.
func AttackTiles(shapeName string, target grid.TileCoord) []grid.TileCoord {
	switch strings.ToLower(shapeName) {
	case "point":
		return []grid.TileCoord{target}
	case "line":
		out := make([]grid.TileCoord, 0, 5)
		for dx := -2; dx <= 2; dx++ {
			out = append(out, grid.TileCoord{LatIdx: target.LatIdx, LonIdx: target.LonIdx + dx})
		}
		return out
	case "area":
		return grid.TileArea(target, 3, 3)
	case "building":
		return grid.TileArea(target, 5, 5)
	default:
		return nil
	}
}

// ValidateConversion checks a resource exchange and returns the whole-unit
// quote. The exchange is all-or-nothing: if the full yield would overflow px
// storage, nothing converts.
func (e *Engine) ValidateConversion(p *state.Player, from, to string, amount int) (econ.Quote, error) {
	if amount <= 0 {
		return econ.Quote{}, reject(protocol.CodeBadRequest, "conversion amount must be positive")
	}
	switch {
	case from == "px" && to == "exp":
		q := econ.QuotePxToExp(amount)
		if q.Units == 0 {
			return econ.Quote{}, reject(protocol.CodeBadRequest, "amount below minimum exchange unit")
		}
		if p.Resources.Px < q.Cost {
			return econ.Quote{}, reject(protocol.CodeNoResource, "conversion costs %d px, have %d", q.Cost, p.Resources.Px)
		}
		return q, nil
	case from == "exp" && to == "px":
		q := econ.QuoteExpToPx(amount)
		if q.Units == 0 {
			return econ.Quote{}, reject(protocol.CodeBadRequest, "amount below minimum exchange unit")
		}
		if p.Resources.Exp < q.Cost {
			return econ.Quote{}, reject(protocol.CodeNoResource, "conversion costs %d exp, have %d", q.Cost, p.Resources.Exp)
		}
		if p.Resources.Px+q.Yield > p.StorageCapacity {
			return econ.Quote{}, reject(protocol.CodeStorage, "yield of %d px would exceed storage capacity %d", q.Yield, p.StorageCapacity)
		}
		return q, nil
	default:
		return econ.Quote{}, reject(protocol.CodeBadRequest, "unsupported conversion %s -> %s", from, to)
	}
}

// ValidateAllianceAction checks an alliance request. Create is only open to
// players not yet in an alliance, join and leave need a target alliance id,
// and invite needs existing membership.
func (e *Engine) ValidateAllianceAction(p *state.Player, action, allianceID string) error {
	switch action {
	case "create":
		if len(p.Alliances) > 0 {
			return reject(protocol.CodeBadRequest, "player is already in an alliance")
		}
	case "join", "leave":
		if allianceID == "" {
			return reject(protocol.CodeBadRequest, "alliance id required")
		}
	case "invite":
		if len(p.Alliances) == 0 {
			return reject(protocol.CodeBadRequest, "player must be in an alliance to invite others")
		}
	default:
		return reject(protocol.CodeBadRequest, "unknown alliance action %q", action)
	}
	return nil
}

// TerritoryRemaining reports the player's unused territory-draw allowance in a
// region without consuming any of it.
func (e *Engine) TerritoryRemaining(playerID string, c grid.TileCoord) int {
	key := playerID + "_territory_" + e.regionOf(c)
	return e.rates.Remaining(key, e.cfg.RateLimits.TerritoryPerRegionPerMinute)
}

// IsGrayscale reports whether a #RRGGBB color has equal channels. Anything
// that does not parse is not grayscale.
func IsGrayscale(color string) bool {
	if len(color) != 7 || color[0] != '#' {
		return false
	}
	var r, g, b int
	if _, err := fmt.Sscanf(color[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return false
	}
	return r == g && g == b
}

// Severity levels for griefing reports.
const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// ActivityWindow is a player's accumulated behaviour over the detection
// window (one hour).
type ActivityWindow struct {
	TerritoryClaims int
	SingleTileDraws int
	ApxByTarget     map[string]int
}

// GriefReport flags one suspicious pattern.
type GriefReport struct {
	Pattern  string `json:"pattern"`
	Severity string `json:"severity"`
}

// DetectGriefing applies the abuse heuristics to an activity window. An empty
// slice means nothing was flagged.
func DetectGriefing(w ActivityWindow) []GriefReport {
	var out []GriefReport
	if w.TerritoryClaims > 500 {
		out = append(out, GriefReport{Pattern: "excessive territory expansion", Severity: SeverityHigh})
	}
	for target, n := range w.ApxByTarget {
		if n > 10 {
			out = append(out, GriefReport{Pattern: "targeted harassment of " + target, Severity: SeverityHigh})
			break
		}
	}
	if w.SingleTileDraws > 100 {
		out = append(out, GriefReport{Pattern: "single-tile spam", Severity: SeverityMedium})
	}
	return out
}
