package world

import (
	"errors"

	"github.com/google/uuid"

	"pixeldominion/internal/game/econ"
	"pixeldominion/internal/game/grid"
	"pixeldominion/internal/game/rules"
	"pixeldominion/internal/game/state"
	"pixeldominion/internal/protocol"
)

// Place actions accepted over the synchronous HTTP API.
const (
	ActionDrawTerritory = "draw_territory"
	ActionPlaceBuilding = "place_building"
)

// PlaceRequest is a synchronous mutation submitted over HTTP.
type PlaceRequest struct {
	PlayerID string
	Action   string

	// draw_territory
	Tiles []grid.TileCoord
	Color string

	// place_building
	Kind     string
	Position grid.TileCoord
}

// PlaceData is the success payload of a place action.
type PlaceData struct {
	PlayerResources protocol.Resources `json:"player_resources"`
	PlayerStorage   int                `json:"player_storage"`
	AffectedTiles   []string           `json:"affected_tiles"`
	Cost            int                `json:"cost"`
}

type placeReq struct {
	PlaceRequest
	resp chan placeResult
}

type placeResult struct {
	data *PlaceData
	err  error
}

// Place runs a synchronous mutation on the world loop and waits for the
// outcome. On rejection the error is a *rules.Violation.
func (w *World) Place(req PlaceRequest) (*PlaceData, error) {
	r := placeReq{PlaceRequest: req, resp: make(chan placeResult, 1)}
	w.placeCh <- r
	out := <-r.resp
	return out.data, out.err
}

func (w *World) handlePlace(req placeReq) placeResult {
	var res placeResult
	switch req.Action {
	case ActionDrawTerritory:
		res = w.applyDrawTerritory(req.PlayerID, req.Tiles, req.Color)
	case ActionPlaceBuilding:
		res = w.applyPlaceBuilding(req.PlayerID, req.Kind, req.Position)
	default:
		res = placeResult{err: &rules.Violation{Code: protocol.CodeBadRequest, Reason: "unknown action " + req.Action}}
	}
	if res.err != nil {
		var v *rules.Violation
		if errors.As(res.err, &v) {
			w.rejects[v.Code]++
		}
	}
	return res
}

// applyDrawTerritory claims the tiles as grayscale territory, one px each.
func (w *World) applyDrawTerritory(playerID string, tiles []grid.TileCoord, color string) placeResult {
	p := w.ensurePlayer(playerID)
	cost, err := w.engine.ValidateTerritoryDraw(p, tiles, color, w)
	if err != nil {
		return placeResult{err: err}
	}
	p.Resources.Px -= cost

	act := w.activityOf(playerID)
	act.TerritoryClaims += len(tiles)
	if len(tiles) == 1 {
		act.SingleTileDraws++
	}

	ids := make([]string, 0, len(tiles))
	updates := make([]protocol.PixelUpdate, 0, len(tiles))
	for _, c := range tiles {
		t := &state.Tile{
			Coord:   c,
			Type:    state.TileTerritory,
			OwnerID: playerID,
			Color:   color,
			Opacity: 1,
		}
		w.indexTile(t)
		p.OwnedTerritories[c.ID()] = struct{}{}
		w.persistTile(t)
		ids = append(ids, c.ID())
		updates = append(updates, tileWire(t))
	}
	w.persistPlayer(p)
	w.record("draw_territory", map[string]any{
		"player_id": playerID, "tiles": ids, "color": color, "cost": cost,
	})
	w.broadcastTiles(tiles, updates)
	w.sendPlayerUpdate(playerID)
	return placeResult{data: &PlaceData{
		PlayerResources: playerResources(p),
		PlayerStorage:   p.StorageCapacity,
		AffectedTiles:   ids,
		Cost:            cost,
	}}
}

// applyPlaceBuilding places a catalog building. The footprint tiles become
// building-typed occupancy in the template's color; they do not join the
// owner's territory set.
func (w *World) applyPlaceBuilding(playerID, kind string, pos grid.TileCoord) placeResult {
	p := w.ensurePlayer(playerID)
	tmpl, footprint, err := w.engine.ValidateBuildingPlacement(p, kind, pos, w, w.basePositions())
	if err != nil {
		return placeResult{err: err}
	}
	p.Resources.Px -= tmpl.CostPx

	b := &state.Building{
		ID:       uuid.NewString(),
		Kind:     kind,
		Position: pos,
		OwnerID:  playerID,
		PlacedAt: w.now().UnixMilli(),
	}
	w.buildings[b.ID] = b
	p.Buildings = append(p.Buildings, b)

	ids := make([]string, 0, len(footprint))
	for _, c := range footprint {
		t := &state.Tile{
			Coord:   c,
			Type:    state.TileBuilding,
			OwnerID: playerID,
			Color:   tmpl.Color,
			Opacity: 1,
		}
		w.indexTile(t)
		w.persistTile(t)
		ids = append(ids, c.ID())
	}

	if tmpl.Effects.OnPlace != nil && tmpl.Effects.OnPlace.PaletteColors > 0 {
		w.growPalette(p, tmpl.Effects.OnPlace.PaletteColors)
	}
	if tmpl.Effects.Passive != nil && tmpl.Effects.Passive.PxCap > 0 {
		p.StorageCapacity += tmpl.Effects.Passive.PxCap
	}
	pxRate, _, _ := econ.Rates(w.cat, p)
	p.GenerationRate = pxRate

	w.persistBuilding(b)
	w.persistPlayer(p)
	w.record("place_building", map[string]any{
		"player_id": playerID, "building_id": b.ID, "kind": kind,
		"position": pos, "cost": tmpl.CostPx,
	})
	w.broadcastShards(grid.ShardsOf(footprint), protocol.TypeBuildingPlaced, protocol.BuildingPlaced{
		ID:            b.ID,
		BuildingType:  kind,
		Position:      protocol.TileCoord{LatIdx: pos.LatIdx, LonIdx: pos.LonIdx},
		OwnerID:       playerID,
		AffectedTiles: ids,
	})
	w.sendPlayerUpdate(playerID)
	return placeResult{data: &PlaceData{
		PlayerResources: playerResources(p),
		PlayerStorage:   p.StorageCapacity,
		AffectedTiles:   ids,
		Cost:            tmpl.CostPx,
	}}
}

// growPalette adds n colors the player does not already have.
func (w *World) growPalette(p *state.Player, n int) {
	for added := 0; added < n; {
		c := w.randomColor()
		if _, dup := p.Palette[c]; dup {
			continue
		}
		p.Palette[c] = struct{}{}
		added++
	}
}

// handlePixelUpdate is the WS form of a single-tile territory draw.
func (w *World) handlePixelUpdate(c *client, msg protocol.ClientMsg) {
	coord, err := grid.ParseTileID(msg.TileID)
	if err != nil {
		w.rejectTo(c, protocol.CodeBadRequest, "bad tile_id %q", msg.TileID)
		return
	}
	res := w.applyDrawTerritory(c.playerID, []grid.TileCoord{coord}, msg.Color)
	if res.err != nil {
		w.rejectViolation(c, res.err)
	}
}

func (w *World) handlePlaceBuilding(c *client, msg protocol.ClientMsg) {
	if msg.Position == nil {
		w.rejectTo(c, protocol.CodeBadRequest, "place_building needs position")
		return
	}
	pos := grid.TileCoord{LatIdx: msg.Position.LatIdx, LonIdx: msg.Position.LonIdx}
	res := w.applyPlaceBuilding(c.playerID, msg.BuildingType, pos)
	if res.err != nil {
		w.rejectViolation(c, res.err)
	}
}

// handleConvert exchanges resources all-or-nothing and answers with a
// conversion_result either way.
func (w *World) handleConvert(c *client, msg protocol.ClientMsg) {
	p := w.ensurePlayer(c.playerID)
	q, err := w.engine.ValidateConversion(p, msg.From, msg.To, msg.Amount)
	if err != nil {
		w.rejectViolation(c, err)
		w.sendTo(c, protocol.TypeConversionResult, protocol.ConversionResult{
			Success: false, From: msg.From, To: msg.To,
		})
		return
	}
	switch msg.From {
	case "px":
		p.Resources.Px -= q.Cost
		p.Resources.Exp += q.Yield
	case "exp":
		p.Resources.Exp -= q.Cost
		p.Resources.Px += q.Yield
	}
	w.persistPlayer(p)
	w.record("convert_resources", map[string]any{
		"player_id": c.playerID, "from": msg.From, "to": msg.To,
		"cost": q.Cost, "yield": q.Yield,
	})
	w.sendTo(c, protocol.TypeConversionResult, protocol.ConversionResult{
		Success: true, From: msg.From, To: msg.To, Amount: q.Yield, Cost: q.Cost,
	})
	w.sendPlayerUpdate(c.playerID)
}

// handleApxAttack darkens and fades the affected tiles. Attacks mutate
// existing tiles only; tiles never drawn are skipped, and nothing is deleted.
func (w *World) handleApxAttack(c *client, msg protocol.ClientMsg) {
	if msg.Position == nil {
		w.rejectTo(c, protocol.CodeBadRequest, "apx_attack needs position")
		return
	}
	p := w.ensurePlayer(c.playerID)
	target := grid.TileCoord{LatIdx: msg.Position.LatIdx, LonIdx: msg.Position.LonIdx}
	shape, affected, err := w.engine.ValidateApxAttack(p, msg.Shape, target)
	if err != nil {
		w.rejectViolation(c, err)
		return
	}
	p.Resources.Apx -= shape.Cost
	w.engine.SetApxCooldown(c.playerID, shape, target)
	if t, ok := w.tiles[target.ID()]; ok && t.OwnerID != "" {
		w.activityOf(c.playerID).ApxByTarget[t.OwnerID]++
	}

	var hitTiles []grid.TileCoord
	var updates []protocol.PixelUpdate
	for _, coord := range affected {
		t, ok := w.tiles[coord.ID()]
		if !ok {
			continue
		}
		t.Color = "#000000"
		t.Opacity /= 2
		w.persistTile(t)
		hitTiles = append(hitTiles, coord)
		updates = append(updates, tileWire(t))
	}
	w.persistPlayer(p)
	w.record("apx_attack", map[string]any{
		"player_id": c.playerID, "shape": shape.Name, "target": target,
		"hit": len(hitTiles), "cost": shape.Cost,
	})
	w.broadcastTiles(hitTiles, updates)
	w.sendPlayerUpdate(c.playerID)
}

// applyGeneration credits elapsed whole ticks to the player.
func (w *World) applyGeneration(p *state.Player, nowMs int64) int64 {
	return econ.ApplyGeneration(w.cat, p, nowMs, int64(w.cfg.GenerationIntervalMs))
}

// rejectViolation reports a rules rejection to one client.
func (w *World) rejectViolation(c *client, err error) {
	var v *rules.Violation
	if errors.As(err, &v) {
		w.rejectTo(c, v.Code, "%s", v.Reason)
		return
	}
	w.rejectTo(c, protocol.CodeInternal, "internal error")
}

func playerResources(p *state.Player) protocol.Resources {
	return protocol.Resources{Px: p.Resources.Px, Exp: p.Resources.Exp, Apx: p.Resources.Apx}
}
