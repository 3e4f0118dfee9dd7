// Package state defines the mutable domain records shared by the economy,
// rules, and world packages. All mutation happens on the world goroutine;
// these types carry no locking of their own.
package state

import (
	"pixeldominion/internal/game/grid"
)

type TileType string

const (
	TileNeutral   TileType = "neutral"
	TileTerritory TileType = "territory"
	TileBuilding  TileType = "building"
)

// Tile is one occupancy record. Attacks mutate color/opacity; tiles are never
// deleted in normal play.
type Tile struct {
	Coord   grid.TileCoord
	Type    TileType
	OwnerID string
	Color   string
	Opacity float64
}

type Resources struct {
	Px  int
	Exp int
	Apx int
}

// Building is a placed instance of a catalog template. The same pointer is
// held by the world's building map and the owner's building list; the single
// writer keeps the two views consistent.
type Building struct {
	ID       string
	Kind     string
	Position grid.TileCoord
	OwnerID  string
	PlacedAt int64
}

type Player struct {
	ID        string
	FactionID string
	Resources Resources

	Palette          map[string]struct{}
	OwnedTerritories map[grid.TileID]struct{}
	Buildings        []*Building
	Alliances        map[string]struct{}

	TechLevel       int
	GenerationRate  int
	StorageCapacity int
	LastTick        int64 // unix ms
}

func NewPlayer(id, factionID string, nowMs int64) *Player {
	return &Player{
		ID:               id,
		FactionID:        factionID,
		Palette:          map[string]struct{}{},
		OwnedTerritories: map[grid.TileID]struct{}{},
		Alliances:        map[string]struct{}{},
		TechLevel:        1,
		GenerationRate:   1,
		LastTick:         nowMs,
	}
}

// HasBuilding reports whether the player owns at least one building of kind.
func (p *Player) HasBuilding(kind string) bool {
	for _, b := range p.Buildings {
		if b.Kind == kind {
			return true
		}
	}
	return false
}

// BuildingsOf returns the player's buildings of the given kind.
func (p *Player) BuildingsOf(kind string) []*Building {
	var out []*Building
	for _, b := range p.Buildings {
		if b.Kind == kind {
			out = append(out, b)
		}
	}
	return out
}
