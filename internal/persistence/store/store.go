// Package store persists world state. The world calls the Save methods from
// its loop; implementations must return immediately and do real I/O
// elsewhere.
package store

import (
	"sync"

	"pixeldominion/internal/game/grid"
	"pixeldominion/internal/game/state"
)

// Snapshot is the full persisted world, loaded at boot.
type Snapshot struct {
	Players   []*state.Player
	Tiles     []*state.Tile
	Buildings []*state.Building
}

// Repository is the durable store. Save methods never block the caller and
// never fail it; read methods are for boot and tooling.
type Repository interface {
	SavePlayer(p *state.Player)
	SaveTile(t *state.Tile)
	SaveBuilding(b *state.Building)

	GetPlayer(id string) (*state.Player, bool, error)
	GetOccupiedTiles() ([]*state.Tile, error)
	Load() (*Snapshot, error)
	Close() error
}

// Memory is the non-durable Repository used in tests and db-less runs.
type Memory struct {
	mu        sync.Mutex
	players   map[string]playerRow
	tiles     map[grid.TileID]*state.Tile
	buildings map[string]*state.Building
}

func NewMemory() *Memory {
	return &Memory{
		players:   map[string]playerRow{},
		tiles:     map[grid.TileID]*state.Tile{},
		buildings: map[string]*state.Building{},
	}
}

func (m *Memory) SavePlayer(p *state.Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[p.ID] = snapshotPlayer(p)
}

func (m *Memory) SaveTile(t *state.Tile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tiles[t.Coord.ID()] = &cp
}

func (m *Memory) SaveBuilding(b *state.Building) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.buildings[b.ID] = &cp
}

func (m *Memory) GetPlayer(id string) (*state.Player, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.players[id]
	if !ok {
		return nil, false, nil
	}
	return row.restore(), true, nil
}

func (m *Memory) GetOccupiedTiles() ([]*state.Tile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*state.Tile, 0, len(m.tiles))
	for _, t := range m.tiles {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) Load() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := &Snapshot{}
	for _, row := range m.players {
		snap.Players = append(snap.Players, row.restore())
	}
	for _, t := range m.tiles {
		cp := *t
		snap.Tiles = append(snap.Tiles, &cp)
	}
	for _, b := range m.buildings {
		cp := *b
		snap.Buildings = append(snap.Buildings, &cp)
	}
	return snap, nil
}

func (m *Memory) Close() error { return nil }

// playerRow is the detached persisted form of a player. Building pointers are
// not part of it; ownership is reattached from the buildings table at load.
type playerRow struct {
	ID              string
	FactionID       string
	Resources       state.Resources
	Palette         []string
	Territories     []string
	Alliances       []string
	TechLevel       int
	GenerationRate  int
	StorageCapacity int
	LastTick        int64
}

func snapshotPlayer(p *state.Player) playerRow {
	row := playerRow{
		ID:              p.ID,
		FactionID:       p.FactionID,
		Resources:       p.Resources,
		TechLevel:       p.TechLevel,
		GenerationRate:  p.GenerationRate,
		StorageCapacity: p.StorageCapacity,
		LastTick:        p.LastTick,
	}
	for c := range p.Palette {
		row.Palette = append(row.Palette, c)
	}
	for id := range p.OwnedTerritories {
		row.Territories = append(row.Territories, id)
	}
	for id := range p.Alliances {
		row.Alliances = append(row.Alliances, id)
	}
	return row
}

func (row playerRow) restore() *state.Player {
	p := state.NewPlayer(row.ID, row.FactionID, row.LastTick)
	p.Resources = row.Resources
	p.TechLevel = row.TechLevel
	p.GenerationRate = row.GenerationRate
	p.StorageCapacity = row.StorageCapacity
	for _, c := range row.Palette {
		p.Palette[c] = struct{}{}
	}
	for _, id := range row.Territories {
		p.OwnedTerritories[id] = struct{}{}
	}
	for _, id := range row.Alliances {
		p.Alliances[id] = struct{}{}
	}
	return p
}
