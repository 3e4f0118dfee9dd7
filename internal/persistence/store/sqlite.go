package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"pixeldominion/internal/game/grid"
	"pixeldominion/internal/game/state"
)

// SQLite is the durable Repository. Save methods snapshot the record in the
// caller's goroutine and hand the row to a single writer goroutine; the world
// loop never waits on the database.
type SQLite struct {
	db  *sql.DB
	log *log.Logger

	ch   chan writeReq
	wg   sync.WaitGroup
	once sync.Once
}

type writeKind int

const (
	writePlayer writeKind = iota + 1
	writeTile
	writeBuilding
)

type writeReq struct {
	kind     writeKind
	player   playerRow
	tile     state.Tile
	building state.Building
}

func OpenSQLite(path string, logger *log.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLite{
		db:  db,
		log: logger,
		// Buffered for bursty writes (large territory draws) without
		// stalling the world loop.
		ch: make(chan writeReq, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-heavy write pattern.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			faction_id TEXT NOT NULL,
			px INTEGER NOT NULL,
			exp INTEGER NOT NULL,
			apx INTEGER NOT NULL,
			palette_json TEXT NOT NULL,
			territories_json TEXT NOT NULL,
			alliances_json TEXT NOT NULL,
			tech_level INTEGER NOT NULL,
			generation_rate INTEGER NOT NULL,
			storage_capacity INTEGER NOT NULL,
			last_tick INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tiles (
			id TEXT PRIMARY KEY,
			lat_idx INTEGER NOT NULL,
			lon_idx INTEGER NOT NULL,
			type TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			color TEXT NOT NULL,
			opacity REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tiles_owner ON tiles(owner_id);`,
		`CREATE TABLE IF NOT EXISTS buildings (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			lat_idx INTEGER NOT NULL,
			lon_idx INTEGER NOT NULL,
			owner_id TEXT NOT NULL,
			placed_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_buildings_owner ON buildings(owner_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) SavePlayer(p *state.Player) {
	s.enqueue(writeReq{kind: writePlayer, player: snapshotPlayer(p)})
}

func (s *SQLite) SaveTile(t *state.Tile) {
	s.enqueue(writeReq{kind: writeTile, tile: *t})
}

func (s *SQLite) SaveBuilding(b *state.Building) {
	s.enqueue(writeReq{kind: writeBuilding, building: *b})
}

func (s *SQLite) enqueue(req writeReq) {
	select {
	case s.ch <- req:
	default:
		if s.log != nil {
			s.log.Printf("sqlite write queue full, dropping %d", req.kind)
		}
	}
}

func (s *SQLite) loop() {
	for req := range s.ch {
		var err error
		switch req.kind {
		case writePlayer:
			err = s.upsertPlayer(req.player)
		case writeTile:
			err = s.upsertTile(req.tile)
		case writeBuilding:
			err = s.upsertBuilding(req.building)
		}
		if err != nil && s.log != nil {
			s.log.Printf("sqlite write %d: %v", req.kind, err)
		}
	}
}

func (s *SQLite) upsertPlayer(row playerRow) error {
	palette, _ := json.Marshal(row.Palette)
	territories, _ := json.Marshal(row.Territories)
	alliances, _ := json.Marshal(row.Alliances)
	_, err := s.db.Exec(`INSERT INTO players
		(id, faction_id, px, exp, apx, palette_json, territories_json, alliances_json,
		 tech_level, generation_rate, storage_capacity, last_tick)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
		 faction_id=excluded.faction_id, px=excluded.px, exp=excluded.exp, apx=excluded.apx,
		 palette_json=excluded.palette_json, territories_json=excluded.territories_json,
		 alliances_json=excluded.alliances_json, tech_level=excluded.tech_level,
		 generation_rate=excluded.generation_rate, storage_capacity=excluded.storage_capacity,
		 last_tick=excluded.last_tick`,
		row.ID, row.FactionID, row.Resources.Px, row.Resources.Exp, row.Resources.Apx,
		string(palette), string(territories), string(alliances),
		row.TechLevel, row.GenerationRate, row.StorageCapacity, row.LastTick)
	return err
}

func (s *SQLite) upsertTile(t state.Tile) error {
	_, err := s.db.Exec(`INSERT INTO tiles (id, lat_idx, lon_idx, type, owner_id, color, opacity)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
		 type=excluded.type, owner_id=excluded.owner_id,
		 color=excluded.color, opacity=excluded.opacity`,
		t.Coord.ID(), t.Coord.LatIdx, t.Coord.LonIdx, string(t.Type), t.OwnerID, t.Color, t.Opacity)
	return err
}

func (s *SQLite) upsertBuilding(b state.Building) error {
	_, err := s.db.Exec(`INSERT INTO buildings (id, kind, lat_idx, lon_idx, owner_id, placed_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
		 kind=excluded.kind, lat_idx=excluded.lat_idx, lon_idx=excluded.lon_idx,
		 owner_id=excluded.owner_id, placed_at=excluded.placed_at`,
		b.ID, b.Kind, b.Position.LatIdx, b.Position.LonIdx, b.OwnerID, b.PlacedAt)
	return err
}

func (s *SQLite) GetPlayer(id string) (*state.Player, bool, error) {
	var row playerRow
	var palette, territories, alliances string
	err := s.db.QueryRow(`SELECT id, faction_id, px, exp, apx, palette_json,
		territories_json, alliances_json, tech_level, generation_rate,
		storage_capacity, last_tick FROM players WHERE id = ?`, id).
		Scan(&row.ID, &row.FactionID, &row.Resources.Px, &row.Resources.Exp, &row.Resources.Apx,
			&palette, &territories, &alliances,
			&row.TechLevel, &row.GenerationRate, &row.StorageCapacity, &row.LastTick)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	_ = json.Unmarshal([]byte(palette), &row.Palette)
	_ = json.Unmarshal([]byte(territories), &row.Territories)
	_ = json.Unmarshal([]byte(alliances), &row.Alliances)
	return row.restore(), true, nil
}

func (s *SQLite) GetOccupiedTiles() ([]*state.Tile, error) {
	rows, err := s.db.Query(`SELECT lat_idx, lon_idx, type, owner_id, color, opacity FROM tiles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*state.Tile
	for rows.Next() {
		t := &state.Tile{}
		var typ string
		if err := rows.Scan(&t.Coord.LatIdx, &t.Coord.LonIdx, &typ, &t.OwnerID, &t.Color, &t.Opacity); err != nil {
			return nil, err
		}
		t.Type = state.TileType(typ)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) Load() (*Snapshot, error) {
	snap := &Snapshot{}

	rows, err := s.db.Query(`SELECT id FROM players`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for _, id := range ids {
		p, ok, err := s.GetPlayer(id)
		if err != nil {
			return nil, err
		}
		if ok {
			snap.Players = append(snap.Players, p)
		}
	}

	snap.Tiles, err = s.GetOccupiedTiles()
	if err != nil {
		return nil, err
	}

	brows, err := s.db.Query(`SELECT id, kind, lat_idx, lon_idx, owner_id, placed_at FROM buildings`)
	if err != nil {
		return nil, err
	}
	defer brows.Close()
	for brows.Next() {
		b := &state.Building{}
		var pos grid.TileCoord
		if err := brows.Scan(&b.ID, &b.Kind, &pos.LatIdx, &pos.LonIdx, &b.OwnerID, &b.PlacedAt); err != nil {
			return nil, err
		}
		b.Position = pos
		snap.Buildings = append(snap.Buildings, b)
	}
	return snap, brows.Err()
}

// Close drains pending writes, then closes the database.
func (s *SQLite) Close() error {
	s.once.Do(func() { close(s.ch) })
	s.wg.Wait()
	return s.db.Close()
}
