// Package world owns all mutable game state. A single goroutine (Run)
// processes every mutation; transports and HTTP handlers talk to it over
// channels and never touch the maps directly.
package world

import (
	"context"
	"io"
	"log"
	"math/rand"
	"time"

	"pixeldominion/internal/game/catalog"
	"pixeldominion/internal/game/grid"
	"pixeldominion/internal/game/rules"
	"pixeldominion/internal/game/state"
	"pixeldominion/internal/game/tuning"
	"pixeldominion/internal/protocol"
)

// Journal records accepted actions for offline replay/analysis. May be nil.
type Journal interface {
	Record(kind string, data any)
}

// Store receives accepted mutations for durable persistence. Implementations
// must not block the caller. May be nil.
type Store interface {
	SavePlayer(p *state.Player)
	SaveTile(t *state.Tile)
	SaveBuilding(b *state.Building)
}

// defaultPalette is the 8-color starting palette every new player gets.
var defaultPalette = []string{
	"#000000", "#ffffff", "#ef4444", "#22c55e",
	"#3b82f6", "#eab308", "#06b6d4", "#d946ef",
}

type client struct {
	id       string
	playerID string
	out      chan []byte
	shards   map[string]struct{}
}

type inbound struct {
	connID string
	msg    protocol.ClientMsg
}

type attachReq struct {
	connID   string
	playerID string
	out      chan []byte
}

type Options struct {
	Log     *log.Logger
	Cfg     tuning.Tuning
	Cat     *catalog.Catalog
	Now     func() time.Time
	Rand    *rand.Rand
	Journal Journal
	Store   Store

	// Jitter, when set, perturbs leaderboard presentation scores. Nil keeps
	// scores exact (tests rely on that).
	Jitter func() float64
}

type World struct {
	log    *log.Logger
	cfg    tuning.Tuning
	cat    *catalog.Catalog
	engine *rules.Engine
	now    func() time.Time
	rng    *rand.Rand

	journal Journal
	store   Store
	jitter  func() float64

	players   map[string]*state.Player
	tiles     map[grid.TileID]*state.Tile
	shardIdx  map[string]map[grid.TileID]*state.Tile
	buildings map[string]*state.Building
	tick      int64

	// demo leaderboard entries carry a fixed score component on top of
	// their live dominance
	seedScores map[string]float64

	activity   map[string]*activity
	victoryWon map[string]bool

	clients   map[string]*client
	shardSubs map[string]map[string]*client

	inbox    chan inbound
	attachCh chan attachReq
	detachCh chan string
	placeCh  chan placeReq
	lbCh     chan leaderboardReq
	statusCh chan statusReq
	statsCh  chan chan Stats

	messagesIn    int64
	broadcasts    int64
	droppedFrames int64
	rejects       map[string]int64
}

func New(opts Options) *World {
	if opts.Log == nil {
		opts.Log = log.New(io.Discard, "", 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(opts.Now().UnixNano()))
	}
	w := &World{
		log:        opts.Log,
		cfg:        opts.Cfg,
		cat:        opts.Cat,
		now:        opts.Now,
		rng:        opts.Rand,
		journal:    opts.Journal,
		store:      opts.Store,
		jitter:     opts.Jitter,
		players:    map[string]*state.Player{},
		tiles:      map[grid.TileID]*state.Tile{},
		shardIdx:   map[string]map[grid.TileID]*state.Tile{},
		buildings:  map[string]*state.Building{},
		seedScores: map[string]float64{},
		activity:   map[string]*activity{},
		victoryWon: map[string]bool{},
		clients:    map[string]*client{},
		shardSubs:  map[string]map[string]*client{},
		inbox:      make(chan inbound, 256),
		attachCh:   make(chan attachReq, 16),
		detachCh:   make(chan string, 16),
		placeCh:    make(chan placeReq, 16),
		lbCh:       make(chan leaderboardReq, 16),
		statusCh:   make(chan statusReq, 16),
		statsCh:    make(chan chan Stats, 4),
		rejects:    map[string]int64{},
	}
	w.engine = rules.NewEngine(opts.Cat, opts.Cfg, func() int64 { return w.now().UnixMilli() })
	return w
}

// Restore loads a persisted snapshot. Must be called before Run.
func (w *World) Restore(players []*state.Player, tiles []*state.Tile, buildings []*state.Building) {
	for _, p := range players {
		w.players[p.ID] = p
	}
	for _, t := range tiles {
		w.indexTile(t)
	}
	for _, b := range buildings {
		w.buildings[b.ID] = b
		if p, ok := w.players[b.OwnerID]; ok {
			p.Buildings = append(p.Buildings, b)
		}
	}
	w.log.Printf("restored %d players, %d tiles, %d buildings", len(players), len(tiles), len(buildings))
}

// SeedDemoPlayers registers the six demo leaderboard entries used on fresh
// worlds.
func (w *World) SeedDemoPlayers() {
	scores := []float64{0.12, 0.09, 0.07, 0.05, 0.03, 0.01}
	factions := []string{
		"Digital Nomads", "Pixel Pirates", "Code Crusaders",
		"Byte Builders", "Neural Networks", "Development",
	}
	nowMs := w.now().UnixMilli()
	for i, s := range scores {
		id := "player_" + string(rune('1'+i))
		w.ensurePlayer(id)
		w.players[id].FactionID = factions[i]
		w.players[id].LastTick = nowMs
		w.seedScores[id] = s
	}
}

// Run is the world loop. All state mutation happens here.
func (w *World) Run(ctx context.Context) {
	interval := time.Duration(w.cfg.GenerationIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	w.log.Printf("world loop up, generation interval %s", interval)
	for {
		select {
		case <-ctx.Done():
			w.log.Printf("world loop down at tick %d", w.tick)
			return
		case req := <-w.attachCh:
			w.handleAttach(req)
		case connID := <-w.detachCh:
			w.handleDetach(connID)
		case in := <-w.inbox:
			w.messagesIn++
			w.handleClientMsg(in.connID, in.msg)
		case req := <-w.placeCh:
			req.resp <- w.handlePlace(req)
		case req := <-w.lbCh:
			req.resp <- w.leaderboard(req.timeframe)
		case req := <-w.statusCh:
			req.resp <- w.status(req.playerID)
		case ch := <-w.statsCh:
			ch <- w.stats()
		case <-ticker.C:
			w.tickOnce()
		}
	}
}

// Attach registers a connection. The world replies on out with a greeting and
// a world snapshot.
func (w *World) Attach(connID, playerID string, out chan []byte) {
	w.attachCh <- attachReq{connID: connID, playerID: playerID, out: out}
}

func (w *World) Detach(connID string) {
	w.detachCh <- connID
}

// Submit queues one client frame for the world loop.
func (w *World) Submit(connID string, msg protocol.ClientMsg) {
	w.inbox <- inbound{connID: connID, msg: msg}
}

func (w *World) handleAttach(req attachReq) {
	c := &client{
		id:       req.connID,
		playerID: req.playerID,
		out:      req.out,
		shards:   map[string]struct{}{},
	}
	w.clients[req.connID] = c
	w.ensurePlayer(req.playerID)

	w.sendTo(c, protocol.TypeSystemMessage, protocol.SystemMessage{
		Message: "welcome to pixel dominion (protocol " + protocol.Version + ")",
	})
	w.sendTo(c, protocol.TypeWorldState, w.worldSnapshot())
	w.log.Printf("conn %s attached (player %s), %d clients", c.id, c.playerID, len(w.clients))
}

func (w *World) handleDetach(connID string) {
	c, ok := w.clients[connID]
	if !ok {
		return
	}
	for shard := range c.shards {
		delete(w.shardSubs[shard], connID)
		if len(w.shardSubs[shard]) == 0 {
			delete(w.shardSubs, shard)
		}
	}
	delete(w.clients, connID)
	w.log.Printf("conn %s detached, %d clients", connID, len(w.clients))
}

func (w *World) handleClientMsg(connID string, msg protocol.ClientMsg) {
	c, ok := w.clients[connID]
	if !ok {
		return
	}
	switch msg.Type {
	case protocol.TypeSubscribeShard:
		w.handleSubscribe(c, msg.ShardID)
	case protocol.TypeUnsubscribeShard:
		delete(c.shards, msg.ShardID)
		if subs, ok := w.shardSubs[msg.ShardID]; ok {
			delete(subs, connID)
			if len(subs) == 0 {
				delete(w.shardSubs, msg.ShardID)
			}
		}
	case protocol.TypePixelUpdate:
		w.handlePixelUpdate(c, msg)
	case protocol.TypePlaceBuilding:
		w.handlePlaceBuilding(c, msg)
	case protocol.TypeConvertResources:
		w.handleConvert(c, msg)
	case protocol.TypeApxAttack:
		w.handleApxAttack(c, msg)
	default:
		w.rejectTo(c, protocol.CodeBadRequest, "unknown message type %q", msg.Type)
	}
}

// handleSubscribe is idempotent: re-subscribing an already-subscribed shard
// just resends the snapshot.
func (w *World) handleSubscribe(c *client, shardID string) {
	if shardID == "" {
		w.rejectTo(c, protocol.CodeBadRequest, "subscribe_shard needs shard_id")
		return
	}
	c.shards[shardID] = struct{}{}
	subs, ok := w.shardSubs[shardID]
	if !ok {
		subs = map[string]*client{}
		w.shardSubs[shardID] = subs
	}
	subs[c.id] = c
	w.sendTo(c, protocol.TypeShardState, w.shardSnapshot(shardID))
}

// ensurePlayer lazily creates player records on first contact.
func (w *World) ensurePlayer(id string) *state.Player {
	if p, ok := w.players[id]; ok {
		return p
	}
	p := state.NewPlayer(id, "default", w.now().UnixMilli())
	p.Resources.Px = w.cfg.Starting.Px
	p.StorageCapacity = w.cfg.Starting.StorageCapacity
	p.TechLevel = w.cfg.Starting.TechLevel
	for i := 0; i < w.cfg.Starting.PaletteColors; i++ {
		if i < len(defaultPalette) {
			p.Palette[defaultPalette[i]] = struct{}{}
		} else {
			p.Palette[w.randomColor()] = struct{}{}
		}
	}
	w.players[id] = p
	w.record("player_joined", map[string]any{"player_id": id})
	w.persistPlayer(p)
	return p
}

func (w *World) indexTile(t *state.Tile) {
	id := t.Coord.ID()
	w.tiles[id] = t
	shard := grid.ShardID(t.Coord)
	idx, ok := w.shardIdx[shard]
	if !ok {
		idx = map[grid.TileID]*state.Tile{}
		w.shardIdx[shard] = idx
	}
	idx[id] = t
}

// Occupied implements rules.Occupancy.
func (w *World) Occupied(id grid.TileID) bool {
	_, ok := w.tiles[id]
	return ok
}

func (w *World) basePositions() []grid.TileCoord {
	var out []grid.TileCoord
	for _, b := range w.buildings {
		if b.Kind == "Base" {
			out = append(out, b.Position)
		}
	}
	return out
}

func (w *World) randomColor() string {
	const hex = "0123456789abcdef"
	b := make([]byte, 7)
	b[0] = '#'
	for i := 1; i < 7; i++ {
		b[i] = hex[w.rng.Intn(16)]
	}
	return string(b)
}

func (w *World) worldSnapshot() protocol.WorldState {
	snap := protocol.WorldState{Tick: w.tick, Players: len(w.players)}
	for _, t := range w.tiles {
		snap.Tiles = append(snap.Tiles, tileWire(t))
	}
	return snap
}

func (w *World) shardSnapshot(shardID string) protocol.ShardState {
	snap := protocol.ShardState{ShardID: shardID, Tiles: []protocol.PixelUpdate{}}
	for _, t := range w.shardIdx[shardID] {
		snap.Tiles = append(snap.Tiles, tileWire(t))
	}
	return snap
}

func tileWire(t *state.Tile) protocol.PixelUpdate {
	return protocol.PixelUpdate{
		TileID:  t.Coord.ID(),
		Color:   t.Color,
		Opacity: t.Opacity,
		OwnerID: t.OwnerID,
	}
}

func (w *World) record(kind string, data any) {
	if w.journal != nil {
		w.journal.Record(kind, data)
	}
}

func (w *World) persistPlayer(p *state.Player) {
	if w.store != nil {
		w.store.SavePlayer(p)
	}
}

func (w *World) persistTile(t *state.Tile) {
	if w.store != nil {
		w.store.SaveTile(t)
	}
}

func (w *World) persistBuilding(b *state.Building) {
	if w.store != nil {
		w.store.SaveBuilding(b)
	}
}

// tickOnce applies resource generation to every player and broadcasts the
// tick. Generation credit is computed from last_tick, so a ticker that fires
// late still credits the right number of intervals.
func (w *World) tickOnce() {
	w.tick++
	nowMs := w.now().UnixMilli()
	for _, p := range w.players {
		if w.applyGeneration(p, nowMs) > 0 {
			w.persistPlayer(p)
		}
	}
	w.checkVictories()
	w.checkGriefing()
	w.record("tick", map[string]any{"tick": w.tick})
	w.broadcastAll(protocol.TypeTickUpdate, protocol.TickUpdate{
		Tick:    w.tick,
		Message: "resources generated",
	})
	for _, c := range w.clients {
		if p, ok := w.players[c.playerID]; ok {
			w.sendTo(c, protocol.TypePlayerUpdate, playerWire(p))
		}
	}
}

func playerWire(p *state.Player) protocol.PlayerUpdate {
	return protocol.PlayerUpdate{
		PlayerID: p.ID,
		Resources: protocol.Resources{
			Px:  p.Resources.Px,
			Exp: p.Resources.Exp,
			Apx: p.Resources.Apx,
		},
		StorageCap:     p.StorageCapacity,
		GenerationRate: p.GenerationRate,
	}
}
