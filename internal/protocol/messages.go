package protocol

// TileCoord is the wire form of a grid address.
type TileCoord struct {
	LatIdx int `json:"lat_idx"`
	LonIdx int `json:"lon_idx"`
}

// Resources is the wire form of a player's balances.
type Resources struct {
	Px  int `json:"px"`
	Exp int `json:"exp"`
	Apx int `json:"apx"`
}

// ClientMsg covers every client->server frame. The type field decides which
// of the optional fields are meaningful.
type ClientMsg struct {
	Type string `json:"type"`

	// subscribe_shard / unsubscribe_shard
	ShardID string `json:"shard_id,omitempty"`

	// pixel_update
	TileID  string  `json:"tile_id,omitempty"`
	Color   string  `json:"color,omitempty"`
	Opacity float64 `json:"opacity,omitempty"`
	OwnerID string  `json:"owner_id,omitempty"`

	// place_building / apx_attack
	BuildingType string     `json:"building_type,omitempty"`
	Shape        string     `json:"shape,omitempty"`
	Position     *TileCoord `json:"position,omitempty"`

	// convert_resources
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Amount int    `json:"amount,omitempty"`
}

// PixelUpdate (server -> client): one tile changed.
type PixelUpdate struct {
	TileID  string  `json:"tile_id"`
	Color   string  `json:"color"`
	Opacity float64 `json:"opacity"`
	OwnerID string  `json:"owner_id,omitempty"`
}

// ShardState (server -> client): full snapshot of one shard, sent on subscribe.
type ShardState struct {
	ShardID string        `json:"shard_id"`
	Tiles   []PixelUpdate `json:"tiles"`
}

// WorldState (server -> client): full snapshot, sent once on connect.
type WorldState struct {
	Tick    int64         `json:"tick"`
	Players int           `json:"players"`
	Tiles   []PixelUpdate `json:"tiles"`
}

// BuildingPlaced (server -> client).
type BuildingPlaced struct {
	ID            string    `json:"id"`
	BuildingType  string    `json:"building_type"`
	Position      TileCoord `json:"position"`
	OwnerID       string    `json:"owner_id"`
	AffectedTiles []string  `json:"affected_tiles"`
}

// PlayerUpdate (server -> client): resource/capacity changes for one player.
type PlayerUpdate struct {
	PlayerID       string    `json:"playerId"`
	Resources      Resources `json:"resources"`
	StorageCap     int       `json:"storage_capacity"`
	GenerationRate int       `json:"generation_rate"`
}

// TickUpdate (server -> client): broadcast after every generation tick.
type TickUpdate struct {
	Tick    int64  `json:"tick"`
	Message string `json:"message"`
}

// SystemMessage (server -> client).
type SystemMessage struct {
	Message string `json:"message"`
}

// ConversionResult (server -> client): reply to convert_resources.
type ConversionResult struct {
	Success bool   `json:"success"`
	From    string `json:"from"`
	To      string `json:"to"`
	Amount  int    `json:"amount"`
	Cost    int    `json:"cost"`
}

// ErrorMsg (server -> client): a rejected request.
type ErrorMsg struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
