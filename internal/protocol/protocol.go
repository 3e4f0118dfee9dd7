package protocol

import (
	"encoding/json"
	"time"
)

const Version = "1.0"

// Client -> server message types.
const (
	TypeSubscribeShard   = "subscribe_shard"
	TypeUnsubscribeShard = "unsubscribe_shard"
	TypePixelUpdate      = "pixel_update"
	TypePlaceBuilding    = "place_building"
	TypeConvertResources = "convert_resources"
	TypeApxAttack        = "apx_attack"
)

// Server -> client message types.
const (
	TypeWorldState       = "world_state"
	TypeShardState       = "shard_state"
	TypeBuildingPlaced   = "building_placed"
	TypePlayerUpdate     = "player_update"
	TypeTickUpdate       = "tick_update"
	TypeSystemMessage    = "system_message"
	TypeConversionResult = "conversion_result"
	TypeError            = "error"
)

// Envelope is the server->client frame. Client->server messages are flat
// (fields next to "type"), see ClientMsg.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Encode wraps a payload in the standard envelope.
func Encode(typ string, data any, now time.Time) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Data: raw, Timestamp: now.UnixMilli()})
}

// DecodeType routes an unknown client frame by its type field.
func DecodeType(b []byte) (string, error) {
	var m struct {
		Type string `json:"type"`
	}
	err := json.Unmarshal(b, &m)
	return m.Type, err
}
