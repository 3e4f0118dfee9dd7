package world

import (
	"fmt"

	"pixeldominion/internal/game/grid"
	"pixeldominion/internal/protocol"
)

// send delivers a frame without ever blocking the world loop. If the client's
// queue is full the oldest frame is dropped to make room; if it is still full
// the new frame is dropped instead. Either way the dropped counter moves.
func (w *World) send(c *client, frame []byte) {
	select {
	case c.out <- frame:
		return
	default:
	}
	select {
	case <-c.out:
		w.droppedFrames++
	default:
	}
	select {
	case c.out <- frame:
	default:
		w.droppedFrames++
	}
}

func (w *World) sendTo(c *client, typ string, payload any) {
	frame, err := protocol.Encode(typ, payload, w.now())
	if err != nil {
		w.log.Printf("encode %s: %v", typ, err)
		return
	}
	w.send(c, frame)
}

// rejectTo reports a failed request back to its sender only.
func (w *World) rejectTo(c *client, code, format string, args ...any) {
	w.rejects[code]++
	w.sendTo(c, protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

// broadcastAll sends a frame to every connected client.
func (w *World) broadcastAll(typ string, payload any) {
	frame, err := protocol.Encode(typ, payload, w.now())
	if err != nil {
		w.log.Printf("encode %s: %v", typ, err)
		return
	}
	w.broadcasts++
	for _, c := range w.clients {
		w.send(c, frame)
	}
}

// broadcastShards sends a frame to the subscribers of every listed shard,
// at most once per client.
func (w *World) broadcastShards(shards []string, typ string, payload any) {
	frame, err := protocol.Encode(typ, payload, w.now())
	if err != nil {
		w.log.Printf("encode %s: %v", typ, err)
		return
	}
	w.broadcasts++
	seen := map[string]struct{}{}
	for _, shard := range shards {
		for id, c := range w.shardSubs[shard] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			w.send(c, frame)
		}
	}
}

// broadcastTiles fans per-tile pixel_updates out, each to its own tile's
// shard subscribers.
func (w *World) broadcastTiles(tiles []grid.TileCoord, updates []protocol.PixelUpdate) {
	for i, t := range tiles {
		w.broadcastShards([]string{grid.ShardID(t)}, protocol.TypePixelUpdate, updates[i])
	}
}

// sendPlayerUpdate pushes the player's fresh balances to every connection the
// player holds.
func (w *World) sendPlayerUpdate(playerID string) {
	p, ok := w.players[playerID]
	if !ok {
		return
	}
	for _, c := range w.clients {
		if c.playerID == playerID {
			w.sendTo(c, protocol.TypePlayerUpdate, playerWire(p))
		}
	}
}
