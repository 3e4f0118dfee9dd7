package world

// Stats is a point-in-time counter snapshot taken on the world loop, exposed
// on /metrics.
type Stats struct {
	Tick          int64
	Players       int
	Tiles         int
	Buildings     int
	Clients       int
	ShardSubs     int
	MessagesIn    int64
	Broadcasts    int64
	DroppedFrames int64
	Rejects       map[string]int64
}

// Stats snapshots the counters on the world loop.
func (w *World) Stats() Stats {
	ch := make(chan Stats, 1)
	w.statsCh <- ch
	return <-ch
}

func (w *World) stats() Stats {
	subs := 0
	for _, m := range w.shardSubs {
		subs += len(m)
	}
	rejects := make(map[string]int64, len(w.rejects))
	for code, n := range w.rejects {
		rejects[code] = n
	}
	return Stats{
		Tick:          w.tick,
		Players:       len(w.players),
		Tiles:         len(w.tiles),
		Buildings:     len(w.buildings),
		Clients:       len(w.clients),
		ShardSubs:     subs,
		MessagesIn:    w.messagesIn,
		Broadcasts:    w.broadcasts,
		DroppedFrames: w.droppedFrames,
		Rejects:       rejects,
	}
}
