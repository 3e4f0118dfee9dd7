package world

import (
	"sort"

	"pixeldominion/internal/game/econ"
)

// Leaderboard timeframes and their entry caps.
const (
	TimeframeDay     = "24h"
	TimeframeAllTime = "all-time"

	dayCap     = 20
	allTimeCap = 50

	dayMs = int64(24 * 60 * 60 * 1000)
)

// LeaderboardEntry is one ranked row. DominanceScore is the dominance
// fraction, plus the demo seed component and presentation jitter when
// configured.
type LeaderboardEntry struct {
	Rank           int     `json:"rank"`
	PlayerID       string  `json:"player_id"`
	FactionName    string  `json:"faction_name"`
	DominanceScore float64 `json:"dominance_score"`
	Territories    int     `json:"territories_count"`
	Buildings      int     `json:"buildings_count"`
	TechLevel      int     `json:"tech_level"`
}

type leaderboardReq struct {
	timeframe string
	resp      chan []LeaderboardEntry
}

// Leaderboard computes the ranking on the world loop and returns it.
func (w *World) Leaderboard(timeframe string) []LeaderboardEntry {
	req := leaderboardReq{timeframe: timeframe, resp: make(chan []LeaderboardEntry, 1)}
	w.lbCh <- req
	return <-req.resp
}

func (w *World) leaderboard(timeframe string) []LeaderboardEntry {
	nowMs := w.now().UnixMilli()
	limit := allTimeCap
	cutoff := int64(0)
	if timeframe == TimeframeDay {
		limit = dayCap
		cutoff = nowMs - dayMs
	}

	entries := make([]LeaderboardEntry, 0, len(w.players))
	for _, p := range w.players {
		if p.LastTick < cutoff {
			continue
		}
		score := econ.DominanceScore(p, w.cfg.TotalWorldTiles) + w.seedScores[p.ID]
		if w.jitter != nil {
			score *= 1 + w.jitter()
		}
		entries = append(entries, LeaderboardEntry{
			PlayerID:       p.ID,
			FactionName:    p.FactionID,
			DominanceScore: score,
			Territories:    len(p.OwnedTerritories),
			Buildings:      len(p.Buildings),
			TechLevel:      p.TechLevel,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DominanceScore != entries[j].DominanceScore {
			return entries[i].DominanceScore > entries[j].DominanceScore
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
