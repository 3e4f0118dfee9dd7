package world

import (
	"pixeldominion/internal/game/econ"
	"pixeldominion/internal/game/rules"
	"pixeldominion/internal/protocol"
)

const activityWindowMs = int64(3_600_000)

// PlayerStatus is the on-demand win/loss standing of one player, served next
// to the leaderboard.
type PlayerStatus struct {
	PlayerID  string              `json:"player_id"`
	Dominance float64             `json:"dominance_score"`
	Victory   econ.VictoryResult  `json:"victory"`
	Defeat    econ.DefeatResult   `json:"defeat"`
	Griefing  []rules.GriefReport `json:"griefing,omitempty"`
}

type statusReq struct {
	playerID string
	resp     chan PlayerStatus
}

// Status computes a player's standing on the world loop and returns it.
func (w *World) Status(playerID string) PlayerStatus {
	req := statusReq{playerID: playerID, resp: make(chan PlayerStatus, 1)}
	w.statusCh <- req
	return <-req.resp
}

func (w *World) status(playerID string) PlayerStatus {
	p := w.ensurePlayer(playerID)
	nowMs := w.now().UnixMilli()
	return PlayerStatus{
		PlayerID:  playerID,
		Dominance: econ.DominanceScore(p, w.cfg.TotalWorldTiles),
		Victory:   econ.CheckVictory(p, w.cfg.TotalWorldTiles, len(w.players)),
		Defeat:    econ.CheckDefeat(w.cat, p, nowMs, int64(w.cfg.GracePeriodMs)),
		Griefing:  rules.DetectGriefing(w.activityOf(playerID).ActivityWindow),
	}
}

// activity is a player's fixed hourly behaviour window feeding the griefing
// heuristics. flagged suppresses repeat reports within one window.
type activity struct {
	rules.ActivityWindow
	resetAt int64
	flagged bool
}

func (w *World) activityOf(playerID string) *activity {
	nowMs := w.now().UnixMilli()
	a, ok := w.activity[playerID]
	if !ok || nowMs >= a.resetAt {
		a = &activity{resetAt: nowMs + activityWindowMs}
		a.ApxByTarget = map[string]int{}
		w.activity[playerID] = a
	}
	return a
}

// checkVictories announces each victory once. A lone player on a fresh world
// is not a conquest, so worlds with a single player are skipped.
func (w *World) checkVictories() {
	if len(w.players) <= 1 {
		return
	}
	for id, p := range w.players {
		if w.victoryWon[id] {
			continue
		}
		v := econ.CheckVictory(p, w.cfg.TotalWorldTiles, len(w.players))
		if !v.HasWon {
			continue
		}
		w.victoryWon[id] = true
		w.log.Printf("player %s won: %s", id, v.Reason)
		w.record("victory", map[string]any{"player_id": id, "reason": v.Reason})
		w.broadcastAll(protocol.TypeSystemMessage, protocol.SystemMessage{
			Message: "player " + id + " achieved victory: " + v.Reason,
		})
	}
}

// checkGriefing logs and journals newly flagged activity windows. Advisory
// only; nothing is blocked.
func (w *World) checkGriefing() {
	nowMs := w.now().UnixMilli()
	for id, a := range w.activity {
		if nowMs >= a.resetAt {
			delete(w.activity, id)
			continue
		}
		if a.flagged {
			continue
		}
		reports := rules.DetectGriefing(a.ActivityWindow)
		if len(reports) == 0 {
			continue
		}
		a.flagged = true
		for _, r := range reports {
			w.log.Printf("griefing flagged for %s: %s (%s)", id, r.Pattern, r.Severity)
		}
		w.record("griefing_flagged", map[string]any{"player_id": id, "reports": reports})
	}
}
