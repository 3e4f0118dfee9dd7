// Package httpapi serves the synchronous REST surface: place actions and the
// leaderboard. Every response uses the same envelope so clients have one
// decode path.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"pixeldominion/internal/game/grid"
	"pixeldominion/internal/game/rules"
	"pixeldominion/internal/game/world"
	"pixeldominion/internal/protocol"
)

// Envelope is the uniform API response shape. Error is the human-readable
// reason; Code carries the machine E_* code alongside it.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type Server struct {
	world *world.World
	log   *log.Logger
	now   func() time.Time
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{world: w, log: logger, now: time.Now}
}

// placeBody is the POST /api/v1/place request.
type placeBody struct {
	Action       string               `json:"action"`
	Tiles        []protocol.TileCoord `json:"tiles,omitempty"`
	Color        string               `json:"color,omitempty"`
	BuildingType string               `json:"building_type,omitempty"`
	Position     *protocol.TileCoord  `json:"position,omitempty"`
}

func (s *Server) PlaceHandler() http.HandlerFunc {
	return s.recovered(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.fail(rw, http.StatusMethodNotAllowed, protocol.CodeBadRequest, "POST only")
			return
		}
		var body placeBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.fail(rw, http.StatusBadRequest, protocol.CodeBadRequest, "malformed JSON body")
			return
		}
		req := world.PlaceRequest{
			PlayerID: playerID(r),
			Action:   body.Action,
			Color:    body.Color,
			Kind:     body.BuildingType,
		}
		for _, t := range body.Tiles {
			req.Tiles = append(req.Tiles, grid.TileCoord{LatIdx: t.LatIdx, LonIdx: t.LonIdx})
		}
		if body.Position != nil {
			req.Position = grid.TileCoord{LatIdx: body.Position.LatIdx, LonIdx: body.Position.LonIdx}
		}

		data, err := s.world.Place(req)
		if err != nil {
			var v *rules.Violation
			if errors.As(err, &v) {
				s.fail(rw, statusFor(v.Code), v.Code, v.Reason)
				return
			}
			s.fail(rw, http.StatusInternalServerError, protocol.CodeInternal, "internal error")
			return
		}
		s.ok(rw, data)
	})
}

func (s *Server) LeaderboardHandler() http.HandlerFunc {
	return s.recovered(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.fail(rw, http.StatusMethodNotAllowed, protocol.CodeBadRequest, "GET only")
			return
		}
		timeframe := r.URL.Query().Get("timeframe")
		if timeframe == "" {
			timeframe = world.TimeframeDay
		}
		if timeframe != world.TimeframeDay && timeframe != world.TimeframeAllTime {
			s.fail(rw, http.StatusBadRequest, protocol.CodeBadRequest, "timeframe must be 24h or all-time")
			return
		}
		s.ok(rw, s.world.Leaderboard(timeframe))
	})
}

// StatusHandler reports a player's victory/defeat standing and any griefing
// flags.
func (s *Server) StatusHandler() http.HandlerFunc {
	return s.recovered(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.fail(rw, http.StatusMethodNotAllowed, protocol.CodeBadRequest, "GET only")
			return
		}
		id := r.URL.Query().Get("player")
		if id == "" {
			id = playerID(r)
		}
		s.ok(rw, s.world.Status(id))
	})
}

// recovered converts handler panics into a generic internal error; internals
// never reach the client.
func (s *Server) recovered(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Printf("panic in %s: %v", r.URL.Path, rec)
				s.fail(rw, http.StatusInternalServerError, protocol.CodeInternal, "internal error")
			}
		}()
		h(rw, r)
	}
}

func playerID(r *http.Request) string {
	if id := r.Header.Get("X-Player-ID"); id != "" {
		return id
	}
	return "dev-player"
}

func statusFor(code string) int {
	switch code {
	case protocol.CodeRateLimit:
		return http.StatusTooManyRequests
	case protocol.CodeBadRequest, protocol.CodeNotGrayscale, protocol.CodeUnknownKind:
		return http.StatusBadRequest
	case protocol.CodeNoResource, protocol.CodePrereq, protocol.CodeStorage,
		protocol.CodeOccupied, protocol.CodeTooClose, protocol.CodeCooldown:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) ok(rw http.ResponseWriter, data any) {
	s.write(rw, http.StatusOK, Envelope{Success: true, Data: data, Timestamp: s.now().UnixMilli()})
}

func (s *Server) fail(rw http.ResponseWriter, status int, code, message string) {
	s.write(rw, status, Envelope{
		Success:   false,
		Error:     message,
		Code:      code,
		Timestamp: s.now().UnixMilli(),
	})
}

func (s *Server) write(rw http.ResponseWriter, status int, env Envelope) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(env); err != nil {
		s.log.Printf("write response: %v", err)
	}
}
