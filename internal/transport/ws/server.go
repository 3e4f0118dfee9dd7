// Package ws is the real-time gorilla/websocket endpoint. Each connection
// gets a bounded outbound queue drained by a writer goroutine; the read loop
// decodes client frames and queues them on the world inbox.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"pixeldominion/internal/game/tuning"
	"pixeldominion/internal/game/world"
	"pixeldominion/internal/protocol"
)

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 5 * time.Second
)

type Server struct {
	world *world.World
	log   *log.Logger
	cfg   tuning.WS

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, cfg tuning.WS, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		playerID := r.URL.Query().Get("player")
		if playerID == "" {
			playerID = "dev-player"
		}
		connID := uuid.NewString()
		out := make(chan []byte, s.cfg.SendQueueSize)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine: drains the world's queue for this connection.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case frame := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
					if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		s.world.Attach(connID, playerID, out)
		defer s.world.Detach(connID)

		// Reader loop. The limiter caps how fast one connection can push
		// frames into the shared world loop.
		limiter := rate.NewLimiter(rate.Limit(s.cfg.ReadRatePerSec), s.cfg.ReadBurst)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			typ, err := protocol.DecodeType(raw)
			if err != nil || typ == "" {
				continue
			}
			var msg protocol.ClientMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			s.world.Submit(connID, msg)
		}
	}
}
