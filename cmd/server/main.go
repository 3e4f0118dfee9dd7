// Command server runs the authoritative Pixel Dominion world: the WS
// endpoint, the REST API, and the generation loop, backed by sqlite and an
// action journal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"pixeldominion/internal/game/catalog"
	"pixeldominion/internal/game/tuning"
	"pixeldominion/internal/game/world"
	"pixeldominion/internal/httpapi"
	"pixeldominion/internal/persistence/journal"
	"pixeldominion/internal/persistence/store"
	"pixeldominion/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dbPath     = flag.String("db", "", "sqlite path (default: <data>/world.db)")
		disableDB  = flag.Bool("disable_db", false, "run without durable storage")
		seedDemo   = flag.Bool("seed_demo", false, "seed the demo leaderboard players")
		rngSeed    = flag.Int64("seed", 0, "rng seed for palette colors (0 = time-based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	cfg, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("tuning: %v", err)
		}
		logger.Printf("no tuning.yaml at %s, using defaults", tp)
		cfg = tuning.Defaults()
	}

	cat, err := catalog.Load(*configDir)
	if err != nil {
		logger.Fatalf("catalog: %v", err)
	}
	logger.Printf("catalog loaded: %d building kinds, buildings digest %.12s", len(cat.Kinds()), cat.BuildingsDigest)

	ctx, cancel := signalContext()
	defer cancel()

	var rng *rand.Rand
	if *rngSeed != 0 {
		rng = rand.New(rand.NewSource(*rngSeed))
	}

	jl := journal.New(filepath.Join(*dataDir, "journal"), logger)
	defer jl.Close()

	opts := world.Options{
		Log:     log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds),
		Cfg:     cfg,
		Cat:     cat,
		Rand:    rng,
		Journal: jl,
		Jitter:  leaderboardJitter(),
	}

	var repo store.Repository
	if !*disableDB {
		path := *dbPath
		if path == "" {
			path = filepath.Join(*dataDir, "world.db")
		}
		sq, err := store.OpenSQLite(path, logger)
		if err != nil {
			logger.Fatalf("sqlite: %v", err)
		}
		defer sq.Close()
		repo = sq
		opts.Store = sq
	}

	w := world.New(opts)
	if repo != nil {
		snap, err := repo.Load()
		if err != nil {
			logger.Fatalf("restore: %v", err)
		}
		w.Restore(snap.Players, snap.Tiles, snap.Buildings)
	}
	if *seedDemo {
		w.SeedDemoPlayers()
	}
	go w.Run(ctx)

	api := httpapi.NewServer(w, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w))
	mux.HandleFunc("/api/v1/place", api.PlaceHandler())
	mux.HandleFunc("/api/v1/leaderboard", api.LeaderboardHandler())
	mux.HandleFunc("/api/v1/status", api.StatusHandler())
	mux.HandleFunc("/v1/ws", ws.NewServer(w, cfg.WS, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// metricsHandler writes the minimal Prometheus exposition format.
func metricsHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := w.Stats()

		fmt.Fprintf(rw, "# HELP pixeldominion_world_tick Current generation tick.\n")
		fmt.Fprintf(rw, "# TYPE pixeldominion_world_tick counter\n")
		fmt.Fprintf(rw, "pixeldominion_world_tick %d\n", m.Tick)

		fmt.Fprintf(rw, "# HELP pixeldominion_players Known players.\n")
		fmt.Fprintf(rw, "# TYPE pixeldominion_players gauge\n")
		fmt.Fprintf(rw, "pixeldominion_players %d\n", m.Players)

		fmt.Fprintf(rw, "# HELP pixeldominion_tiles Occupied tiles.\n")
		fmt.Fprintf(rw, "# TYPE pixeldominion_tiles gauge\n")
		fmt.Fprintf(rw, "pixeldominion_tiles %d\n", m.Tiles)

		fmt.Fprintf(rw, "# HELP pixeldominion_buildings Placed buildings.\n")
		fmt.Fprintf(rw, "# TYPE pixeldominion_buildings gauge\n")
		fmt.Fprintf(rw, "pixeldominion_buildings %d\n", m.Buildings)

		fmt.Fprintf(rw, "# HELP pixeldominion_clients Connected websocket clients.\n")
		fmt.Fprintf(rw, "# TYPE pixeldominion_clients gauge\n")
		fmt.Fprintf(rw, "pixeldominion_clients %d\n", m.Clients)

		fmt.Fprintf(rw, "# HELP pixeldominion_shard_subscriptions Active shard subscriptions.\n")
		fmt.Fprintf(rw, "# TYPE pixeldominion_shard_subscriptions gauge\n")
		fmt.Fprintf(rw, "pixeldominion_shard_subscriptions %d\n", m.ShardSubs)

		fmt.Fprintf(rw, "# HELP pixeldominion_messages_in_total Client frames processed.\n")
		fmt.Fprintf(rw, "# TYPE pixeldominion_messages_in_total counter\n")
		fmt.Fprintf(rw, "pixeldominion_messages_in_total %d\n", m.MessagesIn)

		fmt.Fprintf(rw, "# HELP pixeldominion_broadcasts_total Broadcast fan-outs.\n")
		fmt.Fprintf(rw, "# TYPE pixeldominion_broadcasts_total counter\n")
		fmt.Fprintf(rw, "pixeldominion_broadcasts_total %d\n", m.Broadcasts)

		fmt.Fprintf(rw, "# HELP pixeldominion_dropped_frames_total Frames dropped on full client queues.\n")
		fmt.Fprintf(rw, "# TYPE pixeldominion_dropped_frames_total counter\n")
		fmt.Fprintf(rw, "pixeldominion_dropped_frames_total %d\n", m.DroppedFrames)

		fmt.Fprintf(rw, "# HELP pixeldominion_rejects_total Rejected requests by reason code.\n")
		fmt.Fprintf(rw, "# TYPE pixeldominion_rejects_total counter\n")
		codes := make([]string, 0, len(m.Rejects))
		for code := range m.Rejects {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			fmt.Fprintf(rw, "pixeldominion_rejects_total{code=%q} %d\n", code, m.Rejects[code])
		}
	}
}

// leaderboardJitter is the +-15% presentation variance applied to scores.
func leaderboardJitter() func() float64 {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func() float64 {
		return (rng.Float64() - 0.5) * 0.3
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
