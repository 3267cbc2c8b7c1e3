package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"go-ai-chat/internal/archive"
	"go-ai-chat/internal/chat"
	"go-ai-chat/internal/config"
	"go-ai-chat/internal/db"
	"go-ai-chat/internal/group"
	"go-ai-chat/internal/history"
	"go-ai-chat/internal/llm"
	"go-ai-chat/internal/logger"
	"go-ai-chat/internal/metrics"
	myMiddleware "go-ai-chat/internal/middleware"
	"go-ai-chat/internal/stream"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// 1. Config & Flags
	addr := flag.String("addr", "", "http service address (overrides ADDR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	log := logger.New(cfg)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	if cfg.OpenAIModel == "" {
		return llm.ErrNoModel
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Transcript archive (Platform Layer, optional)
	var (
		archiver    chat.Archiver
		transcripts chat.TranscriptReader
	)
	if cfg.ArchiveEnabled() {
		database, err := db.NewDatabase(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer database.Close()
		if err := database.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		repo := archive.NewRepository(database.Conn)
		archiver, transcripts = repo, repo
		log.Info().Msg("transcript archive enabled")
	}

	// 3. Fan-out: local hub, optionally relayed through Redis
	hub := chat.NewHub(log)
	var (
		broadcaster chat.Broadcaster = hub
		relay       *chat.RedisRelay
	)
	if cfg.RedisEnabled() {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		relay = chat.NewRedisRelay(hub, redisClient, cfg.RedisChannel, log)
		broadcaster = relay
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis relay enabled")
	}

	// 4. Chat feature
	store := history.NewStore(cfg.HistoryMaxTurns)
	generator := llm.NewOpenAIGenerator(llm.OpenAIConfig{
		APIKey:     cfg.OpenAIAPIKey,
		Endpoint:   cfg.OpenAIEndpoint,
		Azure:      cfg.OpenAIAzure,
		APIVersion: cfg.OpenAIAPIVersion,
	})
	coord := chat.NewCoordinator(chat.Deps{
		Membership:  group.NewMembership(),
		History:     store,
		Coalescer:   stream.NewCoalescer(cfg.FlushThreshold),
		Generator:   generator,
		Broadcaster: broadcaster,
		Archive:     archiver,
		Log:         log,
	}, chat.Options{
		AssistantPrefix:    cfg.AssistantPrefix,
		AssistantName:      cfg.AssistantName,
		Model:              cfg.OpenAIModel,
		SecurityEnabled:    cfg.DefenderEnabled,
		ApplicationName:    cfg.ApplicationName,
		GenerationTimeout:  cfg.GenerationTimeout,
		CancelOnDisconnect: cfg.CancelOnDisconnect,
	})
	hub.OnDisconnect(coord.Disconnect)

	chatHandler := chat.NewHandler(hub, coord, log)
	api := chat.NewAPI(store, transcripts)
	clientContext := myMiddleware.NewClientContext(cfg.TrustForwarded)

	// 5. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.With(clientContext.Handle).Get("/groupChat", chatHandler.ServeWs)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(hub.Stats())
	})
	r.Handle("/metrics", metrics.Handler())
	r.Route("/api/groups/{group}", func(r chi.Router) {
		r.Get("/history", api.GetGroupHistory)
		r.Get("/transcript", api.GetTranscript)
	})
	r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. Start the engines
	return serve(ctx, engines{srv: srv, hub: hub, relay: relay, coord: coord, log: log})
}

type engines struct {
	srv   *http.Server
	hub   *chat.Hub
	relay *chat.RedisRelay // nil without Redis
	coord *chat.Coordinator
	log   zerolog.Logger
}

// serve runs until ctx ends or a component fails. Fan-out stays up until
// in-flight generations have finished, so their final events still reach
// the group.
func serve(ctx context.Context, e engines) error {
	fanoutCtx, stopFanout := context.WithCancel(context.Background())
	defer stopFanout()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.hub.Run(fanoutCtx)
		return nil
	})
	if e.relay != nil {
		g.Go(func() error {
			if err := e.relay.Subscribe(fanoutCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("redis subscribe: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		e.log.Info().Str("addr", e.srv.Addr).Msg("server starting")
		if err := e.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer stopFanout()
		<-gctx.Done()
		e.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.srv.Shutdown(shutdownCtx); err != nil {
			e.log.Warn().Err(err).Msg("http shutdown")
		}
		if err := e.coord.Shutdown(shutdownCtx); err != nil {
			e.log.Warn().Err(err).Msg("generations still running at shutdown were cancelled")
		}
		return nil
	})

	return g.Wait()
}
