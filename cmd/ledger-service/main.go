package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/reel-prediction-ledger/internal/balancesync"
	"github.com/radieske/reel-prediction-ledger/internal/catalog"
	"github.com/radieske/reel-prediction-ledger/internal/ledger/codec"
	"github.com/radieske/reel-prediction-ledger/internal/ledger/slot"
	httpapi "github.com/radieske/reel-prediction-ledger/internal/ledger-service/http"
	"github.com/radieske/reel-prediction-ledger/internal/ledger-service/ws"
	"github.com/radieske/reel-prediction-ledger/internal/session"
	sharedcache "github.com/radieske/reel-prediction-ledger/internal/shared/cache"
	"github.com/radieske/reel-prediction-ledger/internal/shared/config"
	"github.com/radieske/reel-prediction-ledger/internal/shared/db"
	"github.com/radieske/reel-prediction-ledger/internal/shared/kafka"
	"github.com/radieske/reel-prediction-ledger/internal/shared/logger"
	"github.com/radieske/reel-prediction-ledger/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service",
		zap.String("service", cfg.ServiceName),
		zap.String("env", cfg.Env),
		zap.String("user_id", cfg.UserID),
		zap.String("slot_backend", cfg.SlotBackend),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// dependências conforme o backend do slot; memory roda sem infraestrutura
	var (
		pg          *sql.DB
		redisClient *redis.Client
		store       codec.Slot
	)
	switch cfg.SlotBackend {
	case "memory":
		store = slot.NewMemory()
	case "postgres", "redis":
		pg, err = db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		redisClient, err = sharedcache.ConnectRedis(cfg.RedisAddr)
		if err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redisClient.Close()

		if cfg.SlotBackend == "postgres" {
			if err := db.EnsureSchema(ctx, pg); err != nil {
				log.Fatal("ensure schema", zap.Error(err))
			}
			store = slot.NewPostgres(pg)
		} else {
			store = slot.NewRedis(redisClient)
		}
	default:
		log.Fatal("unknown slot backend", zap.String("slot_backend", cfg.SlotBackend))
	}

	// Métricas Prometheus do ledger
	writes := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_slot_writes_total", Help: "snapshots gravados no slot"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_slot_superseded_total", Help: "snapshots substituídos antes de gravar"})
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_balance_messages_consumed_total", Help: "mensagens balance_synced consumidas"})
	applied := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_balance_applied_total", Help: "saldos aplicados"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_balance_skipped_total", Help: "eventos de outros usuários"})
	drift := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_locked_drift_total", Help: "locked divergente do stake aberto"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(writes, dropped, consumed, applied, skipped, drift, errorsBy)

	led, err := session.Open(ctx, log, store, session.Options{
		Key:            cfg.SlotKey,
		ResetOnCorrupt: cfg.ResetOnCorrupt,
		WriteTimeout:   cfg.PersistTimeout,
		Retries:        cfg.PersistRetries,
		Backoff:        100 * time.Millisecond,
		OnWrite:        func() { writes.Inc() },
		OnError:        func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
		OnDrop:         func() { dropped.Inc() },
	})
	if err != nil {
		var ce *codec.CorruptStateError
		if errors.As(err, &ce) {
			log.Fatal("corrupt ledger state; set RESET_ON_CORRUPT=true to start empty", zap.String("key", ce.Key), zap.Error(err))
		}
		log.Fatal("open ledger session", zap.Error(err))
	}
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "ledger_predictions", Help: "predições pendentes na sessão"},
		func() float64 { return float64(led.Store.Len()) },
	))

	// catálogo: Postgres + cache Redis; local usa um catálogo fixo em memória
	var src catalog.Source
	if pg != nil && redisClient != nil {
		src = &catalog.Cached{
			Repo:  &catalog.ReadRepo{DB: pg},
			Cache: &catalog.Cache{R: redisClient, TTL: cfg.CatalogTTL},
		}
	} else {
		src = localCatalog()
	}

	// WS: com Redis as mudanças passam pelo Pub/Sub para chegar a todas as réplicas
	hub := ws.NewHub(func(r *http.Request) bool { return true })
	var broadcaster httpapi.Broadcaster = hub
	if redisClient != nil {
		ws.StartRedisSubscriber(ctx, log, redisClient, hub)
		broadcaster = &ws.Relay{R: redisClient, Log: log}
	}

	// consumer de saldo (Kafka)
	if cfg.KafkaBrokers != "" {
		reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicBalanceSynced, cfg.ConsumerGroup)
		defer reader.Close()
		dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBalanceSyncedDLQ)
		defer dlq.Close()

		cons := &balancesync.Consumer{
			Log:        log,
			Reader:     reader,
			DLQ:        dlq,
			Sink:       led.Store,
			UserID:     cfg.UserID,
			IsOpen:     catalog.OpenPredicate(ctx, src),
			OnConsumed: func() { consumed.Inc() },
			OnApplied:  func() { applied.Inc() },
			OnSkipped:  func() { skipped.Inc() },
			OnDrift:    func() { drift.Inc() },
			OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
		}
		go func() {
			if err := cons.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("balance consumer stopped", zap.Error(err))
			}
		}()
		log.Info("balance consumer started", zap.String("topic", cfg.TopicBalanceSynced), zap.String("group", cfg.ConsumerGroup))
	}

	// healthz: valida as dependências que estiverem em uso
	msrv := metrics.StartMetricsServer(log, cfg.MetricsPort, func(ctx context.Context) error {
		if pg != nil {
			if err := pg.PingContext(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	})

	api := httpapi.NewServer(log, led.Store, led, src, broadcaster)
	r := chi.NewRouter()
	r.Use(withCORS)
	r.Mount("/", api.Router())
	r.Get("/ws", hub.HandleWS)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http srv", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)

	// última gravação do ledger antes de sair
	if err := led.Close(shutdownCtx); err != nil {
		log.Error("ledger close", zap.Error(err))
	}
	log.Info("ledger-service stopped")
}

// withCORS libera o front local (SPA) a chamar a API
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// localCatalog é usado com SLOT_BACKEND=memory (sem Postgres)
func localCatalog() *catalog.Static {
	now := time.Now()
	pool, _ := new(big.Int).SetString("2500000000000000000000", 10)

	s := catalog.NewStatic()
	s.PutChallenge(catalog.Challenge{
		ID: "challenge-1", Title: "Best skate trick", Status: catalog.StatusActive,
		StartTime: now.Add(-time.Hour), EndTime: now.Add(24 * time.Hour),
		PoolAmount: pool, ReelCount: 2,
	})
	s.PutChallenge(catalog.Challenge{
		ID: "challenge-0", Title: "Sunset timelapse", Status: catalog.StatusSettled,
		StartTime: now.Add(-72 * time.Hour), EndTime: now.Add(-24 * time.Hour),
		PoolAmount: new(big.Int), WinnerReelID: "reel-0",
	})
	s.PutReel(catalog.Reel{ID: "reel-1", ChallengeID: "challenge-1", Title: "Kickflip", CreatorName: "ana", PoolAmount: new(big.Int)})
	s.PutReel(catalog.Reel{ID: "reel-2", ChallengeID: "challenge-1", Title: "Heelflip", CreatorName: "bruno", PoolAmount: new(big.Int)})
	s.PutReel(catalog.Reel{ID: "reel-0", ChallengeID: "challenge-0", Title: "Praia", CreatorName: "carla", PoolAmount: new(big.Int)})
	return s
}
