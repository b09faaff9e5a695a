package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/reel-prediction-ledger/internal/shared/config"
	"github.com/radieske/reel-prediction-ledger/internal/shared/kafka"
	"github.com/radieske/reel-prediction-ledger/internal/shared/logger"
	"github.com/radieske/reel-prediction-ledger/internal/shared/metrics"
	"github.com/radieske/reel-prediction-ledger/pkg/contracts/events"
)

// 1 token = 10^18 unidades base
var oneToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

var published = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "balance_sim_published_total",
	Help: "eventos balance_synced publicados por motivo",
}, []string{"reason"})

// wallet é o saldo simulado de um usuário
type wallet struct {
	available *big.Int
	locked    *big.Int
}

// next aplica um movimento aleatório e devolve o motivo
func (w *wallet) next(rnd *rand.Rand) string {
	switch rnd.Intn(3) {
	case 0:
		amt := new(big.Int).Mul(big.NewInt(int64(rnd.Intn(500)+1)), oneToken)
		w.available.Add(w.available, amt)
		return "deposit"
	case 1:
		// settlement: parte do locked volta como prêmio
		if w.locked.Sign() > 0 {
			back := new(big.Int).Div(w.locked, big.NewInt(2))
			w.locked.Sub(w.locked, back)
			w.available.Add(w.available, new(big.Int).Mul(back, big.NewInt(2)))
		}
		return "settlement"
	default:
		// refresh: move um pouco do disponível para locked
		move := new(big.Int).Div(w.available, big.NewInt(10))
		w.available.Sub(w.available, move)
		w.locked.Add(w.locked, move)
		return "refresh"
	}
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	prometheus.MustRegister(published)
	msrv := metrics.StartMetricsServer(log, cfg.MetricsPort, nil)
	defer msrv.Close()

	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBalanceSynced)
	defer writer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	w := &wallet{
		available: new(big.Int).Mul(big.NewInt(1000), oneToken),
		locked:    new(big.Int),
	}

	log.Info("balance-simulator started",
		zap.String("topic", cfg.TopicBalanceSynced),
		zap.String("user_id", cfg.UserID),
		zap.Duration("interval", cfg.SimInterval),
	)

	ticker := time.NewTicker(cfg.SimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("balance-simulator stopped")
			return
		case <-ticker.C:
			reason := w.next(rnd)
			ev := events.BalanceSynced{
				EventID:   uuid.NewString(),
				UserID:    cfg.UserID,
				Available: w.available.String(),
				Locked:    w.locked.String(),
				Reason:    reason,
				Ts:        time.Now().UTC(),
			}
			b, _ := json.Marshal(ev)

			wctx, wcancel := context.WithTimeout(ctx, 2*time.Second)
			err := kafka.WriteJSON(wctx, writer, ev.UserID, b)
			wcancel()
			if err != nil {
				log.Warn("publish balance_synced failed", zap.Error(err), zap.String("event_id", ev.EventID))
				continue
			}
			published.WithLabelValues(reason).Inc()
			log.Debug("balance_synced published",
				zap.String("event_id", ev.EventID),
				zap.String("reason", reason),
				zap.String("available", ev.Available),
				zap.String("locked", ev.Locked),
			)
		}
	}
}
