package balancesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/reel-prediction-ledger/internal/ledger"
	"github.com/radieske/reel-prediction-ledger/pkg/contracts/events"
)

// Reader é o lado de leitura do kafka.Reader usado pelo consumer
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Writer é usado para a DLQ
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Sink recebe os saldos autoritativos (ledger.Store)
type Sink interface {
	SetBalances(available, locked *big.Int) error
	LockedDrift(isOpen func(challengeID string) bool) *big.Int
}

var errOtherUser = errors.New("event for another user")

// Consumer consome eventos balance_synced do Kafka e aplica no ledger do usuário.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa.
type Consumer struct {
	Log    *zap.Logger
	Reader Reader
	DLQ    Writer // opcional
	Sink   Sink
	UserID string

	// IsOpen habilita o log de divergência entre locked e o stake aberto
	IsOpen func(challengeID string) bool

	OnConsumed func()
	OnApplied  func()
	OnSkipped  func()
	OnDrift    func()
	OnError    func(string)

	RetryDelay time.Duration
}

// Run inicia o loop de consumo até o contexto ser cancelado
func (c *Consumer) Run(ctx context.Context) error {
	delay := c.RetryDelay
	if delay == 0 {
		delay = 500 * time.Millisecond
	}
	for {
		m, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Log.Warn("kafka read failed", zap.Error(err))
			c.fail("read")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		if c.OnConsumed != nil {
			c.OnConsumed()
		}

		ev, err := c.Apply(m.Value)
		switch {
		case errors.Is(err, errOtherUser):
			if c.OnSkipped != nil {
				c.OnSkipped()
			}
		case err != nil:
			c.Log.Warn("invalid balance event", zap.ByteString("key", m.Key), zap.Error(err))
			c.fail("decode")
			c.toDLQ(ctx, m)
		default:
			c.checkDrift(ev)
			if c.OnApplied != nil {
				c.OnApplied()
			}
		}
	}
}

// Apply valida o payload e grava os dois saldos. Nada é aplicado se um dos valores for inválido.
func (c *Consumer) Apply(payload []byte) (events.BalanceSynced, error) {
	var ev events.BalanceSynced
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, fmt.Errorf("decode balance event: %w", err)
	}
	if c.UserID != "" && ev.UserID != c.UserID {
		return ev, errOtherUser
	}
	available, err := ledger.ParseAmount(ev.Available)
	if err != nil {
		return ev, fmt.Errorf("available %q: %w", ev.Available, err)
	}
	locked, err := ledger.ParseAmount(ev.Locked)
	if err != nil {
		return ev, fmt.Errorf("locked %q: %w", ev.Locked, err)
	}
	if err := c.Sink.SetBalances(available, locked); err != nil {
		return ev, err
	}
	return ev, nil
}

func (c *Consumer) checkDrift(ev events.BalanceSynced) {
	if c.IsOpen == nil {
		return
	}
	drift := c.Sink.LockedDrift(c.IsOpen)
	if drift.Sign() == 0 {
		return
	}
	c.Log.Warn("locked balance diverges from open predictions",
		zap.String("event_id", ev.EventID),
		zap.String("reason", ev.Reason),
		zap.String("drift", drift.String()),
	)
	if c.OnDrift != nil {
		c.OnDrift()
	}
}

func (c *Consumer) toDLQ(ctx context.Context, m kafka.Message) {
	if c.DLQ == nil {
		return
	}
	if err := c.DLQ.WriteMessages(ctx, kafka.Message{Key: m.Key, Value: m.Value, Time: time.Now()}); err != nil {
		c.Log.Warn("dlq write failed", zap.Error(err))
		c.fail("dlq")
	}
}

func (c *Consumer) fail(stage string) {
	if c.OnError != nil {
		c.OnError(stage)
	}
}
