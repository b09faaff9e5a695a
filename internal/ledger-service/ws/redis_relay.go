package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/reel-prediction-ledger/pkg/contracts/events"
)

// PubSubChannel é o canal Redis usado para espalhar mudanças entre réplicas
const PubSubChannel = "ledger_prediction_changed"

// Relay publica mudanças no Redis em vez de entregar direto ao Hub local.
// Cada réplica roda StartRedisSubscriber e entrega aos seus clientes.
type Relay struct {
	R   *redis.Client
	Log *zap.Logger
}

func (p *Relay) Broadcast(ev events.PredictionChanged) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := p.R.Publish(context.Background(), PubSubChannel, b).Err(); err != nil {
		p.Log.Warn("relay publish failed", zap.Error(err), zap.String("challenge_id", ev.ChallengeID))
	}
}

// StartRedisSubscriber escuta o canal e repassa ao hub até ctx encerrar
func StartRedisSubscriber(ctx context.Context, log *zap.Logger, r *redis.Client, hub *Hub) {
	sub := r.Subscribe(ctx, PubSubChannel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev events.PredictionChanged
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Warn("ws subscriber unmarshal", zap.Error(err))
					continue
				}
				hub.Broadcast(ev)
			}
		}
	}()
}
