package codec

import (
	"context"
	"errors"
	"fmt"

	"github.com/radieske/reel-prediction-ledger/internal/ledger"
)

// Slot é o armazenamento chave-valor durável onde o blob do ledger vive
type Slot interface {
	Read(ctx context.Context, key string) (blob []byte, ok bool, err error)
	Write(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
}

// Durable persiste a tabela de predictions em um slot nomeado.
// Saldos ficam de fora: são ressincronizados pela fonte externa ao iniciar.
type Durable struct {
	slot Slot
	key  string
}

func NewDurable(slot Slot, key string) *Durable { return &Durable{slot: slot, key: key} }

func (d *Durable) Key() string { return d.key }

// Save sobrescreve o slot com a tabela atual
func (d *Durable) Save(ctx context.Context, preds []ledger.Prediction) error {
	b, err := Encode(preds)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := d.slot.Write(ctx, d.key, b); err != nil {
		return fmt.Errorf("write slot %s: %w", d.key, err)
	}
	return nil
}

// Load lê o slot. Slot ausente devolve tabela vazia; blob inválido devolve *CorruptStateError.
func (d *Durable) Load(ctx context.Context) ([]ledger.Prediction, error) {
	b, ok, err := d.slot.Read(ctx, d.key)
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", d.key, err)
	}
	if !ok {
		return []ledger.Prediction{}, nil
	}
	preds, err := Decode(b)
	if err != nil {
		var ce *CorruptStateError
		if errors.As(err, &ce) {
			ce.Key = d.key
		}
		return nil, err
	}
	return preds, nil
}

// Clear remove o slot (logout/reset)
func (d *Durable) Clear(ctx context.Context) error {
	if err := d.slot.Delete(ctx, d.key); err != nil {
		return fmt.Errorf("delete slot %s: %w", d.key, err)
	}
	return nil
}
