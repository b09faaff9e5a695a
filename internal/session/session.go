package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/reel-prediction-ledger/internal/ledger"
	"github.com/radieske/reel-prediction-ledger/internal/ledger/codec"
	"github.com/radieske/reel-prediction-ledger/internal/ledger/persist"
)

// Options controla a carga e a persistência de uma sessão
type Options struct {
	Key            string        // nome do slot durável (um por usuário/instalação)
	ResetOnCorrupt bool          // limpa o slot e começa vazio se o blob estiver corrompido
	WriteTimeout   time.Duration // timeout de cada escrita no slot
	Retries        int
	Backoff        time.Duration

	OnWrite func()
	OnError func(string)
	OnDrop  func()
}

// Ledger é a instância do ledger de uma sessão de usuário: Store + persistência.
// Criado em Open, encerrado em Close; Clear é o logout.
type Ledger struct {
	Store *ledger.Store

	log       *zap.Logger
	durable   *codec.Durable
	persister *persist.Persister

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open lê o slot, semeia o Store e liga a persistência posterior a cada mutação.
// Blob corrompido devolve *codec.CorruptStateError, salvo quando ResetOnCorrupt.
func Open(ctx context.Context, log *zap.Logger, slot codec.Slot, opts Options) (*Ledger, error) {
	if opts.Key == "" {
		return nil, errors.New("session key required")
	}
	durable := codec.NewDurable(slot, opts.Key)

	preds, err := durable.Load(ctx)
	if err != nil {
		var ce *codec.CorruptStateError
		if !errors.As(err, &ce) || !opts.ResetOnCorrupt {
			return nil, err
		}
		log.Warn("corrupt ledger state; clearing slot", zap.String("key", opts.Key), zap.Error(err))
		if cerr := durable.Clear(ctx); cerr != nil {
			return nil, fmt.Errorf("reset corrupt slot: %w", cerr)
		}
		preds = nil
	}

	store := ledger.NewStore()
	if err := store.Seed(preds); err != nil {
		return nil, fmt.Errorf("seed ledger: %w", err)
	}

	p := &persist.Persister{
		Log:     log,
		Saver:   durable,
		Timeout: opts.WriteTimeout,
		Retries: opts.Retries,
		Backoff: opts.Backoff,
		OnWrite: opts.OnWrite,
		OnError: opts.OnError,
		OnDrop:  opts.OnDrop,
	}
	store.OnChange(p.Schedule)

	runCtx, cancel := context.WithCancel(context.Background())
	l := &Ledger{Store: store, log: log, durable: durable, persister: p, cancel: cancel}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_ = p.Run(runCtx)
	}()

	log.Info("ledger session opened", zap.String("key", opts.Key), zap.Int("predictions", len(preds)))
	return l, nil
}

// Flush grava imediatamente a última revisão pendente
func (l *Ledger) Flush(ctx context.Context) error {
	return l.persister.Flush(ctx)
}

// Clear é o logout: zera o Store e apaga o slot durável
func (l *Ledger) Clear(ctx context.Context) error {
	rev := l.Store.Reset()
	l.persister.Discard(rev)
	// espera qualquer escrita em andamento antes de apagar o slot
	if err := l.persister.Flush(ctx); err != nil {
		l.log.Warn("flush before clear", zap.Error(err))
	}
	if err := l.durable.Clear(ctx); err != nil {
		return err
	}
	l.log.Info("ledger session cleared", zap.String("key", l.durable.Key()))
	return nil
}

// Close grava o que estiver pendente e para a persistência
func (l *Ledger) Close(ctx context.Context) error {
	err := l.persister.Flush(ctx)
	l.cancel()
	l.wg.Wait()
	if err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}
