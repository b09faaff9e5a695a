package persist

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/reel-prediction-ledger/internal/ledger"
)

// Saver é o destino durável da tabela (codec.Durable)
type Saver interface {
	Save(ctx context.Context, preds []ledger.Prediction) error
}

type snapshot struct {
	rev   uint64
	preds []ledger.Prediction
}

// Persister grava a tabela de predictions como efeito colateral posterior à mutação.
// Só o snapshot mais novo fica pendente; escritas são serializadas e uma revisão
// mais velha nunca é gravada depois de uma mais nova.
// Callbacks de métricas são opcionais.
type Persister struct {
	Log     *zap.Logger
	Saver   Saver
	Timeout time.Duration // timeout de cada escrita
	Retries int           // tentativas extras antes de desistir
	Backoff time.Duration // espera base entre tentativas (linear)

	OnWrite func()       // métricas (escrita concluída)
	OnError func(string) // métricas por estágio
	OnDrop  func()       // métricas (snapshot substituído antes de ser gravado)

	mu      sync.Mutex
	pending *snapshot
	written uint64
	floor   uint64 // revisões <= floor foram descartadas e nunca são gravadas

	writeMu sync.Mutex
	wake    chan struct{}
	once    sync.Once
}

func (p *Persister) init() {
	p.once.Do(func() { p.wake = make(chan struct{}, 1) })
}

// Schedule agenda a gravação da revisão rev. Não bloqueia; pode ser usado como
// ledger.ChangeFunc.
func (p *Persister) Schedule(rev uint64, preds []ledger.Prediction) {
	p.init()
	p.mu.Lock()
	if rev <= p.written || rev <= p.floor || (p.pending != nil && rev <= p.pending.rev) {
		p.mu.Unlock()
		return
	}
	if p.pending != nil && p.OnDrop != nil {
		p.OnDrop()
	}
	p.pending = &snapshot{rev: rev, preds: preds}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run consome as escritas pendentes até o contexto ser cancelado
func (p *Persister) Run(ctx context.Context) error {
	p.init()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.wake:
			_ = p.drain(ctx)
		}
	}
}

// Flush grava o que estiver pendente de forma síncrona e devolve o erro da última tentativa
func (p *Persister) Flush(ctx context.Context) error {
	p.init()
	return p.drain(ctx)
}

// Discard descarta toda revisão até through (logout), inclusive uma escrita
// em andamento que venha a falhar: ela não volta a ficar pendente.
func (p *Persister) Discard(through uint64) {
	p.mu.Lock()
	if through > p.floor {
		p.floor = through
	}
	if p.pending != nil && p.pending.rev <= p.floor {
		p.pending = nil
	}
	p.mu.Unlock()
}

// Pending informa se há snapshot aguardando gravação
func (p *Persister) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

func (p *Persister) drain(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	for {
		p.mu.Lock()
		snap := p.pending
		p.pending = nil
		p.mu.Unlock()
		if snap == nil {
			return nil
		}

		if err := p.write(ctx, snap); err != nil {
			// mantém o snapshot para a próxima tentativa, a menos que já exista um
			// mais novo ou que ele tenha sido descartado durante a escrita
			p.mu.Lock()
			if p.pending == nil && snap.rev > p.floor {
				p.pending = snap
			}
			p.mu.Unlock()
			return err
		}

		p.mu.Lock()
		p.written = snap.rev
		p.mu.Unlock()
		if p.OnWrite != nil {
			p.OnWrite()
		}
	}
}

func (p *Persister) write(ctx context.Context, snap *snapshot) error {
	var err error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * p.Backoff):
			}
		}

		wctx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			wctx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		err = p.Saver.Save(wctx, snap.preds)
		cancel()
		if err == nil {
			return nil
		}
		if p.OnError != nil {
			p.OnError("save")
		}
	}

	if p.Log != nil {
		p.Log.Warn("ledger persist failed; in-memory state stays authoritative",
			zap.Uint64("revision", snap.rev),
			zap.Int("predictions", len(snap.preds)),
			zap.Error(err),
		)
	}
	return err
}
