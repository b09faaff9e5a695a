package ledger

import (
	"fmt"
	"math/big"
	"sync"
)

// ChangeFunc recebe a nova revisão e o snapshot da tabela após cada mutação.
// É chamada com o lock do Store adquirido: não pode bloquear nem chamar o Store.
type ChangeFunc func(rev uint64, preds []Prediction)

// Store é o dono único da tabela de predictions e dos contadores de saldo.
// Toda mutação é atômica (mutex) e fica visível antes do hook de mudança rodar.
type Store struct {
	mu        sync.RWMutex
	rows      map[key]*Prediction
	order     []key // ordem de inserção
	available *big.Int
	locked    *big.Int
	rev       uint64
	onChange  ChangeFunc
}

// NewStore cria um Store vazio com saldos zerados
func NewStore() *Store {
	return &Store{
		rows:      make(map[key]*Prediction),
		available: new(big.Int),
		locked:    new(big.Int),
	}
}

// OnChange registra o hook disparado a cada mudança na tabela de predictions
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// AddPrediction insere uma prediction nova. Chave natural repetida é erro (ErrDuplicateKey).
func (s *Store) AddPrediction(p Prediction) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := p.key()
	if _, ok := s.rows[k]; ok {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateKey, p.ChallengeID, p.ReelID)
	}
	c := p.clone()
	s.rows[k] = &c
	s.order = append(s.order, k)
	s.changedLocked()
	return nil
}

// UpsertPrediction insere ou substitui. O valor final é p.Amount, nunca a soma.
func (s *Store) UpsertPrediction(p Prediction) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := p.key()
	c := p.clone()
	if _, ok := s.rows[k]; !ok {
		s.order = append(s.order, k)
	}
	s.rows[k] = &c
	s.changedLocked()
	return nil
}

// UpdatePrediction troca o valor de uma prediction existente
func (s *Store) UpdatePrediction(challengeID, reelID string, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[key{challengeID: challengeID, reelID: reelID}]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, challengeID, reelID)
	}
	row.Amount = new(big.Int).Set(amount)
	s.changedLocked()
	return nil
}

// RemovePrediction apaga a prediction se existir. Idempotente; informa se havia algo.
func (s *Store) RemovePrediction(challengeID, reelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{challengeID: challengeID, reelID: reelID}
	if _, ok := s.rows[k]; !ok {
		return false
	}
	delete(s.rows, k)
	for i, o := range s.order {
		if o == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.changedLocked()
	return true
}

// SetSessionBalance grava o saldo disponível informado pela fonte externa
func (s *Store) SetSessionBalance(amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	s.mu.Lock()
	s.available = new(big.Int).Set(amount)
	s.mu.Unlock()
	return nil
}

// SetLockedInPredictions grava o saldo bloqueado informado pela fonte externa.
// Não há validação cruzada com a tabela (ver LockedDrift).
func (s *Store) SetLockedInPredictions(amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	s.mu.Lock()
	s.locked = new(big.Int).Set(amount)
	s.mu.Unlock()
	return nil
}

// SetBalances grava os dois contadores juntos; leitores nunca veem um novo com o outro antigo
func (s *Store) SetBalances(available, locked *big.Int) error {
	if err := checkAmount(available); err != nil {
		return err
	}
	if err := checkAmount(locked); err != nil {
		return err
	}
	s.mu.Lock()
	s.available = new(big.Int).Set(available)
	s.locked = new(big.Int).Set(locked)
	s.mu.Unlock()
	return nil
}

// PredictionFor busca pela chave natural
func (s *Store) PredictionFor(challengeID, reelID string) (Prediction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[key{challengeID: challengeID, reelID: reelID}]
	if !ok {
		return Prediction{}, false
	}
	return row.clone(), true
}

// TotalStaked soma (exata) os valores de um challenge; zero quando não há registros
func (s *Store) TotalStaked(challengeID string) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := new(big.Int)
	for k, row := range s.rows {
		if k.challengeID == challengeID {
			total.Add(total, row.Amount)
		}
	}
	return total
}

// OpenStake soma os valores dos challenges que isOpen considera abertos.
// isOpen roda fora do lock (pode consultar o catálogo).
func (s *Store) OpenStake(isOpen func(challengeID string) bool) *big.Int {
	s.mu.RLock()
	preds := s.snapshotLocked()
	s.mu.RUnlock()
	return openStake(preds, isOpen)
}

// LockedDrift retorna locked - OpenStake(isOpen). Zero quando os dois batem.
func (s *Store) LockedDrift(isOpen func(challengeID string) bool) *big.Int {
	s.mu.RLock()
	preds := s.snapshotLocked()
	locked := new(big.Int).Set(s.locked)
	s.mu.RUnlock()
	open := openStake(preds, isOpen)
	return open.Sub(locked, open)
}

func openStake(preds []Prediction, isOpen func(challengeID string) bool) *big.Int {
	total := new(big.Int)
	open := make(map[string]bool)
	for _, p := range preds {
		ok, seen := open[p.ChallengeID]
		if !seen {
			ok = isOpen(p.ChallengeID)
			open[p.ChallengeID] = ok
		}
		if ok {
			total.Add(total, p.Amount)
		}
	}
	return total
}

// Predictions retorna uma cópia da tabela na ordem de inserção
func (s *Store) Predictions() []Prediction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Balance retorna uma cópia dos contadores de saldo
func (s *Store) Balance() Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Balance{
		Available: new(big.Int).Set(s.available),
		Locked:    new(big.Int).Set(s.locked),
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// Seed substitui a tabela pelo conteúdo carregado do slot durável.
// Valida tudo antes de aplicar; em erro o Store fica intacto. Não dispara OnChange.
func (s *Store) Seed(preds []Prediction) error {
	rows := make(map[key]*Prediction, len(preds))
	order := make([]key, 0, len(preds))
	for _, p := range preds {
		if err := p.Validate(); err != nil {
			return err
		}
		k := p.key()
		if _, ok := rows[k]; ok {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateKey, p.ChallengeID, p.ReelID)
		}
		c := p.clone()
		rows[k] = &c
		order = append(order, k)
	}

	s.mu.Lock()
	s.rows = rows
	s.order = order
	s.rev++
	s.mu.Unlock()
	return nil
}

// Reset limpa tabela e saldos (logout). Dispara OnChange com a tabela vazia
// e devolve a revisão resultante.
func (s *Store) Reset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = make(map[key]*Prediction)
	s.order = nil
	s.available = new(big.Int)
	s.locked = new(big.Int)
	s.changedLocked()
	return s.rev
}

func (s *Store) changedLocked() {
	s.rev++
	if s.onChange != nil {
		s.onChange(s.rev, s.snapshotLocked())
	}
}

func (s *Store) snapshotLocked() []Prediction {
	out := make([]Prediction, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.rows[k].clone())
	}
	return out
}
