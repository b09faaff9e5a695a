package catalog

import (
	"context"
	"sort"
	"sync"
)

// Static é uma fonte em memória (ENV=local e testes)
type Static struct {
	mu         sync.RWMutex
	challenges map[string]Challenge
	reels      map[string]Reel
}

func NewStatic() *Static {
	return &Static{challenges: make(map[string]Challenge), reels: make(map[string]Reel)}
}

func (s *Static) PutChallenge(c Challenge) {
	s.mu.Lock()
	s.challenges[c.ID] = c
	s.mu.Unlock()
}

func (s *Static) PutReel(r Reel) {
	s.mu.Lock()
	s.reels[r.ID] = r
	s.mu.Unlock()
}

func (s *Static) GetChallenge(_ context.Context, id string) (Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[id]
	if !ok {
		return Challenge{}, ErrNotFound
	}
	return c, nil
}

func (s *Static) GetReel(_ context.Context, id string) (Reel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reels[id]
	if !ok {
		return Reel{}, ErrNotFound
	}
	return r, nil
}

// ListReels segue a ordem do ReadRepo: votos desc, depois id
func (s *Static) ListReels(_ context.Context, challengeID string) ([]Reel, error) {
	s.mu.RLock()
	var out []Reel
	for _, r := range s.reels {
		if r.ChallengeID == challengeID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// OpenPredicate adapta uma Source ao predicado usado por Store.OpenStake/LockedDrift.
// Challenge desconhecido ou erro de leitura conta como aberto (não some do locked).
func OpenPredicate(ctx context.Context, src Source) func(challengeID string) bool {
	return func(challengeID string) bool {
		c, err := src.GetChallenge(ctx, challengeID)
		if err != nil {
			return true
		}
		return c.Status.IsOpen()
	}
}
