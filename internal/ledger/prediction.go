package ledger

import (
	"math/big"
	"strings"
)

// Prediction é o stake do usuário em um reel dentro de um challenge.
// A chave natural é o par (ChallengeID, ReelID).
type Prediction struct {
	ChallengeID string
	ReelID      string
	Amount      *big.Int // unidades base, nunca negativo
	Timestamp   int64    // ms desde epoch
}

// Balance é o último saldo de sessão conhecido
type Balance struct {
	Available *big.Int
	Locked    *big.Int
}

type key struct {
	challengeID string
	reelID      string
}

func (p Prediction) key() key { return key{challengeID: p.ChallengeID, reelID: p.ReelID} }

func (p Prediction) clone() Prediction {
	c := p
	if p.Amount != nil {
		c.Amount = new(big.Int).Set(p.Amount)
	}
	return c
}

// Validate confere IDs e valor de uma prediction
func (p Prediction) Validate() error {
	if p.ChallengeID == "" || p.ReelID == "" {
		return ErrInvalidKey
	}
	return checkAmount(p.Amount)
}

func checkAmount(a *big.Int) error {
	if a == nil || a.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ParseAmount lê um inteiro decimal não negativo (sem sinal, sem fração)
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidAmount
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, ErrInvalidAmount
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	return v, nil
}
