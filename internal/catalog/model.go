package catalog

import (
	"context"
	"errors"
	"math/big"
	"time"
)

var ErrNotFound = errors.New("not found")

// Status é o ciclo de vida de um challenge, em ordem
type Status int

const (
	StatusUpcoming Status = iota
	StatusActive
	StatusVoting
	StatusSettled
)

var statusNames = [...]string{"upcoming", "active", "voting", "settled"}

func (s Status) String() string {
	if s < StatusUpcoming || s > StatusSettled {
		return "unknown"
	}
	return statusNames[s]
}

// ParseStatus converte o texto persistido/recebido
func ParseStatus(v string) (Status, error) {
	for i, n := range statusNames {
		if n == v {
			return Status(i), nil
		}
	}
	return 0, errors.New("unknown challenge status: " + v)
}

// IsOpen indica se stakes ainda podem mudar (active ou voting)
func (s Status) IsOpen() bool { return s == StatusActive || s == StatusVoting }

func (s Status) Before(o Status) bool { return s < o }

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Challenge é uma competição com janela de tempo e pool agregado
type Challenge struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	PoolAmount       *big.Int  `json:"poolAmount"`
	ReelCount        int       `json:"reelCount"`
	ParticipantCount int       `json:"participantCount"`
	Status           Status    `json:"status"`
	WinnerReelID     string    `json:"winnerReelId,omitempty"` // só quando settled
}

// Reel pertence a um único challenge
type Reel struct {
	ID          string   `json:"id"`
	ChallengeID string   `json:"challengeId"`
	Title       string   `json:"title"`
	CreatorName string   `json:"creatorName"`
	PoolAmount  *big.Int `json:"poolAmount"`
	Votes       int      `json:"votes"`
}

// Source fornece challenges e reels somente leitura
type Source interface {
	GetChallenge(ctx context.Context, id string) (Challenge, error)
	GetReel(ctx context.Context, id string) (Reel, error)
	ListReels(ctx context.Context, challengeID string) ([]Reel, error)
}
