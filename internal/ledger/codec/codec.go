package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/radieske/reel-prediction-ledger/internal/ledger"
)

// Version do layout persistido
const Version = 1

// intTag marca o texto de um inteiro exato: "125000000000000000000000n"
const intTag = 'n'

// CorruptStateError indica blob presente mas ilegível. O Store não é tocado;
// quem chama decide se limpa o slot.
type CorruptStateError struct {
	Key string
	Err error
}

func (e *CorruptStateError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("corrupt ledger state: %v", e.Err)
	}
	return fmt.Sprintf("corrupt ledger state in slot %q: %v", e.Key, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// exactInt é um campo declarado como inteiro exato. Só aceita o texto com tag;
// número JSON ou string sem tag é erro.
type exactInt struct{ v *big.Int }

func (e exactInt) MarshalJSON() ([]byte, error) {
	if e.v == nil {
		return nil, errors.New("nil exact integer")
	}
	return json.Marshal(formatExactInt(e.v))
}

func (e *exactInt) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("exact integer must be a tagged string: %w", err)
	}
	v, err := parseExactInt(s)
	if err != nil {
		return err
	}
	e.v = v
	return nil
}

func formatExactInt(v *big.Int) string {
	return v.String() + string(intTag)
}

func parseExactInt(s string) (*big.Int, error) {
	if len(s) < 2 || s[len(s)-1] != intTag {
		return nil, fmt.Errorf("exact integer %q missing tag", s)
	}
	digits := s[:len(s)-1]
	start := 0
	if digits[0] == '-' {
		start = 1
	}
	if start == len(digits) {
		return nil, fmt.Errorf("exact integer %q has no digits", s)
	}
	for _, r := range digits[start:] {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("exact integer %q has non-digit %q", s, r)
		}
	}
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("exact integer %q", s)
	}
	return v, nil
}

// layout persistido. Cada campo tem tipo declarado: ids são string pura,
// amount é inteiro exato com tag e timestamp é inteiro em ms.
type wirePrediction struct {
	ChallengeID string    `json:"challengeId"`
	ReelID      string    `json:"reelId"`
	Amount      *exactInt `json:"amount"`
	Timestamp   int64     `json:"timestamp"`
}

type wireTable struct {
	Version     int               `json:"version"`
	Predictions *[]wirePrediction `json:"predictions"`
}

// Encode serializa a tabela de predictions. Tabela vazia gera {"version":1,"predictions":[]}.
func Encode(preds []ledger.Prediction) ([]byte, error) {
	rows := make([]wirePrediction, 0, len(preds))
	for _, p := range preds {
		if p.Amount == nil {
			return nil, fmt.Errorf("encode %s/%s: %w", p.ChallengeID, p.ReelID, ledger.ErrInvalidAmount)
		}
		rows = append(rows, wirePrediction{
			ChallengeID: p.ChallengeID,
			ReelID:      p.ReelID,
			Amount:      &exactInt{v: p.Amount},
			Timestamp:   p.Timestamp,
		})
	}
	return json.Marshal(wireTable{Version: Version, Predictions: &rows})
}

// Decode lê o blob persistido e valida a tabela (ids, valores, chave natural única).
// Qualquer falha vira *CorruptStateError.
func Decode(b []byte) ([]ledger.Prediction, error) {
	var t wireTable
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, &CorruptStateError{Err: err}
	}
	if t.Version < 0 || t.Version > Version {
		return nil, &CorruptStateError{Err: fmt.Errorf("unsupported version %d", t.Version)}
	}
	if t.Predictions == nil {
		return nil, &CorruptStateError{Err: errors.New("missing predictions")}
	}

	out := make([]ledger.Prediction, 0, len(*t.Predictions))
	seen := make(map[[2]string]struct{}, len(*t.Predictions))
	for i, w := range *t.Predictions {
		if w.Amount == nil {
			return nil, &CorruptStateError{Err: fmt.Errorf("row %d: missing amount", i)}
		}
		p := ledger.Prediction{
			ChallengeID: w.ChallengeID,
			ReelID:      w.ReelID,
			Amount:      w.Amount.v,
			Timestamp:   w.Timestamp,
		}
		if err := p.Validate(); err != nil {
			return nil, &CorruptStateError{Err: fmt.Errorf("row %d: %w", i, err)}
		}
		k := [2]string{p.ChallengeID, p.ReelID}
		if _, dup := seen[k]; dup {
			return nil, &CorruptStateError{Err: fmt.Errorf("row %d: %w", i, ledger.ErrDuplicateKey)}
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
