package ledger

import "errors"

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidKey    = errors.New("invalid prediction key")
	ErrDuplicateKey  = errors.New("prediction already exists")
	ErrNotFound      = errors.New("prediction not found")
)
