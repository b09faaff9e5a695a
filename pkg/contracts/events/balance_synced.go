package events

import "time"

// Evento publicado pela fonte de saldo (depósito, settlement, refresh de sessão).
// Valores em unidades base como string decimal: não cabem em float64/int64.
type BalanceSynced struct {
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	Available string    `json:"available"`
	Locked    string    `json:"locked"`
	Reason    string    `json:"reason"` // "deposit" | "settlement" | "refresh"
	Ts        time.Time `json:"ts"`
}
