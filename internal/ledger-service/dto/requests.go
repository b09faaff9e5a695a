package dto

// Valores monetários trafegam como string decimal em unidades base

type AddPredictionRequest struct {
	ChallengeID string `json:"challengeId"`
	ReelID      string `json:"reelId"`
	Amount      string `json:"amount"`
	Timestamp   int64  `json:"timestamp,omitempty"` // ms; vazio = agora
}

type UpdatePredictionRequest struct {
	Amount string `json:"amount"`
}

// BalanceRequest aceita um ou os dois contadores
type BalanceRequest struct {
	Available *string `json:"available,omitempty"`
	Locked    *string `json:"locked,omitempty"`
}
