package events

// PredictionChanged é enviado aos clientes WebSocket inscritos no challenge
type PredictionChanged struct {
	ChallengeID string `json:"challengeId"`
	ReelID      string `json:"reelId"`
	Type        string `json:"type"`             // "added" | "updated" | "removed" | "reset"
	Amount      string `json:"amount,omitempty"` // vazio em removed
	TotalStaked string `json:"totalStaked"`
	Ts          int64  `json:"ts"`
}
