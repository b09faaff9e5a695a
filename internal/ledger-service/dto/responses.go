package dto

type PredictionResponse struct {
	ChallengeID string `json:"challengeId"`
	ReelID      string `json:"reelId"`
	Amount      string `json:"amount"`
	Timestamp   int64  `json:"timestamp"`
}

type TotalStakedResponse struct {
	ChallengeID string `json:"challengeId"`
	TotalStaked string `json:"totalStaked"`
}

type ReelResponse struct {
	ID          string `json:"id"`
	ChallengeID string `json:"challengeId"`
	Title       string `json:"title"`
	CreatorName string `json:"creatorName"`
	PoolAmount  string `json:"poolAmount"`
	Votes       int    `json:"votes"`
	MyStake     string `json:"myStake"` // stake do usuário neste reel, "0" se nenhum
}

type BalanceResponse struct {
	Available string `json:"available"`
	Locked    string `json:"locked"`
	OpenStake string `json:"openStake,omitempty"`
	Drift     string `json:"drift,omitempty"` // locked - openStake
}

type ErrorResponse struct {
	Error string `json:"error"`
}
