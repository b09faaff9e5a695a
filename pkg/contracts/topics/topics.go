package topics

const (
	// Saldo de sessão
	BalanceSynced = "balance_synced"

	// DLQ
	BalanceSyncedDLQ = "balance_synced_dlq"
)
