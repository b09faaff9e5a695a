package ledger

import (
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokens devolve n * 10^18
func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestStore_AddUpdateRemoveScenario(t *testing.T) {
	s := NewStore()

	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "c1", ReelID: "r1", Amount: tokens(200), Timestamp: 1000}))
	assert.Equal(t, 0, s.TotalStaked("c1").Cmp(tokens(200)))

	require.NoError(t, s.UpdatePrediction("c1", "r1", tokens(350)))
	assert.Equal(t, 0, s.TotalStaked("c1").Cmp(tokens(350)))

	s.RemovePrediction("c1", "r1")
	assert.Equal(t, 0, s.TotalStaked("c1").Sign())
	assert.Equal(t, 0, s.Len())
}

func TestStore_AddRejectsDuplicateKey(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "c1", ReelID: "r1", Amount: big.NewInt(5)}))

	err := s.AddPrediction(Prediction{ChallengeID: "c1", ReelID: "r1", Amount: big.NewInt(7)})
	require.ErrorIs(t, err, ErrDuplicateKey)

	p, ok := s.PredictionFor("c1", "r1")
	require.True(t, ok)
	assert.Equal(t, int64(5), p.Amount.Int64())
}

func TestStore_UpsertReplacesInsteadOfSumming(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.UpsertPrediction(Prediction{ChallengeID: "c1", ReelID: "r1", Amount: tokens(10), Timestamp: 1}))
	require.NoError(t, s.UpsertPrediction(Prediction{ChallengeID: "c1", ReelID: "r1", Amount: tokens(4), Timestamp: 2}))

	p, ok := s.PredictionFor("c1", "r1")
	require.True(t, ok)
	assert.Equal(t, 0, p.Amount.Cmp(tokens(4)))
	assert.Equal(t, int64(2), p.Timestamp)
	assert.Equal(t, 1, s.Len())
}

func TestStore_UpdateMissingIsNotFound(t *testing.T) {
	s := NewStore()
	err := s.UpdatePrediction("c1", "nope", big.NewInt(1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RejectsNegativeAmounts(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "c1", ReelID: "r1", Amount: big.NewInt(9)}))
	require.NoError(t, s.SetSessionBalance(big.NewInt(100)))

	assert.ErrorIs(t, s.SetSessionBalance(big.NewInt(-1)), ErrInvalidAmount)
	assert.ErrorIs(t, s.SetLockedInPredictions(big.NewInt(-1)), ErrInvalidAmount)
	assert.ErrorIs(t, s.UpdatePrediction("c1", "r1", big.NewInt(-1)), ErrInvalidAmount)
	assert.ErrorIs(t, s.AddPrediction(Prediction{ChallengeID: "c2", ReelID: "r1", Amount: big.NewInt(-3)}), ErrInvalidAmount)
	assert.ErrorIs(t, s.AddPrediction(Prediction{ChallengeID: "c2", ReelID: "r1"}), ErrInvalidAmount)

	bal := s.Balance()
	assert.Equal(t, int64(100), bal.Available.Int64())
	p, _ := s.PredictionFor("c1", "r1")
	assert.Equal(t, int64(9), p.Amount.Int64())
	assert.Equal(t, 1, s.Len())
}

func TestStore_RejectsEmptyIDs(t *testing.T) {
	s := NewStore()
	assert.ErrorIs(t, s.AddPrediction(Prediction{ReelID: "r1", Amount: big.NewInt(1)}), ErrInvalidKey)
	assert.ErrorIs(t, s.UpsertPrediction(Prediction{ChallengeID: "c1", Amount: big.NewInt(1)}), ErrInvalidKey)
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "c1", ReelID: "r1", Amount: big.NewInt(1)}))
	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "c1", ReelID: "r2", Amount: big.NewInt(2)}))

	assert.True(t, s.RemovePrediction("c1", "r1"))
	once := s.Predictions()
	rev := s.Revision()

	assert.False(t, s.RemovePrediction("c1", "r1"))
	assert.Equal(t, once, s.Predictions())
	assert.Equal(t, rev, s.Revision())
}

func TestStore_TotalStakedIsExact(t *testing.T) {
	s := NewStore()
	// 2^53 + 1 não cabe em float64; a soma em float perde a unidade
	a, _ := new(big.Int).SetString("9007199254740993", 10)
	b := big.NewInt(1)
	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "c1", ReelID: "r1", Amount: a}))
	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "c1", ReelID: "r2", Amount: b}))
	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "c2", ReelID: "r1", Amount: tokens(1)}))

	assert.Equal(t, "9007199254740994", s.TotalStaked("c1").String())
	assert.Equal(t, 0, s.TotalStaked("unknown").Sign())
}

func TestStore_NoAliasingOfAmounts(t *testing.T) {
	s := NewStore()
	amt := big.NewInt(10)
	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "c1", ReelID: "r1", Amount: amt}))
	amt.SetInt64(999)

	p, _ := s.PredictionFor("c1", "r1")
	assert.Equal(t, int64(10), p.Amount.Int64())

	p.Amount.SetInt64(1)
	again, _ := s.PredictionFor("c1", "r1")
	assert.Equal(t, int64(10), again.Amount.Int64())
}

func TestStore_OnChangeSeesCommittedState(t *testing.T) {
	s := NewStore()
	var revs []uint64
	var sizes []int
	s.OnChange(func(rev uint64, preds []Prediction) {
		revs = append(revs, rev)
		sizes = append(sizes, len(preds))
	})

	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "c1", ReelID: "r1", Amount: big.NewInt(1)}))
	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "c1", ReelID: "r2", Amount: big.NewInt(1)}))
	s.RemovePrediction("c1", "r1")
	require.NoError(t, s.SetSessionBalance(big.NewInt(3))) // saldo não é persistido

	assert.Equal(t, []uint64{1, 2, 3}, revs)
	assert.Equal(t, []int{1, 2, 1}, sizes)
}

func TestStore_SeedValidatesBeforeApplying(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "c0", ReelID: "r0", Amount: big.NewInt(1)}))

	err := s.Seed([]Prediction{
		{ChallengeID: "c1", ReelID: "r1", Amount: big.NewInt(1)},
		{ChallengeID: "c1", ReelID: "r1", Amount: big.NewInt(2)},
	})
	require.ErrorIs(t, err, ErrDuplicateKey)
	_, ok := s.PredictionFor("c0", "r0")
	assert.True(t, ok)

	require.NoError(t, s.Seed([]Prediction{{ChallengeID: "c1", ReelID: "r1", Amount: big.NewInt(4)}}))
	assert.Equal(t, 1, s.Len())
	_, ok = s.PredictionFor("c0", "r0")
	assert.False(t, ok)
}

func TestStore_LockedDrift(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "open", ReelID: "r1", Amount: big.NewInt(30)}))
	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "open", ReelID: "r2", Amount: big.NewInt(20)}))
	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "settled", ReelID: "r1", Amount: big.NewInt(70)}))
	isOpen := func(id string) bool { return id == "open" }

	require.NoError(t, s.SetLockedInPredictions(big.NewInt(50)))
	assert.Equal(t, 0, s.LockedDrift(isOpen).Sign())
	assert.Equal(t, int64(50), s.OpenStake(isOpen).Int64())

	require.NoError(t, s.SetLockedInPredictions(big.NewInt(45)))
	assert.Equal(t, int64(-5), s.LockedDrift(isOpen).Int64())
}

func TestStore_SetBalancesAppliesBothOrNeither(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SetBalances(big.NewInt(100), big.NewInt(40)))
	bal := s.Balance()
	assert.Equal(t, int64(100), bal.Available.Int64())
	assert.Equal(t, int64(40), bal.Locked.Int64())

	assert.ErrorIs(t, s.SetBalances(big.NewInt(1), big.NewInt(-1)), ErrInvalidAmount)
	assert.ErrorIs(t, s.SetBalances(nil, big.NewInt(1)), ErrInvalidAmount)
	bal = s.Balance()
	assert.Equal(t, int64(100), bal.Available.Int64())
	assert.Equal(t, int64(40), bal.Locked.Int64())
}

func TestStore_ResetClearsEverything(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddPrediction(Prediction{ChallengeID: "c1", ReelID: "r1", Amount: big.NewInt(1)}))
	require.NoError(t, s.SetSessionBalance(big.NewInt(10)))
	require.NoError(t, s.SetLockedInPredictions(big.NewInt(1)))

	before := s.Revision()
	assert.Equal(t, before+1, s.Reset())
	assert.Equal(t, 0, s.Len())
	bal := s.Balance()
	assert.Equal(t, 0, bal.Available.Sign())
	assert.Equal(t, 0, bal.Locked.Sign())
}

func TestStore_ConcurrentMutationsStayConsistent(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reel := string(rune('a' + i%5))
			_ = s.UpsertPrediction(Prediction{ChallengeID: "c1", ReelID: reel, Amount: big.NewInt(int64(i))})
			if i%7 == 0 {
				s.RemovePrediction("c1", reel)
			}
		}(i)
	}
	wg.Wait()

	preds := s.Predictions()
	assert.Equal(t, len(preds), s.Len())
	sum := new(big.Int)
	for _, p := range preds {
		sum.Add(sum, p.Amount)
	}
	assert.Equal(t, 0, sum.Cmp(s.TotalStaked("c1")))
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("125000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(tokens(125000)))

	for _, bad := range []string{"", "-1", "1.5", "1e18", "+3", "12n"} {
		_, err := ParseAmount(bad)
		assert.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}
