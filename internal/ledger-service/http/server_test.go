package httpapi

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/reel-prediction-ledger/internal/catalog"
	"github.com/radieske/reel-prediction-ledger/internal/ledger"
	"github.com/radieske/reel-prediction-ledger/internal/ledger-service/dto"
	"github.com/radieske/reel-prediction-ledger/pkg/contracts/events"
)

type fakeHub struct {
	mu  sync.Mutex
	evs []events.PredictionChanged
}

func (h *fakeHub) Broadcast(ev events.PredictionChanged) {
	h.mu.Lock()
	h.evs = append(h.evs, ev)
	h.mu.Unlock()
}

func (h *fakeHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.evs))
	for _, e := range h.evs {
		out = append(out, e.Type)
	}
	return out
}

type storeSession struct{ store *ledger.Store }

func (s storeSession) Clear(context.Context) error {
	s.store.Reset()
	return nil
}

func newTestServer(t *testing.T) (*ledger.Store, *fakeHub, http.Handler) {
	t.Helper()
	src := catalog.NewStatic()
	src.PutChallenge(catalog.Challenge{ID: "c1", Status: catalog.StatusActive})
	src.PutChallenge(catalog.Challenge{ID: "c2", Status: catalog.StatusSettled})
	src.PutReel(catalog.Reel{ID: "r1", ChallengeID: "c1", Votes: 2, PoolAmount: big.NewInt(500)})
	src.PutReel(catalog.Reel{ID: "r2", ChallengeID: "c1", Votes: 5})
	src.PutReel(catalog.Reel{ID: "r9", ChallengeID: "c2"})

	store := ledger.NewStore()
	hub := &fakeHub{}
	s := NewServer(zap.NewNop(), store, storeSession{store}, src, hub)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return store, hub, s.Router()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAddGetUpdateRemove(t *testing.T) {
	store, hub, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/predictions", `{"challengeId":"c1","reelId":"r1","amount":"125000000000000000000"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created dto.PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "125000000000000000000", created.Amount)
	assert.Equal(t, int64(1700000000000), created.Timestamp)

	rec = do(t, h, http.MethodGet, "/v1/predictions/c1/r1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPut, "/v1/predictions/c1/r1", `{"amount":"50000000000000000000"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated dto.PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "50000000000000000000", updated.Amount)
	assert.Equal(t, int64(1700000000000), updated.Timestamp)
	assert.Equal(t, "50000000000000000000", store.TotalStaked("c1").String())

	rec = do(t, h, http.MethodGet, "/v1/challenges/c1/staked", "")
	var total dto.TotalStakedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &total))
	assert.Equal(t, "50000000000000000000", total.TotalStaked)

	rec = do(t, h, http.MethodDelete, "/v1/predictions/c1/r1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/v1/predictions/c1/r1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, store.Len())

	rec = do(t, h, http.MethodGet, "/v1/predictions/c1/r1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// o segundo DELETE não removeu nada e não gera broadcast
	assert.Equal(t, []string{"added", "updated", "removed"}, hub.types())
}

func TestRemoveOnClosedChallengeIsRejected(t *testing.T) {
	_, hub, h := newTestServer(t)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodDelete, "/v1/predictions/c2/r9", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/v1/predictions/nope/r1", "").Code)
	assert.Empty(t, hub.types())
}

func TestListPredictionsCarriesRevision(t *testing.T) {
	store, _, h := newTestServer(t)
	require.NoError(t, store.AddPrediction(ledger.Prediction{ChallengeID: "c1", ReelID: "r1", Amount: mustAmount(t, "1"), Timestamp: 1}))
	require.NoError(t, store.AddPrediction(ledger.Prediction{ChallengeID: "c1", ReelID: "r2", Amount: mustAmount(t, "2"), Timestamp: 2}))

	rec := do(t, h, http.MethodGet, "/v1/predictions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-Ledger-Revision"))
}

func TestListReelsWithStake(t *testing.T) {
	store, _, h := newTestServer(t)
	require.NoError(t, store.AddPrediction(ledger.Prediction{ChallengeID: "c1", ReelID: "r1", Amount: mustAmount(t, "125000000000000000000000"), Timestamp: 1}))

	rec := do(t, h, http.MethodGet, "/v1/challenges/c1/reels", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reels []dto.ReelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reels))
	require.Len(t, reels, 2)
	assert.Equal(t, "r2", reels[0].ID)
	assert.Equal(t, "0", reels[0].MyStake)
	assert.Equal(t, "r1", reels[1].ID)
	assert.Equal(t, "500", reels[1].PoolAmount)
	assert.Equal(t, "125000000000000000000000", reels[1].MyStake)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/challenges/nope/reels", "").Code)
}

func TestAddErrors(t *testing.T) {
	_, _, h := newTestServer(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"negative", `{"challengeId":"c1","reelId":"r1","amount":"-1"}`, http.StatusBadRequest},
		{"fraction", `{"challengeId":"c1","reelId":"r1","amount":"1.5"}`, http.StatusBadRequest},
		{"unknown challenge", `{"challengeId":"nope","reelId":"r1","amount":"1"}`, http.StatusNotFound},
		{"reel of another challenge", `{"challengeId":"c1","reelId":"r9","amount":"1"}`, http.StatusNotFound},
		{"settled challenge", `{"challengeId":"c2","reelId":"r9","amount":"1"}`, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/predictions", tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestAddDuplicateConflicts(t *testing.T) {
	store, _, h := newTestServer(t)
	body := `{"challengeId":"c1","reelId":"r1","amount":"10"}`
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/predictions", body).Code)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/v1/predictions", body).Code)
	assert.Equal(t, "10", store.TotalStaked("c1").String())
}

func TestUpdateAbsentIsNotFound(t *testing.T) {
	_, _, h := newTestServer(t)
	rec := do(t, h, http.MethodPut, "/v1/predictions/c1/r2", `{"amount":"10"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBalance(t *testing.T) {
	store, _, h := newTestServer(t)
	require.NoError(t, store.AddPrediction(ledger.Prediction{ChallengeID: "c1", ReelID: "r1", Amount: mustAmount(t, "30"), Timestamp: 1}))

	rec := do(t, h, http.MethodPut, "/v1/balance", `{"available":"1000000000000000000000","locked":"40"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bal dto.BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	assert.Equal(t, "1000000000000000000000", bal.Available)
	assert.Equal(t, "40", bal.Locked)
	assert.Equal(t, "30", bal.OpenStake)
	assert.Equal(t, "10", bal.Drift)

	// um valor inválido não aplica o outro
	rec = do(t, h, http.MethodPut, "/v1/balance", `{"available":"5","locked":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "1000000000000000000000", store.Balance().Available.String())

	rec = do(t, h, http.MethodPut, "/v1/balance", `{"locked":"30"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1000000000000000000000", store.Balance().Available.String())
	assert.Equal(t, "30", store.Balance().Locked.String())

	rec = do(t, h, http.MethodPut, "/v1/balance", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReset(t *testing.T) {
	store, hub, h := newTestServer(t)
	require.NoError(t, store.AddPrediction(ledger.Prediction{ChallengeID: "c1", ReelID: "r1", Amount: mustAmount(t, "30"), Timestamp: 1}))

	rec := do(t, h, http.MethodPost, "/v1/session/reset", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, []string{"reset"}, hub.types())

	rec = do(t, h, http.MethodGet, "/v1/predictions", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func mustAmount(t *testing.T, s string) *big.Int {
	t.Helper()
	a, err := ledger.ParseAmount(s)
	require.NoError(t, err)
	return a
}
