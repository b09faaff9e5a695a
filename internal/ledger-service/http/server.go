package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/reel-prediction-ledger/internal/catalog"
	"github.com/radieske/reel-prediction-ledger/internal/ledger"
	"github.com/radieske/reel-prediction-ledger/internal/ledger-service/dto"
	"github.com/radieske/reel-prediction-ledger/pkg/contracts/events"
)

var errChallengeClosed = errors.New("challenge not open for predictions")

// Session é o ciclo de vida do ledger (logout/reset)
type Session interface {
	Clear(ctx context.Context) error
}

// Broadcaster envia mudanças aos clientes WebSocket
type Broadcaster interface {
	Broadcast(ev events.PredictionChanged)
}

// Server expõe o ledger do usuário via HTTP. É a camada que substitui a UI:
// chama os mutators do Store e barra mudanças fora da janela do challenge.
type Server struct {
	log     *zap.Logger
	store   *ledger.Store
	session Session
	catalog catalog.Source // opcional
	hub     Broadcaster    // opcional
	now     func() time.Time
}

// NewServer instancia o servidor HTTP do ledger
func NewServer(log *zap.Logger, store *ledger.Store, session Session, src catalog.Source, hub Broadcaster) *Server {
	return &Server{log: log, store: store, session: session, catalog: src, hub: hub, now: time.Now}
}

// Router retorna o roteador HTTP com os endpoints do ledger
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/predictions", s.listPredictions)
	r.Post("/v1/predictions", s.addPrediction)
	r.Get("/v1/predictions/{challengeId}/{reelId}", s.getPrediction)
	r.Put("/v1/predictions/{challengeId}/{reelId}", s.updatePrediction)
	r.Delete("/v1/predictions/{challengeId}/{reelId}", s.removePrediction)
	r.Get("/v1/challenges/{challengeId}/staked", s.totalStaked)
	r.Get("/v1/challenges/{challengeId}/reels", s.listReels)
	r.Get("/v1/balance", s.getBalance)
	r.Put("/v1/balance", s.setBalance)
	r.Post("/v1/session/reset", s.reset)
	return r
}

func (s *Server) listPredictions(w http.ResponseWriter, _ *http.Request) {
	// a revisão vem antes do snapshot: nunca anuncia mais do que o corpo contém
	w.Header().Set("X-Ledger-Revision", strconv.FormatUint(s.store.Revision(), 10))
	preds := s.store.Predictions()
	out := make([]dto.PredictionResponse, 0, len(preds))
	for _, p := range preds {
		out = append(out, toResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getPrediction(w http.ResponseWriter, r *http.Request) {
	p, ok := s.store.PredictionFor(chi.URLParam(r, "challengeId"), chi.URLParam(r, "reelId"))
	if !ok {
		writeError(w, http.StatusNotFound, ledger.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p))
}

// addPrediction cria o stake; chave repetida devolve 409
func (s *Server) addPrediction(w http.ResponseWriter, r *http.Request) {
	var req dto.AddPredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("bad json"))
		return
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.checkOpen(r.Context(), req.ChallengeID, req.ReelID); err != nil {
		s.writeGateError(w, err)
		return
	}

	ts := req.Timestamp
	if ts == 0 {
		ts = s.now().UnixMilli()
	}
	p := ledger.Prediction{ChallengeID: req.ChallengeID, ReelID: req.ReelID, Amount: amount, Timestamp: ts}
	if err := s.store.AddPrediction(p); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.log.Info("prediction added", zap.String("challenge_id", p.ChallengeID), zap.String("reel_id", p.ReelID), zap.String("amount", amount.String()))
	s.broadcast("added", p.ChallengeID, p.ReelID, amount.String())
	writeJSON(w, http.StatusCreated, toResponse(p))
}

// updatePrediction troca o valor de um stake existente; ausente devolve 404
func (s *Server) updatePrediction(w http.ResponseWriter, r *http.Request) {
	challengeID, reelID := chi.URLParam(r, "challengeId"), chi.URLParam(r, "reelId")
	var req dto.UpdatePredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("bad json"))
		return
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.checkOpen(r.Context(), challengeID, ""); err != nil {
		s.writeGateError(w, err)
		return
	}
	var ts int64
	if cur, ok := s.store.PredictionFor(challengeID, reelID); ok {
		ts = cur.Timestamp
	}
	if err := s.store.UpdatePrediction(challengeID, reelID, amount); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.broadcast("updated", challengeID, reelID, amount.String())
	// resposta montada com o valor gravado; uma releitura poderia ver um DELETE concorrente
	writeJSON(w, http.StatusOK, dto.PredictionResponse{ChallengeID: challengeID, ReelID: reelID, Amount: amount.String(), Timestamp: ts})
}

// removePrediction retira um stake pendente. Com o challenge aberto responde 204
// mesmo sem nada a remover; só há broadcast quando algo saiu.
func (s *Server) removePrediction(w http.ResponseWriter, r *http.Request) {
	challengeID, reelID := chi.URLParam(r, "challengeId"), chi.URLParam(r, "reelId")
	if err := s.checkOpen(r.Context(), challengeID, ""); err != nil {
		s.writeGateError(w, err)
		return
	}
	if s.store.RemovePrediction(challengeID, reelID) {
		s.broadcast("removed", challengeID, reelID, "")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) totalStaked(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "challengeId")
	writeJSON(w, http.StatusOK, dto.TotalStakedResponse{ChallengeID: id, TotalStaked: s.store.TotalStaked(id).String()})
}

// listReels lista os reels do challenge com o stake do usuário em cada um
func (s *Server) listReels(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("catalog unavailable"))
		return
	}
	id := chi.URLParam(r, "challengeId")
	if _, err := s.catalog.GetChallenge(r.Context(), id); err != nil {
		s.writeGateError(w, err)
		return
	}
	reels, err := s.catalog.ListReels(r.Context(), id)
	if err != nil {
		s.writeGateError(w, err)
		return
	}
	out := make([]dto.ReelResponse, 0, len(reels))
	for _, rl := range reels {
		resp := dto.ReelResponse{
			ID:          rl.ID,
			ChallengeID: rl.ChallengeID,
			Title:       rl.Title,
			CreatorName: rl.CreatorName,
			PoolAmount:  "0",
			Votes:       rl.Votes,
			MyStake:     "0",
		}
		if rl.PoolAmount != nil {
			resp.PoolAmount = rl.PoolAmount.String()
		}
		if p, ok := s.store.PredictionFor(id, rl.ID); ok {
			resp.MyStake = p.Amount.String()
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.balanceResponse(r.Context()))
}

// setBalance é o ponto de sincronização manual dos contadores (valores absolutos)
func (s *Server) setBalance(w http.ResponseWriter, r *http.Request) {
	var req dto.BalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("bad json"))
		return
	}
	if req.Available == nil && req.Locked == nil {
		writeError(w, http.StatusBadRequest, errors.New("available or locked required"))
		return
	}

	// valida os dois antes de aplicar qualquer um
	var available, locked *big.Int
	var err error
	if req.Available != nil {
		if available, err = ledger.ParseAmount(*req.Available); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.Locked != nil {
		if locked, err = ledger.ParseAmount(*req.Locked); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	switch {
	case available != nil && locked != nil:
		err = s.store.SetBalances(available, locked)
	case available != nil:
		err = s.store.SetSessionBalance(available)
	default:
		err = s.store.SetLockedInPredictions(locked)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.balanceResponse(r.Context()))
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Clear(r.Context()); err != nil {
		s.log.Error("session reset", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if s.hub != nil {
		s.hub.Broadcast(events.PredictionChanged{Type: "reset", TotalStaked: "0", Ts: s.now().UnixMilli()})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) balanceResponse(ctx context.Context) dto.BalanceResponse {
	bal := s.store.Balance()
	out := dto.BalanceResponse{Available: bal.Available.String(), Locked: bal.Locked.String()}
	if s.catalog != nil {
		isOpen := catalog.OpenPredicate(ctx, s.catalog)
		out.OpenStake = s.store.OpenStake(isOpen).String()
		out.Drift = s.store.LockedDrift(isOpen).String()
	}
	return out
}

// checkOpen barra mudanças fora de active/voting. reelID vazio pula a checagem do reel.
func (s *Server) checkOpen(ctx context.Context, challengeID, reelID string) error {
	if s.catalog == nil {
		return nil
	}
	c, err := s.catalog.GetChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if !c.Status.IsOpen() {
		return errChallengeClosed
	}
	if reelID == "" {
		return nil
	}
	rl, err := s.catalog.GetReel(ctx, reelID)
	if err != nil {
		return err
	}
	if rl.ChallengeID != challengeID {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Server) writeGateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, errors.New("challenge or reel not found"))
	case errors.Is(err, errChallengeClosed):
		writeError(w, http.StatusConflict, err)
	default:
		s.log.Warn("catalog lookup failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, errors.New("catalog unavailable"))
	}
}

func (s *Server) broadcast(kind, challengeID, reelID, amount string) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(events.PredictionChanged{
		ChallengeID: challengeID,
		ReelID:      reelID,
		Type:        kind,
		Amount:      amount,
		TotalStaked: s.store.TotalStaked(challengeID).String(),
		Ts:          s.now().UnixMilli(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func toResponse(p ledger.Prediction) dto.PredictionResponse {
	return dto.PredictionResponse{ChallengeID: p.ChallengeID, ReelID: p.ReelID, Amount: p.Amount.String(), Timestamp: p.Timestamp}
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, dto.ErrorResponse{Error: err.Error()})
}
