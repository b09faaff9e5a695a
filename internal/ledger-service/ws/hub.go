package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/radieske/reel-prediction-ledger/pkg/contracts/events"
)

// ClientMsg é a mensagem recebida do cliente WebSocket
type ClientMsg struct {
	Type        string `json:"type"`        // subscribe | unsubscribe | ping
	ChallengeID string `json:"challengeId"` // requerido em subscribe/unsubscribe
}

// conn serializa escritas; gorilla não aceita writers concorrentes
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *conn) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket e assinaturas por challenge
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	conns    map[*conn]struct{}
	// challengeID -> conexões inscritas
	subs map[string]map[*conn]struct{}
}

func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		conns:    make(map[*conn]struct{}),
		subs:     make(map[string]map[*conn]struct{}),
	}
}

// HandleWS atende uma conexão até o cliente desconectar
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{ws: ws}
	defer ws.Close()

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	for {
		var msg ClientMsg
		if err := ws.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if msg.ChallengeID == "" {
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[msg.ChallengeID]; !ok {
				h.subs[msg.ChallengeID] = make(map[*conn]struct{})
			}
			h.subs[msg.ChallengeID][c] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.unsubscribe(msg.ChallengeID, c)
		case "ping":
			_ = c.writeJSON(map[string]string{"type": "pong"})
		}
	}

	h.mu.Lock()
	delete(h.conns, c)
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) unsubscribe(challengeID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[challengeID]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, challengeID)
		}
	}
}

// Broadcast envia a mudança aos inscritos no challenge. Sem challenge
// (reset de sessão) vai para todas as conexões.
func (h *Hub) Broadcast(ev events.PredictionChanged) {
	h.mu.RLock()
	src := h.conns
	if ev.ChallengeID != "" {
		src = h.subs[ev.ChallengeID]
	}
	targets := make([]*conn, 0, len(src))
	for c := range src {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, _ := json.Marshal(ev)
	for _, c := range targets {
		_ = c.write(b)
	}
}
