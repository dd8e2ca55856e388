package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
)

const writeWait = 5 * time.Second

// client serializa as escritas numa conexão (gorilla aceita um único writer por vez)
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket e assinaturas por corrida
// subs: mapeia raceID para o conjunto de clientes inscritos
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[int64]map[*client]struct{}

	OnConnect    func() // métricas
	OnDisconnect func() // métricas
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(log *zap.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[int64]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Permite subscribe/unsubscribe em corridas e responde a pings
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	if h.OnConnect != nil {
		h.OnConnect()
	}
	c := &client{conn: conn}

	for {
		var msg api.ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			h.mu.Lock()
			if _, ok := h.subs[msg.RaceID]; !ok {
				h.subs[msg.RaceID] = make(map[*client]struct{})
			}
			h.subs[msg.RaceID][c] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.mu.Lock()
			h.removeLocked(msg.RaceID, c)
			h.mu.Unlock()
		case "ping":
			b, _ := json.Marshal(map[string]string{"type": "pong"})
			_ = c.write(b)
		}
	}

	// remove a conexão de todas as assinaturas ao desconectar
	h.mu.Lock()
	for id := range h.subs {
		h.removeLocked(id, c)
	}
	h.mu.Unlock()
	if h.OnDisconnect != nil {
		h.OnDisconnect()
	}
}

func (h *Hub) removeLocked(raceID int64, c *client) {
	if m, ok := h.subs[raceID]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, raceID)
		}
	}
}

// Subscribers devolve quantos clientes acompanham a corrida
func (h *Hub) Subscribers(raceID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[raceID])
}

// Broadcast envia a atualização para todos os clientes inscritos na corrida
func (h *Hub) Broadcast(update api.RaceUpdate) {
	h.mu.RLock()
	set := h.subs[update.RaceID]
	conns := make([]*client, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	b, err := json.Marshal(update)
	if err != nil {
		h.log.Warn("ws marshal failed", zap.Error(err))
		return
	}
	for _, c := range conns {
		if err := c.write(b); err != nil {
			h.log.Debug("ws write failed", zap.Int64("race_id", update.RaceID), zap.Error(err))
		}
	}
}
