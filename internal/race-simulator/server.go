package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server expõe o programa simulado nas mesmas rotas da fonte real,
// mais /sim/* para controle e /ws com o feed de odds
type Server struct {
	Log *zap.Logger
	Sim *Simulator

	OnPage  func(kind string) // métricas
	OnDrift func(moved int)

	upgrader websocket.Upgrader
	mu       sync.RWMutex
	clients  map[string]*websocket.Conn
}

func NewServer(log *zap.Logger, sim *Simulator) *Server {
	return &Server{
		Log: log,
		Sim: sim,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*websocket.Conn),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/en/course/{date}/{code}", s.handleRace)
	r.Get("/en/reunion-du-jour/{date}/{code}", s.handleMeeting)
	r.Get("/en/resultats-et-rapports-du-jour/{date}", s.handleProgram)
	r.Get("/sim/races", s.handleList)
	r.Post("/sim/finish/{code}", s.handleFinish)
	r.Get("/ws", s.handleWS)
	return r
}

// Run move as odds a cada intervalo e publica no /ws até o contexto ser cancelado
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-t.C:
			moved := s.Sim.Drift()
			if s.OnDrift != nil {
				s.OnDrift(moved)
			}
			s.broadcast(s.snapshot())
		}
	}
}

func (s *Server) page(kind string) {
	if s.OnPage != nil {
		s.OnPage(kind)
	}
}

func (s *Server) sameDay(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := chi.URLParam(r, "date")
	if date != s.Sim.Day().Format("2006-01-02") {
		http.NotFound(w, r)
		return "", false
	}
	return date, true
}

// codePrefix tira o slug: "R1C2-prix-x" -> "R1C2"
func codePrefix(s string) string {
	if i := strings.IndexByte(s, '-'); i >= 0 {
		return s[:i]
	}
	return s
}

func (s *Server) handleRace(w http.ResponseWriter, r *http.Request) {
	date, ok := s.sameDay(w, r)
	if !ok {
		return
	}
	v, err := s.Sim.View(codePrefix(chi.URLParam(r, "code")))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.render(w, "race", func(buf *bytes.Buffer) error {
		return RenderRace(buf, v, "/en/course/"+date)
	})
}

func (s *Server) handleMeeting(w http.ResponseWriter, r *http.Request) {
	date, ok := s.sameDay(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimPrefix(codePrefix(chi.URLParam(r, "code")), "R"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	m, ok := s.Sim.Meeting(n)
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.render(w, "meeting", func(buf *bytes.Buffer) error { return RenderMeeting(buf, date, m) })
}

func (s *Server) handleProgram(w http.ResponseWriter, r *http.Request) {
	date, ok := s.sameDay(w, r)
	if !ok {
		return
	}
	s.render(w, "program", func(buf *bytes.Buffer) error { return RenderProgram(buf, date, s.Sim.Meetings()) })
}

func (s *Server) render(w http.ResponseWriter, kind string, fn func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		s.Log.Error("render failed", zap.String("page", kind), zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	s.page(kind)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// RaceInfo é a linha de /sim/races
type RaceInfo struct {
	ID       string    `json:"id"`
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	URL      string    `json:"url"`
	Trotting bool      `json:"trotting"`
	Start    time.Time `json:"start"`
	Winner   string    `json:"winner,omitempty"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.list())
}

func (s *Server) list() []RaceInfo {
	date := s.Sim.Day().Format("2006-01-02")
	var out []RaceInfo
	for _, m := range s.Sim.Meetings() {
		for _, r := range m.Races {
			v, err := s.Sim.View(r.Code())
			if err != nil {
				continue
			}
			out = append(out, RaceInfo{
				ID:       v.ID,
				Code:     v.Code(),
				Name:     v.Name,
				URL:      "/en/course/" + date + "/" + v.Code() + "-" + v.Slug,
				Trotting: v.Trotting(),
				Start:    v.Start,
				Winner:   v.Winner,
			})
		}
	}
	return out
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	winner, err := s.Sim.Finish(code)
	w.Header().Set("Content-Type", "application/json")
	if errors.Is(err, ErrUnknownRace) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	s.Log.Info("race finished", zap.String("race", code), zap.String("winner", winner))
	_ = json.NewEncoder(w).Encode(map[string]string{"race": code, "winner": winner})
}

// OddsTick é a mensagem do /ws: odds atuais por corrida aberta
type OddsTick struct {
	At    time.Time                  `json:"at"`
	Races map[string]map[int]float64 `json:"races"`
}

func (s *Server) snapshot() OddsTick {
	tick := OddsTick{At: time.Now().UTC(), Races: map[string]map[int]float64{}}
	for _, m := range s.Sim.Meetings() {
		for _, r := range m.Races {
			v, err := s.Sim.View(r.Code())
			if err != nil || v.Winner != "" {
				continue
			}
			odds := make(map[int]float64, len(v.Runners))
			for _, rn := range v.Runners {
				if !rn.NonRunner {
					odds[rn.Number] = rn.Odds
				}
			}
			tick.Races[v.Code()] = odds
		}
	}
	return tick
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.clients[id] = conn
	s.mu.Unlock()
	s.Log.Info("ws client connected", zap.String("client_id", id))

	go func() {
		defer s.remove(id)
		for {
			// descarta o que o cliente mandar; o erro de leitura marca a desconexão
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	conn, ok := s.clients[id]
	delete(s.clients, id)
	s.mu.Unlock()
	if ok {
		_ = conn.Close()
		s.Log.Info("ws client disconnected", zap.String("client_id", id))
	}
}

func (s *Server) broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, c := range s.clients {
		_ = c.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.Log.Warn("ws write failed", zap.String("client_id", id), zap.Error(err))
			_ = c.Close()
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		_ = c.Close()
		delete(s.clients, id)
	}
}
