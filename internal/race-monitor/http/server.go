package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/service"
	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
)

// RaceService é o que a API precisa do serviço de corridas
type RaceService interface {
	ListRaces(ctx context.Context) ([]api.Race, error)
	Monitor(ctx context.Context, url string) (service.MonitorResult, error)
	SetBaseline(ctx context.Context, id int64) error
	Refresh(ctx context.Context, id int64) error
	Reset(ctx context.Context) (service.ResetResult, error)
}

// API expõe os comandos e a leitura das corridas consumidos pelo dashboard
type API struct {
	Log     *zap.Logger
	Races   RaceService
	WS      http.HandlerFunc // nil desliga /ws
	Timeout time.Duration    // limite por requisição (exceto /ws)

	OnRequest func(route string, status int, d time.Duration) // métricas
}

// Router retorna o roteador HTTP com os endpoints REST; CORS liberado para qualquer origem
func (a *API) Router() http.Handler {
	if a.Log == nil {
		a.Log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))
	if a.WS != nil {
		r.Get("/ws", a.WS) // fora do timeout: conexão longa
	}

	r.Group(func(r chi.Router) {
		r.Use(a.logRequests)
		if a.Timeout > 0 {
			r.Use(middleware.Timeout(a.Timeout))
		}
		r.Get("/races", a.listRaces)            // Lista corridas com runners
		r.Post("/monitor", a.monitor)           // Registra corrida pela URL
		r.Post("/baseline/{id}", a.setBaseline) // Fotografa odds atuais
		r.Post("/refresh/{id}", a.refresh)      // Scrape imediato
		r.Post("/reset", a.reset)               // Mantém só a corrida mais recente
	})
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}

// logRequests registra cada requisição com um id próprio
func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		d := time.Since(start)
		if a.OnRequest != nil {
			a.OnRequest(route, ww.Status(), d)
		}
		if a.Log != nil {
			a.Log.Debug("http request",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", d),
			)
		}
	})
}

func (a *API) listRaces(w http.ResponseWriter, r *http.Request) {
	races, err := a.Races.ListRaces(r.Context())
	if err != nil {
		a.Log.Error("list races failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, races)
}

func (a *API) monitor(w http.ResponseWriter, r *http.Request) {
	res, err := a.Races.Monitor(r.Context(), r.URL.Query().Get("url"))
	if errors.Is(err, service.ErrInvalidURL) {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if err != nil {
		a.Log.Error("monitor failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	msg := "Already monitoring (Bumped to top)"
	if res.Created {
		msg = "Added race"
	}
	writeJSON(w, http.StatusOK, api.MonitorResponse{Message: msg, ID: res.ID})
}

func (a *API) setBaseline(w http.ResponseWriter, r *http.Request) {
	id, ok := raceID(w, r)
	if !ok {
		return
	}
	if err := a.Races.SetBaseline(r.Context(), id); err != nil {
		a.writeServiceError(w, "baseline", id, err)
		return
	}
	writeJSON(w, http.StatusOK, api.MessageResponse{Message: "Baseline set"})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	id, ok := raceID(w, r)
	if !ok {
		return
	}
	if err := a.Races.Refresh(r.Context(), id); err != nil {
		a.writeServiceError(w, "refresh", id, err)
		return
	}
	writeJSON(w, http.StatusOK, api.MessageResponse{Message: "Refreshed"})
}

func (a *API) reset(w http.ResponseWriter, r *http.Request) {
	res, err := a.Races.Reset(r.Context())
	if err != nil {
		a.Log.Error("reset failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	msg := "Database reset (kept latest race)"
	if res.KeptID == 0 {
		msg = "Database cleared (no races found)"
	}
	writeJSON(w, http.StatusOK, api.MessageResponse{Message: msg})
}

// raceID lê {id}; id não numérico responde 400
func raceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid race id")
		return 0, false
	}
	return id, true
}

func (a *API) writeServiceError(w http.ResponseWriter, op string, id int64, err error) {
	switch {
	case errors.Is(err, service.ErrRaceNotFound):
		writeError(w, http.StatusNotFound, "Race not found")
	case errors.Is(err, service.ErrScrapeFailed):
		writeError(w, http.StatusBadGateway, "Scrape failed")
	default:
		a.Log.Error(op+" failed", zap.Int64("race_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
