// Package dashboard implementa o painel de corridas: polling de GET /races, estado da tela,
// ordenação dos cartões, alertas de steam e os comandos enviados ao race-monitor
package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
)

// ErrResetCancelled indica que o usuário não confirmou o reset; nenhuma requisição foi feita
var ErrResetCancelled = errors.New("reset cancelled")

// RacesAPI é o que o painel precisa do backend
type RacesAPI interface {
	ListRaces(ctx context.Context) ([]api.Race, error)
	Monitor(ctx context.Context, url string) (api.MonitorResponse, error)
	SetBaseline(ctx context.Context, raceID int64) (api.MessageResponse, error)
	Refresh(ctx context.Context, raceID int64) (api.MessageResponse, error)
	Reset(ctx context.Context) (api.MessageResponse, error)
}

// State é o retrato da tela
type State struct {
	Races     []api.Race
	Loading   bool  // sem dados e sem erro ainda
	ConnError error // banner até o próximo poll bem-sucedido
	UpdatedAt time.Time
}

// Options configura o painel
type Options struct {
	Interval time.Duration // padrão 2s
	Timeout  time.Duration // por requisição de /races, padrão 5s
	// Confirm é chamado antes do reset; nil nega
	Confirm func(prompt string) bool
	// ordenação dos cartões ainda não clicados
	DefaultSort SortState
}

// Dashboard mantém o estado do painel; é seguro para uso concorrente
type Dashboard struct {
	log  *zap.Logger
	api  RacesAPI
	opts Options

	inFlight atomic.Bool // garante um único GET /races por vez
	pending  atomic.Bool // pedido de re-poll chegou com um poll em andamento
	skipped  atomic.Int64

	mu     sync.RWMutex
	races  []api.Race
	err    error
	loaded bool
	at     time.Time
	sorts  map[int64]SortState

	alerts *AlertObserver

	OnUpdate func(State) // chamado após cada poll concluído
	OnAlert  func(Alert) // borda de subida da condição de alerta
}

func New(log *zap.Logger, races RacesAPI, opts Options) *Dashboard {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Dashboard{
		log:    log,
		api:    races,
		opts:   opts,
		sorts:  make(map[int64]SortState),
		alerts: NewAlertObserver(),
	}
}

// Run faz polling até ctx ser cancelado. Ticks com um poll ainda em andamento são descartados
func (d *Dashboard) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	poll := func() {
		if !d.inFlight.CompareAndSwap(false, true) {
			d.skipped.Add(1)
			d.log.Debug("poll skipped; previous request still in flight")
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.pollHeld(ctx)
		}()
	}

	poll()
	t := time.NewTicker(d.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			poll()
		}
	}
}

// PollNow executa um poll imediato. Com um poll já em andamento devolve false e deixa
// o pedido pendente: quem está com o poll repete a consulta ao terminar
func (d *Dashboard) PollNow(ctx context.Context) bool {
	if !d.inFlight.CompareAndSwap(false, true) {
		d.skipped.Add(1)
		d.pending.Store(true)
		return false
	}
	d.pollHeld(ctx)
	return true
}

// pollHeld roda com inFlight já adquirido e o libera no fim
func (d *Dashboard) pollHeld(ctx context.Context) {
	for {
		d.pending.Store(false)
		d.poll(ctx)
		d.inFlight.Store(false)
		if !d.pending.Load() || ctx.Err() != nil || !d.inFlight.CompareAndSwap(false, true) {
			return
		}
	}
}

// Skipped conta os polls descartados por sobreposição
func (d *Dashboard) Skipped() int64 { return d.skipped.Load() }

func (d *Dashboard) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	races, err := d.api.ListRaces(ctx)

	d.mu.Lock()
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			d.mu.Unlock()
			return // encerrando
		}
		d.err = err
	} else {
		d.races, d.err, d.loaded, d.at = races, nil, true, time.Now()
	}
	d.mu.Unlock()

	if err != nil {
		d.log.Warn("fetch races failed", zap.Error(err))
	} else {
		for _, a := range d.alerts.Observe(races) {
			if d.OnAlert != nil {
				d.OnAlert(a)
			}
		}
	}

	if d.OnUpdate != nil {
		d.OnUpdate(d.State())
	}
}

// State devolve uma cópia do estado atual
func (d *Dashboard) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return State{
		Races:     append([]api.Race(nil), d.races...),
		Loading:   !d.loaded && d.err == nil,
		ConnError: d.err,
		UpdatedAt: d.at,
	}
}

// RequestSort aplica um clique de ordenação no cartão da corrida
func (d *Dashboard) RequestSort(raceID int64, key SortKey) SortState {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.sortFor(raceID).Request(key)
	d.sorts[raceID] = s
	return s
}

// SortFor devolve a ordenação do cartão da corrida
func (d *Dashboard) SortFor(raceID int64) SortState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sortFor(raceID)
}

func (d *Dashboard) sortFor(raceID int64) SortState {
	if s, ok := d.sorts[raceID]; ok {
		return s
	}
	return d.opts.DefaultSort
}

// Monitor registra uma URL no backend
func (d *Dashboard) Monitor(ctx context.Context, raceURL string) (api.MonitorResponse, error) {
	raceURL = strings.TrimSpace(raceURL)
	res, err := d.api.Monitor(ctx, raceURL)
	if err != nil {
		d.log.Error("monitor failed", zap.String("url", raceURL), zap.Error(err))
		return res, err
	}
	d.log.Info(res.Message, zap.Int64("race_id", res.ID))
	d.PollNow(ctx)
	return res, nil
}

// SetBaseline fotografa as odds da corrida e re-consulta a lista
func (d *Dashboard) SetBaseline(ctx context.Context, raceID int64) error {
	if _, err := d.api.SetBaseline(ctx, raceID); err != nil {
		d.log.Error("set baseline failed", zap.Int64("race_id", raceID), zap.Error(err))
		return err
	}
	d.PollNow(ctx)
	return nil
}

// Refresh força o scrape da corrida e re-consulta a lista
func (d *Dashboard) Refresh(ctx context.Context, raceID int64) error {
	if _, err := d.api.Refresh(ctx, raceID); err != nil {
		d.log.Error("refresh failed", zap.Int64("race_id", raceID), zap.Error(err))
		return err
	}
	d.PollNow(ctx)
	return nil
}

// Reset apaga todas as corridas menos a mais recente, só após confirmação
func (d *Dashboard) Reset(ctx context.Context) (api.MessageResponse, error) {
	if d.opts.Confirm == nil || !d.opts.Confirm("Delete all races except the latest one?") {
		return api.MessageResponse{}, ErrResetCancelled
	}
	res, err := d.api.Reset(ctx)
	if err != nil {
		d.log.Error("reset failed", zap.Error(err))
		return res, err
	}
	d.log.Info(res.Message)
	d.PollNow(ctx)
	return res, nil
}
