// Package poller mantém uma tarefa de monitoramento viva para a corrida ativa mais recente
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Monitor é o que o poller precisa do serviço
type Monitor interface {
	ActiveRaceIDs(ctx context.Context, limit int) ([]int64, error)
	PollRace(ctx context.Context, id int64) (active bool, err error)
}

// Config controla a cadência do orquestrador e das tarefas
type Config struct {
	Interval     time.Duration // orquestrador (padrão 5s)
	PollInterval time.Duration // tarefa por corrida (padrão 2s)
	MinSleep     time.Duration // pausa mínima entre ciclos (padrão 100ms)
	MaxRaces     int           // corridas monitoradas ao mesmo tempo (padrão 1)
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MinSleep <= 0 {
		c.MinSleep = 100 * time.Millisecond
	}
	if c.MaxRaces <= 0 {
		c.MaxRaces = 1
	}
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator seleciona periodicamente as corridas a monitorar e gerencia uma tarefa por corrida
type Orchestrator struct {
	log *zap.Logger
	mon Monitor
	cfg Config

	mu    sync.Mutex
	tasks map[int64]*task
	wg    sync.WaitGroup

	// métricas: tarefas ativas, ciclos e tarefas encerradas
	OnTasks     func(n int)
	OnPoll      func(raceID int64, err error)
	OnTaskEnded func(raceID int64)
}

func NewOrchestrator(log *zap.Logger, mon Monitor, cfg Config) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{log: log, mon: mon, cfg: cfg, tasks: make(map[int64]*task)}
}

// Run bloqueia até ctx ser cancelado; ao sair, todas as tarefas já terminaram
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info("orchestrator started", zap.Duration("interval", o.cfg.Interval))
	defer func() {
		o.stopAll()
		o.wg.Wait()
		o.log.Info("orchestrator stopped")
	}()

	t := time.NewTicker(o.cfg.Interval)
	defer t.Stop()
	for {
		o.reconcile(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// reconcile inicia tarefas para as corridas selecionadas e cancela as demais
func (o *Orchestrator) reconcile(ctx context.Context) {
	ids, err := o.mon.ActiveRaceIDs(ctx, o.cfg.MaxRaces)
	if err != nil {
		if ctx.Err() == nil {
			o.log.Error("list active races failed", zap.Error(err))
		}
		return
	}
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for id, tk := range o.tasks {
		select {
		case <-tk.done:
			delete(o.tasks, id) // terminou sozinha (corrida encerrada)
			continue
		default:
		}
		if _, ok := want[id]; !ok {
			o.log.Info("stopping race task", zap.Int64("race_id", id))
			tk.cancel()
			delete(o.tasks, id)
		}
	}
	for _, id := range ids {
		if _, ok := o.tasks[id]; ok {
			continue
		}
		o.log.Info("starting race task", zap.Int64("race_id", id))
		o.tasks[id] = o.start(ctx, id)
	}
	if o.OnTasks != nil {
		o.OnTasks(len(o.tasks))
	}
}

func (o *Orchestrator) start(parent context.Context, id int64) *task {
	ctx, cancel := context.WithCancel(parent)
	tk := &task{cancel: cancel, done: make(chan struct{})}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(tk.done)
		defer cancel()
		o.runTask(ctx, id)
		if o.OnTaskEnded != nil {
			o.OnTaskEnded(id)
		}
	}()
	return tk
}

// runTask executa ciclos até a corrida sair de monitoramento ou o contexto ser cancelado.
// Cadência compensada: dorme max(MinSleep, PollInterval - duração do ciclo)
func (o *Orchestrator) runTask(ctx context.Context, id int64) {
	for {
		start := time.Now()
		active, err := o.mon.PollRace(ctx, id)
		if o.OnPoll != nil {
			o.OnPoll(id, err)
		}
		if err != nil && ctx.Err() == nil {
			o.log.Warn("race poll failed", zap.Int64("race_id", id), zap.Error(err))
		}
		if !active {
			o.log.Info("race task finished", zap.Int64("race_id", id))
			return
		}

		wait := SleepFor(o.cfg.PollInterval, o.cfg.MinSleep, time.Since(start))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Running devolve os ids das corridas com tarefa viva
func (o *Orchestrator) Running() []int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]int64, 0, len(o.tasks))
	for id, tk := range o.tasks {
		select {
		case <-tk.done:
		default:
			out = append(out, id)
		}
	}
	return out
}

func (o *Orchestrator) stopAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, tk := range o.tasks {
		tk.cancel()
		delete(o.tasks, id)
	}
}

// SleepFor é a pausa entre ciclos para um ciclo que levou elapsed
func SleepFor(interval, minSleep, elapsed time.Duration) time.Duration {
	return max(minSleep, interval-elapsed)
}
