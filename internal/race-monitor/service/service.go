// Package service implementa os comandos e o ciclo de monitoramento das corridas
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/alerts"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/ledger"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/model"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/repo"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/scraper"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/steam"
	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
	"github.com/radieske/race-odds-monitor/pkg/contracts/events"
)

var (
	ErrRaceNotFound = errors.New("race not found")
	ErrInvalidURL   = errors.New("url is required")
	ErrScrapeFailed = errors.New("scrape failed")
)

// Deps agrupa as dependências do serviço; as opcionais podem ficar nil
type Deps struct {
	Log    *zap.Logger
	Store  Store
	Source RaceSource

	Cache       SnapshotCache
	Publisher   EventPublisher
	Broadcaster Broadcaster
	Archiver    Archiver

	AutoSwitchAfter time.Duration
	SyncTimeout     time.Duration // prazo de um scrape compartilhado, independente de quem o iniciou
	SourceName      string
	Now             func() time.Time
}

// Service concentra registro de corridas, ledger de runners, baseline e limpeza.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Service struct {
	log       *zap.Logger
	store     Store
	source    RaceSource
	cache     SnapshotCache
	publisher EventPublisher
	broadcast Broadcaster
	archiver  Archiver
	detector  *alerts.Detector

	autoSwitchAfter time.Duration
	syncTimeout     time.Duration
	sourceName      string
	now             func() time.Time

	// um scrape por corrida por vez: refresh manual e polling compartilham o resultado
	flight singleflight.Group
	// poll, baseline, resultado e troca gravam a corrida inteira; um por vez por corrida
	locks raceLocks

	OnScrape   func(ok bool, d time.Duration) // métricas
	OnAlert    func()                         // métricas
	OnFinalize func()                         // métricas
	OnError    func(stage string)             // métricas por fase
}

func New(d Deps) *Service {
	s := &Service{
		log:             d.Log,
		store:           d.Store,
		source:          d.Source,
		cache:           d.Cache,
		publisher:       d.Publisher,
		broadcast:       d.Broadcaster,
		archiver:        d.Archiver,
		detector:        alerts.NewDetector(),
		autoSwitchAfter: d.AutoSwitchAfter,
		syncTimeout:     d.SyncTimeout,
		sourceName:      d.SourceName,
		now:             d.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.cache == nil {
		s.cache = noopCache{}
	}
	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	if s.broadcast == nil {
		s.broadcast = noopBroadcaster{}
	}
	if s.archiver == nil {
		s.archiver = noopArchiver{}
	}
	if s.autoSwitchAfter <= 0 {
		s.autoSwitchAfter = 10 * time.Minute
	}
	if s.syncTimeout <= 0 {
		s.syncTimeout = 30 * time.Second
	}
	if s.sourceName == "" {
		s.sourceName = "race-monitor"
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) fail(stage string) {
	if s.OnError != nil {
		s.OnError(stage)
	}
}

// MonitorResult é o resultado do comando monitor
type MonitorResult struct {
	ID      int64
	Created bool
}

// Monitor registra uma corrida pela URL. URL já monitorada não é duplicada:
// a corrida existente vai para o topo da prioridade (sem reativação)
func (s *Service) Monitor(ctx context.Context, url string) (MonitorResult, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return MonitorResult{}, ErrInvalidURL
	}
	now := s.now().UTC()

	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.store.GetRaceByURL(ctx, url)
		switch {
		case err == nil:
			if err := s.store.BumpRace(ctx, existing.ID, now); err != nil {
				return MonitorResult{}, fmt.Errorf("bump race: %w", err)
			}
			s.invalidate(ctx)
			s.log.Info("race bumped", zap.Int64("race_id", existing.ID), zap.String("url", url))
			return MonitorResult{ID: existing.ID}, nil
		case !errors.Is(err, repo.ErrNotFound):
			return MonitorResult{}, fmt.Errorf("lookup race: %w", err)
		}

		race := &model.Race{
			URL:          url,
			Name:         model.PlaceholderName,
			Meeting:      model.PlaceholderMeeting,
			LastBumpedAt: now,
		}
		err = s.store.CreateRace(ctx, race)
		if errors.Is(err, repo.ErrAlreadyExists) {
			continue // outra requisição criou a mesma URL no meio tempo
		}
		if err != nil {
			return MonitorResult{}, fmt.Errorf("create race: %w", err)
		}
		s.invalidate(ctx)
		s.log.Info("race added", zap.Int64("race_id", race.ID), zap.String("url", url))
		return MonitorResult{ID: race.ID, Created: true}, nil
	}
	return MonitorResult{}, fmt.Errorf("create race: %w", repo.ErrAlreadyExists)
}

// SetBaseline fotografa as odds atuais de todos os runners e zera o steam
func (s *Service) SetBaseline(ctx context.Context, id int64) error {
	unlock := s.locks.lock(id)
	race, err := s.getRace(ctx, id)
	if err != nil {
		unlock()
		return err
	}
	now := s.now().UTC()
	changes := ledger.SetBaseline(race.Runners)
	race.BaselineSetAt = &now
	err = s.store.SaveRaceState(ctx, race, changes)
	unlock()
	if err != nil {
		s.fail("baseline")
		return fmt.Errorf("save baseline: %w", err)
	}
	s.log.Info("baseline set", zap.Int64("race_id", id), zap.Int("runners", len(changes)))

	s.afterSave(ctx, id, 0, false)
	return nil
}

// Refresh raspa a corrida imediatamente, juntando-se a um scrape em andamento se houver
func (s *Service) Refresh(ctx context.Context, id int64) error {
	if _, err := s.getRace(ctx, id); err != nil {
		return err
	}
	_, err := s.syncRace(ctx, id)
	return err
}

// ListRaces devolve todas as corridas no formato público, preferencialmente do cache
func (s *Service) ListRaces(ctx context.Context) ([]api.Race, error) {
	if races, ok, err := s.cache.GetRaces(ctx); err != nil {
		s.log.Warn("snapshot cache get failed", zap.Error(err))
		s.fail("cache")
	} else if ok {
		return races, nil
	}

	races, err := s.store.ListRaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list races: %w", err)
	}
	out := make([]api.Race, 0, len(races))
	for _, r := range races {
		out = append(out, ToAPI(r))
	}
	if err := s.cache.SetRaces(ctx, out); err != nil {
		s.log.Warn("snapshot cache set failed", zap.Error(err))
		s.fail("cache")
	}
	return out, nil
}

// ResetResult informa o que o reset manteve e apagou
type ResetResult struct {
	KeptID  int64 // 0 quando não havia corridas
	Deleted int64
}

// Reset apaga todas as corridas menos a criada por último
func (s *Service) Reset(ctx context.Context) (ResetResult, error) {
	kept, deleted, err := s.store.ResetKeepLatest(ctx)
	if err != nil {
		s.fail("reset")
		return ResetResult{}, fmt.Errorf("reset: %w", err)
	}
	s.detector.RetainOnly(kept)
	s.invalidate(ctx)
	s.log.Info("database reset", zap.Int64("kept_race_id", kept), zap.Int64("deleted", deleted))
	return ResetResult{KeptID: kept, Deleted: deleted}, nil
}

// ActiveRaceIDs devolve as corridas ativas priorizadas pelo último bump
func (s *Service) ActiveRaceIDs(ctx context.Context, limit int) ([]int64, error) {
	races, err := s.store.LatestActiveRaces(ctx, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(races))
	for _, r := range races {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// PollRace executa um ciclo de monitoramento: scrape, resultado e troca automática.
// active=false indica que a corrida saiu de monitoramento e a tarefa deve parar
func (s *Service) PollRace(ctx context.Context, id int64) (active bool, err error) {
	race, err := s.store.GetRace(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return true, fmt.Errorf("load race %d: %w", id, err)
	}
	if !race.IsActive {
		return false, nil
	}

	// falha de scrape não impede a checagem de resultado
	_, scrapeErr := s.syncRace(ctx, id)

	done, err := s.checkResult(ctx, id)
	if errors.Is(err, ErrRaceNotFound) {
		return false, nil // apagada pelo reset durante o ciclo
	}
	if err != nil {
		return true, errors.Join(scrapeErr, err)
	}
	if done {
		return false, scrapeErr
	}

	switched, err := s.autoSwitch(ctx, id)
	if err != nil {
		return true, errors.Join(scrapeErr, err)
	}
	return !switched, scrapeErr
}

// DiscoverToday registra as corridas de trote francesas do dia que ainda não existem
func (s *Service) DiscoverToday(ctx context.Context) (int, error) {
	urls, err := s.source.DiscoverRaces(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("discover races: %w", err)
	}
	added := 0
	for _, u := range urls {
		r := &model.Race{URL: u, Name: model.PlaceholderName, Meeting: model.PlaceholderMeeting, LastBumpedAt: s.now().UTC()}
		err := s.store.CreateRace(ctx, r)
		if errors.Is(err, repo.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return added, fmt.Errorf("create race: %w", err)
		}
		added++
	}
	if added > 0 {
		s.invalidate(ctx)
	}
	s.log.Info("auto-discovery complete", zap.Int("found", len(urls)), zap.Int("added", added))
	return added, nil
}

func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// AlertingRunners conta os runners em condição de alerta de steam neste processo
func (s *Service) AlertingRunners() int { return s.detector.Alerting() }

func (s *Service) getRace(ctx context.Context, id int64) (*model.Race, error) {
	race, err := s.store.GetRace(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load race %d: %w", id, err)
	}
	return race, nil
}

// syncRace raspa e grava a corrida; chamadas concorrentes para a mesma corrida compartilham um scrape.
// O scrape roda com prazo próprio: cancelar quem o iniciou não derruba os demais que aguardam
func (s *Service) syncRace(ctx context.Context, id int64) (ledger.Result, error) {
	ch := s.flight.DoChan(strconv.FormatInt(id, 10), func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.syncTimeout)
		defer cancel()
		return s.scrapeAndSave(sctx, id)
	})
	select {
	case <-ctx.Done():
		return ledger.Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return ledger.Result{}, r.Err
		}
		return r.Val.(ledger.Result), nil
	}
}

func (s *Service) scrapeAndSave(ctx context.Context, id int64) (ledger.Result, error) {
	race, err := s.getRace(ctx, id)
	if err != nil {
		return ledger.Result{}, err
	}

	start := time.Now()
	card, err := s.source.ScrapeRace(ctx, race.URL)
	if s.OnScrape != nil {
		s.OnScrape(err == nil, time.Since(start))
	}
	if err != nil {
		s.fail("scrape")
		s.log.Warn("race scrape failed", zap.Int64("race_id", id), zap.String("url", race.URL), zap.Error(err))
		return ledger.Result{}, fmt.Errorf("%w: %w", ErrScrapeFailed, err)
	}

	// o estado lido antes do scrape pode estar velho (baseline definido no meio do caminho)
	res, err := s.applyCard(ctx, id, card)
	if err != nil {
		return ledger.Result{}, err
	}

	changed := res.Changed()
	s.log.Debug("race scraped",
		zap.Int64("race_id", id),
		zap.Int("runners", len(res.Runners)),
		zap.Int("changed", changed),
	)
	s.afterSave(ctx, id, changed, changed > 0 || res.RaceChanged)
	return res, nil
}

func (s *Service) applyCard(ctx context.Context, id int64, card *scraper.RaceCard) (ledger.Result, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	race, err := s.getRace(ctx, id)
	if err != nil {
		return ledger.Result{}, err
	}
	prev, err := s.store.SteamerWinners(ctx, ledger.NewRunnerNames(race.Runners, card))
	if err != nil {
		s.fail("winner_history")
		return ledger.Result{}, fmt.Errorf("lookup winner history: %w", err)
	}

	res := ledger.Apply(*race, race.Runners, card, prev, s.now().UTC())
	if err := s.store.SaveRaceState(ctx, &res.Race, res.Runners); err != nil {
		s.fail("db_save")
		return ledger.Result{}, fmt.Errorf("save race state: %w", err)
	}
	return res, nil
}

// afterSave relê a corrida gravada e propaga: alertas, eventos, broadcast e cache
func (s *Service) afterSave(ctx context.Context, id int64, changed int, publish bool) {
	s.invalidate(ctx)

	race, err := s.store.GetRace(ctx, id)
	if err != nil {
		s.log.Warn("reload race failed", zap.Int64("race_id", id), zap.Error(err))
		return
	}
	now := s.now().UTC()

	for _, alert := range s.detector.Observe(*race, race.Runners, now) {
		s.log.Info("steam alert",
			zap.Int64("race_id", alert.RaceID),
			zap.String("runner", alert.RunnerName),
			zap.Float64("steam_pct", alert.SteamPercentage),
		)
		if s.OnAlert != nil {
			s.OnAlert()
		}
		if err := s.publisher.PublishSteamAlert(ctx, alert); err != nil {
			s.log.Warn("publish steam alert failed", zap.Error(err))
			s.fail("publish")
		}
	}

	if publish {
		ev := toOddsEvent(*race, changed, s.sourceName)
		ev.UpdatedAt = now
		if err := s.publisher.PublishOddsUpdate(ctx, ev); err != nil {
			s.log.Warn("publish odds update failed", zap.Error(err))
			s.fail("publish")
		}
	}

	if err := s.broadcast.BroadcastRace(ctx, ToAPI(*race)); err != nil {
		s.log.Warn("ws broadcast publish failed", zap.Error(err))
		s.fail("broadcast")
	}
}

// checkResult procura o vencedor; se houver, encerra a corrida e registra o histórico
func (s *Service) checkResult(ctx context.Context, id int64) (bool, error) {
	race, err := s.getRace(ctx, id)
	if err != nil {
		return false, err
	}

	winner, err := s.source.ScrapeResult(ctx, race.URL)
	if err != nil {
		s.fail("result")
		return false, fmt.Errorf("check result: %w", err)
	}
	if winner == "" {
		return false, nil
	}

	unlock := s.locks.lock(id)
	defer unlock()
	if race, err = s.getRace(ctx, id); err != nil {
		return false, err
	}

	now := s.now().UTC()
	race.WinnerName = &winner
	race.ResultChecked = true
	race.IsActive = false

	var history *model.WinnerHistory
	for _, rn := range race.Runners {
		if rn.Name == winner {
			history = &model.WinnerHistory{
				HorseName:       winner,
				RaceDate:        now,
				FinalOdds:       rn.CurrentOdds,
				SteamPercentage: rn.SteamPercentage,
				IsSteamer:       steam.IsSteamer(rn.SteamPercentage),
			}
			break
		}
	}

	if err := s.store.FinalizeRace(ctx, race, history); err != nil {
		s.fail("db_finalize")
		return false, fmt.Errorf("finalize race: %w", err)
	}
	s.detector.ForgetRace(id)
	s.invalidate(ctx)
	if s.OnFinalize != nil {
		s.OnFinalize()
	}
	s.log.Info("race finalized", zap.Int64("race_id", id), zap.String("winner", winner))

	ev := events.RaceFinalized{RaceID: id, RaceName: race.Name, RaceURL: race.URL, WinnerName: winner, Ts: now}
	if history != nil {
		ev.FinalOdds, ev.SteamPercentage, ev.IsSteamer = history.FinalOdds, history.SteamPercentage, history.IsSteamer
	}
	if err := s.publisher.PublishRaceFinalized(ctx, ev); err != nil {
		s.log.Warn("publish race finalized failed", zap.Error(err))
		s.fail("publish")
	}
	snapshot := ToAPI(*race)
	if err := s.archiver.ArchiveRace(ctx, snapshot); err != nil {
		s.log.Warn("archive race failed", zap.Int64("race_id", id), zap.Error(err))
		s.fail("archive")
	}
	if err := s.broadcast.BroadcastRace(ctx, snapshot); err != nil {
		s.fail("broadcast")
	}
	return true, nil
}

// autoSwitch: passado o prazo após a largada, registra a próxima corrida da reunião e desativa a atual
func (s *Service) autoSwitch(ctx context.Context, id int64) (bool, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	race, err := s.getRace(ctx, id)
	if err != nil {
		return false, err
	}
	now := s.now().UTC()
	if race.StartTime == nil || !now.After(race.StartTime.Add(s.autoSwitchAfter)) {
		return false, nil
	}
	if race.NextRaceURL == nil || *race.NextRaceURL == "" {
		return false, nil
	}

	next := &model.Race{
		URL:          *race.NextRaceURL,
		Name:         model.NextRacePlaceholder,
		Meeting:      race.Meeting,
		LastBumpedAt: now,
	}
	err = s.store.CreateRace(ctx, next)
	switch {
	case err == nil:
		s.log.Info("auto-switching to next race", zap.Int64("race_id", id), zap.Int64("next_race_id", next.ID), zap.String("url", next.URL))
	case errors.Is(err, repo.ErrAlreadyExists):
		s.log.Info("next race already monitored", zap.Int64("race_id", id), zap.String("url", next.URL))
	default:
		return false, fmt.Errorf("create next race: %w", err)
	}

	race.IsActive = false
	if err := s.store.SaveRaceState(ctx, race, nil); err != nil {
		return false, fmt.Errorf("deactivate race: %w", err)
	}
	s.detector.ForgetRace(id)
	s.invalidate(ctx)
	return true, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("snapshot cache invalidate failed", zap.Error(err))
		s.fail("cache")
	}
}
