package service

import (
	"context"
	"time"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/model"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/scraper"
	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
	"github.com/radieske/race-odds-monitor/pkg/contracts/events"
)

// Store define as operações de persistência usadas pelo serviço
type Store interface {
	CreateRace(ctx context.Context, r *model.Race) error
	GetRace(ctx context.Context, id int64) (*model.Race, error)
	GetRaceByURL(ctx context.Context, url string) (*model.Race, error)
	ListRaces(ctx context.Context) ([]model.Race, error)
	LatestActiveRaces(ctx context.Context, limit int) ([]model.Race, error)
	BumpRace(ctx context.Context, id int64, at time.Time) error
	SaveRaceState(ctx context.Context, r *model.Race, changes []model.RunnerChange) error
	FinalizeRace(ctx context.Context, r *model.Race, winner *model.WinnerHistory) error
	SteamerWinners(ctx context.Context, names []string) (map[string]bool, error)
	ResetKeepLatest(ctx context.Context) (keptID int64, deleted int64, err error)
	Ping(ctx context.Context) error
}

// RaceSource busca corridas na fonte externa
type RaceSource interface {
	ScrapeRace(ctx context.Context, url string) (*scraper.RaceCard, error)
	ScrapeResult(ctx context.Context, url string) (string, error)
	DiscoverRaces(ctx context.Context, day time.Time) ([]string, error)
}

// SnapshotCache guarda a resposta de GET /races por pouco tempo
type SnapshotCache interface {
	GetRaces(ctx context.Context) ([]api.Race, bool, error)
	SetRaces(ctx context.Context, races []api.Race) error
	Invalidate(ctx context.Context) error
}

// EventPublisher publica eventos de domínio (Kafka)
type EventPublisher interface {
	PublishOddsUpdate(ctx context.Context, ev events.RaceOddsUpdate) error
	PublishSteamAlert(ctx context.Context, ev events.SteamAlert) error
	PublishRaceFinalized(ctx context.Context, ev events.RaceFinalized) error
}

// Broadcaster difunde o estado atualizado de uma corrida para clientes em tempo real
type Broadcaster interface {
	BroadcastRace(ctx context.Context, race api.Race) error
}

// Archiver guarda o retrato final de corridas encerradas
type Archiver interface {
	ArchiveRace(ctx context.Context, race api.Race) error
}

type noopCache struct{}

func (noopCache) GetRaces(context.Context) ([]api.Race, bool, error) { return nil, false, nil }
func (noopCache) SetRaces(context.Context, []api.Race) error          { return nil }
func (noopCache) Invalidate(context.Context) error                    { return nil }

type noopPublisher struct{}

func (noopPublisher) PublishOddsUpdate(context.Context, events.RaceOddsUpdate) error   { return nil }
func (noopPublisher) PublishSteamAlert(context.Context, events.SteamAlert) error       { return nil }
func (noopPublisher) PublishRaceFinalized(context.Context, events.RaceFinalized) error { return nil }

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastRace(context.Context, api.Race) error { return nil }

type noopArchiver struct{}

func (noopArchiver) ArchiveRace(context.Context, api.Race) error { return nil }
