package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/model"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/repo"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/scraper"
	"github.com/radieske/race-odds-monitor/pkg/contracts/events"
)

const raceURL = "https://www.zeturf.com/en/course/2026-02-18/R3C1-vincennes"

// fakeSource devolve cartões e vencedores configurados por URL
type fakeSource struct {
	mu       sync.Mutex
	cards    map[string]*scraper.RaceCard
	winners  map[string]string
	discover []string
	scrapes  atomic.Int32
	block    chan struct{} // se não nil, ScrapeRace espera até ser fechado
}

func newFakeSource() *fakeSource {
	return &fakeSource{cards: map[string]*scraper.RaceCard{}, winners: map[string]string{}}
}

func (f *fakeSource) setCard(url string, c *scraper.RaceCard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[url] = c
}

func (f *fakeSource) ScrapeRace(ctx context.Context, url string) (*scraper.RaceCard, error) {
	f.scrapes.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[url]
	if !ok {
		return nil, errors.New("page not available")
	}
	cp := *c
	cp.Runners = append([]scraper.RunnerCard(nil), c.Runners...)
	return &cp, nil
}

func (f *fakeSource) ScrapeResult(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.winners[url], nil
}

func (f *fakeSource) DiscoverRaces(context.Context, time.Time) ([]string, error) {
	return f.discover, nil
}

// recordingPublisher guarda os eventos publicados
type recordingPublisher struct {
	mu        sync.Mutex
	odds      []events.RaceOddsUpdate
	alerts    []events.SteamAlert
	finalized []events.RaceFinalized
}

func (p *recordingPublisher) PublishOddsUpdate(_ context.Context, ev events.RaceOddsUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.odds = append(p.odds, ev)
	return nil
}

func (p *recordingPublisher) PublishSteamAlert(_ context.Context, ev events.SteamAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, ev)
	return nil
}

func (p *recordingPublisher) PublishRaceFinalized(_ context.Context, ev events.RaceFinalized) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finalized = append(p.finalized, ev)
	return nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc   *Service
	store *repo.Memory
	src   *fakeSource
	pub   *recordingPublisher
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: repo.NewMemory(),
		src:   newFakeSource(),
		pub:   &recordingPublisher{},
		clock: &clock{t: time.Date(2026, 2, 18, 13, 0, 0, 0, time.UTC)},
	}
	f.svc = New(Deps{
		Log:       zap.NewNop(),
		Store:     f.store,
		Source:    f.src,
		Publisher: f.pub,
		Now:       f.clock.Now,
	})
	return f
}

func card(runners ...scraper.RunnerCard) *scraper.RaceCard {
	return &scraper.RaceCard{
		Title:       "R3C1 - Vincennes - Prix de Paris",
		Timestamp:   time.Date(2026, 2, 18, 13, 50, 0, 0, time.UTC).Unix(),
		NextRaceURL: "https://www.zeturf.com/en/course/2026-02-18/R3C2-vincennes",
		Runners:     runners,
	}
}

func TestMonitorIsIdempotentAndBumps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.Monitor(ctx, raceURL)
	require.NoError(t, err)
	assert.True(t, first.Created)

	other, err := f.svc.Monitor(ctx, raceURL+"-other")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	again, err := f.svc.Monitor(ctx, " "+raceURL+" ")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.ID, again.ID)

	races, err := f.svc.ListRaces(ctx)
	require.NoError(t, err)
	require.Len(t, races, 2)
	assert.Equal(t, first.ID, races[0].ID, "bumped race is on top")
	assert.Equal(t, other.ID, races[1].ID)
	assert.Equal(t, model.PlaceholderName, races[0].Name)
	assert.NotNil(t, races[0].Runners, "runners serialize as an empty list")

	_, err = f.svc.Monitor(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestPollRaceUpdatesLedgerAndBaselineDrivesSteam(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.Monitor(ctx, raceURL)
	require.NoError(t, err)

	f.src.setCard(raceURL, card(
		scraper.RunnerCard{Number: 1, Name: "Idao", Odds: 5, IsD4: true, ShoeingStatus: "D4"},
		scraper.RunnerCard{Number: 2, Name: "Hooker", Odds: 12},
	))
	active, err := f.svc.PollRace(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, active)

	race, err := f.store.GetRace(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "R3C1 - Vincennes - Prix de Paris", race.Name)
	require.Len(t, race.Runners, 2)
	assert.Nil(t, race.Runners[0].BaselineOdds)
	require.Len(t, f.pub.odds, 1)
	assert.Equal(t, 2, f.pub.odds[0].Changed)

	require.NoError(t, f.svc.SetBaseline(ctx, res.ID))
	race, err = f.store.GetRace(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, race.BaselineSetAt)
	require.NotNil(t, race.Runners[0].BaselineOdds)
	assert.Equal(t, 5.0, *race.Runners[0].BaselineOdds)

	f.clock.Advance(2 * time.Second)
	f.src.setCard(raceURL, card(
		scraper.RunnerCard{Number: 1, Name: "Idao", Odds: 4, IsD4: true, ShoeingStatus: "D4"},
		scraper.RunnerCard{Number: 2, Name: "Hooker", Odds: 12},
	))
	_, err = f.svc.PollRace(ctx, res.ID)
	require.NoError(t, err)

	race, err = f.store.GetRace(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, race.Runners[0].SteamPercentage)
	assert.Equal(t, 0.0, race.Runners[1].SteamPercentage)

	require.Len(t, f.pub.alerts, 1, "D4 + steam >= 10 raises one alert")
	assert.Equal(t, "Idao", f.pub.alerts[0].RunnerName)
	assert.Equal(t, 1, f.svc.AlertingRunners())

	_, err = f.svc.PollRace(ctx, res.ID)
	require.NoError(t, err)
	assert.Len(t, f.pub.alerts, 1, "no repeated alert while the condition holds")

	assert.Len(t, f.store.OddsHistory(race.Runners[0].ID), 2)
}

func TestPollRaceFinalizesWithWinnerHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.Monitor(ctx, raceURL)
	require.NoError(t, err)

	f.src.setCard(raceURL, card(scraper.RunnerCard{Number: 1, Name: "Idao", Odds: 5}))
	_, err = f.svc.PollRace(ctx, res.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.SetBaseline(ctx, res.ID))

	f.src.setCard(raceURL, card(scraper.RunnerCard{Number: 1, Name: "Idao", Odds: 4}))
	f.src.winners[raceURL] = "Idao"

	active, err := f.svc.PollRace(ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, active)

	race, err := f.store.GetRace(ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, race.IsActive)
	assert.True(t, race.ResultChecked)
	require.NotNil(t, race.WinnerName)
	assert.Equal(t, "Idao", *race.WinnerName)

	require.Len(t, f.pub.finalized, 1)
	assert.True(t, f.pub.finalized[0].IsSteamer)
	assert.Equal(t, 4.0, f.pub.finalized[0].FinalOdds)

	// o mesmo cavalo numa corrida futura vem marcado como previous steamer
	nextURL := "https://www.zeturf.com/en/course/2026-02-19/R1C1-vincennes"
	next, err := f.svc.Monitor(ctx, nextURL)
	require.NoError(t, err)
	f.src.setCard(nextURL, card(scraper.RunnerCard{Number: 4, Name: "Idao", Odds: 3}, scraper.RunnerCard{Number: 5, Name: "Other", Odds: 3}))
	_, err = f.svc.PollRace(ctx, next.ID)
	require.NoError(t, err)

	nextRace, err := f.store.GetRace(ctx, next.ID)
	require.NoError(t, err)
	require.Len(t, nextRace.Runners, 2)
	assert.True(t, nextRace.Runners[0].IsPreviousSteamer)
	assert.False(t, nextRace.Runners[1].IsPreviousSteamer)

	// corrida encerrada nunca volta a ser monitorada
	active, err = f.svc.PollRace(ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestPollRaceAutoSwitchesAfterStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.Monitor(ctx, raceURL)
	require.NoError(t, err)
	f.src.setCard(raceURL, card(scraper.RunnerCard{Number: 1, Name: "Idao", Odds: 5}))

	active, err := f.svc.PollRace(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, active, "before start + 10 minutes")

	f.clock.Advance(2 * time.Hour)
	active, err = f.svc.PollRace(ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, active)

	ids, err := f.svc.ActiveRaceIDs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	next, err := f.store.GetRace(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "https://www.zeturf.com/en/course/2026-02-18/R3C2-vincennes", next.URL)
	assert.Equal(t, "R3", next.Meeting)
}

func TestPollRaceScrapeFailureStillChecksResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.Monitor(ctx, raceURL)
	require.NoError(t, err)
	f.src.winners[raceURL] = "Idao"

	active, err := f.svc.PollRace(ctx, res.ID)
	assert.ErrorIs(t, err, ErrScrapeFailed)
	assert.False(t, active, "result was found even though the card failed")
	assert.Len(t, f.pub.finalized, 1)
}

func TestRefreshUnknownRace(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.Refresh(context.Background(), 42), ErrRaceNotFound)
	assert.ErrorIs(t, f.svc.SetBaseline(context.Background(), 42), ErrRaceNotFound)
}

func TestRefreshSharesInFlightScrape(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.Monitor(ctx, raceURL)
	require.NoError(t, err)
	f.src.setCard(raceURL, card(scraper.RunnerCard{Number: 1, Name: "Idao", Odds: 5}))
	f.src.block = make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 3)
	refresh := func(i int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f.svc.Refresh(ctx, res.ID)
		}()
	}
	refresh(0)
	require.Eventually(t, func() bool { return f.src.scrapes.Load() == 1 }, time.Second, 5*time.Millisecond)
	refresh(1)
	refresh(2)
	time.Sleep(50 * time.Millisecond) // os dois últimos entram no scrape em andamento
	close(f.src.block)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.src.scrapes.Load())
}

func TestSetBaselineDuringInFlightPollIsKept(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.Monitor(ctx, raceURL)
	require.NoError(t, err)
	f.src.setCard(raceURL, card(scraper.RunnerCard{Number: 1, Name: "Idao", Odds: 5, IsD4: true}))
	_, err = f.svc.PollRace(ctx, res.ID)
	require.NoError(t, err)

	f.src.block = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.PollRace(ctx, res.ID)
		done <- err
	}()
	require.Eventually(t, func() bool { return f.src.scrapes.Load() == 2 }, time.Second, 5*time.Millisecond)

	// o scrape está parado; o baseline não espera por ele
	require.NoError(t, f.svc.SetBaseline(ctx, res.ID))
	f.src.setCard(raceURL, card(scraper.RunnerCard{Number: 1, Name: "Idao", Odds: 4, IsD4: true}))
	close(f.src.block)
	require.NoError(t, <-done)

	race, err := f.store.GetRace(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, race.BaselineSetAt, "poll started before the baseline must not clear it")
	require.Len(t, race.Runners, 1)
	require.NotNil(t, race.Runners[0].BaselineOdds)
	assert.Equal(t, 5.0, *race.Runners[0].BaselineOdds)
	assert.Equal(t, 4.0, race.Runners[0].CurrentOdds)
	assert.Equal(t, 20.0, race.Runners[0].SteamPercentage)
}

func TestCancelledRefreshDoesNotFailJoinedPoll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.Monitor(ctx, raceURL)
	require.NoError(t, err)
	f.src.setCard(raceURL, card(scraper.RunnerCard{Number: 1, Name: "Idao", Odds: 5}))
	f.src.block = make(chan struct{})

	rctx, cancel := context.WithCancel(ctx)
	refreshed := make(chan error, 1)
	go func() { refreshed <- f.svc.Refresh(rctx, res.ID) }()
	require.Eventually(t, func() bool { return f.src.scrapes.Load() == 1 }, time.Second, 5*time.Millisecond)

	polled := make(chan error, 1)
	go func() {
		_, err := f.svc.PollRace(ctx, res.ID)
		polled <- err
	}()
	time.Sleep(50 * time.Millisecond) // o poll entra no scrape iniciado pelo refresh

	cancel()
	assert.ErrorIs(t, <-refreshed, context.Canceled)

	close(f.src.block)
	require.NoError(t, <-polled)
	assert.Equal(t, int32(1), f.src.scrapes.Load())

	race, err := f.store.GetRace(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "R3C1 - Vincennes - Prix de Paris", race.Name)
	assert.Len(t, race.Runners, 1)
}

func TestResetKeepsLatestCreated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out, err := f.svc.Reset(ctx)
	require.NoError(t, err)
	assert.Zero(t, out.KeptID)

	a, _ := f.svc.Monitor(ctx, raceURL)
	b, _ := f.svc.Monitor(ctx, raceURL+"-b")
	f.clock.Advance(time.Minute)
	_, _ = f.svc.Monitor(ctx, raceURL) // bump não muda a criação

	out, err = f.svc.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, out.KeptID)
	assert.Equal(t, int64(1), out.Deleted)

	races, err := f.svc.ListRaces(ctx)
	require.NoError(t, err)
	require.Len(t, races, 1)
	assert.Equal(t, b.ID, races[0].ID)
	assert.NotEqual(t, a.ID, races[0].ID)
}

func TestDiscoverToday(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Monitor(ctx, raceURL)
	require.NoError(t, err)
	f.src.discover = []string{raceURL, raceURL + "-2", raceURL + "-3"}

	added, err := f.svc.DiscoverToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
}
