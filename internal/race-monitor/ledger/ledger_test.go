package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/model"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/scraper"
)

var (
	t0 = time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(2 * time.Second)
)

func newRace() model.Race {
	return model.Race{
		ID:       7,
		URL:      "https://www.zeturf.com/en/course/2026-02-18/R3C1-vincennes",
		Name:     model.PlaceholderName,
		Meeting:  model.PlaceholderMeeting,
		IsActive: true,
	}
}

func ptr(v float64) *float64 { return &v }

func field(n int, odds float64) []scraper.RunnerCard {
	out := make([]scraper.RunnerCard, n)
	for i := range out {
		out[i] = scraper.RunnerCard{Number: i + 1, Name: string(rune('A' + i)), Odds: odds}
	}
	return out
}

func TestApplyCreatesRunnersAndRaceMetadata(t *testing.T) {
	card := &scraper.RaceCard{
		Title:       "R3C1 - Vincennes - Prix de Paris",
		TimeText:    "13h50",
		NextRaceURL: "https://www.zeturf.com/en/course/2026-02-18/R3C2-vincennes",
		Runners: []scraper.RunnerCard{
			{Number: 1, Name: "Idao", Odds: 4.5, IsD4: true, ShoeingStatus: "D4"},
			{Number: 2, Name: "Hooker", Odds: 12, ShoeingStatus: "DA/DP"},
		},
	}

	res := Apply(newRace(), nil, card, map[string]bool{"Hooker": true}, t0)

	assert.True(t, res.RaceChanged)
	assert.Equal(t, "R3C1 - Vincennes - Prix de Paris", res.Race.Name)
	assert.Equal(t, "R3", res.Race.Meeting)
	require.NotNil(t, res.Race.StartTime)
	assert.True(t, res.Race.StartTime.Equal(time.Date(2026, 2, 18, 13, 50, 0, 0, time.UTC)))
	require.NotNil(t, res.Race.NextRaceURL)
	assert.Equal(t, card.NextRaceURL, *res.Race.NextRaceURL)

	require.Len(t, res.Runners, 2)
	assert.Equal(t, 2, res.Changed())
	first := res.Runners[0]
	assert.True(t, first.Created)
	assert.True(t, first.OddsChanged)
	assert.Equal(t, int64(7), first.Runner.RaceID)
	assert.True(t, first.Runner.IsD4)
	assert.Equal(t, 0.0, first.Runner.SteamPercentage, "no baseline yet")
	assert.False(t, first.Runner.IsPreviousSteamer)
	assert.True(t, res.Runners[1].Runner.IsPreviousSteamer)
	assert.False(t, res.Runners[1].Runner.IsValue, "field of 2 is too small for value")
}

func TestApplyKeepsScrapedTitleOnceSet(t *testing.T) {
	race := newRace()
	race.Name = "Prix de Paris"
	res := Apply(race, nil, &scraper.RaceCard{Title: "Something else"}, nil, t0)
	assert.Equal(t, "Prix de Paris", res.Race.Name)
}

func TestApplyUpdatesOnlyChangedRunners(t *testing.T) {
	existing := []model.Runner{
		{ID: 1, RaceID: 7, Number: 1, Name: "A", CurrentOdds: 5, BaselineOdds: ptr(5), LastUpdated: t0},
		{ID: 2, RaceID: 7, Number: 2, Name: "B", CurrentOdds: 9, BaselineOdds: ptr(10), LastUpdated: t0},
	}
	card := &scraper.RaceCard{Runners: []scraper.RunnerCard{
		{Number: 1, Name: "A", Odds: 4},
		{Number: 2, Name: "B", Odds: 9},
	}}

	res := Apply(newRace(), existing, card, nil, t1)
	require.Len(t, res.Runners, 2)

	a := res.Runners[0]
	assert.True(t, a.Changed)
	assert.True(t, a.OddsChanged)
	assert.False(t, a.Created)
	assert.Equal(t, int64(1), a.Runner.ID)
	assert.Equal(t, 20.0, a.Runner.SteamPercentage)
	assert.Equal(t, t1, a.Runner.LastUpdated)

	b := res.Runners[1]
	assert.False(t, b.Changed)
	assert.False(t, b.OddsChanged)
	assert.Equal(t, t0, b.Runner.LastUpdated, "unchanged runner keeps its timestamp")
	assert.Equal(t, 10.0, b.Runner.SteamPercentage)

	assert.Equal(t, 5.0, existing[0].CurrentOdds, "input slice is not mutated")
}

func TestApplyNonRunnerHasNoSteamOrValue(t *testing.T) {
	existing := []model.Runner{{ID: 1, Name: "A", CurrentOdds: 20, BaselineOdds: ptr(25), SteamPercentage: 20, IsValue: true}}
	cards := field(8, 20)
	cards[0].IsNonRunner = true

	res := Apply(newRace(), existing, &scraper.RaceCard{Runners: cards}, nil, t1)

	a := res.Runners[0]
	assert.True(t, a.Changed)
	assert.True(t, a.Runner.IsNonRunner)
	assert.Equal(t, 0.0, a.Runner.SteamPercentage)
	assert.False(t, a.Runner.IsValue)
	assert.True(t, res.Runners[1].Runner.IsValue, "odds 20 in a field of 8")
}

func TestApplyEmptyScrapedFieldsKeepKnownValues(t *testing.T) {
	existing := []model.Runner{{ID: 1, Name: "A", Number: 3, Jockey: "C. Thierry", SilkURL: "s.png", CurrentOdds: 6, LastUpdated: t0}}
	card := &scraper.RaceCard{Runners: []scraper.RunnerCard{{Name: "A", Odds: 6}}}

	res := Apply(newRace(), existing, card, nil, t1)

	a := res.Runners[0]
	assert.False(t, a.Changed)
	assert.Equal(t, 3, a.Runner.Number)
	assert.Equal(t, "C. Thierry", a.Runner.Jockey)
	assert.Equal(t, "s.png", a.Runner.SilkURL)
}

func TestApplyDuplicateNamesCollapse(t *testing.T) {
	card := &scraper.RaceCard{Runners: []scraper.RunnerCard{
		{Number: 1, Name: "A", Odds: 3},
		{Number: 1, Name: "A", Odds: 3.5},
	}}
	res := Apply(newRace(), nil, card, nil, t0)
	require.Len(t, res.Runners, 1)
	assert.True(t, res.Runners[0].Created)
	assert.Equal(t, 3.5, res.Runners[0].Runner.CurrentOdds)
}

func TestSetBaseline(t *testing.T) {
	runners := []model.Runner{
		{ID: 1, Name: "A", CurrentOdds: 4, BaselineOdds: ptr(5), SteamPercentage: 20},
		{ID: 2, Name: "B", CurrentOdds: 0},
	}
	out := SetBaseline(runners)
	require.Len(t, out, 2)
	require.NotNil(t, out[0].Runner.BaselineOdds)
	assert.Equal(t, 4.0, *out[0].Runner.BaselineOdds)
	assert.Equal(t, 0.0, out[0].Runner.SteamPercentage)
	assert.False(t, out[1].Runner.HasBaseline())
	assert.Equal(t, 5.0, *runners[0].BaselineOdds, "input untouched")
}

func TestNewRunnerNames(t *testing.T) {
	existing := []model.Runner{{Name: "A"}}
	card := &scraper.RaceCard{Runners: field(3, 2)}
	assert.Equal(t, []string{"B", "C"}, NewRunnerNames(existing, card))
}
