package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
)

func f(v float64) *float64 { return &v }

func names(rs []api.Runner) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Name)
	}
	return out
}

func TestDisplayRunnersExcludesNonRunnersAndEmptyOdds(t *testing.T) {
	rs := []api.Runner{
		{Name: "A", CurrentOdds: 3},
		{Name: "B", CurrentOdds: 4, IsNonRunner: true},
		{Name: "C", CurrentOdds: 0},
		{Name: "D", CurrentOdds: -1},
		{Name: "E", CurrentOdds: 12},
	}
	assert.Equal(t, []string{"A", "E"}, names(DisplayRunners(rs)))
}

func TestSortRequestCycle(t *testing.T) {
	var s SortState
	s = s.Request(SortOdds)
	assert.Equal(t, SortState{Key: SortOdds}, s)
	s = s.Request(SortOdds)
	assert.Equal(t, SortState{Key: SortOdds, Descending: true}, s)
	s = s.Request(SortOdds)
	assert.Equal(t, SortState{Key: SortOdds}, s, "descending goes back to ascending")

	s = s.Request(SortOdds).Request(SortName)
	assert.Equal(t, SortState{Key: SortName}, s, "another column always starts ascending")
	assert.Equal(t, "↑", s.Indicator(SortName))
	assert.Empty(t, s.Indicator(SortOdds))
}

func TestFlagsScore(t *testing.T) {
	all := api.Runner{IsValue: true, IsD4: true, SteamPercentage: 12}
	d4 := api.Runner{IsD4: true}
	prev := api.Runner{IsPreviousSteamer: true}

	assert.Equal(t, 10.0, FlagsScore(all))
	assert.Equal(t, 2.0, FlagsScore(d4))
	assert.Equal(t, 0.5, FlagsScore(prev))
	assert.Equal(t, 1.0, FlagsScore(api.Runner{SteamPercentage: 10}))
	assert.Equal(t, 0.0, FlagsScore(api.Runner{SteamPercentage: 9.99}))
}

func TestSortRunnersByFlags(t *testing.T) {
	rs := []api.Runner{
		{Name: "plain", Number: 1},
		{Name: "d4", Number: 2, IsD4: true},
		{Name: "all", Number: 3, IsValue: true, IsD4: true, SteamPercentage: 15},
		{Name: "prev", Number: 4, IsPreviousSteamer: true},
	}
	desc := SortRunners(rs, SortState{Key: SortFlags, Descending: true})
	assert.Equal(t, []string{"all", "d4", "prev", "plain"}, names(desc))

	asc := SortRunners(rs, SortState{Key: SortFlags})
	assert.Equal(t, []string{"plain", "prev", "d4", "all"}, names(asc))

	assert.Equal(t, names(rs), names(SortRunners(rs, SortState{})), "no key keeps backend order")
}

func TestSortRunnersMissingBaselineIsLowest(t *testing.T) {
	rs := []api.Runner{
		{Name: "none"},
		{Name: "five", BaselineOdds: f(5)},
		{Name: "two", BaselineOdds: f(2)},
	}
	assert.Equal(t, []string{"none", "two", "five"}, names(SortRunners(rs, SortState{Key: SortBaseline})))
	assert.Equal(t, []string{"five", "two", "none"}, names(SortRunners(rs, SortState{Key: SortBaseline, Descending: true})))
}

func TestSortRunnersOtherKeys(t *testing.T) {
	t0 := time.Date(2026, 2, 18, 13, 0, 0, 0, time.UTC)
	rs := []api.Runner{
		{Name: "Bravo", Number: 2, CurrentOdds: 3.5, SteamPercentage: 5, LastUpdated: t0.Add(time.Minute)},
		{Name: "Alpha", Number: 10, CurrentOdds: 12, SteamPercentage: -3, LastUpdated: t0},
		{Name: "Charlie", Number: 1, CurrentOdds: 7, SteamPercentage: 20, LastUpdated: t0.Add(2 * time.Minute)},
	}
	assert.Equal(t, []string{"Charlie", "Bravo", "Alpha"}, names(SortRunners(rs, SortState{Key: SortNumber})))
	assert.Equal(t, []string{"Alpha", "Bravo", "Charlie"}, names(SortRunners(rs, SortState{Key: SortName})))
	assert.Equal(t, []string{"Bravo", "Charlie", "Alpha"}, names(SortRunners(rs, SortState{Key: SortOdds})))
	assert.Equal(t, []string{"Charlie", "Bravo", "Alpha"}, names(SortRunners(rs, SortState{Key: SortSteam, Descending: true})))
	assert.Equal(t, []string{"Alpha", "Bravo", "Charlie"}, names(SortRunners(rs, SortState{Key: SortLastUpdated})))
}

func TestParseSortKey(t *testing.T) {
	k, ok := ParseSortKey("steam_percentage")
	assert.True(t, ok)
	assert.Equal(t, SortSteam, k)
	_, ok = ParseSortKey("jockey")
	assert.False(t, ok)
}

func TestCountdown(t *testing.T) {
	start := time.Date(2026, 2, 18, 13, 50, 0, 0, time.UTC)

	assert.Empty(t, Countdown(nil, start))
	assert.Equal(t, "-05:30", Countdown(&start, start.Add(-5*time.Minute-30*time.Second)))
	assert.Equal(t, "+00:07", Countdown(&start, start.Add(7*time.Second)))
	assert.Equal(t, "-1:02:03", Countdown(&start, start.Add(-(time.Hour + 2*time.Minute + 3*time.Second))))
	assert.Equal(t, "-00:00", Countdown(&start, start))

	assert.True(t, Imminent(&start, start.Add(-5*time.Minute)))
	assert.False(t, Imminent(&start, start.Add(-20*time.Minute)))
	assert.False(t, Imminent(&start, start.Add(time.Minute)))
}
