package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/model"
)

var base = time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)

func mustCreate(t *testing.T, m *Memory, url string, bumped time.Time) *model.Race {
	t.Helper()
	r := &model.Race{URL: url, Name: model.PlaceholderName, Meeting: model.PlaceholderMeeting, LastBumpedAt: bumped}
	require.NoError(t, m.CreateRace(context.Background(), r))
	return r
}

func TestMemoryCreateRejectsDuplicateURL(t *testing.T) {
	m := NewMemory()
	r := mustCreate(t, m, "u1", base)
	assert.Equal(t, int64(1), r.ID)
	assert.True(t, r.IsActive)

	err := m.CreateRace(context.Background(), &model.Race{URL: "u1"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryListOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := mustCreate(t, m, "a", base)
	b := mustCreate(t, m, "b", base.Add(time.Minute))
	c := mustCreate(t, m, "c", base)

	// a fica inativa; c empata com a no bump mas tem id maior
	a.IsActive = false
	require.NoError(t, m.SaveRaceState(ctx, a, nil))

	races, err := m.ListRaces(ctx)
	require.NoError(t, err)
	require.Len(t, races, 3)
	assert.Equal(t, []int64{b.ID, c.ID, a.ID}, []int64{races[0].ID, races[1].ID, races[2].ID})

	latest, err := m.LatestActiveRaces(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, b.ID, latest[0].ID)

	require.NoError(t, m.BumpRace(ctx, c.ID, base.Add(time.Hour)))
	latest, err = m.LatestActiveRaces(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, c.ID, latest[0].ID)

	assert.ErrorIs(t, m.BumpRace(ctx, 99, base), ErrNotFound)
}

func TestMemoryNeverReactivates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := mustCreate(t, m, "u", base)

	r.IsActive = false
	require.NoError(t, m.SaveRaceState(ctx, r, nil))

	r.IsActive = true
	require.NoError(t, m.SaveRaceState(ctx, r, nil))
	assert.False(t, r.IsActive)

	got, err := m.GetRace(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestMemorySaveRunnersUpsertByName(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := mustCreate(t, m, "u", base)

	changes := []model.RunnerChange{
		{Created: true, OddsChanged: true, Runner: model.Runner{Number: 2, Name: "B", CurrentOdds: 5, IsPreviousSteamer: true, LastUpdated: base}},
		{Created: true, OddsChanged: true, Runner: model.Runner{Number: 1, Name: "A", CurrentOdds: 3, LastUpdated: base}},
	}
	require.NoError(t, m.SaveRaceState(ctx, r, changes))
	require.NotZero(t, changes[0].Runner.ID)

	update := []model.RunnerChange{{OddsChanged: true, Runner: model.Runner{Number: 2, Name: "B", CurrentOdds: 4, LastUpdated: base.Add(time.Second)}}}
	require.NoError(t, m.SaveRaceState(ctx, r, update))
	assert.Equal(t, changes[0].Runner.ID, update[0].Runner.ID)

	got, err := m.GetRace(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got.Runners, 2)
	assert.Equal(t, "A", got.Runners[0].Name, "ordered by number")
	assert.Equal(t, 4.0, got.Runners[1].CurrentOdds)
	assert.True(t, got.Runners[1].IsPreviousSteamer, "flag is kept from creation")

	assert.Len(t, m.OddsHistory(update[0].Runner.ID), 2)
}

func TestMemoryFinalizeAndSteamerWinners(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := mustCreate(t, m, "u", base)
	winner := "Idao"
	r.WinnerName = &winner
	r.ResultChecked = true

	require.NoError(t, m.FinalizeRace(ctx, r, &model.WinnerHistory{HorseName: "Idao", RaceDate: base, FinalOdds: 3, SteamPercentage: 25, IsSteamer: true}))
	require.NoError(t, m.FinalizeRace(ctx, r, &model.WinnerHistory{HorseName: "Other", RaceDate: base, SteamPercentage: 2}))
	assert.False(t, r.IsActive)

	got, err := m.SteamerWinners(ctx, []string{"Idao", "Other", "Nobody"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"Idao": true}, got)
}

func TestMemoryResetKeepLatest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	kept, deleted, err := m.ResetKeepLatest(ctx)
	require.NoError(t, err)
	assert.Zero(t, kept)
	assert.Zero(t, deleted)

	first := mustCreate(t, m, "a", base.Add(time.Hour)) // mais recente no bump, mas não na criação
	mustCreate(t, m, "b", base)
	last := mustCreate(t, m, "c", base)
	require.NoError(t, m.SaveRaceState(ctx, first, []model.RunnerChange{{Runner: model.Runner{Name: "X"}}}))

	kept, deleted, err = m.ResetKeepLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, last.ID, kept)
	assert.Equal(t, int64(2), deleted)

	races, err := m.ListRaces(ctx)
	require.NoError(t, err)
	require.Len(t, races, 1)
	assert.Equal(t, last.ID, races[0].ID)
}
