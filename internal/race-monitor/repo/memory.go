package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/model"
)

// Memory é um armazenamento em processo com a mesma semântica do Postgres.
// Usado em desenvolvimento local (STORAGE_DRIVER=memory) e nos testes
type Memory struct {
	mu          sync.RWMutex
	now         func() time.Time
	nextRace    int64
	nextRunner  int64
	races       map[int64]model.Race
	runners     map[int64][]model.Runner // por race_id
	oddsHistory []model.OddsHistory
	winners     []model.WinnerHistory
}

func NewMemory() *Memory {
	return &Memory{
		now:     time.Now,
		races:   make(map[int64]model.Race),
		runners: make(map[int64][]model.Runner),
	}
}

func (m *Memory) CreateRace(_ context.Context, r *model.Race) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.races {
		if existing.URL == r.URL {
			return ErrAlreadyExists
		}
	}
	m.nextRace++
	r.ID = m.nextRace
	r.IsActive = true
	r.CreatedAt = m.now().UTC()
	if r.LastBumpedAt.IsZero() {
		r.LastBumpedAt = r.CreatedAt
	}
	stored := r.Clone()
	stored.Runners = nil
	m.races[r.ID] = stored
	return nil
}

func (m *Memory) GetRace(_ context.Context, id int64) (*model.Race, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.races[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := r.Clone()
	out.Runners = m.runnersLocked(id)
	return &out, nil
}

func (m *Memory) GetRaceByURL(_ context.Context, url string) (*model.Race, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.races {
		if r.URL == url {
			out := r.Clone()
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListRaces(_ context.Context) ([]model.Race, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Race, 0, len(m.races))
	for id, r := range m.races {
		c := r.Clone()
		c.Runners = m.runnersLocked(id)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsActive != b.IsActive {
			return a.IsActive
		}
		return bumpedAfter(a, b)
	})
	return out, nil
}

func (m *Memory) LatestActiveRaces(_ context.Context, limit int) ([]model.Race, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Race
	for _, r := range m.races {
		if r.IsActive {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return bumpedAfter(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// bumpedAfter ordena por last_bumped_at desc, id desc
func bumpedAfter(a, b model.Race) bool {
	if !a.LastBumpedAt.Equal(b.LastBumpedAt) {
		return a.LastBumpedAt.After(b.LastBumpedAt)
	}
	return a.ID > b.ID
}

func (m *Memory) runnersLocked(raceID int64) []model.Runner {
	src := m.runners[raceID]
	if len(src) == 0 {
		return nil
	}
	out := make([]model.Runner, len(src))
	for i, rn := range src {
		out[i] = rn.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) BumpRace(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.races[id]
	if !ok {
		return ErrNotFound
	}
	r.LastBumpedAt = at
	m.races[id] = r
	return nil
}

func (m *Memory) SaveRaceState(_ context.Context, r *model.Race, changes []model.RunnerChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateRaceLocked(r); err != nil {
		return err
	}

	list := m.runners[r.ID]
	for i := range changes {
		rn := &changes[i].Runner
		rn.RaceID = r.ID

		idx := -1
		for j := range list {
			if list[j].Name == rn.Name {
				idx = j
				break
			}
		}
		if idx < 0 {
			m.nextRunner++
			rn.ID = m.nextRunner
			list = append(list, rn.Clone())
		} else {
			rn.ID = list[idx].ID
			rn.IsPreviousSteamer = list[idx].IsPreviousSteamer
			list[idx] = rn.Clone()
		}

		if changes[i].OddsChanged {
			m.oddsHistory = append(m.oddsHistory, model.OddsHistory{RunnerID: rn.ID, Odds: rn.CurrentOdds, RecordedAt: rn.LastUpdated})
		}
	}
	m.runners[r.ID] = list
	return nil
}

func (m *Memory) FinalizeRace(_ context.Context, r *model.Race, winner *model.WinnerHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.IsActive = false
	if err := m.updateRaceLocked(r); err != nil {
		return err
	}
	if winner != nil {
		m.winners = append(m.winners, *winner)
	}
	return nil
}

// updateRaceLocked preserva id, url, criação e prioridade; is_active nunca volta a true
func (m *Memory) updateRaceLocked(r *model.Race) error {
	cur, ok := m.races[r.ID]
	if !ok {
		return ErrNotFound
	}
	r.IsActive = cur.IsActive && r.IsActive
	next := r.Clone()
	next.Runners = nil
	next.URL = cur.URL
	next.CreatedAt = cur.CreatedAt
	next.LastBumpedAt = cur.LastBumpedAt
	m.races[r.ID] = next
	return nil
}

func (m *Memory) SteamerWinners(_ context.Context, names []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(names))
	for _, n := range names {
		for _, w := range m.winners {
			if w.IsSteamer && w.HorseName == n {
				out[n] = true
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ResetKeepLatest(_ context.Context) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keep int64
	for id := range m.races {
		if id > keep {
			keep = id
		}
	}
	if keep == 0 {
		m.runners = make(map[int64][]model.Runner)
		return 0, 0, nil
	}

	var deleted int64
	for id := range m.races {
		if id == keep {
			continue
		}
		for _, rn := range m.runners[id] {
			m.dropHistoryLocked(rn.ID)
		}
		delete(m.races, id)
		delete(m.runners, id)
		deleted++
	}
	return keep, deleted, nil
}

func (m *Memory) dropHistoryLocked(runnerID int64) {
	kept := m.oddsHistory[:0]
	for _, h := range m.oddsHistory {
		if h.RunnerID != runnerID {
			kept = append(kept, h)
		}
	}
	m.oddsHistory = kept
}

// OddsHistory devolve o histórico de um runner (usado em diagnósticos e testes)
func (m *Memory) OddsHistory(runnerID int64) []model.OddsHistory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.OddsHistory
	for _, h := range m.oddsHistory {
		if h.RunnerID == runnerID {
			out = append(out, h)
		}
	}
	return out
}

func (m *Memory) Ping(context.Context) error { return nil }
