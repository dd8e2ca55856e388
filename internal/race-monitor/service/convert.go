package service

import (
	"github.com/radieske/race-odds-monitor/internal/race-monitor/model"
	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
	"github.com/radieske/race-odds-monitor/pkg/contracts/events"
)

// ToAPI converte a corrida para o formato JSON público; runners nunca saem como null
func ToAPI(r model.Race) api.Race {
	c := r.Clone()
	out := api.Race{
		ID:            c.ID,
		URL:           c.URL,
		Name:          c.Name,
		Meeting:       c.Meeting,
		StartTime:     c.StartTime,
		BaselineSetAt: c.BaselineSetAt,
		LastBumpedAt:  c.LastBumpedAt,
		IsActive:      c.IsActive,
		WinnerName:    c.WinnerName,
		Runners:       make([]api.Runner, 0, len(c.Runners)),
	}
	for _, rn := range c.Runners {
		out.Runners = append(out.Runners, api.Runner{
			ID:                rn.ID,
			Number:            rn.Number,
			Name:              rn.Name,
			Jockey:            rn.Jockey,
			SilkURL:           rn.SilkURL,
			CurrentOdds:       rn.CurrentOdds,
			BaselineOdds:      rn.BaselineOdds,
			IsD4:              rn.IsD4,
			StatusText:        rn.StatusText,
			SteamPercentage:   rn.SteamPercentage,
			IsValue:           rn.IsValue,
			IsPreviousSteamer: rn.IsPreviousSteamer,
			IsNonRunner:       rn.IsNonRunner,
			LastUpdated:       rn.LastUpdated,
		})
	}
	return out
}

func toOddsEvent(r model.Race, changed int, source string) events.RaceOddsUpdate {
	ev := events.RaceOddsUpdate{
		RaceID:   r.ID,
		RaceURL:  r.URL,
		RaceName: r.Name,
		Changed:  changed,
		Source:   source,
		Runners:  make([]events.RunnerOdds, 0, len(r.Runners)),
	}
	for _, rn := range r.Runners {
		ro := events.RunnerOdds{
			RunnerID:        rn.ID,
			Number:          rn.Number,
			Name:            rn.Name,
			CurrentOdds:     rn.CurrentOdds,
			SteamPercentage: rn.SteamPercentage,
			IsD4:            rn.IsD4,
			IsNonRunner:     rn.IsNonRunner,
		}
		if rn.BaselineOdds != nil {
			ro.BaselineOdds = *rn.BaselineOdds
		}
		ev.Runners = append(ev.Runners, ro)
	}
	return ev
}
