// Package alerts detecta quando um runner entra na condição de alerta de steam (D4 + steam >= 10%)
package alerts

import (
	"time"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/model"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/steam"
	"github.com/radieske/race-odds-monitor/internal/shared/trigger"
	"github.com/radieske/race-odds-monitor/pkg/contracts/events"
)

type key struct {
	raceID   int64
	runnerID int64
}

// Detector mantém o estado da condição por (corrida, runner) e só devolve alertas na borda de subida
type Detector struct {
	edge *trigger.Edge[key]
}

func NewDetector() *Detector {
	return &Detector{edge: trigger.NewEdge[key]()}
}

// Observe avalia todos os runners da corrida e devolve os alertas novos
func (d *Detector) Observe(race model.Race, runners []model.Runner, now time.Time) []events.SteamAlert {
	signals := make([]trigger.Signal[key], 0, len(runners))
	byKey := make(map[key]model.Runner, len(runners))
	for _, rn := range runners {
		k := key{raceID: race.ID, runnerID: rn.ID}
		byKey[k] = rn
		signals = append(signals, trigger.Signal[key]{
			Key: k,
			On:  steam.AlertEligible(race.IsActive, rn.IsNonRunner, rn.CurrentOdds, rn.IsD4, rn.SteamPercentage),
		})
	}

	// runners de outras corridas não entram no retrato desta
	var rising []key
	for _, s := range signals {
		if d.edge.Set(s.Key, s.On) {
			rising = append(rising, s.Key)
		}
	}

	out := make([]events.SteamAlert, 0, len(rising))
	for _, k := range rising {
		rn := byKey[k]
		var baseline float64
		if rn.BaselineOdds != nil {
			baseline = *rn.BaselineOdds
		}
		out = append(out, events.SteamAlert{
			RaceID:          race.ID,
			RaceName:        race.Name,
			RaceURL:         race.URL,
			RunnerID:        rn.ID,
			RunnerNumber:    rn.Number,
			RunnerName:      rn.Name,
			BaselineOdds:    baseline,
			CurrentOdds:     rn.CurrentOdds,
			SteamPercentage: rn.SteamPercentage,
			Ts:              now,
		})
	}
	return out
}

// ForgetRace descarta o estado de uma corrida (finalizada ou apagada)
func (d *Detector) ForgetRace(raceID int64) {
	d.edge.Forget(func(k key) bool { return k.raceID == raceID })
}

// RetainOnly descarta o estado de todas as corridas exceto keep
func (d *Detector) RetainOnly(keep int64) {
	d.edge.Forget(func(k key) bool { return k.raceID != keep })
}

// Alerting conta os runners hoje em condição de alerta
func (d *Detector) Alerting() int {
	return d.edge.Active()
}
