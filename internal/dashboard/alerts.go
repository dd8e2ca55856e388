package dashboard

import (
	"github.com/radieske/race-odds-monitor/internal/race-monitor/steam"
	"github.com/radieske/race-odds-monitor/internal/shared/trigger"
	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
)

// RunnerKey identifica um runner numa corrida
type RunnerKey struct {
	RaceID   int64
	RunnerID int64
}

// Alert é um runner que acabou de entrar na condição de alerta
type Alert struct {
	Race   api.Race
	Runner api.Runner
}

// AlertObserver dispara só na transição para a condição D4 + steam >= 10 numa corrida ativa.
// Cada retrato de /races é completo: runners ausentes voltam a falso
type AlertObserver struct {
	edge *trigger.Edge[RunnerKey]
}

func NewAlertObserver() *AlertObserver {
	return &AlertObserver{edge: trigger.NewEdge[RunnerKey]()}
}

// Observe avalia o retrato e devolve os alertas novos
func (o *AlertObserver) Observe(races []api.Race) []Alert {
	type entry struct {
		race   int
		runner int
	}
	var signals []trigger.Signal[RunnerKey]
	where := make(map[RunnerKey]entry)
	for i, race := range races {
		for j, r := range race.Runners {
			k := RunnerKey{RaceID: race.ID, RunnerID: r.ID}
			where[k] = entry{race: i, runner: j}
			signals = append(signals, trigger.Signal[RunnerKey]{
				Key: k,
				On:  steam.AlertEligible(race.IsActive, r.IsNonRunner, r.CurrentOdds, r.IsD4, r.SteamPercentage),
			})
		}
	}

	var out []Alert
	for _, k := range o.edge.Update(signals) {
		e := where[k]
		out = append(out, Alert{Race: races[e.race], Runner: races[e.race].Runners[e.runner]})
	}
	return out
}
