package events

import "time"

// Evento emitido quando um runner entra na condição D4 + steam >= 10%.
// Só é publicado na transição (borda de subida), nunca a cada ciclo.
type SteamAlert struct {
	RaceID          int64     `json:"race_id"`
	RaceName        string    `json:"race_name"`
	RaceURL         string    `json:"race_url"`
	RunnerID        int64     `json:"runner_id"`
	RunnerNumber    int       `json:"runner_number"`
	RunnerName      string    `json:"runner_name"`
	BaselineOdds    float64   `json:"baseline_odds"`
	CurrentOdds     float64   `json:"current_odds"`
	SteamPercentage float64   `json:"steam_percentage"`
	Ts              time.Time `json:"ts"`
}
