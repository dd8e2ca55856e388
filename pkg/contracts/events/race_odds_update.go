package events

import "time"

// Evento publicado no tópico "race_odds_updates" a cada ciclo de polling com mudanças
type RunnerOdds struct {
	RunnerID        int64   `json:"runner_id"`
	Number          int     `json:"number"`
	Name            string  `json:"name"`
	CurrentOdds     float64 `json:"current_odds"`
	BaselineOdds    float64 `json:"baseline_odds,omitempty"`
	SteamPercentage float64 `json:"steam_percentage"`
	IsD4            bool    `json:"is_d4"`
	IsNonRunner     bool    `json:"is_non_runner"`
}

type RaceOddsUpdate struct {
	RaceID    int64        `json:"race_id"`
	RaceURL   string       `json:"race_url"`
	RaceName  string       `json:"race_name"`
	Runners   []RunnerOdds `json:"runners"`
	Changed   int          `json:"changed"` // runners alterados neste ciclo
	UpdatedAt time.Time    `json:"updated_at"`
	Source    string       `json:"source"` // "race-monitor"
}
