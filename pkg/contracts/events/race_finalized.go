package events

import "time"

// Evento publicado no tópico "race_results" quando o vencedor é conhecido
type RaceFinalized struct {
	RaceID          int64     `json:"race_id"`
	RaceName        string    `json:"race_name"`
	RaceURL         string    `json:"race_url"`
	WinnerName      string    `json:"winner_name"`
	FinalOdds       float64   `json:"final_odds"`
	SteamPercentage float64   `json:"steam_percentage"`
	IsSteamer       bool      `json:"is_steamer"`
	Ts              time.Time `json:"ts"`
}
