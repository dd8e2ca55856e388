// Package api define o formato JSON trocado entre o race-monitor e seus clientes
package api

import "time"

// Runner como exposto em GET /races
type Runner struct {
	ID                int64     `json:"id"`
	Number            int       `json:"number"`
	Name              string    `json:"name"`
	Jockey            string    `json:"jockey,omitempty"`
	SilkURL           string    `json:"silk_url,omitempty"`
	CurrentOdds       float64   `json:"current_odds"`
	BaselineOdds      *float64  `json:"baseline_odds"`
	IsD4              bool      `json:"is_d4"`
	StatusText        string    `json:"status_text"`
	SteamPercentage   float64   `json:"steam_percentage"`
	IsValue           bool      `json:"is_value"`
	IsPreviousSteamer bool      `json:"is_previous_steamer"`
	IsNonRunner       bool      `json:"is_non_runner"`
	LastUpdated       time.Time `json:"last_updated"`
}

// Race como exposta em GET /races
type Race struct {
	ID            int64      `json:"id"`
	URL           string     `json:"url"`
	Name          string     `json:"name"`
	Meeting       string     `json:"meeting"`
	StartTime     *time.Time `json:"start_time"`
	BaselineSetAt *time.Time `json:"baseline_set_at"`
	LastBumpedAt  time.Time  `json:"last_bumped_at"`
	IsActive      bool       `json:"is_active"`
	WinnerName    *string    `json:"winner_name"`
	Runners       []Runner   `json:"runners"`
}

// MonitorResponse é a resposta de POST /monitor
type MonitorResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

// MessageResponse é a resposta dos demais comandos
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse é o corpo de qualquer resposta de erro
type ErrorResponse struct {
	Error string `json:"error"`
}

// ClientMsg é a mensagem enviada por clientes do /ws
// Type: subscribe | unsubscribe | ping
type ClientMsg struct {
	Type   string `json:"type"`
	RaceID int64  `json:"raceId"` // requerido em subscribe/unsubscribe
}

// RaceUpdate é o envelope difundido via Redis Pub/Sub e entregue no /ws
type RaceUpdate struct {
	RaceID  int64 `json:"raceId"`
	Payload Race  `json:"payload"`
}
