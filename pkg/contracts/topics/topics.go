package topics

const (
	// Odds
	RaceOddsUpdates = "race_odds_updates"

	// Alertas de steam (D4 + queda de odd)
	SteamAlerts = "steam_alerts"

	// Alertas que o worker não conseguiu entregar
	SteamAlertsDLQ = "steam_alerts_dlq"

	// Resultado final das corridas
	RaceResults = "race_results"
)
