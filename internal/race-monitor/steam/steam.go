// Package steam concentra as regras de negócio sobre variação de odds:
// percentual de steam, valor, ferrageamento (D4) e elegibilidade de alerta.
package steam

import "math"

const (
	// SteamerThreshold é o percentual a partir do qual um runner é considerado steamer
	SteamerThreshold = 10.0
	// ValueOddsThreshold e ValueMinField definem o flag de valor
	ValueOddsThreshold = 8.0
	ValueMinField      = 8

	StatusD4   = "D4"
	StatusDADP = "DA/DP"
)

// Percentage calcula (baseline - current) / baseline * 100; sem baseline positiva devolve 0
func Percentage(baseline, current float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return round2((baseline - current) / baseline * 100)
}

// IsValue: odd acima de 8.0 num campo com pelo menos 8 runners
func IsValue(current float64, fieldSize int) bool {
	return current > ValueOddsThreshold && fieldSize >= ValueMinField
}

// IsSteamer indica queda de odd de pelo menos 10%
func IsSteamer(pct float64) bool {
	return pct >= SteamerThreshold
}

// ShoeingStatus traduz a quantidade de ferraduras vermelhas no status exibido.
// Duas ou mais significam desferrado dos quatro pés (D4)
func ShoeingStatus(redShoes int) (isD4 bool, status string) {
	switch {
	case redShoes >= 2:
		return true, StatusD4
	case redShoes == 1:
		return false, StatusDADP
	default:
		return false, ""
	}
}

// Displayable: não partantes e odds não positivas nunca são exibidos
func Displayable(nonRunner bool, current float64) bool {
	return !nonRunner && current > 0
}

// AlertEligible é a condição de alerta: corrida ativa, runner exibível, D4 e steamer
func AlertEligible(raceActive, nonRunner bool, current float64, isD4 bool, pct float64) bool {
	return raceActive && Displayable(nonRunner, current) && isD4 && IsSteamer(pct)
}

// round2 evita ruído de ponto flutuante (20.000000000000004) nos valores persistidos
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
