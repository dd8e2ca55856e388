package dashboard

import (
	"cmp"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/steam"
	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
)

// SortKey é a coluna de ordenação da tabela de runners
type SortKey string

const (
	SortNone        SortKey = ""
	SortNumber      SortKey = "number"
	SortName        SortKey = "name"
	SortOdds        SortKey = "current_odds"
	SortBaseline    SortKey = "baseline_odds"
	SortSteam       SortKey = "steam_percentage"
	SortLastUpdated SortKey = "last_updated"
	SortFlags       SortKey = "flags"
)

// SortKeys lista as colunas ordenáveis
var SortKeys = []SortKey{SortNumber, SortName, SortOdds, SortBaseline, SortSteam, SortLastUpdated, SortFlags}

// ParseSortKey aceita os nomes das colunas; desconhecido devolve false
func ParseSortKey(s string) (SortKey, bool) {
	for _, k := range SortKeys {
		if string(k) == s {
			return k, true
		}
	}
	return SortNone, false
}

// SortState é a ordenação atual de um cartão; Key vazia = ordem do backend
type SortState struct {
	Key        SortKey
	Descending bool
}

// Request aplica um clique no cabeçalho: mesma coluna ascendente vira descendente, o resto vira ascendente
func (s SortState) Request(key SortKey) SortState {
	if s.Key == key && !s.Descending {
		return SortState{Key: key, Descending: true}
	}
	return SortState{Key: key}
}

// Indicator devolve a seta da coluna (vazia se não for a coluna ordenada)
func (s SortState) Indicator(key SortKey) string {
	if s.Key != key || key == SortNone {
		return ""
	}
	if s.Descending {
		return "↓"
	}
	return "↑"
}

// DisplayRunners exclui non-runners e odds não positivas
func DisplayRunners(runners []api.Runner) []api.Runner {
	out := make([]api.Runner, 0, len(runners))
	for _, r := range runners {
		if steam.Displayable(r.IsNonRunner, r.CurrentOdds) {
			out = append(out, r)
		}
	}
	return out
}

// FlagsScore: value=+4, (steam≥10 e D4)=+3, D4=+2, steam≥10=+1, previous steamer=+0.5
func FlagsScore(r api.Runner) float64 {
	var score float64
	steamer := steam.IsSteamer(r.SteamPercentage)
	if r.IsValue {
		score += 4
	}
	if steamer && r.IsD4 {
		score += 3
	}
	if r.IsD4 {
		score += 2
	}
	if steamer {
		score += 1
	}
	if r.IsPreviousSteamer {
		score += 0.5
	}
	return score
}

// SortRunners devolve uma cópia ordenada; empates mantêm a ordem de entrada
func SortRunners(runners []api.Runner, s SortState) []api.Runner {
	out := append([]api.Runner(nil), runners...)
	if s.Key == SortNone {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := compare(out[i], out[j], s.Key)
		if s.Descending {
			return c > 0
		}
		return c < 0
	})
	return out
}

func compare(a, b api.Runner, key SortKey) int {
	switch key {
	case SortName:
		return cmp.Compare(a.Name, b.Name)
	case SortOdds:
		return cmp.Compare(a.CurrentOdds, b.CurrentOdds)
	case SortBaseline:
		// sem baseline fica abaixo de qualquer valor
		return cmp.Compare(baselineValue(a), baselineValue(b))
	case SortSteam:
		return cmp.Compare(a.SteamPercentage, b.SteamPercentage)
	case SortLastUpdated:
		return a.LastUpdated.Compare(b.LastUpdated)
	case SortFlags:
		return cmp.Compare(FlagsScore(a), FlagsScore(b))
	default:
		return cmp.Compare(a.Number, b.Number)
	}
}

func baselineValue(r api.Runner) float64 {
	if r.BaselineOdds == nil {
		return math.Inf(-1)
	}
	return *r.BaselineOdds
}

// Countdown formata o tempo até a largada: "-mm:ss" antes, "+mm:ss" depois, horas só quando > 0
func Countdown(start *time.Time, now time.Time) string {
	if start == nil {
		return ""
	}
	diff := start.Sub(now)
	sign := "-"
	if diff < 0 {
		sign = "+"
		diff = -diff
	}
	total := int64(diff / time.Second)
	h, m, sec := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%s%d:%02d:%02d", sign, h, m, sec)
	}
	return fmt.Sprintf("%s%02d:%02d", sign, m, sec)
}

// Imminent indica largada em menos de 10 minutos
func Imminent(start *time.Time, now time.Time) bool {
	if start == nil {
		return false
	}
	left := start.Sub(now)
	return left > 0 && left < 10*time.Minute
}
