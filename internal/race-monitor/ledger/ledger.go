// Package ledger aplica o resultado de um scrape sobre o estado persistido de uma corrida.
// Não faz I/O: recebe o estado atual e devolve o que precisa ser gravado.
package ledger

import (
	"time"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/model"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/scraper"
	"github.com/radieske/race-odds-monitor/internal/race-monitor/steam"
)

// Result é o novo estado da corrida e dos runners presentes no scrape
type Result struct {
	Race        model.Race
	RaceChanged bool
	Runners     []model.RunnerChange
}

// Changed conta runners criados ou com campos raspados alterados
func (r Result) Changed() int {
	n := 0
	for _, c := range r.Runners {
		if c.Created || c.Changed {
			n++
		}
	}
	return n
}

// Apply incorpora o cartão raspado à corrida.
// existing são os runners já gravados; prevSteamers indica, por nome, cavalos que já venceram como steamer
func Apply(race model.Race, existing []model.Runner, card *scraper.RaceCard, prevSteamers map[string]bool, now time.Time) Result {
	res := Result{Race: race.Clone()}
	r := &res.Race

	if model.IsPlaceholderName(r.Name) && card.Title != "" && card.Title != "Unknown Race" {
		r.Name = card.Title
		res.RaceChanged = true
	}
	if r.Meeting == "" || r.Meeting == model.PlaceholderMeeting {
		if ref, ok := scraper.ParseRaceRef(r.URL); ok {
			r.Meeting = ref.MeetingCode()
			res.RaceChanged = true
		}
	}
	if r.StartTime == nil {
		if st := scraper.ParseStartTime(card.Timestamp, card.TimeText, now); st != nil {
			r.StartTime = st
			res.RaceChanged = true
		}
	}
	if card.NextRaceURL != "" && (r.NextRaceURL == nil || *r.NextRaceURL != card.NextRaceURL) {
		u := card.NextRaceURL
		r.NextRaceURL = &u
		res.RaceChanged = true
	}

	byName := make(map[string]int, len(existing))
	current := make([]model.Runner, len(existing))
	for i, rn := range existing {
		current[i] = rn.Clone()
		byName[rn.Name] = i
	}

	fieldSize := len(card.Runners)
	// mesmo nome repetido no cartão atualiza a mesma entrada
	pos := make(map[string]int, fieldSize)

	for _, rc := range card.Runners {
		var ch model.RunnerChange

		if p, ok := pos[rc.Name]; ok {
			prev := res.Runners[p]
			ch = mergeRunner(prev.Runner, rc, now)
			ch.Created = prev.Created
			ch.Changed = ch.Changed || prev.Changed
			ch.OddsChanged = ch.OddsChanged || prev.OddsChanged
		} else if i, ok := byName[rc.Name]; ok {
			ch = mergeRunner(current[i], rc, now)
		} else {
			ch = model.RunnerChange{
				Created:     true,
				OddsChanged: rc.Odds > 0,
				Runner: model.Runner{
					RaceID:            r.ID,
					Number:            rc.Number,
					Name:              rc.Name,
					Jockey:            rc.Jockey,
					SilkURL:           rc.SilkURL,
					CurrentOdds:       rc.Odds,
					IsD4:              rc.IsD4,
					StatusText:        rc.ShoeingStatus,
					IsPreviousSteamer: prevSteamers[rc.Name],
					IsNonRunner:       rc.IsNonRunner,
					LastUpdated:       now,
				},
			}
		}

		recompute(&ch.Runner, fieldSize)

		if p, ok := pos[rc.Name]; ok {
			res.Runners[p] = ch
			continue
		}
		pos[rc.Name] = len(res.Runners)
		res.Runners = append(res.Runners, ch)
	}

	return res
}

// mergeRunner copia os campos raspados; LastUpdated só avança se algo mudou.
// Número, casaca e jockey vazios no scrape não apagam o valor conhecido
func mergeRunner(rn model.Runner, rc scraper.RunnerCard, now time.Time) model.RunnerChange {
	ch := model.RunnerChange{}
	if rn.CurrentOdds != rc.Odds {
		rn.CurrentOdds = rc.Odds
		ch.Changed, ch.OddsChanged = true, rc.Odds > 0
	}
	if rn.IsD4 != rc.IsD4 {
		rn.IsD4 = rc.IsD4
		ch.Changed = true
	}
	if rn.StatusText != rc.ShoeingStatus {
		rn.StatusText = rc.ShoeingStatus
		ch.Changed = true
	}
	if rn.IsNonRunner != rc.IsNonRunner {
		rn.IsNonRunner = rc.IsNonRunner
		ch.Changed = true
	}
	if rc.Number != 0 && rn.Number != rc.Number {
		rn.Number = rc.Number
		ch.Changed = true
	}
	if rc.SilkURL != "" && rn.SilkURL != rc.SilkURL {
		rn.SilkURL = rc.SilkURL
		ch.Changed = true
	}
	if rc.Jockey != "" && rn.Jockey != rc.Jockey {
		rn.Jockey = rc.Jockey
		ch.Changed = true
	}
	if ch.Changed {
		rn.LastUpdated = now
	}
	ch.Runner = rn
	return ch
}

// recompute recalcula steam e valor a partir do estado já mesclado
func recompute(rn *model.Runner, fieldSize int) {
	if rn.IsNonRunner {
		rn.SteamPercentage = 0
		rn.IsValue = false
		return
	}
	if rn.HasBaseline() {
		rn.SteamPercentage = steam.Percentage(*rn.BaselineOdds, rn.CurrentOdds)
	} else {
		rn.SteamPercentage = 0
	}
	rn.IsValue = steam.IsValue(rn.CurrentOdds, fieldSize)
}

// SetBaseline fotografa as odds atuais como baseline e zera o steam
func SetBaseline(runners []model.Runner) []model.RunnerChange {
	out := make([]model.RunnerChange, 0, len(runners))
	for _, rn := range runners {
		rn = rn.Clone()
		odds := rn.CurrentOdds
		rn.BaselineOdds = &odds
		rn.SteamPercentage = 0
		out = append(out, model.RunnerChange{Runner: rn})
	}
	return out
}

// NewRunnerNames devolve os nomes do cartão que ainda não existem na corrida
func NewRunnerNames(existing []model.Runner, card *scraper.RaceCard) []string {
	known := make(map[string]struct{}, len(existing))
	for _, rn := range existing {
		known[rn.Name] = struct{}{}
	}
	var out []string
	for _, rc := range card.Runners {
		if _, ok := known[rc.Name]; ok {
			continue
		}
		known[rc.Name] = struct{}{}
		out = append(out, rc.Name)
	}
	return out
}
