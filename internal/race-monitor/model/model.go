package model

import "time"

const (
	// PlaceholderName é o nome da corrida até o primeiro scrape
	PlaceholderName     = "Wait for scrape..."
	PlaceholderMeeting  = "Unknown"
	NextRacePlaceholder = "Next Race (Loading...)"
)

// Race representa uma corrida monitorada
// IsActive só transiciona de true para false
type Race struct {
	ID            int64
	URL           string
	Name          string
	Meeting       string
	StartTime     *time.Time
	BaselineSetAt *time.Time
	LastBumpedAt  time.Time
	IsActive      bool
	ResultChecked bool
	WinnerName    *string
	NextRaceURL   *string
	CreatedAt     time.Time

	Runners []Runner
}

// Runner representa um cavalo inscrito numa corrida; único por (RaceID, Name)
type Runner struct {
	ID                int64
	RaceID            int64
	Number            int
	Name              string
	Jockey            string
	SilkURL           string
	CurrentOdds       float64
	BaselineOdds      *float64
	IsD4              bool
	StatusText        string
	SteamPercentage   float64
	IsValue           bool
	IsPreviousSteamer bool
	IsNonRunner       bool
	LastUpdated       time.Time
}

// OddsHistory registra cada mudança de odd de um runner
type OddsHistory struct {
	RunnerID   int64
	Odds       float64
	RecordedAt time.Time
}

// WinnerHistory guarda vencedores para o flag de "previous steamer"
type WinnerHistory struct {
	HorseName       string
	RaceDate        time.Time
	FinalOdds       float64
	SteamPercentage float64
	IsSteamer       bool
}

// HasBaseline indica se o runner tem baseline utilizável para o cálculo de steam
func (r Runner) HasBaseline() bool {
	return r.BaselineOdds != nil && *r.BaselineOdds > 0
}

// Clone copia a corrida com runners e ponteiros independentes
func (r Race) Clone() Race {
	out := r
	out.StartTime = clonePtr(r.StartTime)
	out.BaselineSetAt = clonePtr(r.BaselineSetAt)
	out.WinnerName = clonePtr(r.WinnerName)
	out.NextRaceURL = clonePtr(r.NextRaceURL)
	if r.Runners != nil {
		out.Runners = make([]Runner, len(r.Runners))
		for i, rn := range r.Runners {
			out.Runners[i] = rn.Clone()
		}
	}
	return out
}

func (r Runner) Clone() Runner {
	out := r
	out.BaselineOdds = clonePtr(r.BaselineOdds)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// RunnerChange descreve o que um ciclo de scrape fez com um runner
type RunnerChange struct {
	Runner      Runner
	Created     bool
	Changed     bool // algum campo raspado mudou (LastUpdated avançou)
	OddsChanged bool // vira uma linha em odds_history
}

// IsPlaceholderName indica corridas que ainda não receberam o título da página
func IsPlaceholderName(name string) bool {
	return name == "" || name == PlaceholderName || name == NextRacePlaceholder
}
