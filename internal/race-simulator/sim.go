// Package simulator serve páginas de corrida no formato da fonte real, com odds que variam
// no tempo, para desenvolver e testar o race-monitor sem depender do site
package simulator

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrUnknownRace = errors.New("unknown race")

type Runner struct {
	Number    int
	Name      string
	Jockey    string
	Odds      float64
	RedShoes  int
	NonRunner bool
	steamer   bool // odd tende a cair
}

type Race struct {
	ID         string // uuid estável da corrida simulada
	Meeting    int
	Number     int
	Slug       string
	Name       string
	Discipline string // "Trot attelé", "Trot monté", "Plat"
	Start      time.Time
	Runners    []*Runner
	Winner     string
}

// Code devolve R{m}C{r}
func (r Race) Code() string { return fmt.Sprintf("R%dC%d", r.Meeting, r.Number) }

// Trotting indica corrida de trote (attelé ou monté)
func (r Race) Trotting() bool { return strings.HasPrefix(r.Discipline, "Trot") }

type Meeting struct {
	Number  int
	Venue   string
	Country string // "fr", "se"...
	Races   []*Race
}

// Code devolve R{m}
func (m Meeting) Code() string { return fmt.Sprintf("R%d", m.Number) }

// Simulator guarda o programa do dia; seguro para uso concorrente
type Simulator struct {
	mu       sync.RWMutex
	day      time.Time
	meetings []*Meeting
	rnd      *rand.Rand
}

var (
	horseNames = []string{
		"Idao de Tillard", "Hooker Berry", "Go On Boy", "Just Love You", "Ampia Mede",
		"Horsy Dream", "Inmarosa", "Hohneck", "Gu d'Heripre", "Izoard Vedaquais",
		"Joviality", "Kepler du Rib", "Lovely Queen", "Mister Crack", "Nuit de Chine",
		"Oiseau de Feu", "Prince Royal", "Quick Star", "Roi du Nord", "Sultan Rouge",
	}
	jockeys = []string{
		"C. Thierry", "J.-M. Bazire", "E. Raffin", "M. Abrivard", "F. Nivard",
		"B. Goop", "D. Thomain", "Y. Lebourgeois", "A. Abrivard", "G. Gelormini",
	}
)

// New monta o programa de day: uma reunião francesa (trote e plat) e uma estrangeira
func New(seed int64, day time.Time) *Simulator {
	s := &Simulator{
		day: time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
		rnd: rand.New(rand.NewSource(seed)),
	}

	first := s.day.Add(13*time.Hour + 50*time.Minute)
	vincennes := &Meeting{Number: 1, Venue: "VINCENNES", Country: "fr"}
	disciplines := []string{"Trot attelé", "Trot attelé", "Trot monté", "Plat", "Trot attelé"}
	for i, d := range disciplines {
		vincennes.Races = append(vincennes.Races, s.newRace(vincennes, i+1, d, first.Add(time.Duration(i)*35*time.Minute)))
	}

	solvalla := &Meeting{Number: 2, Venue: "SOLVALLA", Country: "se"}
	for i := 0; i < 3; i++ {
		solvalla.Races = append(solvalla.Races, s.newRace(solvalla, i+1, "Trot attelé", first.Add(time.Duration(i)*30*time.Minute+15*time.Minute)))
	}

	s.meetings = []*Meeting{vincennes, solvalla}
	return s
}

func (s *Simulator) newRace(m *Meeting, n int, discipline string, start time.Time) *Race {
	venue := strings.ToLower(m.Venue)
	name := fmt.Sprintf("Prix de %s %d", strings.ToUpper(venue[:1])+venue[1:], n)
	r := &Race{
		ID:         uuid.NewString(),
		Meeting:    m.Number,
		Number:     n,
		Name:       name,
		Slug:       slug(m.Venue + " " + name),
		Discipline: discipline,
		Start:      start,
	}

	field := 8 + s.rnd.Intn(7)
	names := s.rnd.Perm(len(horseNames))
	for i := 0; i < field; i++ {
		rn := &Runner{
			Number:   i + 1,
			Name:     horseNames[names[i]],
			Jockey:   jockeys[s.rnd.Intn(len(jockeys))],
			Odds:     round1(2 + s.rnd.Float64()*28),
			RedShoes: s.rnd.Intn(3),
		}
		// um runner sai da corrida e um ou dois viram "steamers"
		if i == field-1 {
			rn.NonRunner = true
			rn.Odds = 0
		}
		rn.steamer = !rn.NonRunner && s.rnd.Intn(5) == 0
		r.Runners = append(r.Runners, rn)
	}
	return r
}

// Day devolve a data do programa
func (s *Simulator) Day() time.Time { return s.day }

// Meetings devolve as reuniões do programa
func (s *Simulator) Meetings() []*Meeting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meetings
}

// Meeting procura a reunião pelo número
func (s *Simulator) Meeting(n int) (*Meeting, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.meetings {
		if m.Number == n {
			return m, true
		}
	}
	return nil, false
}

// RaceView é uma cópia da corrida para renderização
type RaceView struct {
	Race
	Runners []Runner
	Next    *Race
	Country string
	Venue   string
}

// View copia a corrida e a próxima da mesma reunião sob o lock de leitura
func (s *Simulator) View(code string) (RaceView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, r := s.find(code)
	if r == nil {
		return RaceView{}, fmt.Errorf("%w: %s", ErrUnknownRace, code)
	}
	v := RaceView{Race: *r, Country: m.Country, Venue: m.Venue}
	v.Race.Runners = nil
	for _, rn := range r.Runners {
		v.Runners = append(v.Runners, *rn)
	}
	if r.Number < len(m.Races) {
		v.Next = m.Races[r.Number]
	}
	return v, nil
}

func (s *Simulator) find(code string) (*Meeting, *Race) {
	for _, m := range s.meetings {
		for _, r := range m.Races {
			if strings.EqualFold(r.Code(), code) {
				return m, r
			}
		}
	}
	return nil, nil
}

// Drift move as odds de todas as corridas abertas; steamers tendem a cair
func (s *Simulator) Drift() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved := 0
	for _, m := range s.meetings {
		for _, r := range m.Races {
			if r.Winner != "" {
				continue
			}
			for _, rn := range r.Runners {
				if rn.NonRunner {
					continue
				}
				delta := (s.rnd.Float64() - 0.5) * 0.08
				if rn.steamer {
					delta -= 0.04
				}
				rn.Odds = math.Max(1.1, round1(rn.Odds*(1+delta)))
				moved++
			}
		}
	}
	return moved
}

// Finish encerra a corrida; o vencedor é o favorito (menor odd entre os partantes)
func (s *Simulator) Finish(code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, r := s.find(code)
	if r == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownRace, code)
	}
	if r.Winner != "" {
		return r.Winner, nil
	}
	runners := make([]*Runner, 0, len(r.Runners))
	for _, rn := range r.Runners {
		if !rn.NonRunner {
			runners = append(runners, rn)
		}
	}
	if len(runners) == 0 {
		return "", fmt.Errorf("race %s has no runners", code)
	}
	sort.SliceStable(runners, func(i, j int) bool { return runners[i].Odds < runners[j].Odds })
	r.Winner = runners[0].Name
	return r.Winner, nil
}

// Placings devolve a ordem de chegada (vencedor primeiro) de uma corrida encerrada
func (v RaceView) Placings() []Runner {
	if v.Winner == "" {
		return nil
	}
	out := make([]Runner, 0, len(v.Runners))
	for _, rn := range v.Runners {
		if !rn.NonRunner {
			out = append(out, rn)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name == v.Winner {
			return true
		}
		if out[j].Name == v.Winner {
			return false
		}
		return out[i].Odds < out[j].Odds
	})
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
