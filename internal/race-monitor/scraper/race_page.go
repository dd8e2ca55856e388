package scraper

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/steam"
)

// ErrNotTrotting indica página de corrida fora do trote (plat, obstacles...)
var ErrNotTrotting = errors.New("race is not a trotting race")

// raceURLPattern extrai data, reunião e corrida de URLs como /course/2026-02-18/R3C1-vincennes
var raceURLPattern = regexp.MustCompile(`/(\d{4}-\d{2}-\d{2})/R(\d+)C(\d+)-`)

var trottingKeywords = []string{"attelé", "monté", "harness", "mounted"}

// RaceRef identifica uma corrida pela URL
type RaceRef struct {
	Date    string // YYYY-MM-DD
	Meeting int
	Race    int
}

// ParseRaceRef interpreta a URL de uma corrida; ok=false quando a URL não segue o padrão
func ParseRaceRef(url string) (RaceRef, bool) {
	m := raceURLPattern.FindStringSubmatch(url)
	if m == nil {
		return RaceRef{}, false
	}
	meeting, _ := strconv.Atoi(m[2])
	race, _ := strconv.Atoi(m[3])
	return RaceRef{Date: m[1], Meeting: meeting, Race: race}, true
}

// SilkURL monta a URL da casaca no PMU: .../casaques/{DDMMYYYY}/R{m}/C{r}/P{n}.png
func (r RaceRef) SilkURL(number int) string {
	d, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("https://www.pmu.fr/back-assets/hippique/casaques/%s/R%d/C%d/P%d.png",
		d.Format("02012006"), r.Meeting, r.Race, number)
}

// Code devolve o código curto da corrida, ex: R3C1
func (r RaceRef) Code() string { return fmt.Sprintf("R%dC%d", r.Meeting, r.Race) }

// MeetingCode devolve o código da reunião, ex: R3
func (r RaceRef) MeetingCode() string { return fmt.Sprintf("R%d", r.Meeting) }

// RunnerCard é um runner como lido da página
type RunnerCard struct {
	Number         int
	Name           string
	Jockey         string
	SilkURL        string
	Odds           float64
	IsD4           bool
	ShoeingStatus  string
	IsNonRunner    bool
	RedShoeMarkers int
}

// RaceCard é o resultado de um scrape da página de corrida
type RaceCard struct {
	Title       string
	TimeText    string
	Timestamp   int64 // epoch em segundos; 0 quando ausente
	NextRaceURL string
	Runners     []RunnerCard
}

// ParseRacePage interpreta o HTML renderizado de uma corrida.
// baseURL é usado para tornar absolutos os links relativos (próxima corrida)
func ParseRacePage(pageURL, baseURL, src string) (*RaceCard, error) {
	doc, err := parseDocument(src)
	if err != nil {
		return nil, fmt.Errorf("parse race page: %w", err)
	}

	card := &RaceCard{Title: "Unknown Race"}

	if h1 := findFirst(doc, tag("h1")); h1 != nil {
		card.Title = textContent(h1)

		body := strings.ToLower(textContent(findFirst(doc, tag("body"))))
		if !containsAny(body, trottingKeywords) {
			return nil, ErrNotTrotting
		}
	}

	if hc := findFirst(doc, tagClass("", "heure-course")); hc != nil {
		if el := findFirst(hc, hasAttr("data-timestamp")); el != nil {
			card.TimeText = textContent(el)
			if v, _ := attr(el, "data-timestamp"); v != "" {
				if ts, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
					card.Timestamp = ts
				}
			}
		}
	}

	ref, hasRef := ParseRaceRef(pageURL)
	if hasRef {
		pattern := fmt.Sprintf("/R%dC%d-", ref.Meeting, ref.Race+1)
		if a := findFirst(doc, attrContains("a", "href", pattern)); a != nil {
			href, _ := attr(a, "href")
			card.NextRaceURL = absoluteURL(baseURL, href)
		}
	}

	for _, row := range findAll(doc, tag("tr")) {
		nameEl := findFirst(row, tagClass("a", "horse-name"))
		if nameEl == nil {
			continue
		}
		rc := RunnerCard{Name: textContent(nameEl)}
		if rc.Name == "" {
			rc.Name = "Unknown"
		}

		rc.IsNonRunner = strings.Contains(strings.ToLower(textContent(row)), "non partant")

		if n := findFirst(row, tagClass("td", "numero")); n != nil {
			if v, err := strconv.Atoi(textContent(n)); err == nil && v >= 0 {
				rc.Number = v
			}
		}

		if img := findFirst(row, attrContains("img", "src", "casaque")); img != nil {
			rc.SilkURL, _ = attr(img, "src")
		}
		if hasRef && rc.Number > 0 {
			if u := ref.SilkURL(rc.Number); u != "" {
				rc.SilkURL = u
			}
		}

		if j := findFirst(row, tagClass("", "jockey")); j != nil {
			rc.Jockey = textContent(j)
		}

		if c := findFirst(row, tagClass("td", "cote")); c != nil {
			rc.Odds = parseOdds(textContent(c))
		}

		rc.RedShoeMarkers = len(findAll(row, tagClass("span", "ferrure-rouge")))
		rc.IsD4, rc.ShoeingStatus = steam.ShoeingStatus(rc.RedShoeMarkers)

		card.Runners = append(card.Runners, rc)
	}

	return card, nil
}

// parseOdds aceita decimal com vírgula ("4,5"); qualquer outra coisa vira 0
func parseOdds(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func absoluteURL(base, href string) string {
	if strings.HasPrefix(href, "/") {
		return base + href
	}
	return href
}
