package dashboard

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/steam"
	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
)

// Render escreve o painel como texto (saída de watch --once): banner de erro, cartões e tabelas de runners
func Render(w io.Writer, st State, sortFor func(raceID int64) SortState, now time.Time) error {
	if st.ConnError != nil {
		fmt.Fprintf(w, "!! Connection error: %v (retrying)\n\n", st.ConnError)
	}
	if st.Loading {
		fmt.Fprintln(w, "Loading races...")
		return nil
	}
	if len(st.Races) == 0 && st.ConnError == nil {
		fmt.Fprintln(w, "No races monitored. Use `race-dashboard monitor <url>` to add one.")
		return nil
	}
	for _, race := range st.Races {
		var s SortState
		if sortFor != nil {
			s = sortFor(race.ID)
		}
		if err := renderRace(w, race, s, now); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	return nil
}

func renderRace(w io.Writer, race api.Race, s SortState, now time.Time) error {
	header := fmt.Sprintf("#%d %s", race.ID, race.Name)
	if cd := Countdown(race.StartTime, now); cd != "" {
		header += "  [" + cd + "]"
		if Imminent(race.StartTime, now) {
			header += " !"
		}
	}
	if !race.IsActive {
		header += "  FINAL"
		if race.WinnerName != nil {
			header += " (winner: " + *race.WinnerName + ")"
		}
	}
	fmt.Fprintln(w, header)

	fmt.Fprintln(w, "  "+metaLine(race))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	labels := make([]string, 0, len(columns))
	for _, c := range columns {
		labels = append(labels, c.label+s.Indicator(c.key))
	}
	fmt.Fprintln(tw, "  "+strings.Join(labels, "\t"))

	for _, r := range SortRunners(DisplayRunners(race.Runners), s) {
		fmt.Fprintln(tw, "  "+strings.Join(runnerCells(r), "\t"))
	}
	return tw.Flush()
}

// columns são as colunas da tabela de runners, na ordem da tela
var columns = []struct {
	label string
	key   SortKey
}{
	{"N°", SortNumber}, {"Runner / Jockey", SortName}, {"Odds", SortOdds}, {"Base", SortBaseline},
	{"Steam %", SortSteam}, {"Updated", SortLastUpdated}, {"Signals", SortFlags},
}

func metaLine(race api.Race) string {
	meta := []string{}
	if race.StartTime != nil {
		meta = append(meta, race.StartTime.UTC().Format("15:04")+" GMT")
	}
	if race.BaselineSetAt != nil {
		meta = append(meta, "baseline "+race.BaselineSetAt.Local().Format("15:04"))
	} else {
		meta = append(meta, "awaiting baseline")
	}
	meta = append(meta, race.URL)
	return strings.Join(meta, " | ")
}

func runnerCells(r api.Runner) []string {
	name := r.Name
	if r.Jockey != "" {
		name += " / " + r.Jockey
	}
	base := "-"
	if r.BaselineOdds != nil {
		base = fmt.Sprintf("%.2f", *r.BaselineOdds)
	}
	return []string{
		fmt.Sprint(r.Number), name, fmt.Sprintf("%.2f", r.CurrentOdds), base,
		steamText(r), r.LastUpdated.Local().Format("15:04:05"), signals(r),
	}
}

func steamText(r api.Runner) string {
	if r.BaselineOdds == nil {
		return "-"
	}
	return fmt.Sprintf("%+.1f", r.SteamPercentage)
}

func signals(r api.Runner) string {
	var out []string
	if r.IsValue {
		out = append(out, "VALUE")
	}
	if r.StatusText != "" {
		out = append(out, r.StatusText)
	}
	if r.IsD4 && steam.IsSteamer(r.SteamPercentage) {
		out = append(out, "STEAM")
	}
	if r.IsPreviousSteamer {
		out = append(out, "PREV")
	}
	return strings.Join(out, " ")
}
