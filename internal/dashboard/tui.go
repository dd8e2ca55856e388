package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
)

// Controller é o que a tela interativa usa do painel; *Dashboard o implementa
type Controller interface {
	State() State
	SortFor(raceID int64) SortState
	RequestSort(raceID int64, key SortKey) SortState
	SetBaseline(ctx context.Context, raceID int64) error
	Refresh(ctx context.Context, raceID int64) error
}

// StateMsg entrega um retrato novo do painel à tela
type StateMsg State

// AlertMsg entrega um alerta de steam à tela
type AlertMsg Alert

type clockMsg time.Time

type commandDoneMsg struct {
	action string
	raceID int64
	err    error
}

var (
	colorPrimary     = lipgloss.Color("#8BC34A")
	colorBorder      = lipgloss.Color("#2a3850")
	colorDestructive = lipgloss.Color("#e53935")
	colorWarning     = lipgloss.Color("#FFC107")
	colorMuted       = lipgloss.Color("#7a8699")
)

type screenStyles struct {
	Title    lipgloss.Style
	Banner   lipgloss.Style
	Card     lipgloss.Style
	Focused  lipgloss.Style
	Imminent lipgloss.Style
	Final    lipgloss.Style
	Muted    lipgloss.Style
	Alert    lipgloss.Style
	Table    table.Styles
	Idle     table.Styles // cartões sem foco não destacam linha
}

func defaultScreenStyles() screenStyles {
	card := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(0, 1)
	ts := table.DefaultStyles()
	ts.Header = ts.Header.BorderStyle(lipgloss.NormalBorder()).BorderForeground(colorBorder).BorderBottom(true).Bold(true)
	ts.Selected = ts.Selected.Foreground(lipgloss.Color("#101F38")).Background(colorPrimary)
	idle := ts
	idle.Selected = lipgloss.NewStyle()
	return screenStyles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
		Banner:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")).Background(colorDestructive).Padding(0, 1),
		Card:     card,
		Focused:  card.BorderForeground(colorPrimary),
		Imminent: lipgloss.NewStyle().Bold(true).Foreground(colorDestructive),
		Final:    lipgloss.NewStyle().Foreground(colorMuted),
		Muted:    lipgloss.NewStyle().Foreground(colorMuted),
		Alert:    lipgloss.NewStyle().Bold(true).Foreground(colorWarning),
		Table:    ts,
		Idle:     idle,
	}
}

// Screen é o modelo bubbletea do painel: um cartão por corrida, foco num deles,
// ordenação por clique de coluna e comandos baseline/refresh no cartão focado
type Screen struct {
	ctx context.Context
	ctl Controller

	st      State
	now     time.Time
	focusID int64 // corrida do cartão focado
	column  int   // coluna selecionada para ordenar
	table   table.Model
	status  string

	styles screenStyles
}

func NewScreen(ctx context.Context, ctl Controller) Screen {
	m := Screen{
		ctx:    ctx,
		ctl:    ctl,
		now:    time.Now(),
		table:  table.New(table.WithFocused(true)),
		styles: defaultScreenStyles(),
	}
	m.table.SetStyles(m.styles.Table)
	m.setState(ctl.State())
	return m
}

// Init liga o relógio de um segundo do countdown
func (m Screen) Init() tea.Cmd {
	return m.tick()
}

func (m Screen) tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return clockMsg(t) })
}

// Update trata teclas, retratos do poll, alertas, o relógio e o fim dos comandos
func (m Screen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case clockMsg:
		m.now = time.Time(msg)
		return m, m.tick()

	case StateMsg:
		m.setState(State(msg))
		return m, nil

	case AlertMsg:
		line := fmt.Sprintf("STEAM ALERT #%d %s: %s %+.1f%%", msg.Race.ID, msg.Race.Name, msg.Runner.Name, msg.Runner.SteamPercentage)
		m.status = m.styles.Alert.Render(line)
		// o sino passa pelo renderer, sem disputar a saída com o redraw
		return m, tea.Println("\a" + line)

	case commandDoneMsg:
		if msg.err != nil {
			m.status = m.styles.Imminent.Render(fmt.Sprintf("%s #%d failed: %v", msg.action, msg.raceID, msg.err))
		} else {
			m.status = fmt.Sprintf("%s #%d done", msg.action, msg.raceID)
		}
		m.setState(m.ctl.State())
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Screen) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab", "right":
		m.moveFocus(1)
		return m, nil
	case "shift+tab", "left":
		m.moveFocus(-1)
		return m, nil
	case "]":
		m.column = (m.column + 1) % len(columns)
		m.syncTable()
		return m, nil
	case "[":
		m.column = (m.column + len(columns) - 1) % len(columns)
		m.syncTable()
		return m, nil
	case "s", "enter":
		m.sortFocused()
		return m, nil
	case "1", "2", "3", "4", "5", "6", "7":
		m.column = int(key[0] - '1')
		m.sortFocused()
		return m, nil
	case "b":
		return m, m.command("baseline", m.ctl.SetBaseline)
	case "r":
		return m, m.command("refresh", m.ctl.Refresh)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// command roda a ação no cartão focado fora do loop de eventos; o painel re-consulta a lista ao concluir
func (m *Screen) command(action string, fn func(context.Context, int64) error) tea.Cmd {
	id := m.focusID
	if id == 0 {
		return nil
	}
	m.status = fmt.Sprintf("%s #%d...", action, id)
	ctx := m.ctx
	return func() tea.Msg {
		return commandDoneMsg{action: action, raceID: id, err: fn(ctx, id)}
	}
}

func (m *Screen) sortFocused() {
	if m.focusID == 0 {
		return
	}
	m.ctl.RequestSort(m.focusID, columns[m.column].key)
	m.syncTable()
}

func (m *Screen) moveFocus(delta int) {
	n := len(m.st.Races)
	if n == 0 {
		return
	}
	i := (m.focusIndex() + delta + n) % n
	m.focusID = m.st.Races[i].ID
	m.table.SetCursor(0)
	m.syncTable()
}

func (m Screen) focusIndex() int {
	for i, r := range m.st.Races {
		if r.ID == m.focusID {
			return i
		}
	}
	return 0
}

// setState troca o retrato mantendo o foco na mesma corrida quando ela continua na lista
func (m *Screen) setState(st State) {
	m.st = st
	if len(st.Races) == 0 {
		m.focusID = 0
	} else if st.Races[m.focusIndex()].ID != m.focusID {
		m.focusID = st.Races[0].ID
	}
	m.syncTable()
}

// syncTable reconstrói a tabela do cartão focado com a ordenação atual
func (m *Screen) syncTable() {
	if m.focusID == 0 {
		m.table.SetRows(nil)
		return
	}
	race := m.st.Races[m.focusIndex()]
	s := m.ctl.SortFor(race.ID)
	m.table.SetColumns(tableColumns(s, m.column))
	rows := tableRows(race, s)
	m.table.SetRows(rows)
	m.table.SetHeight(len(rows) + 2)
	if c := m.table.Cursor(); c >= len(rows) {
		m.table.SetCursor(max(len(rows)-1, 0))
	}
}

var columnWidths = []int{5, 30, 8, 8, 10, 10, 20}

func tableColumns(s SortState, selected int) []table.Column {
	out := make([]table.Column, 0, len(columns))
	for i, c := range columns {
		title := c.label + s.Indicator(c.key)
		if i == selected {
			title = "[" + title + "]"
		}
		out = append(out, table.Column{Title: title, Width: columnWidths[i]})
	}
	return out
}

func tableRows(race api.Race, s SortState) []table.Row {
	runners := SortRunners(DisplayRunners(race.Runners), s)
	rows := make([]table.Row, 0, len(runners))
	for _, r := range runners {
		rows = append(rows, runnerCells(r))
	}
	return rows
}

// View desenha o painel inteiro
func (m Screen) View() string {
	var sb strings.Builder
	title := m.styles.Title.Render("Race Odds Monitor")
	if !m.st.UpdatedAt.IsZero() {
		title += m.styles.Muted.Render("  updated " + m.st.UpdatedAt.Local().Format("15:04:05"))
	}
	sb.WriteString(title + "\n")

	if m.st.ConnError != nil {
		sb.WriteString(m.styles.Banner.Render(fmt.Sprintf("Connection error: %v (retrying)", m.st.ConnError)) + "\n")
	}
	switch {
	case m.st.Loading:
		sb.WriteString("Loading races...\n")
	case len(m.st.Races) == 0 && m.st.ConnError == nil:
		sb.WriteString("No races monitored. Use `race-dashboard monitor <url>` to add one.\n")
	}

	for _, race := range m.st.Races {
		sb.WriteString(m.card(race) + "\n")
	}

	if m.status != "" {
		sb.WriteString(m.status + "\n")
	}
	sb.WriteString(m.styles.Muted.Render("[tab/←→] card  [↑↓] runner  [ [ ] ] column  [s|1-7] sort  [b] baseline  [r] refresh  [q] quit"))
	return sb.String()
}

func (m Screen) card(race api.Race) string {
	header := fmt.Sprintf("#%d %s", race.ID, race.Name)
	if cd := Countdown(race.StartTime, m.now); cd != "" {
		cd = "[" + cd + "]"
		if Imminent(race.StartTime, m.now) {
			cd = m.styles.Imminent.Render(cd + " !")
		}
		header += "  " + cd
	}
	if !race.IsActive {
		final := "FINAL"
		if race.WinnerName != nil {
			final += " (winner: " + *race.WinnerName + ")"
		}
		header += "  " + m.styles.Final.Render(final)
	}

	body := header + "\n" + m.styles.Muted.Render(metaLine(race)) + "\n"
	style := m.styles.Card
	if race.ID == m.focusID {
		body += m.table.View()
		style = m.styles.Focused
	} else {
		s := m.ctl.SortFor(race.ID)
		rows := tableRows(race, s)
		t := table.New(
			table.WithColumns(tableColumns(s, -1)),
			table.WithRows(rows),
			table.WithHeight(len(rows)+2),
			table.WithStyles(m.styles.Idle),
		)
		body += t.View()
	}
	return style.Render(body)
}
