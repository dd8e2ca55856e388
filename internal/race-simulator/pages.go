package simulator

import (
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"
)

var funcs = template.FuncMap{
	"cote": func(v float64) string {
		if v <= 0 {
			return "-"
		}
		return strings.ReplaceAll(strconv.FormatFloat(v, 'f', -1, 64), ".", ",")
	},
	"shoes": func(n int) []struct{} { return make([]struct{}, n) },
	"hour":  func(t time.Time) string { return t.Format("15h04") },
	"lower": strings.ToLower,
	"inc":   func(i int) int { return i + 1 },
	"icon": func(r *Race) string {
		switch {
		case strings.Contains(r.Discipline, "monté"):
			return "zt-monte"
		case r.Trotting():
			return "zt-trot"
		default:
			return "zt-plat"
		}
	},
}

var racePage = template.Must(template.New("race").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Code}} - {{.Venue}}</title></head>
<body>
<nav class="navigation-courses">
{{- if .Next}}
  <a href="{{$.Base}}/{{.Next.Code}}-{{.Next.Slug}}">{{.Next.Code}}</a>
{{- end}}
</nav>
<h1>{{.Code}} - {{.Venue}} - {{.Name}}</h1>
<div class="infos-course">{{.Discipline}}</div>
<div class="heure-course"><span data-timestamp="{{.Start.Unix}}">{{hour .Start}}</span></div>
{{- if .Winner}}
<table class="resultats-table">
  <tr><th>Place</th><th>Cheval</th></tr>
{{- range $i, $r := .Placings}}
  <tr><td>{{inc $i}}</td><td class="nom-cheval">{{$r.Name}}</td></tr>
{{- end}}
</table>
{{- end}}
<table class="table-runners">
  <thead><tr><th>N°</th><th>Cheval</th><th>Ferrure</th><th>Cote</th></tr></thead>
  <tbody>
{{- range .Runners}}
    <tr>
      <td class="numero">{{.Number}}</td>
      <td class="cheval"><img src="/img/casaque/{{.Number}}.png"><a class="horse-name" href="#">{{.Name}}</a><span class="jockey">{{.Jockey}}</span></td>
      <td class="ferrure">{{range shoes .RedShoes}}<span class="ferrure-rouge"></span>{{end}}</td>
      {{- if .NonRunner}}
      <td class="statut">Non Partant</td>
      {{- end}}
      <td class="cote">{{cote .Odds}}</td>
    </tr>
{{- end}}
  </tbody>
</table>
</body>
</html>
`))

var programPage = template.Must(template.New("program").Funcs(funcs).Parse(`<!DOCTYPE html>
<html><body>
<h1>Résultats et rapports du {{.Date}}</h1>
<ul>
{{- range .Meetings}}
  <li><a href="/en/reunion-du-jour/{{$.Date}}/{{.Code}}-{{lower .Venue}}">{{.Code}} {{.Venue}}</a></li>
{{- end}}
</ul>
</body></html>
`))

var meetingPage = template.Must(template.New("meeting").Funcs(funcs).Parse(`<!DOCTYPE html>
<html><body>
<div class="numero-reunion-wrapper"><span class="fi fi-{{.Meeting.Country}}"></span> {{.Meeting.Code}} {{.Meeting.Venue}}</div>
<table>
{{- range .Meeting.Races}}
  <tr class="item"><td><i class="{{icon .}}"></i></td><td class="heure">{{hour .Start}}</td><td class="nom"><a href="/en/course/{{$.Date}}/{{.Code}}-{{.Slug}}">{{.Name}}</a></td></tr>
{{- end}}
</table>
</body></html>
`))

// RenderRace escreve a página da corrida; base é o prefixo /en/course/{date}
func RenderRace(w io.Writer, v RaceView, base string) error {
	return racePage.Execute(w, struct {
		RaceView
		Base string
	}{v, base})
}

func RenderProgram(w io.Writer, date string, meetings []*Meeting) error {
	return programPage.Execute(w, struct {
		Date     string
		Meetings []*Meeting
	}{date, meetings})
}

func RenderMeeting(w io.Writer, date string, m *Meeting) error {
	return meetingPage.Execute(w, struct {
		Date    string
		Meeting *Meeting
	}{date, m})
}
