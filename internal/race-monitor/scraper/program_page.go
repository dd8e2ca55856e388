package scraper

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ParseProgramPage lista as reuniões do dia (links /reunion-du-jour/) sem repetição
func ParseProgramPage(baseURL, src string) ([]string, error) {
	doc, err := parseDocument(src)
	if err != nil {
		return nil, fmt.Errorf("parse program page: %w", err)
	}
	var out []string
	seen := make(map[string]struct{})
	for _, a := range findAll(doc, attrContains("a", "href", "/reunion-du-jour/")) {
		href, _ := attr(a, "href")
		u := absoluteURL(baseURL, href)
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out, nil
}

// ParseMeetingPage devolve as corridas de trote (attelé/monté) de uma reunião francesa.
// Reuniões estrangeiras devolvem lista vazia
func ParseMeetingPage(baseURL, src string) ([]string, error) {
	doc, err := parseDocument(src)
	if err != nil {
		return nil, fmt.Errorf("parse meeting page: %w", err)
	}

	if !isFrenchMeeting(src, doc) {
		return nil, nil
	}

	var out []string
	seen := make(map[string]struct{})
	for _, row := range findAll(doc, tagClass("tr", "item")) {
		trot := findFirst(row, anyOf(tagClass("", "zt-trot"), tagClass("", "zt-monte")))
		if trot == nil {
			continue
		}
		nome := findFirst(row, tagClass("td", "nom"))
		if nome == nil {
			continue
		}
		a := findFirst(nome, tag("a"))
		if a == nil {
			continue
		}
		href, _ := attr(a, "href")
		if href == "" {
			continue
		}
		u := absoluteURL(baseURL, href)
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out, nil
}

// isFrenchMeeting usa a bandeira (fi-fr) ou o cabeçalho da reunião
func isFrenchMeeting(src string, doc *html.Node) bool {
	if strings.Contains(src, "fi-fr") {
		return true
	}
	for _, m := range []matcher{tagClass("", "numero-reunion-wrapper"), tagClass("h1", "nom-reunion")} {
		if el := findFirst(doc, m); el != nil && strings.Contains(strings.ToUpper(textContent(el)), "FRANCE") {
			return true
		}
	}
	return false
}
