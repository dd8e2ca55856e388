package scraper

import (
	"fmt"
)

// ParseResultPage devolve o nome do vencedor a partir da tabela de resultados.
// Sem tabela ou sem nome, devolve "" e nil: o resultado ainda não saiu
func ParseResultPage(src string) (string, error) {
	doc, err := parseDocument(src)
	if err != nil {
		return "", fmt.Errorf("parse result page: %w", err)
	}

	table := findFirst(doc, tagClass("table", "resultats-table"))
	if table == nil {
		return "", nil
	}

	nameCell := anyOf(
		tagClass("td", "nom-cheval"),
		tagClass("a", "horse-name"),
		tagClass("td", "horse-name"),
	)
	// a primeira linha com célula de nome é o primeiro colocado (cabeçalhos não têm td)
	for _, row := range findAll(table, tag("tr")) {
		if el := findFirst(row, nameCell); el != nil {
			return textContent(el), nil
		}
	}
	return "", nil
}
