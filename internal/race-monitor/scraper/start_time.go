package scraper

import (
	"regexp"
	"strconv"
	"time"
)

var clockPattern = regexp.MustCompile(`(\d{1,2})\s*[h:]\s*(\d{2})`)

// ParseStartTime resolve o horário de largada.
// O data-timestamp (epoch em segundos, UTC) tem prioridade; senão "13h50"/"13:50" vira hoje (UTC) nesse horário
func ParseStartTime(timestamp int64, text string, now time.Time) *time.Time {
	if timestamp > 0 {
		t := time.Unix(timestamp, 0).UTC()
		return &t
	}
	m := clockPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 || mm > 59 {
		return nil
	}
	n := now.UTC()
	t := time.Date(n.Year(), n.Month(), n.Day(), h, mm, 0, 0, time.UTC)
	return &t
}
