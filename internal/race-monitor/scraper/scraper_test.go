package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// pageFetcher devolve HTML fixo por URL
type pageFetcher struct {
	pages map[string]string
	calls []string
}

func (f *pageFetcher) Fetch(_ context.Context, url, _ string) (string, error) {
	f.calls = append(f.calls, url)
	src, ok := f.pages[url]
	if !ok {
		return "", errors.New("not found: " + url)
	}
	return src, nil
}

func TestScrapeRace(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{trotRaceURL: fixture(t, "race_trot.html")}}
	s := New(zap.NewNop(), f, testBase)

	card, err := s.ScrapeRace(context.Background(), trotRaceURL)
	require.NoError(t, err)
	assert.Len(t, card.Runners, 4)

	_, err = s.ScrapeRace(context.Background(), testBase+"/missing")
	assert.Error(t, err)
}

func TestDiscoverRaces(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{
		testBase + "/en/resultats-et-rapports-du-jour/2026-02-18":    fixture(t, "program.html"),
		testBase + "/en/reunion-du-jour/2026-02-18/R1-vincennes":     fixture(t, "meeting_fr.html"),
		"https://www.zeturf.com/en/reunion-du-jour/2026-02-18/R2-solvalla": fixture(t, "meeting_se.html"),
	}}
	s := New(zap.NewNop(), f, testBase)

	races, err := s.DiscoverRaces(context.Background(), time.Date(2026, 2, 18, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.zeturf.com/en/course/2026-02-18/R1C1-prix-a",
		"https://www.zeturf.com/en/course/2026-02-18/R1C3-prix-c",
	}, races)
	assert.Len(t, f.calls, 3)
}
