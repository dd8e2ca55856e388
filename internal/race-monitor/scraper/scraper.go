package scraper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const runnerTableSelector = ".table-runners"

// Scraper busca e interpreta as páginas da fonte de corridas
type Scraper struct {
	log     *zap.Logger
	fetch   Fetcher
	baseURL string
}

func New(log *zap.Logger, fetch Fetcher, baseURL string) *Scraper {
	return &Scraper{log: log, fetch: fetch, baseURL: baseURL}
}

// ScrapeRace devolve o cartão atual da corrida (runners, horário, próxima corrida)
func (s *Scraper) ScrapeRace(ctx context.Context, url string) (*RaceCard, error) {
	src, err := s.fetch.Fetch(ctx, url, runnerTableSelector)
	if err != nil {
		return nil, err
	}
	return ParseRacePage(url, s.baseURL, src)
}

// ScrapeResult devolve o vencedor, ou "" se a corrida ainda não tem resultado
func (s *Scraper) ScrapeResult(ctx context.Context, url string) (string, error) {
	src, err := s.fetch.Fetch(ctx, url, "")
	if err != nil {
		return "", err
	}
	return ParseResultPage(src)
}

// DiscoverRaces lista as corridas de trote francesas do dia pela página de resultados
// Reuniões com falha são ignoradas
func (s *Scraper) DiscoverRaces(ctx context.Context, day time.Time) ([]string, error) {
	programURL := fmt.Sprintf("%s/en/resultats-et-rapports-du-jour/%s", s.baseURL, day.Format("2006-01-02"))
	src, err := s.fetch.Fetch(ctx, programURL, "a[href*='/reunion-du-jour/']")
	if err != nil {
		return nil, fmt.Errorf("fetch program: %w", err)
	}
	meetings, err := ParseProgramPage(s.baseURL, src)
	if err != nil {
		return nil, err
	}
	s.log.Info("program fetched", zap.Int("meetings", len(meetings)))

	var races []string
	seen := make(map[string]struct{})
	for _, m := range meetings {
		if err := ctx.Err(); err != nil {
			return races, err
		}
		msrc, err := s.fetch.Fetch(ctx, m, "")
		if err != nil {
			s.log.Warn("meeting fetch failed", zap.String("url", m), zap.Error(err))
			continue
		}
		urls, err := ParseMeetingPage(s.baseURL, msrc)
		if err != nil {
			s.log.Warn("meeting parse failed", zap.String("url", m), zap.Error(err))
			continue
		}
		for _, u := range urls {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			races = append(races, u)
		}
	}
	return races, nil
}
