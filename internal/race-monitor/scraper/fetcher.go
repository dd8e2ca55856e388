package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Fetcher devolve o HTML renderizado de uma página.
// waitSelector vazio só espera o carregamento do documento
type Fetcher interface {
	Fetch(ctx context.Context, url, waitSelector string) (string, error)
}

// recursos que não influenciam o DOM e só atrasam o carregamento
var blockedResources = []proto.NetworkResourceType{
	proto.NetworkResourceTypeImage,
	proto.NetworkResourceTypeMedia,
	proto.NetworkResourceTypeFont,
	proto.NetworkResourceTypeStylesheet,
}

// RodFetcher renderiza páginas num Chromium headless compartilhado.
// O browser sobe sob demanda e é reiniciado uma vez se a criação de página falhar
type RodFetcher struct {
	log     *zap.Logger
	bin     string
	timeout time.Duration

	mu      sync.Mutex
	browser *rod.Browser
	launch  *launcher.Launcher
}

func NewRodFetcher(log *zap.Logger, bin string, timeout time.Duration) *RodFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &RodFetcher{log: log, bin: bin, timeout: timeout}
}

func (f *RodFetcher) start() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}

	l := launcher.New().Headless(true)
	if f.bin != "" {
		l = l.Bin(f.bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	f.browser, f.launch = b, l
	f.log.Info("browser started")
	return b, nil
}

// Close encerra o browser; seguro chamar mais de uma vez
func (f *RodFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.launch.Kill()
	f.browser, f.launch = nil, nil
	return err
}

func (f *RodFetcher) newPage() (*rod.Page, error) {
	b, err := f.start()
	if err != nil {
		return nil, err
	}
	page, err := b.Page(proto.TargetCreateTarget{})
	if err == nil {
		return page, nil
	}

	f.log.Warn("page creation failed, restarting browser", zap.Error(err))
	_ = f.Close()
	if b, err = f.start(); err != nil {
		return nil, err
	}
	return b.Page(proto.TargetCreateTarget{})
}

func (f *RodFetcher) Fetch(ctx context.Context, url, waitSelector string) (string, error) {
	page, err := f.newPage()
	if err != nil {
		return "", err
	}
	defer func() { _ = page.Close() }()

	router := page.HijackRequests()
	for _, rt := range blockedResources {
		if err := router.Add("*", rt, func(h *rod.Hijack) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		}); err != nil {
			return "", fmt.Errorf("hijack %s: %w", rt, err)
		}
	}
	go router.Run()
	defer func() { _ = router.Stop() }()

	p := page.Context(ctx).Timeout(f.timeout)
	if err := p.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	if waitSelector != "" {
		if _, err := p.Element(waitSelector); err != nil {
			return "", fmt.Errorf("wait for %q: %w", waitSelector, err)
		}
	} else if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load %s: %w", url, err)
	}

	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("read html %s: %w", url, err)
	}
	return html, nil
}
