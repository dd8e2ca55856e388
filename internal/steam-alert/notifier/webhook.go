package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/race-odds-monitor/pkg/contracts/events"
)

// Webhook envia alertas para um webhook de chat no formato {"content": "..."}
// URL vazia só registra o alerta no log
type Webhook struct {
	URL  string
	HTTP *http.Client
	Log  *zap.Logger
}

func NewWebhook(url string, log *zap.Logger) *Webhook {
	return &Webhook{
		URL:  url,
		HTTP: &http.Client{Timeout: 10 * time.Second},
		Log:  log,
	}
}

// Format monta o texto do alerta
func Format(a events.SteamAlert) string {
	return fmt.Sprintf("**STEAM ALERT** %s\n#%d %s: %.2f -> %.2f (%.2f%%)\n%s",
		a.RaceName, a.RunnerNumber, a.RunnerName, a.BaselineOdds, a.CurrentOdds, a.SteamPercentage, a.RaceURL)
}

func (w *Webhook) Notify(ctx context.Context, a events.SteamAlert) error {
	text := Format(a)
	if w.URL == "" {
		w.Log.Info("steam alert", zap.Int64("race_id", a.RaceID), zap.Int64("runner_id", a.RunnerID), zap.String("text", text))
		return nil
	}

	body, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, msg)
	}
	return nil
}
