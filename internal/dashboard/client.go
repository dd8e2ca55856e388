package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
)

// HTTPError é uma resposta não-2xx da API
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("race api http %d", e.Status)
	}
	return fmt.Sprintf("race api http %d: %s", e.Status, e.Message)
}

// Client fala com a API do race-monitor; BaseURL vem da composição (flag ou env)
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(base, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) ListRaces(ctx context.Context) ([]api.Race, error) {
	var out []api.Race
	if err := c.do(ctx, http.MethodGet, "/races", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Monitor(ctx context.Context, raceURL string) (api.MonitorResponse, error) {
	var out api.MonitorResponse
	err := c.do(ctx, http.MethodPost, "/monitor?url="+url.QueryEscape(raceURL), &out)
	return out, err
}

func (c *Client) SetBaseline(ctx context.Context, raceID int64) (api.MessageResponse, error) {
	var out api.MessageResponse
	err := c.do(ctx, http.MethodPost, "/baseline/"+strconv.FormatInt(raceID, 10), &out)
	return out, err
}

func (c *Client) Refresh(ctx context.Context, raceID int64) (api.MessageResponse, error) {
	var out api.MessageResponse
	err := c.do(ctx, http.MethodPost, "/refresh/"+strconv.FormatInt(raceID, 10), &out)
	return out, err
}

func (c *Client) Reset(ctx context.Context) (api.MessageResponse, error) {
	var out api.MessageResponse
	err := c.do(ctx, http.MethodPost, "/reset", &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		var e api.ErrorResponse
		_ = json.NewDecoder(res.Body).Decode(&e)
		return &HTTPError{Status: res.StatusCode, Message: e.Error}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
