package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"tournament-engine/internal/config"
	"tournament-engine/internal/constants"
	"tournament-engine/internal/ledger"
)

// LedgerClient talks to a remote ledger service over HTTP.
type LedgerClient struct {
	baseURL string
	apiKey  string
	client  *fasthttp.Client

	statsMu sync.RWMutex
	stats   CallStats
}

type CallStats struct {
	Requests  int       `json:"requests"`
	Failures  int       `json:"failures"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewLedgerClient(cfg *config.Config) *LedgerClient {
	return &LedgerClient{
		baseURL: cfg.LedgerURL,
		apiKey:  cfg.LedgerAPIKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     constants.LedgerMaxConnsPerHost,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func (c *LedgerClient) Stats() CallStats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

func (c *LedgerClient) record(err error) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.Requests++
	if err != nil {
		c.stats.Failures++
		c.stats.LastError = err.Error()
	}
	c.stats.UpdatedAt = time.Now()
}

type transferResponse struct {
	Status  string `json:"status"`
	Balance int64  `json:"balance"`
}

type balanceResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

func (c *LedgerClient) Credit(ctx context.Context, t ledger.Transfer) (ledger.Outcome, error) {
	return c.transfer(ctx, "/v1/credits", t)
}

func (c *LedgerClient) Debit(ctx context.Context, t ledger.Transfer) (ledger.Outcome, error) {
	return c.transfer(ctx, "/v1/debits", t)
}

func (c *LedgerClient) transfer(ctx context.Context, path string, t ledger.Transfer) (ledger.Outcome, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return 0, fmt.Errorf("failed to encode transfer: %w", err)
	}

	status, _, err := c.do(ctx, fasthttp.MethodPost, c.baseURL+path, body)
	c.record(err)
	if err != nil {
		return 0, err
	}

	switch status {
	case fasthttp.StatusOK, fasthttp.StatusCreated:
		return ledger.Applied, nil
	case fasthttp.StatusConflict:
		return ledger.AlreadyApplied, nil
	case fasthttp.StatusPaymentRequired:
		return 0, fmt.Errorf("%s for %s: %w", path, t.Account, ledger.ErrInsufficientFunds)
	default:
		return 0, fmt.Errorf("ledger API error: %d: %w", status, ledger.ErrUnavailable)
	}
}

func (c *LedgerClient) BalanceOf(ctx context.Context, account string) (int64, error) {
	status, body, err := c.do(ctx, fasthttp.MethodGet, c.baseURL+"/v1/balances/"+url.PathEscape(account), nil)
	c.record(err)
	if err != nil {
		return 0, err
	}
	if status != fasthttp.StatusOK {
		return 0, fmt.Errorf("ledger API error: %d: %w", status, ledger.ErrUnavailable)
	}
	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode balance: %w", err)
	}
	return resp.Balance, nil
}

func (c *LedgerClient) do(ctx context.Context, method, uri string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", c.apiKey)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(constants.ExternalAPITimeout)
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, uri, err)
	}

	out := append([]byte(nil), resp.Body()...)
	return resp.StatusCode(), out, nil
}
