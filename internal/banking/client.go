package banking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"finboard/internal/core"
)

// Client talks to a TrueLayer-style Data API. Debits arrive with negative
// amounts, which is the convention used throughout.
type Client struct {
	baseURL     string
	timeout     time.Duration
	concurrency int
	base        *http.Client
	limiter     *rate.Limiter
}

type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// Concurrency caps parallel per-account requests.
	Concurrency int
	// HTTPClient is the transport used beneath the OAuth2 wrapper.
	HTTPClient *http.Client
	// RequestsPerSecond throttles calls to the provider. Zero means
	// unlimited.
	RequestsPerSecond float64
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		timeout:     cfg.Timeout,
		concurrency: cfg.Concurrency,
		base:        cfg.HTTPClient,
		limiter:     rate.NewLimiter(limit, cfg.Concurrency),
	}
}

type account struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	Currency    string `json:"currency"`
}

type providerTransaction struct {
	TransactionID   string          `json:"transaction_id"`
	Timestamp       time.Time       `json:"timestamp"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	TransactionType string          `json:"transaction_type"`
	MerchantName    string          `json:"merchant_name"`
}

type envelope[T any] struct {
	Results []T    `json:"results"`
	Status  string `json:"status"`
}

// Transactions lists every account and fetches their transactions in
// parallel. Results are ordered by timestamp, then id.
func (c *Client) Transactions(ctx context.Context, sess Session) ([]core.Transaction, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpClient := c.httpClient(ctx, sess)

	var accounts envelope[account]
	if err := c.get(ctx, httpClient, "/data/v1/accounts", &accounts); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	var (
		mu  sync.Mutex
		out []core.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, acc := range accounts.Results {
		acc := acc
		g.Go(func() error {
			var page envelope[providerTransaction]
			path := "/data/v1/accounts/" + url.PathEscape(acc.AccountID) + "/transactions"
			if err := c.get(gctx, httpClient, path, &page); err != nil {
				return fmt.Errorf("account %s: %w", acc.AccountID, err)
			}
			txs := make([]core.Transaction, 0, len(page.Results))
			for _, pt := range page.Results {
				txs = append(txs, pt.toCore(acc.AccountID))
			}
			mu.Lock()
			out = append(out, txs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c *Client) httpClient(ctx context.Context, sess Session) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(sess.Token))
}

func (c *Client) get(ctx context.Context, hc *http.Client, path string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (pt providerTransaction) toCore(accountID string) core.Transaction {
	amount := pt.Amount
	// some providers send unsigned amounts with a type flag
	if strings.EqualFold(pt.TransactionType, "DEBIT") && amount.IsPositive() {
		amount = amount.Neg()
	}
	return core.Transaction{
		ID:           pt.TransactionID,
		Timestamp:    pt.Timestamp,
		Amount:       amount,
		Description:  pt.Description,
		MerchantName: pt.MerchantName,
		AccountID:    accountID,
	}
}
