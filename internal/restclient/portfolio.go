package restclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// StatusSettled is the trade status reported once the settlement date has
// been reached.
const StatusSettled = "SETTLED"

// Position is one holding reported by the portfolio API.
type Position struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	AvgPrice decimal.Decimal `json:"avgPrice"`
	Currency string          `json:"currency"`
}

// TradeStatus is the settlement state of one trade.
type TradeStatus struct {
	Key            string     `json:"key"`
	Status         string     `json:"status"`
	SettlementDate *time.Time `json:"settlementDate,omitempty"`
}

type positionsResponse struct {
	Account   string     `json:"account"`
	Positions []Position `json:"positions"`
}

// PortfolioClient reads positions and trade statuses from the venue's
// portfolio API. Its responses feed the API source of the ledger.
type PortfolioClient struct {
	rest *Client
	log  zerolog.Logger
}

// NewPortfolioClient wraps a REST client with the portfolio endpoints.
func NewPortfolioClient(rest *Client, log zerolog.Logger) *PortfolioClient {
	return &PortfolioClient{
		rest: rest,
		log:  log.With().Str("client", "portfolio").Logger(),
	}
}

// Positions fetches the holdings of one account.
func (p *PortfolioClient) Positions(ctx context.Context, account string) ([]Position, error) {
	path := fmt.Sprintf("/api/portfolios/%s/positions", url.PathEscape(account))
	status, body, err := p.rest.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch positions for %s: %w", account, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("positions request for %s returned status %d", account, status)
	}

	var pr positionsResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("failed to decode positions response: %w", err)
	}
	return pr.Positions, nil
}

// TradeStatus fetches the settlement state of one trade by correlation key.
func (p *PortfolioClient) TradeStatus(ctx context.Context, key string) (TradeStatus, error) {
	path := fmt.Sprintf("/api/trades/%s/status", url.PathEscape(key))
	status, body, err := p.rest.Get(ctx, path)
	if err != nil {
		return TradeStatus{}, fmt.Errorf("failed to fetch status for %s: %w", key, err)
	}
	if status != http.StatusOK {
		return TradeStatus{}, fmt.Errorf("trade status request for %s returned status %d", key, status)
	}

	var ts TradeStatus
	if err := json.Unmarshal(body, &ts); err != nil {
		return TradeStatus{}, fmt.Errorf("failed to decode trade status response: %w", err)
	}
	return ts, nil
}

// IsTradeSettled reports whether the trade has reached SETTLED status.
func (p *PortfolioClient) IsTradeSettled(ctx context.Context, key string) (bool, error) {
	ts, err := p.TradeStatus(ctx, key)
	if err != nil {
		return false, err
	}
	return ts.Status == StatusSettled, nil
}
