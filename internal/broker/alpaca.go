package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/blingworks/blingbot/internal/domain"
)

// DefaultAlpacaBaseURL is the Alpaca paper-trading API root.
const DefaultAlpacaBaseURL = "https://paper-api.alpaca.markets"

// Alpaca routes position changes to an Alpaca paper account over REST.
// Positions live server side; the uninvested cash for each symbol is
// tracked locally so per-bot value stays isolated even though Alpaca pools
// buying power across the whole account.
type Alpaca struct {
	baseURL    string
	keyID      string
	secretKey  string
	httpClient *http.Client

	mu   sync.Mutex
	cash map[string]float64
}

// NewAlpaca creates an Alpaca broker. An empty baseURL falls back to
// DefaultAlpacaBaseURL.
func NewAlpaca(baseURL, keyID, secretKey string) *Alpaca {
	if baseURL == "" {
		baseURL = DefaultAlpacaBaseURL
	}
	return &Alpaca{
		baseURL:   baseURL,
		keyID:     keyID,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cash: make(map[string]float64),
	}
}

func (a *Alpaca) Name() string { return "alpaca" }

// Fund records the cash balance allocated to symbol. It must be called
// before the first GetPosition or SetPosition for that symbol.
func (a *Alpaca) Fund(symbol string, cash float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cash[symbol] = cash
}

// alpacaPosition is the subset of the positions response the broker reads.
type alpacaPosition struct {
	Symbol      string `json:"symbol"`
	Qty         string `json:"qty"`
	MarketValue string `json:"market_value"`
}

type alpacaError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GetPosition returns the symbol's tracked cash plus the market value of
// any open Alpaca position.
func (a *Alpaca) GetPosition(ctx context.Context, symbol string) (float64, error) {
	a.mu.Lock()
	cash, ok := a.cash[symbol]
	a.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("broker: account %s: %w", symbol, domain.ErrNotFound)
	}

	pos, found, err := a.position(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if !found {
		return cash, nil
	}

	mv, err := strconv.ParseFloat(pos.MarketValue, 64)
	if err != nil {
		return 0, fmt.Errorf("broker: parse market value for %s: %w", symbol, err)
	}
	return cash + mv, nil
}

// SetPosition moves the Alpaca position to the one implied by desired and
// returns the tracked value after the move. A BUY submits a notional market
// order for the symbol's full cash balance; a SELL closes the position.
// Requesting a position the account already holds is a no-op.
func (a *Alpaca) SetPosition(ctx context.Context, symbol string, desired domain.Signal) (float64, error) {
	a.mu.Lock()
	cash, ok := a.cash[symbol]
	a.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("broker: account %s: %w", symbol, domain.ErrNotFound)
	}

	target := desired.Position()
	if target != domain.PositionLong && target != domain.PositionFlat {
		return 0, fmt.Errorf("broker: set position %s: signal %q implies no position", symbol, desired)
	}

	pos, found, err := a.position(ctx, symbol)
	if err != nil {
		return 0, err
	}

	switch {
	case target == domain.PositionLong && !found:
		if err := a.submitNotionalBuy(ctx, symbol, cash); err != nil {
			return 0, err
		}
		a.setCash(symbol, 0)
		return cash, nil

	case target == domain.PositionLong && found:
		mv, err := strconv.ParseFloat(pos.MarketValue, 64)
		if err != nil {
			return 0, fmt.Errorf("broker: parse market value for %s: %w", symbol, err)
		}
		return cash + mv, nil

	case target == domain.PositionFlat && found:
		mv, err := strconv.ParseFloat(pos.MarketValue, 64)
		if err != nil {
			return 0, fmt.Errorf("broker: parse market value for %s: %w", symbol, err)
		}
		if err := a.closePosition(ctx, symbol); err != nil {
			return 0, err
		}
		a.setCash(symbol, cash+mv)
		return cash + mv, nil

	default: // flat and no position
		return cash, nil
	}
}

func (a *Alpaca) setCash(symbol string, cash float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cash[symbol] = cash
}

// position fetches the open position for symbol. found is false when
// Alpaca reports no position (HTTP 404).
func (a *Alpaca) position(ctx context.Context, symbol string) (alpacaPosition, bool, error) {
	path := "/v2/positions/" + url.PathEscape(symbol)
	body, status, err := a.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return alpacaPosition{}, false, fmt.Errorf("broker: get position %s: %w", symbol, err)
	}
	if status == http.StatusNotFound {
		return alpacaPosition{}, false, nil
	}
	if status < 200 || status >= 300 {
		return alpacaPosition{}, false, apiError("get position "+symbol, status, body)
	}

	var pos alpacaPosition
	if err := json.Unmarshal(body, &pos); err != nil {
		return alpacaPosition{}, false, fmt.Errorf("broker: decode position %s: %w", symbol, err)
	}
	return pos, true, nil
}

func (a *Alpaca) submitNotionalBuy(ctx context.Context, symbol string, notional float64) error {
	order := map[string]string{
		"symbol":        symbol,
		"notional":      strconv.FormatFloat(notional, 'f', 2, 64),
		"side":          "buy",
		"type":          "market",
		"time_in_force": "day",
	}
	body, status, err := a.doRequest(ctx, http.MethodPost, "/v2/orders", order)
	if err != nil {
		return fmt.Errorf("broker: buy %s: %w", symbol, err)
	}
	if status < 200 || status >= 300 {
		return apiError("buy "+symbol, status, body)
	}
	return nil
}

func (a *Alpaca) closePosition(ctx context.Context, symbol string) error {
	path := "/v2/positions/" + url.PathEscape(symbol)
	body, status, err := a.doRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return fmt.Errorf("broker: close %s: %w", symbol, err)
	}
	// Closing an already-flat position races with fills; treat 404 as done.
	if status == http.StatusNotFound {
		return nil
	}
	if status < 200 || status >= 300 {
		return apiError("close "+symbol, status, body)
	}
	return nil
}

func (a *Alpaca) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, int, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("APCA-API-KEY-ID", a.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", a.secretKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

func apiError(action string, status int, body []byte) error {
	var apiErr alpacaError
	_ = json.Unmarshal(body, &apiErr)
	return fmt.Errorf("broker: %s: HTTP %d: %s", action, status, apiErr.Message)
}

var _ domain.Broker = (*Alpaca)(nil)
