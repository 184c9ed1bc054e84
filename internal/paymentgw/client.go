// Package paymentgw предоставляет клиент внешнего платёжного шлюза для карт и электронных кошельков.
package paymentgw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Статусы транзакции в шлюзе.
const (
	StatusPending = "PENDING"
	StatusPaid    = "PAID"
	StatusFailed  = "FAILED"
)

// ErrNotRegistered возвращается, если шлюз ещё не знает о заказе.
var ErrNotRegistered = errors.New("transaction not registered")

// RateLimitError возвращается при ответе 429; RetryAfter содержит паузу, запрошенную шлюзом.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("payment gateway rate limit, retry after %s", e.RetryAfter)
}

// Transaction описывает ответ шлюза по одному заказу.
type Transaction struct {
	OrderNumber         string `json:"order"`
	Status              string `json:"status"`
	Reason              string `json:"reason,omitempty"`
	CardLast4           string `json:"card_last4,omitempty"`
	WalletTransactionID string `json:"wallet_transaction_id,omitempty"`
}

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент шлюза по указанному адресу. Пустой адрес означает, что шлюз не настроен.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Configured сообщает, задан ли адрес шлюза.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// GetTransaction запрашивает состояние оплаты заказа с указанным номером.
func (c *Client) GetTransaction(ctx context.Context, number string) (*Transaction, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("payment gateway not configured")
	}

	endpoint := fmt.Sprintf("%s/api/transactions/%s", c.baseURL, url.PathEscape(number))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		var retryAfter time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, &RateLimitError{RetryAfter: retryAfter}
	case http.StatusNoContent, http.StatusNotFound:
		return nil, ErrNotRegistered
	default:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var tx Transaction
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &tx, nil
}
