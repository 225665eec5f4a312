package cryptopay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MainNetURL = "https://pay.crypt.bot/api"
	TestNetURL = "https://testnet-pay.crypt.bot/api"

	tokenHeader = "Crypto-Pay-API-Token"
)

// Invoice statuses reported by Crypto Pay
const (
	StatusActive  = "active"
	StatusPaid    = "paid"
	StatusExpired = "expired"
)

// Client talks to the Crypto Pay API
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// Config holds configuration for the Crypto Pay client
type Config struct {
	Token   string
	Network string // "MAIN_NET" or "TEST_NET"
	BaseURL string // overrides Network when set
}

// NewClient creates a new Crypto Pay client
func NewClient(config Config) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = TestNetURL
		if config.Network == "MAIN_NET" {
			baseURL = MainNetURL
		}
	}
	return &Client{
		baseURL: baseURL,
		token:   config.Token,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Invoice is the invoice object returned by the API
type Invoice struct {
	InvoiceID     int64           `json:"invoice_id"`
	Hash          string          `json:"hash"`
	Status        string          `json:"status"`
	Asset         string          `json:"asset"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	BotInvoiceURL string          `json:"bot_invoice_url"`
	PayURL        string          `json:"pay_url,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
}

// URL returns the link the payer opens
func (i *Invoice) URL() string {
	if i.BotInvoiceURL != "" {
		return i.BotInvoiceURL
	}
	return i.PayURL
}

// CreateInvoiceRequest represents the createInvoice parameters
type CreateInvoiceRequest struct {
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	ExpiresIn   int             `json:"expires_in,omitempty"` // seconds
}

type getInvoicesRequest struct {
	InvoiceIDs string `json:"invoice_ids"`
}

type deleteInvoiceRequest struct {
	InvoiceID int64 `json:"invoice_id"`
}

// response is the envelope every method answers with
type response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *APIError       `json:"error"`
}

// APIError is a failure reported by the API itself
type APIError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crypto pay error %d: %s", e.Code, e.Name)
}

// CreateInvoice issues a new invoice
func (c *Client) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	var invoice Invoice
	if err := c.call(ctx, "createInvoice", req, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetInvoice fetches a single invoice by id
func (c *Client) GetInvoice(ctx context.Context, invoiceID int64) (*Invoice, error) {
	var result struct {
		Items []Invoice `json:"items"`
	}
	req := getInvoicesRequest{InvoiceIDs: strconv.FormatInt(invoiceID, 10)}
	if err := c.call(ctx, "getInvoices", req, &result); err != nil {
		return nil, err
	}
	if len(result.Items) == 0 {
		return nil, fmt.Errorf("invoice %d not found", invoiceID)
	}
	return &result.Items[0], nil
}

// DeleteInvoice removes an invoice so it can no longer be paid
func (c *Client) DeleteInvoice(ctx context.Context, invoiceID int64) error {
	var ok bool
	return c.call(ctx, "deleteInvoice", deleteInvoiceRequest{InvoiceID: invoiceID}, &ok)
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var envelope response
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to parse %s response (HTTP %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		if envelope.Error != nil {
			return envelope.Error
		}
		return fmt.Errorf("%s failed with HTTP %d", method, resp.StatusCode)
	}

	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", method, err)
	}
	return nil
}
