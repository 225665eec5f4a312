package cryptopay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{Token: "test-token", BaseURL: server.URL})
}

func TestNewClient_Network(t *testing.T) {
	assert.Equal(t, TestNetURL, NewClient(Config{Network: "TEST_NET"}).baseURL)
	assert.Equal(t, MainNetURL, NewClient(Config{Network: "MAIN_NET"}).baseURL)
	assert.Equal(t, TestNetURL, NewClient(Config{}).baseURL)
}

func TestCreateInvoice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/createInvoice", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("Crypto-Pay-API-Token"))

		var body map[string]interface{}
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "USDT", body["asset"])
		assert.Equal(t, "24.5", body["amount"])

		_, _ = w.Write([]byte(`{"ok":true,"result":{"invoice_id":77,"status":"active","asset":"USDT","amount":"24.5","bot_invoice_url":"https://t.me/CryptoTestnetBot?start=IVabc","created_at":"2026-01-02T10:00:00.000Z"}}`))
	})

	invoice, err := client.CreateInvoice(context.Background(), CreateInvoiceRequest{
		Asset:  "USDT",
		Amount: decimal.RequireFromString("24.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(77), invoice.InvoiceID)
	assert.Equal(t, StatusActive, invoice.Status)
	assert.True(t, invoice.Amount.Equal(decimal.RequireFromString("24.5")))
	assert.Equal(t, "https://t.me/CryptoTestnetBot?start=IVabc", invoice.URL())
}

func TestCreateInvoice_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error":{"code":401,"name":"UNAUTHORIZED"}}`))
	})

	_, err := client.CreateInvoice(context.Background(), CreateInvoiceRequest{Asset: "USDT", Amount: decimal.NewFromInt(1)})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Code)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Name)
}

func TestCreateInvoice_MalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})

	_, err := client.CreateInvoice(context.Background(), CreateInvoiceRequest{Asset: "USDT", Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestGetInvoice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getInvoices", r.URL.Path)
		var body getInvoicesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "77", body.InvoiceIDs)

		_, _ = w.Write([]byte(`{"ok":true,"result":{"items":[{"invoice_id":77,"status":"paid","asset":"USDT","amount":"10"}]}}`))
	})

	invoice, err := client.GetInvoice(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, invoice.Status)
}

func TestGetInvoice_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"items":[]}}`))
	})

	_, err := client.GetInvoice(context.Background(), 5)
	assert.Error(t, err)
}

func TestDeleteInvoice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/deleteInvoice", r.URL.Path)
		var body deleteInvoiceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(77), body.InvoiceID)
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	})

	assert.NoError(t, client.DeleteInvoice(context.Background(), 77))
}
