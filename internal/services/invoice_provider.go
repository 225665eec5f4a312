package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/internal/models"
	"github.com/smarttransit/ticket-bot/pkg/cryptopay"
)

// cryptoPayAPI is the subset of the Crypto Pay client used here
type cryptoPayAPI interface {
	CreateInvoice(ctx context.Context, req cryptopay.CreateInvoiceRequest) (*cryptopay.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID int64) (*cryptopay.Invoice, error)
	DeleteInvoice(ctx context.Context, invoiceID int64) error
}

// CryptoPayInvoices adapts the Crypto Pay client to InvoiceProvider
type CryptoPayInvoices struct {
	api       cryptoPayAPI
	asset     string
	expiresIn time.Duration
	logger    *logrus.Logger
}

// NewCryptoPayInvoices creates invoices in asset that the provider expires after expiresIn
func NewCryptoPayInvoices(api cryptoPayAPI, asset string, expiresIn time.Duration, logger *logrus.Logger) *CryptoPayInvoices {
	return &CryptoPayInvoices{api: api, asset: asset, expiresIn: expiresIn, logger: logger}
}

// CreateInvoice issues an invoice for amount
func (p *CryptoPayInvoices) CreateInvoice(ctx context.Context, amount decimal.Decimal, description string) (*models.Invoice, error) {
	invoice, err := p.api.CreateInvoice(ctx, cryptopay.CreateInvoiceRequest{
		Asset:       p.asset,
		Amount:      amount,
		Description: description,
		ExpiresIn:   int(p.expiresIn.Seconds()),
	})
	if err != nil {
		return nil, err
	}
	return &models.Invoice{
		ID:     invoice.InvoiceID,
		PayURL: invoice.URL(),
		Amount: invoice.Amount,
		Asset:  invoice.Asset,
	}, nil
}

// GetInvoiceStatus maps the provider status. Active invoices are unpaid, and so are
// statuses this client does not know, which are logged so they get noticed.
func (p *CryptoPayInvoices) GetInvoiceStatus(ctx context.Context, invoiceID int64) (models.InvoiceStatus, error) {
	invoice, err := p.api.GetInvoice(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	switch invoice.Status {
	case cryptopay.StatusPaid:
		return models.InvoiceStatusPaid, nil
	case cryptopay.StatusExpired:
		return models.InvoiceStatusExpired, nil
	case cryptopay.StatusActive:
		return models.InvoiceStatusUnpaid, nil
	default:
		p.logger.WithFields(logrus.Fields{
			"invoice_id":      invoiceID,
			"provider_status": invoice.Status,
		}).Warn("Unknown invoice status, treating as unpaid")
		return models.InvoiceStatusUnpaid, nil
	}
}

// DeleteInvoice withdraws an unpaid invoice
func (p *CryptoPayInvoices) DeleteInvoice(ctx context.Context, invoiceID int64) error {
	return p.api.DeleteInvoice(ctx, invoiceID)
}
