package payments

import (
	"context"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// DepositGateway is the hold/capture/release surface the contract workflow
// needs for deposits. The hold is placed when the customer confirms the
// deposit, captured on full payment, and released on cancellation or expiry.
type DepositGateway interface {
	HoldDeposit(ctx context.Context, amount decimal.Decimal, currency, customerID string) (string, error)
	CaptureDeposit(ctx context.Context, paymentIntentID string) error
	ReleaseDeposit(ctx context.Context, paymentIntentID string) error
}

// StripeClient is a thin wrapper around stripe-go for PaymentIntent
// hold/capture/cancel flows.
type StripeClient struct{}

// NewStripeClient initializes the stripe client with the STRIPE_API_KEY env var.
func NewStripeClient() *StripeClient {
	stripe.Key = os.Getenv("STRIPE_API_KEY")
	return &StripeClient{}
}

// StripeConfigured reports whether an API key is present in the environment.
func StripeConfigured() bool {
	return os.Getenv("STRIPE_API_KEY") != ""
}

// HoldDeposit creates a PaymentIntent with capture_method=manual to hold the
// deposit amount. It returns the PaymentIntent ID on success.
func (s *StripeClient) HoldDeposit(ctx context.Context, amount decimal.Decimal, currency, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(MinorUnits(amount, currency)),
		Currency: stripe.String(currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// CaptureDeposit finalizes a previously-held PaymentIntent.
func (s *StripeClient) CaptureDeposit(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Capture(paymentIntentID, nil)
	return err
}

// ReleaseDeposit cancels the hold on a PaymentIntent.
func (s *StripeClient) ReleaseDeposit(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Cancel(paymentIntentID, nil)
	return err
}

// zeroDecimalCurrencies are charged in whole units on Stripe.
var zeroDecimalCurrencies = map[string]bool{
	"vnd": true, "jpy": true, "krw": true, "clp": true,
}

// MinorUnits converts a decimal amount to the currency's smallest chargeable
// unit, rounding half up.
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
