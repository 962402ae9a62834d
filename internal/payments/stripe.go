package payments

import (
	"fmt"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/account"
	"github.com/stripe/stripe-go/v83/customer"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/payout"
	"github.com/stripe/stripe-go/v83/refund"
)

// Gateway abstracts the payment provider so the service can be tested
// without hitting the network.
type Gateway interface {
	CreateCustomer(email, name string, metadata map[string]string) (string, error)
	CreateConnectedAccount(email string) (string, error)
	ChargeRide(params *ChargeParams) (*stripe.PaymentIntent, error)
	Refund(paymentIntentID string) error
	CreatePayout(amount int64, currency, accountID string) (*stripe.Payout, error)
}

// ChargeParams describes an off-session ride charge. The platform takes its
// commission as an application fee; the remainder transfers to the driver's
// connected account.
type ChargeParams struct {
	AmountCents        int64
	Currency           string
	CustomerID         string
	PaymentMethodID    string
	DestinationAccount string
	ApplicationFee     int64
	Description        string
	Metadata           map[string]string
}

// StripeClient wraps Stripe API operations
type StripeClient struct {
	apiKey string
}

// NewStripeClient creates a new Stripe client
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{apiKey: apiKey}
}

// CreateCustomer creates a new Stripe customer and returns its ID.
func (s *StripeClient) CreateCustomer(email, name string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}

	for key, value := range metadata {
		params.AddMetadata(key, value)
	}

	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create Stripe customer: %w", err)
	}

	return cust.ID, nil
}

// CreateConnectedAccount creates an express connected account for a driver
// and returns its ID.
func (s *StripeClient) CreateConnectedAccount(email string) (string, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
	}

	acct, err := account.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create connected account: %w", err)
	}

	return acct.ID, nil
}

// ChargeRide creates and confirms an off-session payment intent for a ride.
func (s *StripeClient) ChargeRide(p *ChargeParams) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(p.AmountCents), // Amount in cents
		Currency:      stripe.String(p.Currency),
		Customer:      stripe.String(p.CustomerID),
		PaymentMethod: stripe.String(p.PaymentMethodID),
		Description:   stripe.String(p.Description),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}

	if p.DestinationAccount != "" {
		params.ApplicationFeeAmount = stripe.Int64(p.ApplicationFee)
		params.TransferData = &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(p.DestinationAccount),
		}
	}

	for key, value := range p.Metadata {
		params.AddMetadata(key, value)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return pi, nil
}

// Refund refunds a payment intent in full.
func (s *StripeClient) Refund(paymentIntentID string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}

	if _, err := refund.New(params); err != nil {
		return fmt.Errorf("failed to create refund: %w", err)
	}

	return nil
}

// CreatePayout issues a payout on the driver's connected account.
func (s *StripeClient) CreatePayout(amount int64, currency, accountID string) (*stripe.Payout, error) {
	params := &stripe.PayoutParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	params.SetStripeAccount(accountID)

	po, err := payout.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}

	return po, nil
}
