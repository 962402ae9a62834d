package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/poolride/carpool/internal/notifications"
	"github.com/poolride/carpool/pkg/common"
	"github.com/poolride/carpool/pkg/config"
	"github.com/poolride/carpool/pkg/logger"
	"github.com/poolride/carpool/pkg/models"
	"github.com/stripe/stripe-go/v83"
	"go.uber.org/zap"
)

// RepositoryInterface defines the persistence operations for payments
type RepositoryInterface interface {
	GetRideForPayment(ctx context.Context, rideID uuid.UUID) (*models.Ride, error)
	GetAcceptedBooking(ctx context.Context, rideID, passengerID uuid.UUID) (*models.BookingRequest, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByID(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	GetPaymentByChargeID(ctx context.Context, chargeID string) (*models.Payment, error)
	SetChargeID(ctx context.Context, paymentID uuid.UUID, chargeID string) error
	UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, status string, isPaid bool) error
	ConfirmCashPayment(ctx context.Context, paymentID, driverID uuid.UUID) (*models.Payment, error)
	ListSettledCardPayments(ctx context.Context, rideID uuid.UUID) ([]*models.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Payment, int64, error)
	DriverBalance(ctx context.Context, driverID uuid.UUID) (int64, error)
	CreatePayout(ctx context.Context, payout *models.Payout) error
	UpdatePayout(ctx context.Context, payoutID uuid.UUID, stripePayoutID, status string) error
	UpdatePayoutStatusByStripeID(ctx context.Context, stripePayoutID, status string) error
	ListPayouts(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Payout, int64, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	SaveStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error
	SaveStripeAccountID(ctx context.Context, userID uuid.UUID, accountID string) error
}

// Service contains the payment settlement business logic
type Service struct {
	repo     RepositoryInterface
	gateway  Gateway
	notifier notifications.Sender
	fareCfg  config.FareConfig
}

// NewService creates a new payments service
func NewService(repo RepositoryInterface, gateway Gateway, notifier notifications.Sender, fareCfg config.FareConfig) *Service {
	return &Service{repo: repo, gateway: gateway, notifier: notifier, fareCfg: fareCfg}
}

// CreatePayment initiates settlement of the payer's seats on a ride. The
// amount is the ride fare times the accepted seat count. Cash payments stay
// pending until the driver confirms receipt; card payments are charged
// off-session through the gateway, with the platform commission taken as an
// application fee.
func (s *Service) CreatePayment(ctx context.Context, payerID uuid.UUID, req *models.CreatePaymentRequest) (*models.Payment, error) {
	ride, err := s.repo.GetRideForPayment(ctx, req.RideID)
	if err != nil {
		return nil, err
	}
	if ride.Fare <= 0 {
		return nil, common.NewBusinessRuleError("ride has no fare to settle")
	}

	switch req.Method {
	case models.PaymentMethodCard:
		if ride.PaymentType == models.PaymentTypeCash {
			return nil, common.NewBusinessRuleError("this ride accepts cash only")
		}
	case models.PaymentMethodCash:
		if ride.PaymentType == models.PaymentTypeCard {
			return nil, common.NewBusinessRuleError("this ride accepts card only")
		}
	}

	booking, err := s.repo.GetAcceptedBooking(ctx, req.RideID, payerID)
	if err != nil {
		return nil, err
	}

	amount := int64(math.Round(ride.Fare*100)) * int64(booking.PassengerCount)
	commission := int64(math.Round(float64(amount) * s.fareCfg.CommissionRate))

	payment := &models.Payment{
		ID:                uuid.New(),
		RideID:            req.RideID,
		UserID:            payerID,
		AmountCents:       amount,
		Currency:          s.fareCfg.Currency,
		Method:            req.Method,
		Status:            models.PaymentStatusPending,
		CommissionCents:   commission,
		DriverAmountCents: amount - commission,
	}

	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	if req.Method == models.PaymentMethodCash {
		s.notifier.SendToUser(ctx, ride.DriverID, "Cash payment pending",
			fmt.Sprintf("A passenger will pay %.2f %s in cash for the ride from %s to %s. Confirm once received.",
				float64(amount)/100, payment.Currency, ride.StartAddress, ride.EndAddress))
		return payment, nil
	}

	if err := s.chargeCard(ctx, payment, ride, payerID, req.PaymentMethodID); err != nil {
		return nil, err
	}

	return payment, nil
}

func (s *Service) chargeCard(ctx context.Context, payment *models.Payment, ride *models.Ride, payerID uuid.UUID, paymentMethodID *string) error {
	if paymentMethodID == nil || *paymentMethodID == "" {
		return common.NewValidationError("payment_method_id is required for card payments")
	}

	payer, err := s.repo.GetUserByID(ctx, payerID)
	if err != nil {
		return err
	}
	customerID, err := s.ensureCustomer(ctx, payer)
	if err != nil {
		return err
	}

	driver, err := s.repo.GetUserByID(ctx, ride.DriverID)
	if err != nil {
		return err
	}
	accountID, err := s.ensureAccount(ctx, driver)
	if err != nil {
		return err
	}

	pi, err := s.gateway.ChargeRide(&ChargeParams{
		AmountCents:        payment.AmountCents,
		Currency:           payment.Currency,
		CustomerID:         customerID,
		PaymentMethodID:    *paymentMethodID,
		DestinationAccount: accountID,
		ApplicationFee:     payment.CommissionCents,
		Description:        fmt.Sprintf("Ride from %s to %s", ride.StartAddress, ride.EndAddress),
		Metadata: map[string]string{
			"payment_id": payment.ID.String(),
			"ride_id":    payment.RideID.String(),
		},
	})
	if err != nil {
		if updErr := s.repo.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusFailed, false); updErr != nil {
			logger.Error("failed to mark payment as failed",
				zap.String("payment_id", payment.ID.String()), zap.Error(updErr))
		}
		payment.Status = models.PaymentStatusFailed
		return common.NewUpstreamError("card charge failed", err)
	}

	if err := s.repo.SetChargeID(ctx, payment.ID, pi.ID); err != nil {
		return err
	}
	payment.StripeChargeID = &pi.ID

	// The webhook is the source of truth; a synchronous success just gets
	// recorded early.
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		if err := s.repo.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusSucceeded, true); err != nil {
			return err
		}
		payment.Status = models.PaymentStatusSucceeded
		payment.IsPaid = true

		s.notifier.SendToUser(ctx, ride.DriverID, "Payment received",
			fmt.Sprintf("A card payment of %.2f %s for the ride from %s to %s has settled.",
				float64(payment.AmountCents)/100, payment.Currency, ride.StartAddress, ride.EndAddress))
	}

	return nil
}

func (s *Service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(user.Email, user.FullName(),
		map[string]string{"user_id": user.ID.String()})
	if err != nil {
		return "", common.NewUpstreamError("failed to register payer with gateway", err)
	}

	if err := s.repo.SaveStripeCustomerID(ctx, user.ID, customerID); err != nil {
		return "", err
	}

	return customerID, nil
}

func (s *Service) ensureAccount(ctx context.Context, user *models.User) (string, error) {
	if user.StripeAccountID != nil && *user.StripeAccountID != "" {
		return *user.StripeAccountID, nil
	}

	accountID, err := s.gateway.CreateConnectedAccount(user.Email)
	if err != nil {
		return "", common.NewUpstreamError("failed to register driver with gateway", err)
	}

	if err := s.repo.SaveStripeAccountID(ctx, user.ID, accountID); err != nil {
		return "", err
	}

	return accountID, nil
}

// ConfirmCashPayment lets the driver mark a cash payment as received.
func (s *Service) ConfirmCashPayment(ctx context.Context, driverID, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.ConfirmCashPayment(ctx, paymentID, driverID)
	if err != nil {
		return nil, err
	}

	s.notifier.SendToUser(ctx, payment.UserID, "Payment confirmed",
		fmt.Sprintf("The driver confirmed your cash payment of %.2f %s.",
			float64(payment.AmountCents)/100, payment.Currency))

	return payment, nil
}

// RefundRidePayments reverses every settled card payment on a ride. Used
// when a ride is cancelled. Each refund is attempted independently; a
// failure is logged and the rest proceed, with the charge.refunded webhook
// as the backstop for anything that slipped through.
func (s *Service) RefundRidePayments(ctx context.Context, rideID uuid.UUID) error {
	settled, err := s.repo.ListSettledCardPayments(ctx, rideID)
	if err != nil {
		return err
	}

	for _, payment := range settled {
		if payment.StripeChargeID == nil {
			continue
		}
		if err := s.gateway.Refund(*payment.StripeChargeID); err != nil {
			logger.Error("failed to refund payment",
				zap.String("payment_id", payment.ID.String()), zap.Error(err))
			continue
		}
		if err := s.repo.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusRefunded, false); err != nil {
			logger.Error("failed to record refund",
				zap.String("payment_id", payment.ID.String()), zap.Error(err))
			continue
		}
		s.notifier.SendToUser(ctx, payment.UserID, "Payment refunded",
			fmt.Sprintf("Your payment of %.2f %s was refunded because the ride was cancelled.",
				float64(payment.AmountCents)/100, payment.Currency))
	}

	return nil
}

// GetPayment returns a payment visible to its payer or the ride's driver.
func (s *Service) GetPayment(ctx context.Context, callerID, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if payment.UserID != callerID {
		ride, err := s.repo.GetRideForPayment(ctx, payment.RideID)
		if err != nil {
			return nil, err
		}
		if ride.DriverID != callerID {
			return nil, common.NewForbiddenError("you are not part of this payment")
		}
	}

	return payment, nil
}

// ListMyPayments returns the caller's payments.
func (s *Service) ListMyPayments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Payment, int64, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// GetBalance returns the caller's withdrawable earnings in cents.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.DriverBalance(ctx, userID)
}

// RequestPayout transfers part of the driver's settled earnings to their
// connected account. The balance check and the payout record are one
// transaction; the gateway call happens after, and a gateway failure marks
// the record failed, which releases the reserved amount.
func (s *Service) RequestPayout(ctx context.Context, driverID uuid.UUID, req *models.RequestPayoutRequest) (*models.Payout, error) {
	driver, err := s.repo.GetUserByID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if driver.StripeAccountID == nil || *driver.StripeAccountID == "" {
		return nil, common.NewBusinessRuleError("no connected account; receive a card payment first")
	}

	currency := req.Currency
	if currency == "" {
		currency = s.fareCfg.Currency
	}

	payout := &models.Payout{
		ID:          uuid.New(),
		UserID:      driverID,
		AmountCents: req.AmountCents,
		Currency:    currency,
		Status:      "pending",
	}

	if err := s.repo.CreatePayout(ctx, payout); err != nil {
		return nil, err
	}

	stripePayout, err := s.gateway.CreatePayout(req.AmountCents, currency, *driver.StripeAccountID)
	if err != nil {
		if updErr := s.repo.UpdatePayout(ctx, payout.ID, "", "failed"); updErr != nil {
			logger.Error("failed to mark payout as failed",
				zap.String("payout_id", payout.ID.String()), zap.Error(updErr))
		}
		return nil, common.NewUpstreamError("payout failed", err)
	}

	if err := s.repo.UpdatePayout(ctx, payout.ID, stripePayout.ID, string(stripePayout.Status)); err != nil {
		return nil, err
	}
	payout.StripePayoutID = stripePayout.ID
	payout.Status = string(stripePayout.Status)

	logger.Info("payout requested",
		zap.String("payout_id", payout.ID.String()),
		zap.String("driver_id", driverID.String()),
		zap.Int64("amount_cents", req.AmountCents))

	return payout, nil
}

// ListMyPayouts returns the caller's payouts.
func (s *Service) ListMyPayouts(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Payout, int64, error) {
	return s.repo.ListPayouts(ctx, userID, limit, offset)
}

// ProcessEvent applies a verified gateway event. Processing is idempotent:
// events reduce to lookup-then-set, so redelivery converges on the same
// state. Unknown event types are logged and acknowledged.
func (s *Service) ProcessEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "payment_intent.succeeded":
		return s.applyIntentEvent(ctx, event, models.PaymentStatusSucceeded, true)

	case "payment_intent.payment_failed":
		return s.applyIntentEvent(ctx, event, models.PaymentStatusFailed, false)

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return common.NewValidationError("malformed charge event payload")
		}
		if charge.PaymentIntent == nil {
			return nil
		}
		return s.applyPaymentUpdate(ctx, charge.PaymentIntent.ID, models.PaymentStatusRefunded, false)

	case "payout.paid", "payout.failed":
		var payout stripe.Payout
		if err := json.Unmarshal(event.Data.Raw, &payout); err != nil {
			return common.NewValidationError("malformed payout event payload")
		}
		status := "paid"
		if event.Type == "payout.failed" {
			status = "failed"
		}
		err := s.repo.UpdatePayoutStatusByStripeID(ctx, payout.ID, status)
		if common.IsNotFound(err) {
			logger.Warn("payout event for unknown payout", zap.String("stripe_payout_id", payout.ID))
			return nil
		}
		return err

	default:
		logger.Debug("ignoring gateway event", zap.String("type", string(event.Type)))
		return nil
	}
}

func (s *Service) applyIntentEvent(ctx context.Context, event *stripe.Event, status string, isPaid bool) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return common.NewValidationError("malformed payment intent event payload")
	}
	return s.applyPaymentUpdate(ctx, pi.ID, status, isPaid)
}

func (s *Service) applyPaymentUpdate(ctx context.Context, chargeID, status string, isPaid bool) error {
	payment, err := s.repo.GetPaymentByChargeID(ctx, chargeID)
	if err != nil {
		if common.IsNotFound(err) {
			logger.Warn("gateway event for unknown payment", zap.String("charge_id", chargeID))
			return nil
		}
		return err
	}

	if payment.Status == status && payment.IsPaid == isPaid {
		return nil
	}

	if err := s.repo.UpdatePaymentStatus(ctx, payment.ID, status, isPaid); err != nil {
		return err
	}

	if status == models.PaymentStatusSucceeded {
		if ride, err := s.repo.GetRideForPayment(ctx, payment.RideID); err == nil {
			s.notifier.SendToUser(ctx, ride.DriverID, "Payment received",
				fmt.Sprintf("A card payment of %.2f %s for the ride from %s to %s has settled.",
					float64(payment.AmountCents)/100, payment.Currency, ride.StartAddress, ride.EndAddress))
		}
	}

	logger.Info("payment updated from gateway event",
		zap.String("payment_id", payment.ID.String()),
		zap.String("status", status))

	return nil
}
