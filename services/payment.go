package services

import (
	"context"
	"fmt"
	"strings"

	"travel-backoffice/errors"
	"travel-backoffice/logger"
	"travel-backoffice/metrics"
	"travel-backoffice/models"
	"travel-backoffice/utils"
)

// PaymentLinkRequest is the body of POST /payment-link.
type PaymentLinkRequest struct {
	Amount        float64          `json:"amount" validate:"required,gt=0"`
	CustomerName  string           `json:"customer_name"`
	CustomerEmail string           `json:"customer_email" validate:"required,email"`
	CustomerPhone string           `json:"customer_phone"`
	Description   string           `json:"description"`
	BookingID     utils.FlexibleID `json:"booking_id"`
}

// IssuerOptions carries the settings the issuer needs from the configuration.
type IssuerOptions struct {
	Currency    string
	CallbackURL string
}

// Issuer creates hosted payment links and records them on bookings.
type Issuer struct {
	provider PaymentProvider
	store    BookingStore
	events   *Events
	notifier *Notifier
	tasks    *Tasks
	opts     IssuerOptions
}

func NewIssuer(provider PaymentProvider, store BookingStore, events *Events, notifier *Notifier, tasks *Tasks, opts IssuerOptions) *Issuer {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	return &Issuer{provider: provider, store: store, events: events, notifier: notifier, tasks: tasks, opts: opts}
}

// Issue validates req, creates the link and, when a booking is referenced, stores the link on
// it. The returned link id and provider order id are different values.
func (s *Issuer) Issue(ctx context.Context, req PaymentLinkRequest) (*models.IssuedPaymentLink, error) {
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if !s.provider.Configured() {
		return nil, errors.NewConfigError("Razorpay credentials not configured")
	}

	var booking *models.Booking
	if id := int64(req.BookingID); id > 0 {
		b, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if b.IsPaid() {
			return nil, errors.NewConflictError(fmt.Sprintf("booking %d is already paid", id))
		}
		booking = b
	}

	description := req.Description
	if description == "" {
		description = "Travel booking payment"
		if booking != nil {
			description = fmt.Sprintf("Payment for booking #%d", booking.ID)
		}
	}

	link, err := s.provider.CreatePaymentLink(ctx, models.CreatePaymentLinkRequest{
		AmountPaise:    models.ToPaise(req.Amount),
		Currency:       s.opts.Currency,
		Description:    description,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		BookingID:      int64(req.BookingID),
		CallbackURL:    s.opts.CallbackURL,
		CallbackMethod: "get",
	})
	if err != nil {
		metrics.IncPaymentLink("error")
		logger.Error("Payment link creation failed for %s (booking %d): %v", req.CustomerEmail, req.BookingID, err)
		return nil, err
	}
	logger.Info("Payment link %s created (order %s) for booking %d", link.ID, link.OrderID, req.BookingID)

	// Verification round trip. The result does not change the response.
	if fetched, err := s.provider.FetchPaymentLink(ctx, link.ID); err != nil {
		logger.Warn("Payment link %s could not be re-fetched after creation: %v", link.ID, err)
	} else {
		logger.Debug("Payment link %s verified with status %s", fetched.ID, fetched.Status)
	}

	if booking != nil {
		if err := s.store.AttachPaymentLink(ctx, booking.ID, link.ID, link.OrderID, link.ShortURL); err != nil {
			metrics.IncPaymentLink("error")
			logger.Error("Payment link %s created but not saved on booking %d: %v", link.ID, booking.ID, err)
			return nil, err
		}
		booking.PaymentLinkID = link.ID
		booking.ProviderOrderID = link.OrderID
		booking.PaymentLinkURL = link.ShortURL

		snapshot := *booking
		s.tasks.Go(ctx, "booking.payment_link.created event", func(ctx context.Context) error {
			return s.events.Emit(ctx, EventPaymentLinkCreated, &snapshot, "")
		})
		s.tasks.Go(ctx, "payment link email", func(ctx context.Context) error {
			return s.notifier.SendPaymentLink(ctx, &snapshot, link.ShortURL)
		})
	}

	metrics.IncPaymentLink("created")
	return &models.IssuedPaymentLink{
		URL:     link.ShortURL,
		LinkID:  link.ID,
		OrderID: link.OrderID,
		Status:  link.Status,
	}, nil
}
