package services

import (
	"context"
	"time"

	"travel-backoffice/models"
	"travel-backoffice/repository"
	"travel-backoffice/services/razorpay"
)

// BookingStore is the slice of *repository.BookingRepository the services use.
type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	CreatedBetween(ctx context.Context, from, to time.Time) ([]models.Booking, error)
	FindByPaymentReference(ctx context.Context, ref string) ([]models.Booking, error)
	AttachPaymentLink(ctx context.Context, id int64, linkID, orderID, url string) error
	SetRecoveredLink(ctx context.Context, id int64, linkID, orderID string) (bool, error)
	MarkPaid(ctx context.Context, id int64, paymentID string) (bool, error)
	MarkFailed(ctx context.Context, id int64) (bool, error)
}

// PaymentProvider is satisfied by *razorpay.Client.
type PaymentProvider interface {
	Configured() bool
	CreatePaymentLink(ctx context.Context, req models.CreatePaymentLinkRequest) (*models.PaymentLink, error)
	FetchPaymentLink(ctx context.Context, id string) (*models.PaymentLink, error)
	ListPaymentLinks(ctx context.Context, from, to time.Time) ([]models.PaymentLink, error)
}

// WebhookAuditor is satisfied by *repository.WebhookRepository.
type WebhookAuditor interface {
	Record(ctx context.Context, rec repository.WebhookRecord) error
	UpdateStatus(ctx context.Context, webhookID, status string, bookingID int64, errMsg string) error
}

var (
	_ BookingStore    = (*repository.BookingRepository)(nil)
	_ WebhookAuditor  = (*repository.WebhookRepository)(nil)
	_ PaymentProvider = (*razorpay.Client)(nil)
)
