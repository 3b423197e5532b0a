package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"travel-backoffice/errors"
	"travel-backoffice/logger"
	"travel-backoffice/models"
	"travel-backoffice/utils"
)

// CreateBookingRequest is the checkout payload of POST /bookings.
type CreateBookingRequest struct {
	CustomerName  string  `json:"customer_name" validate:"required,max=100"`
	CustomerEmail string  `json:"customer_email" validate:"required,email"`
	CustomerPhone string  `json:"customer_phone" validate:"omitempty,phone"`
	PackageRef    string  `json:"package_ref" validate:"max=100"`
	Destination   string  `json:"destination" validate:"max=200"`
	Travelers     int     `json:"travelers" validate:"gte=1,lte=100"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	TravelDate    string  `json:"travel_date" validate:"omitempty,datetime=2006-01-02"`
}

// ImportResult summarises a bulk upload.
type ImportResult struct {
	SuccessCount int                 `json:"success_count"`
	FailedCount  int                 `json:"failed_count"`
	TotalCount   int                 `json:"total_count"`
	Failed       []map[string]string `json:"failed_bookings,omitempty"`
}

// BookingService handles checkout intake and the admin listings.
type BookingService struct {
	store BookingStore
}

func NewBookingService(store BookingStore) *BookingService {
	return &BookingService{store: store}
}

// Create validates req and stores a Pending/Pending booking.
func (s *BookingService) Create(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	if req.Travelers == 0 {
		req.Travelers = 1
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	b := &models.Booking{
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		PackageRef:    req.PackageRef,
		Destination:   req.Destination,
		Travelers:     req.Travelers,
		Amount:        req.Amount,
		Status:        models.BookingPending,
		PaymentStatus: models.PaymentPending,
	}
	if req.TravelDate != "" {
		d, err := time.Parse("2006-01-02", req.TravelDate)
		if err != nil {
			return nil, errors.NewInvalidParamsError("travel_date must match 2006-01-02")
		}
		b.TravelDate = &d
	}

	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}
	logger.Info("Booking %d created for %s (%.2f)", b.ID, b.CustomerEmail, b.Amount)
	return b, nil
}

// Get returns one booking.
func (s *BookingService) Get(ctx context.Context, id int64) (*models.Booking, error) {
	if id <= 0 {
		return nil, errors.NewInvalidParamsError("invalid booking id")
	}
	return s.store.GetByID(ctx, id)
}

// List returns bookings newest first.
func (s *BookingService) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	if filter.Status != "" && !oneOf(filter.Status, models.BookingPending, models.BookingConfirmed, models.BookingCancelled) {
		return nil, errors.NewInvalidParamsError(fmt.Sprintf("invalid status %q", filter.Status))
	}
	if filter.PaymentStatus != "" && !oneOf(filter.PaymentStatus, models.PaymentPending, models.PaymentPaid, models.PaymentFailed) {
		return nil, errors.NewInvalidParamsError(fmt.Sprintf("invalid payment_status %q", filter.PaymentStatus))
	}
	return s.store.List(ctx, filter)
}

// Export renders the bookings created in [from, to] as an xlsx workbook.
func (s *BookingService) Export(ctx context.Context, from, to time.Time) ([]byte, error) {
	bookings, err := s.store.CreatedBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	logger.Info("Exporting %d bookings created between %s and %s", len(bookings), from.Format(time.RFC3339), to.Format(time.RFC3339))
	return WriteBookingsExcel(bookings)
}

// Import creates a booking for every parsed row. Rows are processed independently; failures
// are collected with their spreadsheet row number.
func (s *BookingService) Import(ctx context.Context, rows []CreateBookingRequest) ImportResult {
	res := ImportResult{TotalCount: len(rows)}
	for i, row := range rows {
		if _, err := s.Create(ctx, row); err != nil {
			logger.Warn("Failed to import booking row %d (%s): %v", i+2, row.CustomerEmail, err)
			res.Failed = append(res.Failed, map[string]string{
				"row":   fmt.Sprintf("%d", i+2), // +2 for header row
				"email": row.CustomerEmail,
				"error": errors.Message(err),
			})
			continue
		}
		res.SuccessCount++
	}
	res.FailedCount = len(res.Failed)
	logger.Info("Bulk upload completed: %d successful, %d failed", res.SuccessCount, res.FailedCount)
	return res
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
