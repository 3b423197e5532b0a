package models

import (
	"math"
	"time"
)

// Booking workflow status
const (
	BookingPending   = "Pending"
	BookingConfirmed = "Confirmed"
	BookingCancelled = "Cancelled"
)

// Payment status of a booking
const (
	PaymentPending = "Pending"
	PaymentPaid    = "Paid"
	PaymentFailed  = "Failed"
)

// Booking is one customer's reservation against a package or itinerary.
//
// PaymentLinkID holds the provider's payment-link id (plink_...), ProviderOrderID the separate
// order id the provider creates behind the link. They are never the same value.
type Booking struct {
	ID                int64      `json:"id"`
	CustomerName      string     `json:"customer_name"`
	CustomerEmail     string     `json:"customer_email"`
	CustomerPhone     string     `json:"customer_phone"`
	PackageRef        string     `json:"package_ref"`
	Destination       string     `json:"destination"`
	Travelers         int        `json:"travelers"`
	Amount            float64    `json:"amount"`
	TravelDate        *time.Time `json:"travel_date,omitempty"`
	Status            string     `json:"status"`
	PaymentStatus     string     `json:"payment_status"`
	PaymentLinkID     string     `json:"payment_link_id,omitempty"`
	ProviderOrderID   string     `json:"provider_order_id,omitempty"`
	PaymentLinkURL    string     `json:"payment_link_url,omitempty"`
	ProviderPaymentID string     `json:"provider_payment_id,omitempty"`
	Version           int64      `json:"version"`
	BookingDate       time.Time  `json:"booking_date"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// AmountPaise converts the stored rupee amount to minor units, rounding to the nearest paisa.
// Amounts stored with more than two decimals can round differently than the provider did.
func (b *Booking) AmountPaise() int64 {
	return ToPaise(b.Amount)
}

// IsPaid reports whether the booking already reached the paid state.
func (b *Booking) IsPaid() bool {
	return b.PaymentStatus == PaymentPaid
}

// Summary is the short form returned by the status-check endpoint.
func (b *Booking) Summary() BookingSummary {
	return BookingSummary{ID: b.ID, Status: b.Status, PaymentStatus: b.PaymentStatus}
}

// BookingSummary is the booking shape echoed to polling clients.
type BookingSummary struct {
	ID            int64  `json:"id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

// BookingFilter narrows booking listings.
type BookingFilter struct {
	Status        string
	PaymentStatus string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
}

// ToPaise converts currency units to integer minor units.
func ToPaise(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
