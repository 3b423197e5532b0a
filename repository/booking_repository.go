package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"travel-backoffice/errors"
	"travel-backoffice/models"
)

const bookingColumns = `id, customer_name, customer_email, customer_phone, package_ref, destination,
	travelers, amount, travel_date, status, payment_status, payment_link_id, provider_order_id,
	payment_link_url, provider_payment_id, version, booking_date, created_at, updated_at`

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// BookingRepository handles all booking-related database operations
type BookingRepository struct {
	db *sql.DB
}

// NewBookingRepository creates a new booking repository instance
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var travelDate sql.NullTime
	var linkID, orderID, linkURL, paymentID sql.NullString

	err := row.Scan(
		&b.ID, &b.CustomerName, &b.CustomerEmail, &b.CustomerPhone, &b.PackageRef, &b.Destination,
		&b.Travelers, &b.Amount, &travelDate, &b.Status, &b.PaymentStatus, &linkID, &orderID,
		&linkURL, &paymentID, &b.Version, &b.BookingDate, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if travelDate.Valid {
		t := travelDate.Time
		b.TravelDate = &t
	}
	b.PaymentLinkID = linkID.String
	b.ProviderOrderID = orderID.String
	b.PaymentLinkURL = linkURL.String
	b.ProviderPaymentID = paymentID.String
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]models.Booking, error) {
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts a booking in the Pending/Pending state and fills the store-assigned fields.
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	var travelDate sql.NullTime
	if b.TravelDate != nil {
		travelDate = sql.NullTime{Time: *b.TravelDate, Valid: true}
	}

	query := `
		INSERT INTO bookings (customer_name, customer_email, customer_phone, package_ref, destination,
			travelers, amount, travel_date, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, version, booking_date, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		b.CustomerName, b.CustomerEmail, b.CustomerPhone, b.PackageRef, b.Destination,
		b.Travelers, b.Amount, travelDate, models.BookingPending, models.PaymentPending,
	).Scan(&b.ID, &b.Version, &b.BookingDate, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return errors.E(errors.Internal, "error creating booking", err)
	}

	b.Status = models.BookingPending
	b.PaymentStatus = models.PaymentPending
	return nil
}

// GetByID returns the booking or a NotFound error.
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = $1", id)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("booking %d not found", id))
	}
	if err != nil {
		return nil, errors.E(errors.Internal, "error fetching booking", err)
	}
	return b, nil
}

// FindByPaymentReference returns every booking whose payment-link id or provider order id equals
// ref, or whose stored hosted URL contains it. Rows come back in id order.
func (r *BookingRepository) FindByPaymentReference(ctx context.Context, ref string) ([]models.Booking, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}

	query := "SELECT " + bookingColumns + ` FROM bookings
		WHERE payment_link_id = $1
			OR provider_order_id = $1
			OR payment_link_url LIKE $2 ESCAPE '\'
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, ref, "%"+escapeLike(ref)+"%")
	if err != nil {
		return nil, errors.E(errors.Internal, "error looking up bookings by payment reference", err)
	}
	bookings, err := scanBookings(rows)
	if err != nil {
		return nil, errors.E(errors.Internal, "error looking up bookings by payment reference", err)
	}
	return bookings, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns bookings newest first.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	var conds []string
	var args []interface{}

	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.PaymentStatus != "" {
		add("payment_status = $%d", filter.PaymentStatus)
	}
	if filter.CreatedAfter != nil {
		add("created_at >= $%d", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		add("created_at <= $%d", *filter.CreatedBefore)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := "SELECT " + bookingColumns + " FROM bookings"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.E(errors.Internal, "error listing bookings", err)
	}
	bookings, err := scanBookings(rows)
	if err != nil {
		return nil, errors.E(errors.Internal, "error listing bookings", err)
	}
	return bookings, nil
}

// AttachPaymentLink stores the identifiers of a freshly issued payment link.
func (r *BookingRepository) AttachPaymentLink(ctx context.Context, id int64, linkID, orderID, url string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET payment_link_id = $2, provider_order_id = $3, payment_link_url = $4,
			version = version + 1, updated_at = NOW()
		WHERE id = $1`,
		id, nullString(linkID), nullString(orderID), nullString(url))
	if err != nil {
		return errors.E(errors.Internal, "error attaching payment link", err)
	}
	return requireRow(res, id)
}

// SetRecoveredLink persists a payment-link id found by the recovery search. It never overwrites
// an id that is already recorded.
func (r *BookingRepository) SetRecoveredLink(ctx context.Context, id int64, linkID, orderID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET payment_link_id = $2,
			provider_order_id = COALESCE($3, provider_order_id),
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND (payment_link_id IS NULL OR payment_link_id = '')`,
		id, linkID, nullString(orderID))
	if err != nil {
		return false, errors.E(errors.Internal, "error saving recovered payment link", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.E(errors.Internal, "error saving recovered payment link", err)
	}
	return n > 0, nil
}

// MarkPaid flips the booking to Confirmed/Paid. Only the first caller changes the row; later
// callers get changed=false and the stored payment id is left as is.
func (r *BookingRepository) MarkPaid(ctx context.Context, id int64, paymentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = $2, payment_status = $3,
			provider_payment_id = COALESCE($4, provider_payment_id),
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND payment_status <> $3`,
		id, models.BookingConfirmed, models.PaymentPaid, nullString(paymentID))
	if err != nil {
		return false, errors.E(errors.Internal, "error confirming booking", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.E(errors.Internal, "error confirming booking", err)
	}
	return n > 0, nil
}

// MarkFailed records a failed payment attempt on a booking that is still pending.
func (r *BookingRepository) MarkFailed(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET payment_status = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND payment_status = $3`,
		id, models.PaymentFailed, models.PaymentPending)
	if err != nil {
		return false, errors.E(errors.Internal, "error recording failed payment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.E(errors.Internal, "error recording failed payment", err)
	}
	return n > 0, nil
}

// CountPaidUnconfirmed counts rows breaking the Paid => Confirmed rule. Checked at startup.
func (r *BookingRepository) CountPaidUnconfirmed(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bookings WHERE payment_status = $1 AND status <> $2",
		models.PaymentPaid, models.BookingConfirmed).Scan(&n)
	if err != nil {
		return 0, errors.E(errors.Internal, "error counting bookings", err)
	}
	return n, nil
}

// CreatedBetween lists bookings created in [from, to] in id order, for exports.
func (r *BookingRepository) CreatedBetween(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE created_at BETWEEN $1 AND $2 ORDER BY id",
		from, to)
	if err != nil {
		return nil, errors.E(errors.Internal, "error exporting bookings", err)
	}
	bookings, err := scanBookings(rows)
	if err != nil {
		return nil, errors.E(errors.Internal, "error exporting bookings", err)
	}
	return bookings, nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.E(errors.Internal, "error checking rows affected", err)
	}
	if n == 0 {
		return errors.NewNotFoundError(fmt.Sprintf("booking %d not found", id))
	}
	return nil
}
