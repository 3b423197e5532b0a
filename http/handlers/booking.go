package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"travel-backoffice/errors"
	resp "travel-backoffice/http/response"
	"travel-backoffice/logger"
	"travel-backoffice/models"
	"travel-backoffice/services"
	"travel-backoffice/utils"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxUploadBytes   = 10 << 20
	defaultExportAge = 30 * 24 * time.Hour
)

// BookingManager is satisfied by *services.BookingService.
type BookingManager interface {
	Create(ctx context.Context, req services.CreateBookingRequest) (*models.Booking, error)
	Get(ctx context.Context, id int64) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	Export(ctx context.Context, from, to time.Time) ([]byte, error)
	Import(ctx context.Context, rows []services.CreateBookingRequest) services.ImportResult
}

// BookingHandler serves checkout intake and the admin booking views.
type BookingHandler struct {
	bookings  BookingManager
	uploadDir string
}

// NewBookingHandler stores uploaded workbooks under uploadDir while they are parsed.
func NewBookingHandler(bookings BookingManager, uploadDir string) *BookingHandler {
	return &BookingHandler{bookings: bookings, uploadDir: uploadDir}
}

// Bookings dispatches POST (create) and GET (list) on /bookings.
func (h *BookingHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.CreateBooking(w, r)
	case http.MethodGet:
		h.ListBookings(w, r)
	default:
		resp.ErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// CreateBooking stores a new pending booking.
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req services.CreateBookingRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		resp.Error(w, err)
		return
	}

	b, err := h.bookings.Create(r.Context(), req)
	if err != nil {
		resp.Error(w, err)
		return
	}
	resp.SuccessResponse(w, http.StatusCreated, "Booking created", b)
}

// ListBookings returns bookings newest first.
// GET /bookings?status=&payment_status=&created_after=&created_before=&limit=
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	times, err := utils.ParseTimeFilters(r, "created_after", "created_before")
	if err != nil {
		resp.Error(w, err)
		return
	}

	limit := utils.ParseLimit(r, defaultListLimit)
	if limit > maxListLimit {
		limit = maxListLimit
	}

	q := r.URL.Query()
	bookings, err := h.bookings.List(r.Context(), models.BookingFilter{
		Status:        q.Get("status"),
		PaymentStatus: q.Get("payment_status"),
		CreatedAfter:  times.CreatedAfter,
		CreatedBefore: times.CreatedBefore,
		Limit:         limit,
	})
	if err != nil {
		resp.Error(w, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}

	resp.SuccessResponse(w, http.StatusOK, "Bookings retrieved", map[string]interface{}{
		"count":    len(bookings),
		"bookings": bookings,
	})
}

// GetBooking returns one booking.
// GET /booking?id=
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		resp.ErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, err := utils.ParseIDParam(r, "id")
	if err != nil {
		resp.Error(w, err)
		return
	}

	b, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		resp.Error(w, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "", b)
}

// ExportBookings streams an xlsx of bookings created in the window, the last 30 days by default.
// GET /bookings/export?from=&to=
func (h *BookingHandler) ExportBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		resp.ErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	times, err := utils.ParseTimeFilters(r, "from", "to")
	if err != nil {
		resp.Error(w, err)
		return
	}
	to := time.Now().UTC()
	if times.CreatedBefore != nil {
		to = *times.CreatedBefore
	}
	from := to.Add(-defaultExportAge)
	if times.CreatedAfter != nil {
		from = *times.CreatedAfter
	}

	data, err := h.bookings.Export(r.Context(), from, to)
	if err != nil {
		resp.Error(w, err)
		return
	}

	filename := fmt.Sprintf("bookings_%s_%s.xlsx", from.Format("20060102"), to.Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Error("Error writing export: %v", err)
	}
}

// ImportBookings handles bulk booking upload via Excel file
// POST /bookings/import (multipart field "file")
func (h *BookingHandler) ImportBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		resp.ErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		logger.Warn("Error getting form file: %v", err)
		resp.ErrorResponse(w, http.StatusBadRequest, "Invalid file")
		return
	}
	defer file.Close()

	logger.Info("Processing booking upload: %s", header.Filename)

	tempFile, err := os.CreateTemp(h.uploadDir, "bookings_*.xlsx")
	if err != nil {
		logger.Error("Error creating temp file: %v", err)
		resp.ErrorResponse(w, http.StatusInternalServerError, "Error processing file")
		return
	}
	tempFilePath := tempFile.Name()
	defer func() {
		tempFile.Close()
		os.Remove(tempFilePath)
	}()

	if _, err = io.Copy(tempFile, file); err != nil {
		logger.Error("Error copying file: %v", err)
		resp.ErrorResponse(w, http.StatusInternalServerError, "Error saving file")
		return
	}
	if err := tempFile.Close(); err != nil {
		logger.Warn("Error closing temp file: %v", err)
	}

	rows, err := services.ParseBookingsExcel(tempFilePath)
	if err != nil {
		logger.Warn("Error parsing Excel: %v", err)
		resp.Error(w, errors.E(errors.Invalid, "Error parsing Excel: "+err.Error(), err))
		return
	}

	result := h.bookings.Import(r.Context(), rows)
	resp.SuccessResponse(w, http.StatusOK, fmt.Sprintf("Successfully uploaded %d bookings", result.SuccessCount), result)
}
