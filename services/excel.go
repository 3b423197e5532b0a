package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"travel-backoffice/logger"
	"travel-backoffice/models"
)

const exportSheet = "Bookings"

var exportHeaders = []string{
	"ID", "Customer", "Email", "Phone", "Package", "Destination", "Travelers", "Amount",
	"Travel Date", "Status", "Payment Status", "Payment Link ID", "Provider Order ID",
	"Payment Link URL", "Provider Payment ID", "Created At", "Updated At",
}

// WriteBookingsExcel renders bookings as a single-sheet workbook for reconciliation.
func WriteBookingsExcel(bookings []models.Booking) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	if err := f.SetCellStyle(exportSheet, "A1", last, bold); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for r, b := range bookings {
		travelDate := ""
		if b.TravelDate != nil {
			travelDate = b.TravelDate.Format("2006-01-02")
		}
		values := []interface{}{
			b.ID, b.CustomerName, b.CustomerEmail, b.CustomerPhone, b.PackageRef, b.Destination,
			b.Travelers, b.Amount, travelDate, b.Status, b.PaymentStatus, b.PaymentLinkID,
			b.ProviderOrderID, b.PaymentLinkURL, b.ProviderPaymentID,
			b.CreatedAt.UTC().Format(time.RFC3339), b.UpdatedAt.UTC().Format(time.RFC3339),
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", r+2, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseBookingsExcel reads the first sheet of an uploaded workbook. Columns are found by
// header name, so their order does not matter. Rows without a name or email are skipped.
func ParseBookingsExcel(filePath string) ([]CreateBookingRequest, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()
	return parseBookingsWorkbook(f)
}

func parseBookingsWorkbook(f *excelize.File) ([]CreateBookingRequest, error) {
	sheetList := f.GetSheetList()
	if len(sheetList) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}
	sheetName := sheetList[0]

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data in sheet")
	}

	cols := detectColumns(rows[0])
	if cols["name"] < 0 || cols["email"] < 0 || cols["amount"] < 0 {
		return nil, fmt.Errorf("sheet must have name, email and amount columns")
	}
	logger.Debug("Parsing Excel sheet %s, detected columns: %v", sheetName, cols)

	var bookings []CreateBookingRequest
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) == 0 {
			continue
		}

		req := CreateBookingRequest{
			CustomerName:  extractField(row, cols["name"]),
			CustomerEmail: extractField(row, cols["email"]),
			CustomerPhone: extractField(row, cols["phone"]),
			PackageRef:    extractField(row, cols["package"]),
			Destination:   extractField(row, cols["destination"]),
			TravelDate:    extractField(row, cols["travel_date"]),
		}
		if req.CustomerName == "" || req.CustomerEmail == "" {
			logger.Debug("Row %d: missing required fields, skipping", i+1)
			continue
		}
		if s := extractField(row, cols["travelers"]); s != "" {
			req.Travelers, _ = strconv.Atoi(s)
		}
		if s := extractField(row, cols["amount"]); s != "" {
			req.Amount, _ = strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		}
		bookings = append(bookings, req)
	}
	return bookings, nil
}

// detectColumns finds column indices by matching header names
func detectColumns(headers []string) map[string]int {
	indices := map[string]int{
		"name":        -1,
		"email":       -1,
		"phone":       -1,
		"package":     -1,
		"destination": -1,
		"travelers":   -1,
		"amount":      -1,
		"travel_date": -1,
	}

	for i, header := range headers {
		lower := strings.ToLower(strings.TrimSpace(header))

		switch lower {
		case "name", "customer", "customer name", "full name":
			indices["name"] = i
		case "email", "e-mail", "email address":
			indices["email"] = i
		case "phone", "mobile", "phone number", "contact number":
			indices["phone"] = i
		case "package", "package ref", "package_ref":
			indices["package"] = i
		case "destination":
			indices["destination"] = i
		case "travelers", "travellers", "pax":
			indices["travelers"] = i
		case "amount", "price", "total":
			indices["amount"] = i
		case "travel date", "travel_date":
			indices["travel_date"] = i
		}
	}
	return indices
}

// extractField safely extracts a field from a row
func extractField(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}
