package services

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"travel-backoffice/models"
)

// RenderReceipt creates a one-page PDF payment receipt for a paid booking.
func RenderReceipt(b *models.Booking, currency string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Payment Receipt")
	pdf.Ln(14)

	pdf.SetFont("Arial", "", 12)
	rows := [][2]string{
		{"Booking", fmt.Sprintf("#%d", b.ID)},
		{"Customer", b.CustomerName},
		{"Email", b.CustomerEmail},
		{"Package", b.PackageRef},
		{"Destination", b.Destination},
		{"Travelers", fmt.Sprintf("%d", b.Travelers)},
		{"Amount", fmt.Sprintf("%s %.2f", currency, b.Amount)},
		{"Payment ID", b.ProviderPaymentID},
		{"Payment link", b.PaymentLinkID},
		{"Status", b.PaymentStatus},
		{"Issued", time.Now().UTC().Format("02 Jan 2006 15:04 MST")},
	}
	if b.TravelDate != nil {
		rows = append(rows, [2]string{"Travel date", b.TravelDate.Format("02 Jan 2006")})
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(45, 8, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 12)
		pdf.CellFormat(0, 8, row[1], "", 1, "L", false, 0, "")
	}

	pdf.Ln(10)
	pdf.Cell(40, 10, "Thank you for booking with us.")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("error generating receipt PDF: %w", err)
	}
	return buf.Bytes(), nil
}
