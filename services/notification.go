package services

import (
	"context"
	"fmt"
	"html"

	"travel-backoffice/logger"
	"travel-backoffice/models"
)

// Notifier builds and queues customer emails for the payment flow.
type Notifier struct {
	mail     Mailer
	currency string
}

func NewNotifier(mail Mailer, currency string) *Notifier {
	return &Notifier{mail: mail, currency: currency}
}

const emailStyle = `
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; background-color: #f9f9f9; }
        .header { background-color: %s; color: white; padding: 20px; text-align: center; border-radius: 5px; }
        .content { background-color: white; padding: 20px; margin-top: 20px; border-radius: 5px; }
        .booking-info { background-color: #e8f5e9; padding: 15px; margin: 15px 0; border-left: 4px solid #4CAF50; }
        .button { display: inline-block; padding: 10px 20px; background-color: #2196F3; color: white; text-decoration: none; border-radius: 3px; }
        .footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
    </style>`

// SendPaymentLink emails the hosted payment page to the customer.
func (n *Notifier) SendPaymentLink(ctx context.Context, b *models.Booking, linkURL string) error {
	if n == nil || n.mail == nil {
		return nil
	}
	if b.CustomerEmail == "" {
		return fmt.Errorf("customer email is required")
	}

	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>%s
</head>
<body>
    <div class="container">
        <div class="header"><h2>Complete Your Booking</h2></div>
        <div class="content">
            <p>Dear <strong>%s</strong>,</p>
            <p>Thank you for choosing us. Your booking is reserved and awaiting payment.</p>
            <div class="booking-info">
                <p><strong>Booking:</strong> #%d</p>
                <p><strong>Destination:</strong> %s</p>
                <p><strong>Amount:</strong> %s %.2f</p>
            </div>
            <p><a class="button" href="%s">Pay Now</a></p>
            <p>Your booking will be confirmed as soon as the payment is received.</p>
            <div class="footer"><p>This is an automated email. Please do not reply to this address.</p></div>
        </div>
    </div>
</body>
</html>
	`, fmt.Sprintf(emailStyle, "#2196F3"), html.EscapeString(b.CustomerName), b.ID,
		html.EscapeString(b.Destination), n.currency, b.Amount, html.EscapeString(linkURL))

	msg := Email{
		Recipient: b.CustomerEmail,
		Subject:   fmt.Sprintf("Payment link for your booking #%d", b.ID),
		Body:      body,
	}
	if err := n.mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to queue payment link email to %s: %w", b.CustomerEmail, err)
	}
	logger.Info("Payment link email queued for booking %d", b.ID)
	return nil
}

// SendConfirmation emails the booking confirmation with a PDF receipt attached. A receipt
// that fails to render is skipped, the email still goes out.
func (n *Notifier) SendConfirmation(ctx context.Context, b *models.Booking) error {
	if n == nil || n.mail == nil {
		return nil
	}
	if b.CustomerEmail == "" {
		return fmt.Errorf("customer email is required")
	}

	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>%s
</head>
<body>
    <div class="container">
        <div class="header"><h2>Booking Confirmed</h2></div>
        <div class="content">
            <p>Dear <strong>%s</strong>,</p>
            <p>We have received your payment. Your booking is <strong>CONFIRMED</strong>.</p>
            <div class="booking-info">
                <p><strong>Booking:</strong> #%d</p>
                <p><strong>Destination:</strong> %s</p>
                <p><strong>Amount paid:</strong> %s %.2f</p>
                <p><strong>Payment reference:</strong> %s</p>
            </div>
            <p>Your receipt is attached. We look forward to travelling with you.</p>
            <div class="footer"><p>This is an automated email. Please do not reply to this address.</p></div>
        </div>
    </div>
</body>
</html>
	`, fmt.Sprintf(emailStyle, "#4CAF50"), html.EscapeString(b.CustomerName), b.ID,
		html.EscapeString(b.Destination), n.currency, b.Amount, html.EscapeString(b.ProviderPaymentID))

	msg := Email{
		Recipient: b.CustomerEmail,
		Subject:   fmt.Sprintf("Booking #%d confirmed", b.ID),
		Body:      body,
	}
	if receipt, err := RenderReceipt(b, n.currency); err != nil {
		logger.Warn("Receipt for booking %d not attached: %v", b.ID, err)
	} else {
		msg = msg.WithAttachment(fmt.Sprintf("receipt_%d.pdf", b.ID), receipt)
	}

	if err := n.mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to queue confirmation email to %s: %w", b.CustomerEmail, err)
	}
	logger.Info("Confirmation email queued for booking %d", b.ID)
	return nil
}
