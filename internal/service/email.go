package service

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/repository"
)

type emailService struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewEmailService(apiKey, fromEmail, fromName string) EmailService {
	return &emailService{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(fromName, fromEmail),
	}
}

func (s *emailService) SendConfirmation(ctx context.Context, customer *domain.Customer, r *domain.Reservation, c *domain.Contract) error {
	message := confirmationMessage(s.from, customer, r, c)

	logger.ExternalServiceCall("sendgrid", "SendConfirmation", "reservationID", r.ID)
	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		logger.ExternalServiceResult("sendgrid", "SendConfirmation", err, "reservationID", r.ID)
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
		logger.ExternalServiceResult("sendgrid", "SendConfirmation", err, "reservationID", r.ID)
		return err
	}
	logger.ExternalServiceResult("sendgrid", "SendConfirmation", nil, "reservationID", r.ID, "status", response.StatusCode)
	return nil
}

func confirmationMessage(from *mail.Email, customer *domain.Customer, r *domain.Reservation, c *domain.Contract) *mail.SGMailV3 {
	subject := fmt.Sprintf("Reservation %s confirmed", r.ID)
	plainText := fmt.Sprintf("Hello %s,\n\nYour payment was received and vehicle %s is waiting at %s on %s.\nTotal charged: %s.\n",
		customer.Name, r.VehicleInstanceID, r.StationID, r.PickupAt.Format("2006-01-02 15:04 MST"), formatCents(r.Cost.TotalCents))
	htmlContent := fmt.Sprintf(`<p>Hello %s,</p><p>Your payment was received and vehicle <strong>%s</strong> is waiting at %s on %s.</p><p>Total charged: %s.</p>`,
		customer.Name, r.VehicleInstanceID, r.StationID, r.PickupAt.Format("2006-01-02 15:04 MST"), formatCents(r.Cost.TotalCents))
	if c != nil {
		plainText += fmt.Sprintf("\nYour rental contract: %s\n", c.DocumentURL)
		htmlContent += fmt.Sprintf(`<p><a href="%s">Download your rental contract</a></p>`, c.DocumentURL)
	}
	return mail.NewSingleEmail(from, subject, mail.NewEmail(customer.Name, customer.Email), plainText, htmlContent)
}

// emailSink mails the customer when a reservation is confirmed and ignores
// every other event.
type emailSink struct {
	customers repository.CustomerRepository
	emailSvc  EmailService
}

func NewEmailSink(customers repository.CustomerRepository, emailSvc EmailService) EventSink {
	return &emailSink{customers: customers, emailSvc: emailSvc}
}

func (s *emailSink) Name() string { return "email" }

func (s *emailSink) Publish(ctx context.Context, event domain.ReservationEvent) error {
	if event.Type != domain.EventReservationConfirmed {
		return nil
	}
	customer, err := s.customers.GetByID(ctx, event.Reservation.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to look up customer: %w", err)
	}
	if customer.Email == "" {
		return nil
	}
	return s.emailSvc.SendConfirmation(ctx, customer, event.Reservation, event.Contract)
}
