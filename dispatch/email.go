package dispatch

import (
	"context"
	"fmt"
	"os"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// SendgridSender sends mail through the SendGrid API. The zero value
// reads SENDGRID_API_KEY at send time so a missing key degrades to
// skipped deliveries instead of a boot failure.
type SendgridSender struct {
	FromName  string
	FromEmail string
}

// NewSendgridSender returns a sender with the MitraHelp from-address.
func NewSendgridSender() *SendgridSender {
	return &SendgridSender{
		FromName:  "MitraHelp",
		FromEmail: "no-reply@mitrahelp.org",
	}
}

// Send implements EmailSender. The request is cancelled with ctx, so the
// fanout deadline bounds delivery attempts against a slow SendGrid.
func (s *SendgridSender) Send(ctx context.Context, toName, toEmail, subject, plainText, htmlContent string) error {
	apiKey := os.Getenv("SENDGRID_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY not set")
	}

	from := mail.NewEmail(s.FromName, s.FromEmail)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainText, htmlContent)
	client := sendgrid.NewSendClient(apiKey)
	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 300 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", toEmail)
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}
	return nil
}
