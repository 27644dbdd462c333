// Package mailer sends operator alert emails via SESv2.
package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Sender delivers alert emails to operators.
type Sender interface {
	SendAlert(ctx context.Context, to []string, subject, body string) error
}

// SESAPI abstracts SESv2 send operations for dependency inversion.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends alerts from a fixed verified address.
type SESSender struct {
	client SESAPI
	from   string
}

// NewSESSender creates a new SESSender.
func NewSESSender(client SESAPI, from string) *SESSender {
	return &SESSender{client: client, from: from}
}

// SendAlert sends a plain-text alert to the given recipients. A call with no
// recipients is a no-op so callers need not guard unconfigured deployments.
func (s *SESSender) SendAlert(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &sestypes.Destination{
			ToAddresses: to,
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(subject)},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}
