package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
)

// SESSender implements Sender on AWS SES v2.
type SESSender struct {
	client   *sesv2.Client
	fromName string
}

// NewSESSender creates an SES sender. fromName is the display name
// prepended to the from address.
func NewSESSender(cfg aws.Config, fromName string) *SESSender {
	return &SESSender{client: sesv2.NewFromConfig(cfg), fromName: fromName}
}

// Send implements Sender. The HTML body is required; the text body is
// attached as the plain alternate when present.
func (s *SESSender) Send(ctx context.Context, from, to, subject, htmlBody, textBody string) (*Result, error) {
	fromAddr := from
	if s.fromName != "" {
		fromAddr = fmt.Sprintf("%s <%s>", s.fromName, from)
	}

	body := &types.Body{
		Html: &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
	}
	if textBody != "" {
		body.Text = &types.Content{Data: aws.String(textBody), Charset: aws.String("UTF-8")}
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddr),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	})
	if err != nil {
		if isRecipientError(err) {
			return &Result{Status: StatusRejected}, fmt.Errorf("%w: %v", ErrPermanentRecipient, err)
		}
		return nil, fmt.Errorf("sending to %s: %w", logger.RedactEmail(to), err)
	}

	logger.Debug("email: accepted", "recipient", to, "delivery_id", aws.ToString(out.MessageId))
	return &Result{DeliveryID: aws.ToString(out.MessageId), Status: StatusQueued}, nil
}

func isRecipientError(err error) bool {
	var bad *types.BadRequestException
	if errors.As(err, &bad) {
		msg := strings.ToLower(bad.ErrorMessage())
		return strings.Contains(msg, "address") || strings.Contains(msg, "suppress")
	}
	return false
}

// VerifyIdentity checks at startup that the sending identity is
// verified with SES. An unverified sender is a configuration error, not
// a per-message one.
func VerifyIdentity(ctx context.Context, cfg aws.Config, from string) error {
	client := sesv2.NewFromConfig(cfg)
	identity := from
	if at := strings.LastIndex(from, "@"); at >= 0 {
		// Domain-level verification also covers the address.
		out, err := client.GetEmailIdentity(ctx, &sesv2.GetEmailIdentityInput{
			EmailIdentity: aws.String(from[at+1:]),
		})
		if err == nil && out.VerifiedForSendingStatus {
			return nil
		}
	}

	out, err := client.GetEmailIdentity(ctx, &sesv2.GetEmailIdentityInput{
		EmailIdentity: aws.String(identity),
	})
	if err != nil {
		return fmt.Errorf("looking up sender identity %s: %w", logger.RedactEmail(from), err)
	}
	if !out.VerifiedForSendingStatus {
		return fmt.Errorf("sender identity %s is not verified", logger.RedactEmail(from))
	}
	return nil
}
