package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// sendEmailAPI is the one SES call we make; tests substitute a fake.
type sendEmailAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer sends invitations through Amazon SES v2.
type SESMailer struct {
	client   sendEmailAPI
	from     string
	fromName string
	logger   *slog.Logger
}

// NewSESMailer loads AWS credentials the standard way (env, shared config,
// instance role) for the given region.
func NewSESMailer(ctx context.Context, region, fromEmail, fromName string, logger *slog.Logger) (*SESMailer, error) {
	if fromEmail == "" {
		return nil, fmt.Errorf("notify: SES sender address is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("notify: loading AWS config: %w", err)
	}
	logger.Info("invite e-mail enabled",
		slog.String("transport", "ses"),
		slog.String("region", region),
		slog.String("from", fromEmail),
	)
	return newSESMailer(sesv2.NewFromConfig(cfg), fromEmail, fromName, logger), nil
}

func newSESMailer(client sendEmailAPI, from, fromName string, logger *slog.Logger) *SESMailer {
	return &SESMailer{client: client, from: from, fromName: fromName, logger: logger}
}

func (m *SESMailer) SendInvite(ctx context.Context, inv Invite) error {
	msg, err := render(inv)
	if err != nil {
		return err
	}

	from := m.from
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.from)
	}

	out, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{inv.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: sending invite to %s: %w", inv.To, err)
	}

	m.logger.InfoContext(ctx, "invite e-mail sent",
		slog.String("to", inv.To),
		slog.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}
