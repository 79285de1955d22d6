// Package ses implements a Transport that delivers mail via AWS SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/barbaritakodi-cell/sender/internal/email"
	"github.com/barbaritakodi-cell/sender/internal/transport"
)

// Config holds the settings for creating a SES transport.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// API is the subset of the SES v2 client used by this transport. Tests
// substitute a mock implementation.
type API interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// Sender delivers messages through the SES v2 API.
type Sender struct {
	client API
}

// New creates a Sender with the given configuration.
func New(ctx context.Context, cfg Config) (*Sender, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Sender{client: sesv2.NewFromConfig(awsCfg)}, nil
}

// NewWithClient creates a Sender with a custom client, used for testing.
func NewWithClient(client API) *Sender {
	return &Sender{client: client}
}

// Send delivers one message via SES. Messages with attachments go out as a
// raw MIME message; plain messages use the simple email format.
func (s *Sender) Send(ctx context.Context, msg *email.Message) error {
	var input *sesv2.SendEmailInput

	if len(msg.Attachments) > 0 {
		raw, err := email.BuildRaw(msg)
		if err != nil {
			return transport.NewError(transport.KindMalformedMessage, err.Error(), err)
		}
		input = &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(msg.From),
			Destination: &types.Destination{
				ToAddresses: []string{msg.To},
			},
			Content: &types.EmailContent{
				Raw: &types.RawMessage{Data: raw},
			},
		}
	} else {
		input = buildSimpleInput(msg)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return classify(err)
	}

	slog.Debug("ses message accepted", "message_id", aws.ToString(out.MessageId))
	return nil
}

// Verify checks the account without sending: credentials must work and
// sending must be enabled for the account.
func (s *Sender) Verify(ctx context.Context) error {
	account, err := s.client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return classify(err)
	}
	if !account.SendingEnabled {
		return transport.NewError(transport.KindQuotaExceeded,
			"sending is disabled for this SES account", nil)
	}
	return nil
}

// Name returns the transport name.
func (s *Sender) Name() string {
	return "ses"
}

// buildSimpleInput creates a SendEmailInput for messages without attachments.
func buildSimpleInput(msg *email.Message) *sesv2.SendEmailInput {
	body := &types.Body{}

	if msg.HTMLBody != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.TextBody != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: body,
			},
		},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	return input
}

// classify maps SES API errors onto the shared taxonomy.
func classify(err error) *transport.Error {
	var rejected *types.MessageRejected
	if errors.As(err, &rejected) {
		return transport.NewError(transport.KindRecipientRejected, aws.ToString(rejected.Message), err)
	}

	var tooMany *types.TooManyRequestsException
	if errors.As(err, &tooMany) {
		return transport.NewError(transport.KindQuotaExceeded, aws.ToString(tooMany.Message), err)
	}

	var limit *types.LimitExceededException
	if errors.As(err, &limit) {
		return transport.NewError(transport.KindQuotaExceeded, aws.ToString(limit.Message), err)
	}

	var suspended *types.AccountSuspendedException
	if errors.As(err, &suspended) {
		return transport.NewError(transport.KindAuthFailed, aws.ToString(suspended.Message), err)
	}

	var paused *types.SendingPausedException
	if errors.As(err, &paused) {
		return transport.NewError(transport.KindQuotaExceeded, aws.ToString(paused.Message), err)
	}

	var bad *types.BadRequestException
	if errors.As(err, &bad) {
		return transport.NewError(transport.KindMalformedMessage, aws.ToString(bad.Message), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return transport.NewError(transport.KindNetworkUnavailable, err.Error(), err)
	}

	return transport.NewError(transport.KindUnknown, err.Error(), err)
}
