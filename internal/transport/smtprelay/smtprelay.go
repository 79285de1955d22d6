// Package smtprelay implements a Transport that delivers mail through an
// authenticated SMTP relay.
package smtprelay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"time"

	mail "github.com/wneessen/go-mail"

	"github.com/barbaritakodi-cell/sender/internal/email"
	"github.com/barbaritakodi-cell/sender/internal/transport"
)

// dialTimeout bounds one dial-send-quit cycle against a slow relay.
const dialTimeout = 30 * time.Second

// Security selects how the connection to the relay is protected.
type Security string

const (
	// SecurityPlain uses an unencrypted connection.
	SecurityPlain Security = "plain"
	// SecuritySSL uses implicit TLS from the first byte (typically port 465).
	SecuritySSL Security = "ssl"
	// SecurityStartTLS connects in the clear and upgrades via STARTTLS
	// before authenticating (typically port 587).
	SecurityStartTLS Security = "starttls"
)

// Config holds the relay connection settings.
type Config struct {
	Host     string
	Port     int
	Security Security
	Username string
	Password string
}

// Relay sends messages through a configured SMTP relay. Every Send performs
// one full dial, authenticate, transmit, quit cycle, so the connection is
// released on every exit path.
type Relay struct {
	client *mail.Client
}

// New creates a Relay for the given configuration.
func New(cfg Config) (*Relay, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp relay host is required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(dialTimeout),
	}

	switch cfg.Security {
	case SecuritySSL:
		opts = append(opts, mail.WithSSL())
	case SecurityStartTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case SecurityPlain, "":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		return nil, fmt.Errorf("unknown security mode %q", cfg.Security)
	}

	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &Relay{client: client}, nil
}

// Send delivers one message through the relay.
func (r *Relay) Send(ctx context.Context, msg *email.Message) error {
	m, err := buildMsg(msg)
	if err != nil {
		return transport.NewError(transport.KindMalformedMessage, err.Error(), err)
	}

	if err := r.client.DialAndSendWithContext(ctx, m); err != nil {
		return classify(err)
	}
	return nil
}

// Verify dials the relay and authenticates without transmitting any message.
func (r *Relay) Verify(ctx context.Context) error {
	if err := r.client.DialWithContext(ctx); err != nil {
		return classify(err)
	}
	if err := r.client.Close(); err != nil {
		slog.Debug("error closing smtp connection after verify", "error", err)
	}
	return nil
}

// Name returns the transport name.
func (r *Relay) Name() string {
	return "smtp"
}

// buildMsg converts the internal message model into a go-mail message.
func buildMsg(msg *email.Message) (*mail.Msg, error) {
	m := mail.NewMsg()

	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", msg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", msg.To, err)
	}
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("invalid reply-to address %q: %w", msg.ReplyTo, err)
		}
	}
	m.Subject(msg.Subject)

	if msg.HTMLBody != "" {
		m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)
		if msg.TextBody != "" {
			m.AddAlternativeString(mail.TypeTextPlain, msg.TextBody)
		}
	} else {
		m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	}

	for _, att := range msg.Attachments {
		opts := []mail.FileOption{}
		if att.ContentType != "" {
			opts = append(opts, mail.WithFileContentType(mail.ContentType(att.ContentType)))
		}
		if err := m.AttachReader(att.Filename, bytes.NewReader(att.Content), opts...); err != nil {
			return nil, fmt.Errorf("failed to attach %q: %w", att.Filename, err)
		}
	}

	return m, nil
}

// classify maps relay errors onto the shared taxonomy using the SMTP reply
// code when one is available.
func classify(err error) *transport.Error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code == 530 || tpErr.Code == 534 || tpErr.Code == 535:
			return transport.NewError(transport.KindAuthFailed, tpErr.Msg, err)
		case tpErr.Code == 550 || tpErr.Code == 551 || tpErr.Code == 553:
			return transport.NewError(transport.KindRecipientRejected, tpErr.Msg, err)
		case tpErr.Code == 421 || tpErr.Code == 450 || tpErr.Code == 451:
			return transport.NewError(transport.KindNetworkUnavailable, tpErr.Msg, err)
		case tpErr.Code == 452 || tpErr.Code == 552:
			return transport.NewError(transport.KindQuotaExceeded, tpErr.Msg, err)
		case tpErr.Code == 500 || tpErr.Code == 501 || tpErr.Code == 554:
			return transport.NewError(transport.KindMalformedMessage, tpErr.Msg, err)
		default:
			return transport.NewError(transport.KindUnknown, tpErr.Msg, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return transport.NewError(transport.KindNetworkUnavailable, err.Error(), err)
	}

	if msg := strings.ToLower(err.Error()); strings.Contains(msg, "auth") {
		return transport.NewError(transport.KindAuthFailed, err.Error(), err)
	}

	return transport.NewError(transport.KindUnknown, err.Error(), err)
}
