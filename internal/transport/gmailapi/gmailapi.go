// Package gmailapi implements a Transport that sends on behalf of a user
// through the Gmail API.
//
// The OAuth consent flow happens out of band: this package only consumes a
// previously obtained authorization (client credentials plus a persisted
// token) and refreshes the access token as needed while sending.
package gmailapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/barbaritakodi-cell/sender/internal/email"
	"github.com/barbaritakodi-cell/sender/internal/transport"
)

// scopes requested from the authorization handle. Send is required for
// dispatch; readonly covers the profile lookup used by Verify.
var scopes = []string{gmail.GmailSendScope, gmail.GmailReadonlyScope}

// Sender delivers messages through the Gmail API users.messages.send
// endpoint using a raw, base64url-encoded RFC 5322 envelope.
type Sender struct {
	service *gmail.Service
}

// New creates a Sender from an authorization handle. Extra client options
// are passed through to the API client, which tests use to point the service
// at a local server.
func New(ctx context.Context, handle oauth2.TokenSource, opts ...option.ClientOption) (*Sender, error) {
	if handle == nil {
		return nil, fmt.Errorf("gmail: authorization handle is required")
	}

	clientOpts := append([]option.ClientOption{option.WithTokenSource(handle)}, opts...)
	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}

	return &Sender{service: svc}, nil
}

// NewFromFiles creates a Sender from an OAuth client credentials JSON file
// and a token file written by a prior consent flow.
func NewFromFiles(ctx context.Context, credentialsPath, tokenPath string) (*Sender, error) {
	handle, err := LoadHandle(ctx, credentialsPath, tokenPath)
	if err != nil {
		return nil, err
	}
	return New(ctx, handle)
}

// LoadHandle builds a self-refreshing authorization handle from the client
// credentials and token files.
func LoadHandle(ctx context.Context, credentialsPath, tokenPath string) (oauth2.TokenSource, error) {
	creds, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to read credentials file: %w", err)
	}

	cfg, err := google.ConfigFromJSON(creds, scopes...)
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to parse credentials: %w", err)
	}

	tokenData, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to read token file: %w", err)
	}

	token, err := parseToken(tokenData)
	if err != nil {
		return nil, err
	}

	return cfg.TokenSource(ctx, token), nil
}

// Send delivers one message via the Gmail API.
func (s *Sender) Send(ctx context.Context, msg *email.Message) error {
	raw, err := email.BuildRaw(msg)
	if err != nil {
		return transport.NewError(transport.KindMalformedMessage, err.Error(), err)
	}

	gmailMsg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}

	sent, err := s.service.Users.Messages.Send("me", gmailMsg).Context(ctx).Do()
	if err != nil {
		return classify(err)
	}

	slog.Debug("gmail message accepted", "message_id", sent.Id)
	return nil
}

// Verify checks the authorization by fetching the user's profile. No message
// is sent.
func (s *Sender) Verify(ctx context.Context) error {
	profile, err := s.service.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return classify(err)
	}

	slog.Info("gmail authorization verified", "address", profile.EmailAddress)
	return nil
}

// Name returns the transport name.
func (s *Sender) Name() string {
	return "gmail"
}

// classify maps Gmail API and token errors onto the shared taxonomy.
// A failed token refresh means the authorization has expired and the user
// must re-consent, which is outside this pipeline.
func classify(err error) *transport.Error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return transport.NewError(transport.KindAuthFailed,
			"authorization expired and could not be refreshed", err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return transport.NewError(transport.KindAuthFailed, apiErr.Message, err)
		case apiErr.Code == http.StatusTooManyRequests:
			return transport.NewError(transport.KindQuotaExceeded, apiErr.Message, err)
		case apiErr.Code == http.StatusForbidden:
			if strings.Contains(strings.ToLower(apiErr.Message), "quota") ||
				strings.Contains(strings.ToLower(apiErr.Message), "limit") {
				return transport.NewError(transport.KindQuotaExceeded, apiErr.Message, err)
			}
			return transport.NewError(transport.KindAuthFailed, apiErr.Message, err)
		case apiErr.Code == http.StatusBadRequest:
			return transport.NewError(transport.KindMalformedMessage, apiErr.Message, err)
		case apiErr.Code >= 500:
			return transport.NewError(transport.KindNetworkUnavailable, apiErr.Message, err)
		default:
			return transport.NewError(transport.KindUnknown, apiErr.Message, err)
		}
	}

	return transport.NewError(transport.KindUnknown, err.Error(), err)
}

// parseToken decodes a persisted oauth2 token.
func parseToken(data []byte) (*oauth2.Token, error) {
	token := &oauth2.Token{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, fmt.Errorf("gmail: failed to parse token file: %w", err)
	}
	if token.RefreshToken == "" && token.AccessToken == "" {
		return nil, fmt.Errorf("gmail: token file contains no usable token")
	}
	return token, nil
}
