package smtprelay

import (
	"errors"
	"net"
	"net/textproto"
	"strings"
	"testing"

	"github.com/barbaritakodi-cell/sender/internal/email"
	"github.com/barbaritakodi-cell/sender/internal/transport"
)

func TestNew_RequiresHost(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Port: 587}); err == nil {
		t.Fatal("expected error for missing host")
	}
}

func TestNew_RejectsUnknownSecurityMode(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Host: "smtp.example.com", Port: 587, Security: "tlsv9"}); err == nil {
		t.Fatal("expected error for unknown security mode")
	}
}

func TestNew_AcceptsKnownSecurityModes(t *testing.T) {
	t.Parallel()

	for _, mode := range []Security{SecurityPlain, SecuritySSL, SecurityStartTLS, ""} {
		if _, err := New(Config{Host: "smtp.example.com", Port: 587, Security: mode}); err != nil {
			t.Errorf("mode %q: unexpected error: %v", mode, err)
		}
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	r, err := New(Config{Host: "smtp.example.com", Port: 587})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Name() != "smtp" {
		t.Errorf("Name: got %q, want %q", r.Name(), "smtp")
	}
}

func TestBuildMsg(t *testing.T) {
	t.Parallel()

	m, err := buildMsg(&email.Message{
		From:     "Jane <jane@corp.io>",
		To:       "bob@x.com",
		ReplyTo:  "replies@corp.io",
		Subject:  "Hello",
		TextBody: "plain",
		HTMLBody: "<p>html</p>",
		Attachments: []email.Attachment{
			{Filename: "a.txt", ContentType: "text/plain", Content: []byte("hello")},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf strings.Builder
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("failed to serialize message: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"jane@corp.io",
		"bob@x.com",
		"Subject: Hello",
		"<p>html</p>",
		"a.txt",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("serialized message missing %q", want)
		}
	}
}

func TestBuildMsg_InvalidAddresses(t *testing.T) {
	t.Parallel()

	if _, err := buildMsg(&email.Message{From: "not an address", To: "bob@x.com"}); err == nil {
		t.Error("expected error for invalid sender")
	}
	if _, err := buildMsg(&email.Message{From: "jane@corp.io", To: "not an address"}); err == nil {
		t.Error("expected error for invalid recipient")
	}
}

func TestClassify_SMTPCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code int
		want transport.Kind
	}{
		{535, transport.KindAuthFailed},
		{530, transport.KindAuthFailed},
		{550, transport.KindRecipientRejected},
		{553, transport.KindRecipientRejected},
		{421, transport.KindNetworkUnavailable},
		{451, transport.KindNetworkUnavailable},
		{452, transport.KindQuotaExceeded},
		{552, transport.KindQuotaExceeded},
		{501, transport.KindMalformedMessage},
		{554, transport.KindMalformedMessage},
		{599, transport.KindUnknown},
	}

	for _, tc := range cases {
		err := classify(&textproto.Error{Code: tc.code, Msg: "server says no"})
		if err.Kind != tc.want {
			t.Errorf("code %d: got %q, want %q", tc.code, err.Kind, tc.want)
		}
	}
}

func TestClassify_NetworkError(t *testing.T) {
	t.Parallel()

	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	if got := classify(netErr); got.Kind != transport.KindNetworkUnavailable {
		t.Errorf("kind: got %q, want %q", got.Kind, transport.KindNetworkUnavailable)
	}

	timeoutErr := &timeoutError{}
	if got := classify(timeoutErr); got.Kind != transport.KindNetworkUnavailable {
		t.Errorf("kind: got %q, want %q", got.Kind, transport.KindNetworkUnavailable)
	}
}

func TestClassify_AuthHeuristic(t *testing.T) {
	t.Parallel()

	got := classify(errors.New("smtp: server requires AUTH before MAIL FROM"))
	if got.Kind != transport.KindAuthFailed {
		t.Errorf("kind: got %q, want %q", got.Kind, transport.KindAuthFailed)
	}
}

func TestClassify_WrappedTextprotoError(t *testing.T) {
	t.Parallel()

	wrapped := &wrapError{inner: &textproto.Error{Code: 550, Msg: "no such user"}}
	if got := classify(wrapped); got.Kind != transport.KindRecipientRejected {
		t.Errorf("kind: got %q, want %q", got.Kind, transport.KindRecipientRejected)
	}
}

// timeoutError implements net.Error.
type timeoutError struct{}

func (*timeoutError) Error() string   { return "i/o timeout" }
func (*timeoutError) Timeout() bool   { return true }
func (*timeoutError) Temporary() bool { return true }

var _ net.Error = (*timeoutError)(nil)

// wrapError wraps another error the way go-mail's send errors do.
type wrapError struct {
	inner error
}

func (w *wrapError) Error() string { return "send failed: " + w.inner.Error() }
func (w *wrapError) Unwrap() error { return w.inner }

var _ interface{ Unwrap() error } = (*wrapError)(nil)
