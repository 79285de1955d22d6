// Package dryrun implements a Transport that prints messages instead of
// sending them. It backs the -dry-run flag and is handy in tests.
package dryrun

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/barbaritakodi-cell/sender/internal/email"
)

// Transport prints every message to a writer in a human-readable form and
// always reports success.
type Transport struct {
	writer io.Writer
}

// New creates a Transport that writes to os.Stdout.
func New() *Transport {
	return &Transport{writer: os.Stdout}
}

// NewWithWriter creates a Transport that writes to the given writer.
func NewWithWriter(w io.Writer) *Transport {
	return &Transport{writer: w}
}

// Send prints the message. It always returns nil.
func (t *Transport) Send(_ context.Context, msg *email.Message) error {
	var b strings.Builder

	b.WriteString("========================================\n")
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "To: %s\n", msg.To)
	if msg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\n", msg.ReplyTo)
	}
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	b.WriteString("Body:\n")

	body := msg.TextBody
	if body == "" {
		body = msg.HTMLBody
	}
	b.WriteString(body + "\n")

	if len(msg.Attachments) > 0 {
		names := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			names = append(names, fmt.Sprintf("%s (%s)", att.Filename, formatSize(len(att.Content))))
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(names, ", "))
	}

	b.WriteString("========================================\n")

	// A failed write to the report stream should not fail the run
	fmt.Fprint(t.writer, b.String())
	return nil
}

// Verify always succeeds; there is nothing to reach.
func (t *Transport) Verify(_ context.Context) error {
	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "dry-run"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
