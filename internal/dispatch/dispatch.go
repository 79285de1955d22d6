// Package dispatch runs a bulk send: one rendered message per recipient,
// strictly in input order, through a single transport.
package dispatch

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/barbaritakodi-cell/sender/internal/contacts"
	"github.com/barbaritakodi-cell/sender/internal/email"
	"github.com/barbaritakodi-cell/sender/internal/template"
	"github.com/barbaritakodi-cell/sender/internal/transport"
)

// Options configures one dispatch run.
type Options struct {
	// From is the fully formatted sender ("Name <address>" or bare address).
	From string
	// ReplyTo, when set, is stamped on every outgoing message.
	ReplyTo string
	// Delay is the pause between consecutive send attempts. Zero means no
	// pause. The delay is a deliberate throttle against remote rate limits.
	Delay time.Duration
	// Extra carries caller-provided template variables (sender_name,
	// sender_email). Recipient fields win on key collisions.
	Extra map[string]string
	// OnProgress, when set, is called after every attempt with the result
	// and the running counts. It must not block for long; the loop waits
	// for it.
	OnProgress func(result Result, done, total int)
}

// Result records the outcome of one recipient's send attempt.
type Result struct {
	Recipient string
	Timestamp time.Time
	// Err is nil on success; otherwise Reason carries the human-readable
	// failure description derived from it.
	Err    error
	Reason string
	// Missing lists template placeholders that had no value for this
	// recipient. Informational only.
	Missing []string
}

// Succeeded reports whether the attempt succeeded.
func (r Result) Succeeded() bool {
	return r.Err == nil
}

// Report aggregates a whole run. Every attempted recipient appears exactly
// once in Results, in input order. An interrupted run returns the partial
// report for the recipients attempted before the interrupt.
type Report struct {
	Total     int
	Succeeded int
	Failed    int
	Results   []Result
}

// Run sends one message per recipient. A single recipient's failure never
// aborts the run; the error is captured in that recipient's Result and the
// loop moves on. Cancelling ctx stops the run before the next attempt.
func Run(ctx context.Context, recipients []contacts.Recipient, tmpl *template.Template, tr transport.Transport, opts Options) *Report {
	report := &Report{}

	slog.Info("starting dispatch run",
		"recipients", len(recipients),
		"transport", tr.Name(),
		"delay", opts.Delay,
	)

	for i, rec := range recipients {
		if ctx.Err() != nil {
			slog.Warn("dispatch run interrupted",
				"attempted", report.Total,
				"remaining", len(recipients)-i,
			)
			break
		}

		result := attempt(ctx, rec, tmpl, tr, opts)

		report.Total++
		if result.Succeeded() {
			report.Succeeded++
			slog.Info("message sent", "recipient", result.Recipient)
		} else {
			report.Failed++
			slog.Warn("message failed",
				"recipient", result.Recipient,
				"reason", result.Reason,
			)
		}
		report.Results = append(report.Results, result)

		if opts.OnProgress != nil {
			opts.OnProgress(result, report.Total, len(recipients))
		}

		if opts.Delay > 0 && i < len(recipients)-1 {
			if err := sleepWithContext(ctx, opts.Delay); err != nil {
				slog.Warn("dispatch run interrupted during delay",
					"attempted", report.Total,
				)
				break
			}
		}
	}

	slog.Info("dispatch run finished",
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
	)

	return report
}

// attempt renders and sends one message, capturing the outcome.
func attempt(ctx context.Context, rec contacts.Recipient, tmpl *template.Template, tr transport.Transport, opts Options) Result {
	rendered := tmpl.Render(rec, opts.Extra)
	if len(rendered.Missing) > 0 {
		slog.Debug("template fields missing for recipient",
			"recipient", rec.Email,
			"missing", rendered.Missing,
		)
	}

	msg := &email.Message{
		From:        opts.From,
		To:          rec.Email,
		ReplyTo:     opts.ReplyTo,
		Subject:     rendered.Subject,
		Attachments: tmpl.Attachments,
	}
	if tmpl.HTML {
		msg.HTMLBody = rendered.Body
	} else {
		msg.TextBody = rendered.Body
	}

	result := Result{
		Recipient: rec.Email,
		Missing:   rendered.Missing,
	}

	err := tr.Send(ctx, msg)
	result.Timestamp = time.Now()
	if err != nil {
		result.Err = err
		result.Reason = err.Error()
	}

	return result
}

// WriteCSV exports the per-recipient results in the order they were
// attempted, one row per recipient.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"email", "status", "timestamp", "error"}); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}

	for _, result := range r.Results {
		status := "sent"
		if !result.Succeeded() {
			status = "failed"
		}
		row := []string{
			result.Recipient,
			status,
			result.Timestamp.Format(time.RFC3339),
			result.Reason,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// sleepWithContext waits for the specified duration or until the context is
// cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
