// Package main is the entry point for the bulk sender CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/barbaritakodi-cell/sender/internal/config"
	"github.com/barbaritakodi-cell/sender/internal/contacts"
	"github.com/barbaritakodi-cell/sender/internal/dispatch"
	"github.com/barbaritakodi-cell/sender/internal/email"
	"github.com/barbaritakodi-cell/sender/internal/template"
	"github.com/barbaritakodi-cell/sender/internal/transport"
	"github.com/barbaritakodi-cell/sender/internal/transport/dryrun"
	"github.com/barbaritakodi-cell/sender/internal/transport/gmailapi"
	"github.com/barbaritakodi-cell/sender/internal/transport/ses"
	"github.com/barbaritakodi-cell/sender/internal/transport/smtprelay"
)

// stringList collects repeated flag values.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var attachPaths stringList

	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	contactsPath := flag.String("contacts", "", "contact list file (.csv, .xlsx or .txt)")
	subject := flag.String("subject", "", "subject template, may contain {{placeholders}}")
	bodyPath := flag.String("body", "", "body template file, may contain {{placeholders}}")
	emlPath := flag.String("eml", "", "use an exported .eml message as the template instead of -subject/-body")
	delimiter := flag.String("delimiter", "", "force a single delimiter for .txt contact lists (',', ';' or tab)")
	delay := flag.Float64("delay", -1, "seconds to pause between sends (overrides config)")
	dryRun := flag.Bool("dry-run", false, "print messages instead of sending them")
	verify := flag.Bool("verify", false, "test transport credentials and reachability, then exit")
	reportPath := flag.String("report", "", "write the per-recipient send report as CSV to this file")
	flag.Var(&attachPaths, "attach", "attachment file, repeatable")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging.Level)

	tr, sender := selectTransport(cfg, *dryRun)

	if *verify {
		if err := tr.Verify(context.Background()); err != nil {
			slog.Error("transport verification failed", "transport", tr.Name(), "error", err)
			os.Exit(1)
		}
		slog.Info("transport verified", "transport", tr.Name())
		return
	}

	if *contactsPath == "" {
		slog.Error("a contact list is required, pass -contacts")
		os.Exit(1)
	}

	list, err := parseContacts(*contactsPath, *delimiter)
	if err != nil {
		slog.Error("failed to parse contact list", "file", *contactsPath, "error", err)
		os.Exit(1)
	}
	if len(list.Recipients) == 0 {
		slog.Error("contact list contains no valid recipients",
			"file", *contactsPath,
			"invalid_rows", list.Invalid,
		)
		os.Exit(1)
	}
	if list.Invalid > 0 {
		slog.Warn("some rows were excluded for invalid or empty email addresses",
			"excluded", list.Invalid,
		)
	}

	tmpl, err := buildTemplate(*subject, *bodyPath, *emlPath, attachPaths, cfg.Send.HTML)
	if err != nil {
		slog.Error("failed to build message template", "error", err)
		os.Exit(1)
	}

	runDelay := time.Duration(cfg.Send.DelaySeconds * float64(time.Second))
	if *delay >= 0 {
		runDelay = time.Duration(*delay * float64(time.Second))
	}

	from := sender
	if cfg.Send.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.Send.SenderName, sender)
	}

	slog.Info("starting bulk send",
		"recipients", len(list.Recipients),
		"transport", tr.Name(),
		"from", from,
		"delay", runDelay,
	)

	// A SIGINT/SIGTERM cancels the run before the next recipient; the
	// partial report is still written.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, stopping after current recipient", "signal", sig)
		cancel()
	}()

	report := dispatch.Run(ctx, list.Recipients, tmpl, tr, dispatch.Options{
		From:    from,
		ReplyTo: cfg.Send.ReplyTo,
		Delay:   runDelay,
		Extra: map[string]string{
			"sender_name":  cfg.Send.SenderName,
			"sender_email": sender,
		},
	})

	fmt.Printf("sent %d/%d messages (%d failed)\n", report.Succeeded, report.Total, report.Failed)
	for _, result := range report.Results {
		if !result.Succeeded() {
			fmt.Printf("  %s: %s\n", result.Recipient, result.Reason)
		}
	}

	if *reportPath != "" {
		if err := writeReport(report, *reportPath); err != nil {
			slog.Error("failed to write report", "file", *reportPath, "error", err)
			os.Exit(1)
		}
		slog.Info("report written", "file", *reportPath)
	}

	if report.Failed > 0 {
		os.Exit(1)
	}
}

// loadConfig loads configuration from the specified path (YAML + env
// override) or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectTransport chooses the delivery backend based on configuration and
// returns it together with the sender address. If cfg.Transport is set, it
// takes precedence; otherwise the first fully configured backend wins.
func selectTransport(cfg *config.Config, dryRun bool) (transport.Transport, string) {
	sender := firstNonEmpty(cfg.SMTP.Sender, cfg.Gmail.Sender, cfg.SES.Sender)

	if dryRun {
		slog.Info("using dry-run transport, nothing will be sent")
		if sender == "" {
			sender = "dry-run@localhost"
		}
		return dryrun.New(), sender
	}

	ctx := context.Background()

	switch cfg.Transport {
	case "smtp":
		if !cfg.SMTPConfigured() {
			slog.Error("smtp transport selected but SMTP_HOST and SMTP_SENDER are required")
			os.Exit(1)
		}
		return newSMTP(cfg), cfg.SMTP.Sender

	case "gmail":
		if !cfg.GmailConfigured() {
			slog.Error("gmail transport selected but GMAIL_CREDENTIALS_FILE, GMAIL_TOKEN_FILE and GMAIL_SENDER are required")
			os.Exit(1)
		}
		return newGmail(ctx, cfg), cfg.Gmail.Sender

	case "ses":
		if !cfg.SESConfigured() {
			slog.Error("ses transport selected but SES_REGION and SES_SENDER are required")
			os.Exit(1)
		}
		return newSES(ctx, cfg), cfg.SES.Sender

	case "dry-run":
		if sender == "" {
			sender = "dry-run@localhost"
		}
		return dryrun.New(), sender

	case "":
		// Auto-detection fallback
		if cfg.SMTPConfigured() {
			slog.Info("using smtp transport (auto-detected)", "host", cfg.SMTP.Host)
			return newSMTP(cfg), cfg.SMTP.Sender
		}
		if cfg.GmailConfigured() {
			slog.Info("using gmail transport (auto-detected)", "sender", cfg.Gmail.Sender)
			return newGmail(ctx, cfg), cfg.Gmail.Sender
		}
		if cfg.SESConfigured() {
			slog.Info("using ses transport (auto-detected)", "region", cfg.SES.Region)
			return newSES(ctx, cfg), cfg.SES.Sender
		}
		slog.Error("no transport configured; set TRANSPORT or configure smtp, gmail or ses")
		os.Exit(1)
		return nil, ""

	default:
		slog.Error("unknown transport", "transport", cfg.Transport)
		os.Exit(1)
		return nil, ""
	}
}

func newSMTP(cfg *config.Config) transport.Transport {
	tr, err := smtprelay.New(smtprelay.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Security: smtprelay.Security(cfg.SMTP.Security),
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
	})
	if err != nil {
		slog.Error("failed to create smtp transport", "error", err)
		os.Exit(1)
	}
	return tr
}

func newGmail(ctx context.Context, cfg *config.Config) transport.Transport {
	tr, err := gmailapi.NewFromFiles(ctx, cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile)
	if err != nil {
		slog.Error("failed to create gmail transport", "error", err)
		os.Exit(1)
	}
	return tr
}

func newSES(ctx context.Context, cfg *config.Config) transport.Transport {
	tr, err := ses.New(ctx, ses.Config{
		Region:          cfg.SES.Region,
		AccessKeyID:     cfg.SES.AccessKeyID,
		SecretAccessKey: cfg.SES.SecretAccessKey,
	})
	if err != nil {
		slog.Error("failed to create ses transport", "error", err)
		os.Exit(1)
	}
	return tr
}

// parseContacts opens and parses the contact list file.
func parseContacts(path, delimiter string) (*contacts.List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var opts []contacts.Option
	if delimiter != "" {
		runes := []rune(delimiter)
		if len(runes) != 1 {
			return nil, fmt.Errorf("delimiter must be a single character, got %q", delimiter)
		}
		opts = append(opts, contacts.WithDelimiter(runes[0]))
	}

	return contacts.Parse(f, filepath.Base(path), opts...)
}

// buildTemplate assembles the campaign template from either an .eml export
// or the -subject/-body pair, plus any attachment files.
func buildTemplate(subject, bodyPath, emlPath string, attachPaths []string, html bool) (*template.Template, error) {
	var tmpl *template.Template

	switch {
	case emlPath != "":
		raw, err := os.ReadFile(emlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read eml file: %w", err)
		}
		msg, err := email.ParseEML(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse eml file: %w", err)
		}
		tmpl = &template.Template{
			Subject:     msg.Subject,
			Body:        msg.TextBody,
			Attachments: msg.Attachments,
		}
		if msg.HTMLBody != "" {
			tmpl.Body = msg.HTMLBody
			tmpl.HTML = true
		}

	case subject != "" && bodyPath != "":
		body, err := os.ReadFile(bodyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		tmpl = &template.Template{
			Subject: subject,
			Body:    string(body),
			HTML:    html,
		}

	default:
		return nil, fmt.Errorf("either -eml or both -subject and -body are required")
	}

	for _, path := range attachPaths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %q: %w", path, err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		tmpl.Attachments = append(tmpl.Attachments, email.Attachment{
			Filename:    filepath.Base(path),
			ContentType: contentType,
			Content:     content,
		})
	}

	return tmpl, nil
}

// writeReport writes the CSV send report.
func writeReport(report *dispatch.Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := report.WriteCSV(f); err != nil {
		return err
	}
	return f.Sync()
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
