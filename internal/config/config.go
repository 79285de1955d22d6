// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the bulk sender.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultSendDelay is the default pause between consecutive sends, in
// seconds. It matches what mailbox providers tolerate for small campaigns.
const defaultSendDelay = 1.0

// Config holds the complete application configuration.
type Config struct {
	// Transport explicitly selects the delivery backend ("smtp", "gmail",
	// "ses", "dry-run"). When empty, the first fully configured backend is
	// auto-detected.
	Transport string        `yaml:"transport"`
	SMTP      SMTPConfig    `yaml:"smtp"`
	Gmail     GmailConfig   `yaml:"gmail"`
	SES       SESConfig     `yaml:"ses"`
	Send      SendConfig    `yaml:"send"`
	Logging   LoggingConfig `yaml:"logging"`
}

// SMTPConfig holds direct-relay transport configuration.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Security string `yaml:"security"` // plain, ssl or starttls
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Sender   string `yaml:"sender"`
}

// GmailConfig holds delegated-API transport configuration. The credentials
// and token files come from an out-of-band OAuth consent flow.
type GmailConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	Sender          string `yaml:"sender"`
}

// SESConfig holds AWS SES transport configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// SendConfig holds campaign-level settings.
type SendConfig struct {
	// SenderName is the display name stamped on the From header and exposed
	// to templates as {{sender_name}}.
	SenderName string `yaml:"sender_name"`
	// ReplyTo overrides the reply address; empty means the sender address.
	ReplyTo string `yaml:"reply_to"`
	// DelaySeconds is the inter-send throttle; must be >= 0.
	DelaySeconds float64 `yaml:"delay_seconds"`
	// HTML marks the body template as HTML instead of plain text.
	HTML bool `yaml:"html"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, cfg.validate()
}

// LoadFromFile loads configuration from a YAML file as the base layer, then
// overrides with environment variables.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, cfg.validate()
}

// SMTPConfigured returns true if the relay transport has enough settings to
// attempt a connection.
func (c *Config) SMTPConfigured() bool {
	return c.SMTP.Host != "" && c.SMTP.Sender != ""
}

// GmailConfigured returns true if both OAuth artifact paths and the sender
// address are set.
func (c *Config) GmailConfigured() bool {
	return c.Gmail.CredentialsFile != "" &&
		c.Gmail.TokenFile != "" &&
		c.Gmail.Sender != ""
}

// SESConfigured returns true if the SES transport can be constructed.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// validate rejects settings no run could proceed with.
func (c *Config) validate() error {
	if c.Send.DelaySeconds < 0 {
		return fmt.Errorf("send delay must not be negative, got %v", c.Send.DelaySeconds)
	}
	switch c.SMTP.Security {
	case "", "plain", "ssl", "starttls":
	default:
		return fmt.Errorf("unknown smtp security mode %q", c.SMTP.Security)
	}
	return nil
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SMTP.Port = 587
	c.SMTP.Security = "starttls"
	c.Gmail.CredentialsFile = "credentials.json"
	c.Gmail.TokenFile = "token.json"
	c.Send.DelaySeconds = defaultSendDelay
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("TRANSPORT"); v != "" {
		c.Transport = strings.ToLower(v)
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.SMTP.Port = port
		}
	}
	if v := os.Getenv("SMTP_SECURITY"); v != "" {
		c.SMTP.Security = strings.ToLower(v)
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		c.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_SENDER"); v != "" {
		c.SMTP.Sender = v
	}

	if v := os.Getenv("GMAIL_CREDENTIALS_FILE"); v != "" {
		c.Gmail.CredentialsFile = v
	}
	if v := os.Getenv("GMAIL_TOKEN_FILE"); v != "" {
		c.Gmail.TokenFile = v
	}
	if v := os.Getenv("GMAIL_SENDER"); v != "" {
		c.Gmail.Sender = v
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.SES.Sender = v
	}

	if v := os.Getenv("SENDER_NAME"); v != "" {
		c.Send.SenderName = v
	}
	if v := os.Getenv("REPLY_TO"); v != "" {
		c.Send.ReplyTo = v
	}
	if v := os.Getenv("SEND_DELAY_SECONDS"); v != "" {
		if delay, err := strconv.ParseFloat(v, 64); err == nil {
			c.Send.DelaySeconds = delay
		}
	}
	if v := os.Getenv("SEND_HTML"); v != "" {
		if html, err := strconv.ParseBool(v); err == nil {
			c.Send.HTML = html
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
