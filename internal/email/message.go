// Package email defines the outgoing message model shared by all transports.
package email

// Message represents one fully rendered outgoing email, addressed to a
// single recipient.
type Message struct {
	From     string
	To       string
	ReplyTo  string
	Subject  string
	TextBody string
	HTMLBody string
	// Attachments are shared read-only across a whole run; transports must
	// not mutate their contents.
	Attachments []Attachment
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}
