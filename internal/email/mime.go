package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"
)

// BuildRaw composes the full RFC 5322 wire form of a message: headers, the
// text or HTML body, and base64-encoded attachment parts in a multipart/mixed
// container. Messages without attachments are written as a single part.
// The result is what the Gmail API expects (base64url-encoded by the caller)
// and what gets written by message export.
func BuildRaw(msg *Message) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", msg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	if msg.ReplyTo != "" {
		fmt.Fprintf(&buf, "Reply-To: %s\r\n", msg.ReplyTo)
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", encodeHeader(msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")

	if len(msg.Attachments) == 0 {
		writeSinglePart(&buf, msg)
		return buf.Bytes(), nil
	}

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	bodyHeader := make(textproto.MIMEHeader)
	bodyHeader.Set("Content-Type", bodyContentType(msg))
	part, err := writer.CreatePart(bodyHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	if _, err := part.Write([]byte(bodyContent(msg))); err != nil {
		return nil, fmt.Errorf("failed to write body part: %w", err)
	}

	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		attHeader := make(textproto.MIMEHeader)
		attHeader.Set("Content-Type", contentType)
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%s", mime.QEncoding.Encode("UTF-8", att.Filename)))

		part, err := writer.CreatePart(attHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := part.Write([]byte(encodeBase64WithLineBreaks(att.Content))); err != nil {
			return nil, fmt.Errorf("failed to write attachment part: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart message: %w", err)
	}
	return buf.Bytes(), nil
}

// writeSinglePart writes the body of an attachment-free message directly
// after the top-level headers.
func writeSinglePart(buf *bytes.Buffer, msg *Message) {
	fmt.Fprintf(buf, "Content-Type: %s\r\n\r\n", bodyContentType(msg))
	buf.WriteString(bodyContent(msg))
}

// bodyContentType prefers HTML over plain text when both are set.
func bodyContentType(msg *Message) string {
	if msg.HTMLBody != "" {
		return "text/html; charset=UTF-8"
	}
	return "text/plain; charset=UTF-8"
}

func bodyContent(msg *Message) string {
	if msg.HTMLBody != "" {
		return msg.HTMLBody
	}
	return msg.TextBody
}

// encodeHeader Q-encodes a header value when it contains non-ASCII runes,
// leaving plain ASCII subjects untouched.
func encodeHeader(value string) string {
	for _, r := range value {
		if r > 127 {
			return mime.QEncoding.Encode("UTF-8", value)
		}
	}
	return value
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character line
// breaks per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += 76 {
		end := i + 76
		if end > len(encoded) {
			end = len(encoded)
		}
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}
