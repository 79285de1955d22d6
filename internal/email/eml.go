package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
)

// ParseEML reads an RFC 5322 message (for example one exported from a mail
// client as .eml) and extracts the parts that matter for a campaign template:
// subject, text/html bodies and attachments. Addressing headers are ignored;
// the dispatcher sets From/To per recipient.
func ParseEML(raw []byte) (*Message, error) {
	src, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	result := &Message{Subject: src.Header.Get("Subject")}

	contentType := src.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Unparseable content type, treat the whole body as plain text
		body, readErr := io.ReadAll(src.Body)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read message body: %w", readErr)
		}
		result.TextBody = string(body)
		return result, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message missing boundary")
		}
		if err := collectParts(src.Body, boundary, result); err != nil {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return result, nil
	}

	body, err := io.ReadAll(src.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	if mediaType == "text/html" {
		result.HTMLBody = string(body)
	} else {
		result.TextBody = string(body)
	}
	return result, nil
}

// collectParts walks a multipart body, keeping the first text/plain and
// text/html parts as the template body and everything with a filename as an
// attachment. Nested multipart containers are descended into.
func collectParts(body io.Reader, boundary string, result *Message) error {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		partContentType := part.Header.Get("Content-Type")
		if partContentType == "" {
			partContentType = "text/plain"
		}

		mediaType, params, err := mime.ParseMediaType(partContentType)
		if err != nil {
			slog.Warn("skipping part with unparseable content type",
				"content_type", partContentType,
				"error", err,
			)
			continue
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			nestedBoundary := params["boundary"]
			if nestedBoundary == "" {
				slog.Warn("nested multipart missing boundary, skipping")
				continue
			}
			if err := collectParts(part, nestedBoundary, result); err != nil {
				slog.Warn("failed to parse nested multipart", "error", err)
			}
			continue
		}

		content, err := readPartContent(part)
		if err != nil {
			slog.Warn("failed to read part content",
				"content_type", mediaType,
				"error", err,
			)
			continue
		}

		filename := partFilename(part, params)
		isAttachment := strings.HasPrefix(part.Header.Get("Content-Disposition"), "attachment")

		switch {
		case !isAttachment && mediaType == "text/plain" && result.TextBody == "":
			result.TextBody = string(content)
		case !isAttachment && mediaType == "text/html" && result.HTMLBody == "":
			result.HTMLBody = string(content)
		case isAttachment || filename != "":
			if filename == "" {
				filename = "attachment"
			}
			result.Attachments = append(result.Attachments, Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Content:     content,
			})
		default:
			slog.Warn("skipping unrecognized MIME part", "content_type", mediaType)
		}
	}

	return nil
}

// readPartContent reads a MIME part, decoding base64 transfer encoding.
// Quoted-printable is decoded by the multipart reader itself.
func readPartContent(part *multipart.Part) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(part.Header.Get("Content-Transfer-Encoding")))

	raw, err := io.ReadAll(part)
	if err != nil {
		return nil, err
	}

	if encoding != "base64" {
		return raw, nil
	}

	cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 content: %w", err)
		}
	}
	return decoded, nil
}

// partFilename extracts a filename from Content-Disposition or the
// Content-Type "name" parameter.
func partFilename(part *multipart.Part, params map[string]string) string {
	if fn := part.FileName(); fn != "" {
		return fn
	}
	return params["name"]
}
