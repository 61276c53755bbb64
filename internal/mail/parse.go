package mail

import (
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strings"

	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
)

// ParseMessage reads an RFC 5322 message. The HTML body is preferred over
// plain text, and every top-level header is kept (first value wins) so
// List-Unsubscribe reaches the link extractor.
func ParseMessage(r io.Reader) (schemas.OriginalMessage, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil && mr == nil {
		return schemas.OriginalMessage{}, err
	}
	defer mr.Close()

	msg := schemas.OriginalMessage{Headers: make(map[string]string)}
	fields := mr.Header.Fields()
	for fields.Next() {
		key := textproto.CanonicalMIMEHeaderKey(fields.Key())
		if _, exists := msg.Headers[key]; exists {
			continue
		}
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		msg.Headers[key] = value
	}

	msg.Subject, _ = mr.Header.Subject()
	msg.From = msg.Headers["From"]
	msg.To = msg.Headers["To"]
	msg.Date = msg.Headers["Date"]

	var text, html string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if text != "" || html != "" {
				break
			}
			return msg, fmt.Errorf("failed to read message part: %w", err)
		}

		h, ok := p.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		switch {
		case strings.HasPrefix(ct, "text/html") && html == "":
			body, err := io.ReadAll(p.Body)
			if err == nil {
				html = string(body)
			}
		case (ct == "" || strings.HasPrefix(ct, "text/plain")) && text == "":
			body, err := io.ReadAll(p.Body)
			if err == nil {
				text = string(body)
			}
		}
	}

	if html != "" {
		msg.Body, msg.IsHTML = html, true
	} else {
		msg.Body = text
	}
	return msg, nil
}
