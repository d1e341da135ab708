package gmail

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"google.golang.org/api/gmail/v1"

	"github.com/vijay-prabhu/crmgmail/internal/email"
)

const webURLBase = "https://mail.google.com/mail/#all/"

// convertMessage converts a Gmail metadata message to a RawMessage
func convertMessage(msg *gmail.Message) *email.RawMessage {
	raw := &email.RawMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Headers:  make(map[string]string),
	}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			if header == nil || header.Name == "" {
				continue
			}
			raw.SetHeader(header.Name, header.Value)
		}
	}

	if date := raw.Header("Date"); date != "" {
		if t, err := parseDate(date); err == nil {
			raw.Timestamp = t.Unix()
		}
	}

	raw.SourceURL = webURL(msg.ThreadId, msg.Id)

	return raw
}

// webURL links to the thread in the Gmail UI, or to the message if there is no thread
func webURL(threadID, id string) string {
	target := threadID
	if target == "" {
		target = id
	}
	return webURLBase + url.PathEscape(target)
}

// parseDate parses an RFC 5322 Date header, falling back to common variants
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	var h mail.Header
	h.Set("Date", s)
	if t, err := h.Date(); err == nil && !t.IsZero() {
		return t, nil
	}

	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2 Jan 2006 15:04:05 -0700",
		"Mon, 02 Jan 2006 15:04:05 -0700 (MST)",
		"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
		time.RFC3339,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}
