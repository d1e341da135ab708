package email

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
)

// Direction values for MessageRecord
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// NoSubject replaces a missing Subject header
const NoSubject = "(No Subject)"

// MessageRecord is the normalized view of one message exchanged with a contact
type MessageRecord struct {
	ID           string `json:"id"`
	ThreadID     string `json:"thread_id"`
	Subject      string `json:"subject"`
	From         string `json:"from"`
	To           string `json:"to"`
	Timestamp    int64  `json:"timestamp"` // Unix seconds, 0 when Date was unparseable
	DateRaw      string `json:"date_raw"`
	Snippet      string `json:"snippet"`
	Direction    string `json:"direction"`
	SourceURL    string `json:"source_url"`
	AccountLabel string `json:"account_label"`
	AccountID    string `json:"account_id"`
}

// IsIncoming reports whether the contact sent this message
func (r MessageRecord) IsIncoming() bool {
	return r.Direction == DirectionIncoming
}

// RawMessage is the metadata a provider returns for a single message
type RawMessage struct {
	ID        string
	ThreadID  string
	Snippet   string
	Headers   map[string]string // Keys are lowercased header names
	Timestamp int64             // Parsed from the Date header, 0 if unparseable
	SourceURL string            // Link to the message in the provider's web UI
}

// Header returns the value of the named header, matched case-insensitively
func (m *RawMessage) Header(name string) string {
	if m == nil || m.Headers == nil {
		return ""
	}
	return m.Headers[strings.ToLower(name)]
}

// SetHeader stores a header under its lowercased name. The first value wins.
func (m *RawMessage) SetHeader(name, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	if _, ok := m.Headers[key]; !ok {
		m.Headers[key] = value
	}
}

// ToRecord builds the MessageRecord for raw as seen from contact's side.
// A message is incoming when the contact address appears in From.
func ToRecord(raw *RawMessage, contact, accountID, accountLabel string) MessageRecord {
	subject, ok := raw.Headers["subject"]
	if !ok {
		subject = NoSubject
	}
	from := raw.Header("From")

	direction := DirectionOutgoing
	if contact != "" && strings.Contains(strings.ToLower(from), strings.ToLower(contact)) {
		direction = DirectionIncoming
	}

	return MessageRecord{
		ID:           strings.TrimSpace(raw.ID),
		ThreadID:     strings.TrimSpace(raw.ThreadID),
		Subject:      StripTags(subject),
		From:         StripTags(from),
		To:           StripTags(raw.Header("To")),
		Timestamp:    raw.Timestamp,
		DateRaw:      StripTags(raw.Header("Date")),
		Snippet:      StripTags(raw.Snippet),
		Direction:    direction,
		SourceURL:    raw.SourceURL,
		AccountLabel: StripTags(accountLabel),
		AccountID:    accountID,
	}
}

// ContactQuery returns the provider search query matching mail from or to address
func ContactQuery(address string) string {
	return fmt.Sprintf("from:%s OR to:%s", address, address)
}

// ValidateAddress trims s and returns it if it is a bare email address.
// Display names, angle brackets and addresses without a dotted domain are rejected.
func ValidateAddress(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " <>\"") {
		return "", false
	}

	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", false
	}

	at := strings.LastIndex(s, "@")
	if at < 1 {
		return "", false
	}
	domain := s[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", false
	}

	return s, true
}

var scriptStyle = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)

// StripTags removes HTML tags, including script and style contents, and
// collapses runs of spaces
func StripTags(html string) string {
	html = scriptStyle.ReplaceAllString(html, "")

	var result strings.Builder
	inTag := false

	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			result.WriteRune(r)
		}
	}

	text := result.String()
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\t", " ")

	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}

	return strings.TrimSpace(text)
}
