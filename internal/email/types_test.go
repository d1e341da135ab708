package email

import "testing"

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"jane@example.com", "jane@example.com", true},
		{"  Jane.Doe+crm@Example.co.uk ", "Jane.Doe+crm@Example.co.uk", true},
		{"", "", false},
		{"not-an-email", "", false},
		{"jane@localhost", "", false},
		{"Jane <jane@example.com>", "", false},
		{"@example.com", "", false},
		{"jane@example.", "", false},
		{"jane@@example.com", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ValidateAddress(tt.input)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ValidateAddress(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestContactQuery(t *testing.T) {
	got := ContactQuery("jane@example.com")
	want := "from:jane@example.com OR to:jane@example.com"
	if got != want {
		t.Errorf("ContactQuery() = %q, want %q", got, want)
	}
}

func TestStripTags(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Hello there", "Hello there"},
		{"tags", "<b>Hello</b> <i>there</i>", "Hello there"},
		{"script", "Hi<script>alert('x')</script> all", "Hi all"},
		{"style", "<style type=\"text/css\">p{}</style>Body", "Body"},
		{"whitespace", "  a\t\tb  ", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripTags(tt.input); got != tt.want {
				t.Errorf("StripTags(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRawMessageHeader(t *testing.T) {
	raw := &RawMessage{}
	raw.SetHeader("Subject", "First")
	raw.SetHeader("SUBJECT", "Second")
	raw.SetHeader("from", "a@example.com")

	if got := raw.Header("subject"); got != "First" {
		t.Errorf("Header(subject) = %q, want First", got)
	}
	if got := raw.Header("From"); got != "a@example.com" {
		t.Errorf("Header(From) = %q", got)
	}
	if got := raw.Header("Date"); got != "" {
		t.Errorf("expected empty Date, got %q", got)
	}

	var nilMsg *RawMessage
	if got := nilMsg.Header("From"); got != "" {
		t.Errorf("nil message Header = %q", got)
	}
}

func TestToRecord(t *testing.T) {
	raw := &RawMessage{
		ID:        "m1",
		ThreadID:  "t1",
		Snippet:   "Thanks for <b>the</b> call",
		Timestamp: 1700000000,
		SourceURL: "https://mail.google.com/mail/#all/t1",
	}
	raw.SetHeader("From", "Jane <JANE@example.com>")
	raw.SetHeader("To", "sales@company.com")
	raw.SetHeader("Date", "Tue, 14 Nov 2023 22:13:20 +0000")

	rec := ToRecord(raw, "jane@example.com", "sales", "<em>Sales</em>")

	if rec.Subject != NoSubject {
		t.Errorf("Subject = %q, want %q", rec.Subject, NoSubject)
	}
	if rec.Direction != DirectionIncoming || !rec.IsIncoming() {
		t.Errorf("Direction = %q, want incoming", rec.Direction)
	}
	if rec.Snippet != "Thanks for the call" {
		t.Errorf("Snippet = %q", rec.Snippet)
	}
	if rec.AccountLabel != "Sales" || rec.AccountID != "sales" {
		t.Errorf("account = (%q, %q)", rec.AccountID, rec.AccountLabel)
	}
	if rec.Timestamp != 1700000000 || rec.DateRaw == "" {
		t.Errorf("date = (%d, %q)", rec.Timestamp, rec.DateRaw)
	}

	out := ToRecord(raw, "someone@else.com", "sales", "Sales")
	if out.Direction != DirectionOutgoing {
		t.Errorf("Direction = %q, want outgoing", out.Direction)
	}

	raw.SetHeader("Subject", "")
	if rec := ToRecord(raw, "jane@example.com", "", ""); rec.Subject != "" {
		t.Errorf("present but empty Subject should stay empty, got %q", rec.Subject)
	}
}
