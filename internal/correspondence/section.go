package correspondence

import (
	"context"

	"github.com/vijay-prabhu/crmgmail/internal/email"
)

// SectionHeading titles the contact profile section
const SectionHeading = "Recent Gmail Correspondence"

// Section messages
const (
	MsgNoContactEmail = "No contact email is available for this profile."
	MsgNotAuthorized  = "Google is not authorized. Connect your account to load emails."
	MsgUnavailable    = "Unable to load Gmail emails right now. Please verify authorization and try again later."
	MsgNoEmails       = "No Gmail emails found for this contact."
)

// Section is the payload the CRM renders on a contact profile. Exactly one of
// Records and Message is set.
type Section struct {
	Heading string                `json:"heading"`
	Records []email.MessageRecord `json:"records,omitempty"`
	Message string                `json:"message,omitempty"`
	Level   string                `json:"level,omitempty"` // "info", "warning" or "error" alongside Message
}

// ProfileSection builds the profile section for contact using the configured email limit
func (a *Aggregator) ProfileSection(ctx context.Context, contact string) Section {
	return a.Section(ctx, contact, 0)
}

// Section builds the profile section for contact with an explicit limit
func (a *Aggregator) Section(ctx context.Context, contact string, limit int) Section {
	section := Section{Heading: SectionHeading}

	addr, ok := email.ValidateAddress(contact)
	if !ok {
		section.Message, section.Level = MsgNoContactEmail, "warning"
		return section
	}

	accounts, err := a.registry.Authorized(ctx)
	if err != nil || len(accounts) == 0 {
		section.Message, section.Level = MsgNotAuthorized, "warning"
		return section
	}

	records, err := a.Recent(ctx, addr, limit)
	if err != nil {
		a.logger.Error("correspondence lookup failed", "error", err)
		section.Message, section.Level = MsgUnavailable, "error"
		return section
	}

	if len(records) == 0 {
		section.Message, section.Level = MsgNoEmails, "info"
		return section
	}

	section.Records = records
	return section
}
