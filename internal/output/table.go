package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/vijay-prabhu/crmgmail/internal/correspondence"
	"github.com/vijay-prabhu/crmgmail/internal/email"
)

// AccountRow is one linked account as shown by 'crmgmail accounts list'
type AccountRow struct {
	ID              string `json:"id"`
	Label           string `json:"label"`
	ClientID        string `json:"client_id"`
	HasClientSecret bool   `json:"has_client_secret"`
	Authorized      bool   `json:"authorized"`
}

// SettingsRow holds the scalar settings
type SettingsRow struct {
	CacheDuration int `json:"cache_duration"`
	EmailLimit    int `json:"email_limit"`
}

// now is swapped in tests
var now = time.Now

// Table writes data as a formatted table to stdout
func Table(data interface{}) error {
	return TableTo(os.Stdout, data)
}

// TableTo writes data as a formatted table to the given writer
func TableTo(w io.Writer, data interface{}) error {
	switch v := data.(type) {
	case []email.MessageRecord:
		return messagesTable(w, v)
	case correspondence.Section:
		return sectionDetail(w, v)
	case []AccountRow:
		return accountsTable(w, v)
	case SettingsRow:
		return settingsTable(w, v)
	default:
		return fmt.Errorf("unsupported data type for table output: %T", data)
	}
}

func messagesTable(w io.Writer, records []email.MessageRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No messages found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tDIR\tFROM\tSUBJECT\tACCOUNT")
	fmt.Fprintln(tw, "----\t---\t----\t-------\t-------")

	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			formatWhen(r),
			formatDirection(r.Direction),
			truncate(r.From, 30),
			truncate(r.Subject, 40),
			truncate(r.AccountLabel, 20),
		)
	}

	return tw.Flush()
}

// sectionDetail prints the contact profile section with message snippets
func sectionDetail(w io.Writer, s correspondence.Section) error {
	fmt.Fprintln(w, s.Heading)
	fmt.Fprintln(w, strings.Repeat("=", len(s.Heading)))

	if s.Message != "" {
		fmt.Fprintln(w, s.Message)
		return nil
	}

	for i, r := range s.Records {
		fmt.Fprintln(w, strings.Repeat("-", 60))
		fmt.Fprintf(w, "[%d/%d] %s - %s\n", i+1, len(s.Records), formatDirectionLong(r.Direction), formatWhen(r))
		fmt.Fprintf(w, "From:    %s\n", r.From)
		if r.To != "" {
			fmt.Fprintf(w, "To:      %s\n", r.To)
		}
		fmt.Fprintf(w, "Subject: %s\n", r.Subject)
		if r.AccountLabel != "" {
			fmt.Fprintf(w, "Account: %s\n", r.AccountLabel)
		}
		if r.SourceURL != "" {
			fmt.Fprintf(w, "Open:    %s\n", r.SourceURL)
		}
		if r.Snippet != "" {
			fmt.Fprintln(w)
			fmt.Fprintln(w, wordWrap(r.Snippet, 78))
		}
	}
	fmt.Fprintln(w, strings.Repeat("-", 60))

	return nil
}

func accountsTable(w io.Writer, rows []AccountRow) error {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No accounts linked. Run 'crmgmail accounts add' to add one.")
		return nil
	}

	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		secret := "missing"
		if r.HasClientSecret {
			secret = "set"
		}
		status := "no"
		if r.Authorized {
			status = "yes"
		}
		data = append(data, []string{r.ID, r.Label, truncate(r.ClientID, 32), secret, status})
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Label", "Client ID", "Secret", "Authorized")
	if err := table.Bulk(data); err != nil {
		return fmt.Errorf("failed to build account table: %w", err)
	}
	return table.Render()
}

func settingsTable(w io.Writer, s SettingsRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "cache_duration\t%d minute(s)\n", s.CacheDuration)
	fmt.Fprintf(tw, "email_limit\t%d message(s)\n", s.EmailLimit)
	return tw.Flush()
}

func formatDirection(direction string) string {
	if direction == email.DirectionOutgoing {
		return "OUT"
	}
	return "IN"
}

func formatDirectionLong(direction string) string {
	if direction == email.DirectionOutgoing {
		return "SENT"
	}
	return "RECEIVED"
}

// formatWhen renders the message age, or the raw Date header when it could not be parsed
func formatWhen(r email.MessageRecord) string {
	if r.Timestamp == 0 {
		if r.DateRaw != "" {
			return truncate(r.DateRaw, 25)
		}
		return "unknown"
	}
	days := int(now().Sub(time.Unix(r.Timestamp, 0)).Hours() / 24)
	return formatLastActivity(days)
}

func formatLastActivity(days int) string {
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days < 30:
		return fmt.Sprintf("%d weeks ago", days/7)
	default:
		return fmt.Sprintf("%d days ago", days)
	}
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-3]) + "..."
}

// wordWrap wraps text at the specified width
func wordWrap(text string, width int) string {
	var result strings.Builder
	lines := strings.Split(text, "\n")

	for _, line := range lines {
		if len(line) <= width {
			result.WriteString(line)
			result.WriteString("\n")
			continue
		}

		words := strings.Fields(line)
		if len(words) == 0 {
			result.WriteString("\n")
			continue
		}

		currentLine := words[0]
		for _, word := range words[1:] {
			if len(currentLine)+1+len(word) <= width {
				currentLine += " " + word
			} else {
				result.WriteString(currentLine)
				result.WriteString("\n")
				currentLine = word
			}
		}
		result.WriteString(currentLine)
		result.WriteString("\n")
	}

	return strings.TrimSuffix(result.String(), "\n")
}
