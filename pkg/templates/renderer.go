// Package templates renders the positional parameter sets handed to the
// outbound notification channel, masking sensitive content on the way out.
//
// Parameters are consumed opaquely by the notifier. No raw amounts, account
// numbers, or balances may appear in a rendered parameter; the OTP code is
// the one value intentionally surfaced, because the code itself is the
// payload the user needs.
package templates

import (
	"regexp"
	"strings"

	"github.com/relaymesh/smsgate/pkg/message"
)

// Placeholders substituted during masking and rendering.
const (
	maskedAmount     = "Rs ****"
	maskedAccount    = "$1****"
	maskedDigits     = "****"
	otpPlaceholder   = "******"
	maxSummaryLength = 200
)

var (
	amountPattern = regexp.MustCompile(`(?:Rs\.?|INR|₹)\s*[\d,]+(?:\.\d{2})?`)
	// Account or card reference: a two-letter prefix plus digits. The prefix
	// is kept so the user can still recognize the reference.
	accountPattern = regexp.MustCompile(`\b([A-Za-z]{2})\d+\b`)
	// Catch-all for unlabeled amounts and account numbers.
	digitRunPattern = regexp.MustCompile(`\b\d{4,}\b`)

	otpCodePattern = regexp.MustCompile(`\b(\d{4,8})\b`)

	debitPattern  = regexp.MustCompile(`(?i)\b(?:debit|debited|withdrawn|withdrawal)\b`)
	creditPattern = regexp.MustCompile(`(?i)\b(?:credit|credited|deposit|deposited)\b`)
)

// Catalog maps message types to the pre-approved notification template
// names used by the outbound channel.
type Catalog struct {
	OTP           string
	Transaction   string
	Bill          string
	SecurityAlert string
}

// DefaultCatalog returns the stock template names.
func DefaultCatalog() Catalog {
	return Catalog{
		OTP:           "otp_notification",
		Transaction:   "transaction_alert",
		Bill:          "bill_notification",
		SecurityAlert: "security_alert",
	}
}

// Renderer builds ordered, masked parameter lists per message type.
type Renderer struct {
	catalog Catalog
}

// NewRenderer creates a Renderer over a template catalog.
func NewRenderer(catalog Catalog) *Renderer {
	return &Renderer{catalog: catalog}
}

// TemplateName returns the template for a message type. Types without a
// dedicated template (UNKNOWN) fall back to the OTP template.
func (r *Renderer) TemplateName(t message.Type) string {
	switch t {
	case message.TypeOTP:
		return r.catalog.OTP
	case message.TypeTransaction:
		return r.catalog.Transaction
	case message.TypeBill:
		return r.catalog.Bill
	case message.TypeSecurityAlert:
		return r.catalog.SecurityAlert
	default:
		return r.catalog.OTP
	}
}

// Render builds the ordered parameter list for a message type. Free-text
// summaries always pass through the masking step before leaving the
// pipeline.
func (r *Renderer) Render(t message.Type, sender, content string) []string {
	switch t {
	case message.TypeOTP:
		return renderOTP(sender, content)
	case message.TypeTransaction:
		return renderTransaction(sender, content)
	case message.TypeBill:
		return []string{sender, MaskSensitive(content)}
	case message.TypeSecurityAlert:
		return []string{sender, truncate(content)}
	default:
		return []string{sender, truncate(content)}
	}
}

// renderOTP extracts the 4-8 digit code. Template shape:
// "Your OTP from {{1}} is {{2}}."
func renderOTP(sender, content string) []string {
	code := otpPlaceholder
	if m := otpCodePattern.FindStringSubmatch(content); m != nil {
		code = m[1]
	}
	return []string{sender, code}
}

// renderTransaction derives a label from keyword presence. Template shape:
// "{{1}} from {{2}}: {{3}}".
func renderTransaction(sender, content string) []string {
	label := "Transaction Alert"
	switch {
	case debitPattern.MatchString(content):
		label = "Debit Alert"
	case creditPattern.MatchString(content):
		label = "Credit Alert"
	}
	return []string{label, sender, MaskSensitive(content)}
}

// MaskSensitive replaces amounts, account references, and remaining digit
// runs with placeholders, then truncates. Amount and account patterns must
// run before the generic digit catch-all so their specific placeholders
// apply.
func MaskSensitive(text string) string {
	masked := amountPattern.ReplaceAllString(text, maskedAmount)
	masked = accountPattern.ReplaceAllString(masked, maskedAccount)
	masked = digitRunPattern.ReplaceAllString(masked, maskedDigits)
	return truncate(masked)
}

// truncate limits the summary to maxSummaryLength characters. It cuts on a
// rune boundary so multi-byte text is never split into invalid UTF-8.
func truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= maxSummaryLength {
		return text
	}
	return strings.TrimSpace(string(runes[:maxSummaryLength-3])) + "..."
}
