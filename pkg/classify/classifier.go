// Package classify infers a message category from decrypted content using
// ordered pattern rules.
//
// Categories are evaluated in fixed priority order: OTP, then TRANSACTION,
// then SECURITY_ALERT, then BILL. OTP detection is highest-precision and
// time-critical; security alerts are checked before bills because alert
// language can coexist with payment language but the security framing
// dominates user urgency. Nothing matching falls through to UNKNOWN with
// zero confidence.
//
// Classification never extracts or returns sensitive values. Result
// metadata carries only boolean and urgency flags.
package classify

import (
	"regexp"
	"strings"

	"github.com/relaymesh/smsgate/pkg/message"
)

var otpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:OTP|code|verification|PIN)\b.*?\b\d{4,8}\b`),
	regexp.MustCompile(`(?i)\b\d{4,8}\b.*?\b(?:OTP|code|verification|PIN)\b`),
	regexp.MustCompile(`(?i)\b(?:your|the)\s+(?:OTP|code|PIN)\s+(?:is|:)\s*\d{4,8}\b`),
}

var otpDigitRun = regexp.MustCompile(`\b\d{4,8}\b`)

var otpContextWords = []string{"otp", "code", "verification", "pin", "password"}

var transactionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:debited|credited|withdrawn|deposited|transferred)\b`),
	regexp.MustCompile(`(?i)\b(?:debit|credit|withdrawal|deposit|transfer)\b`),
	regexp.MustCompile(`(?i)\bA/c\b`),
	regexp.MustCompile(`(?i)\baccount\b.*?\bXX\d+\b`),
	regexp.MustCompile(`(?i)\bcard\b.*?\bXX\d+\b`),
}

// Amount patterns detect presence only; the value is never extracted.
var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:Rs\.?|INR|₹)\s*[\d,]+(?:\.\d{2})?`),
	regexp.MustCompile(`[\d,]+(?:\.\d{2})?\s*(?:Rs\.?|INR|₹)`),
}

var billPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:bill|invoice|payment|due|overdue)\b`),
	regexp.MustCompile(`(?i)\bpay\s+(?:by|before)\b`),
	regexp.MustCompile(`(?i)\bdue\s+(?:date|on)\b`),
}

var securityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:alert|security|suspicious|unauthorized|blocked|locked)\b`),
	regexp.MustCompile(`(?i)\b(?:fraud|scam|phishing)\b`),
	regexp.MustCompile(`(?i)\bnew\s+(?:device|location|login)\b`),
	regexp.MustCompile(`(?i)\b(?:verify|confirm)\s+(?:identity|account)\b`),
}

// Classifier is a pure function over (plaintext, sender). It holds no state
// and is safe for concurrent use.
type Classifier struct{}

// New creates a Classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify evaluates the priority-ordered category rules and returns the
// first match, or UNKNOWN with confidence 0.0.
func (c *Classifier) Classify(body, sender string) message.ClassificationResult {
	lower := strings.ToLower(body)

	if res, ok := c.checkOTP(body, lower); ok {
		return res
	}
	if res, ok := c.checkTransaction(body); ok {
		return res
	}
	if res, ok := c.checkSecurityAlert(body); ok {
		return res
	}
	if res, ok := c.checkBill(body); ok {
		return res
	}

	return message.ClassificationResult{
		Type:       message.TypeUnknown,
		Confidence: 0.0,
		Metadata:   map[string]any{"reason": "no matching patterns"},
	}
}

func (c *Classifier) checkOTP(body, lower string) (message.ClassificationResult, bool) {
	for _, p := range otpPatterns {
		if p.MatchString(body) {
			return message.ClassificationResult{
				Type:       message.TypeOTP,
				Confidence: 0.95,
				Metadata:   map[string]any{"hasOtp": true, "urgency": "high"},
			}, true
		}
	}

	// Weaker signal: a 4-8 digit run plus any OTP context word.
	if otpDigitRun.MatchString(body) {
		for _, word := range otpContextWords {
			if strings.Contains(lower, word) {
				return message.ClassificationResult{
					Type:       message.TypeOTP,
					Confidence: 0.85,
					Metadata:   map[string]any{"hasOtp": true, "urgency": "high"},
				}, true
			}
		}
	}

	return message.ClassificationResult{}, false
}

func (c *Classifier) checkTransaction(body string) (message.ClassificationResult, bool) {
	score := 0
	for _, p := range transactionPatterns {
		if p.MatchString(body) {
			score++
		}
	}

	hasAmount := containsAmount(body)
	if hasAmount {
		score++
	}

	if score < 2 {
		return message.ClassificationResult{}, false
	}

	confidence := 0.75
	if hasAmount {
		confidence = 0.9
	}
	return message.ClassificationResult{
		Type:       message.TypeTransaction,
		Confidence: confidence,
		Metadata:   map[string]any{"hasAmount": hasAmount, "urgency": "medium"},
	}, true
}

func (c *Classifier) checkSecurityAlert(body string) (message.ClassificationResult, bool) {
	for _, p := range securityPatterns {
		if p.MatchString(body) {
			return message.ClassificationResult{
				Type:       message.TypeSecurityAlert,
				Confidence: 0.85,
				Metadata:   map[string]any{"urgency": "high"},
			}, true
		}
	}
	return message.ClassificationResult{}, false
}

func (c *Classifier) checkBill(body string) (message.ClassificationResult, bool) {
	score := 0
	for _, p := range billPatterns {
		if p.MatchString(body) {
			score++
		}
	}

	hasAmount := containsAmount(body)
	if hasAmount {
		score++
	}

	if score < 2 {
		return message.ClassificationResult{}, false
	}

	return message.ClassificationResult{
		Type:       message.TypeBill,
		Confidence: 0.8,
		Metadata:   map[string]any{"hasAmount": hasAmount, "urgency": "low"},
	}, true
}

func containsAmount(body string) bool {
	for _, p := range amountPatterns {
		if p.MatchString(body) {
			return true
		}
	}
	return false
}
