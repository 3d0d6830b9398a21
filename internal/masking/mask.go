package masking

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

const (
	redactedLiteral = "[REDACTED]"
	fullMaskLength  = 8
)

// MaskValue obscures value according to the rule's mode. It is pure except for
// TypeTokenize, whose random suffix differs on every call.
func MaskValue(value string, rule Rule) string {
	if value == "" {
		return value
	}
	switch rule.Type {
	case TypeFull:
		if rule.PreserveLength {
			return strings.Repeat("*", len(value))
		}
		return strings.Repeat("*", fullMaskLength)
	case TypePartial:
		if rule.Pattern != "" {
			return rule.Pattern
		}
		return maskPartial(value)
	case TypeHash:
		return "[HASH:" + prefixOf(value, 4) + "]"
	case TypeRedact:
		return redactedLiteral
	case TypeTokenize:
		return "[TOKEN:" + randomSuffix() + "]"
	default:
		return maskPartial(value)
	}
}

// maskPartial keeps the first two and last two characters. Short values
// collapse to all asterisks so nothing leaks from 4 characters or fewer.
func maskPartial(value string) string {
	runes := []rune(value)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:2]) + strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-2:])
}

func prefixOf(value string, n int) string {
	runes := []rune(value)
	if len(runes) < n {
		n = len(runes)
	}
	return string(runes[:n])
}

func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(buf)
}

// MaskEmail preserves the domain and the edges of the local part, obscuring
// only interior local-part characters.
func MaskEmail(value string) string {
	at := strings.LastIndex(value, "@")
	if at <= 0 {
		return maskPartial(value)
	}
	local, domain := value[:at], value[at:]
	runes := []rune(local)
	if len(runes) <= 2 {
		return value
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-1]) + domain
}

// MaskPhone keeps the last four digits and replaces every preceding digit
// with an asterisk; formatting characters pass through.
func MaskPhone(value string) string {
	digits := 0
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	keepFrom := digits - 4
	seen := 0
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			if seen < keepFrom {
				b.WriteRune('*')
			} else {
				b.WriteRune(r)
			}
			seen++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MaskPAN obscures a 10-character alphanumeric tax identifier, keeping the
// first two and last two characters. Values that do not fit the format fall
// back to partial masking.
func MaskPAN(value string) string {
	if len(value) != 10 {
		return maskPartial(value)
	}
	return value[:2] + strings.Repeat("*", 6) + value[8:]
}

// MaskAadhaar shows only the last four digits of a 12-digit national
// identifier, grouped as the printed card format.
func MaskAadhaar(value string) string {
	digits := digitsOf(value)
	if len(digits) != 12 {
		return maskPartial(value)
	}
	return "XXXX-XXXX-" + digits[8:]
}

// MaskCard never reveals more than the last four digits of a payment card
// number, regardless of input length or separators.
func MaskCard(value string) string {
	digits := digitsOf(value)
	if len(digits) < 4 {
		return strings.Repeat("*", len(value))
	}
	return "**** **** **** " + digits[len(digits)-4:]
}

func digitsOf(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// maskByFieldName dispatches to a specialized masker when the field name
// suggests a known sensitive format, else applies the rule's generic mode.
func maskByFieldName(fieldName, value string, rule Rule) string {
	name := strings.ToLower(fieldName)
	switch {
	case strings.Contains(name, "email"):
		return MaskEmail(value)
	case strings.Contains(name, "phone"):
		return MaskPhone(value)
	case strings.Contains(name, "aadhaar"):
		return MaskAadhaar(value)
	case strings.Contains(name, "pan"):
		return MaskPAN(value)
	case strings.Contains(name, "card"):
		return MaskCard(value)
	default:
		return MaskValue(value, rule)
	}
}
