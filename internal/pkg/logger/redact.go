package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "carolina@example.com" → "ca***@example.com"; local parts of two chars
// or fewer are fully masked.
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone masks an E.164 phone number, keeping the country prefix and
// the last two digits: "+573001234567" → "+57********67".
func RedactPhone(phone string) string {
	if len(phone) < 6 || !strings.HasPrefix(phone, "+") {
		return "***"
	}
	prefix := phone[:3]
	suffix := phone[len(phone)-2:]
	return prefix + strings.Repeat("*", len(phone)-5) + suffix
}

// RedactContact masks a value that may be either channel.
func RedactContact(value string) string {
	if strings.Contains(value, "@") {
		return RedactEmail(value)
	}
	if strings.HasPrefix(value, "+") {
		return RedactPhone(value)
	}
	return "***"
}
