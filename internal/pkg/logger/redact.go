package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com".
// A display-name form ("Jane <jane@x.io>") is reduced to its address first.
func RedactEmail(email string) string {
	if lt := strings.LastIndex(email, "<"); lt >= 0 {
		email = strings.TrimSuffix(email[lt+1:], ">")
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***@***"
	}
	name, domain := email[:at], email[at+1:]
	if len(name) > 2 {
		return name[:2] + "***@" + domain
	}
	return "***@" + domain
}
