package extract

import "regexp"

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// RedactEmails removes email addresses from s.
func RedactEmails(s string) string {
	return emailPattern.ReplaceAllString(s, "")
}
