package utils

import (
	"regexp"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
)

var replyPrefixRegex = regexp.MustCompile(`(?i)^re\s*(\[\d+\])?\s*:`)

func UniqueEmails(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	unique := make([]string, 0, len(emails))

	for _, email := range emails {
		if _, exists := seen[email]; !exists {
			seen[email] = struct{}{}
			unique = append(unique, email)
		}
	}

	return unique
}

// ReplySubject prefixes subject with "Re: " unless it already carries a reply prefix.
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "Re:"
	}
	if replyPrefixRegex.MatchString(subject) {
		return subject
	}
	return "Re: " + subject
}

// ExtractEmailAddress strips a display name: "Jane <jane@x.com>" -> "jane@x.com".
func ExtractEmailAddress(email string) string {
	email = strings.TrimSpace(email)
	if strings.Contains(email, "<") && strings.Contains(email, ">") {
		startIdx := strings.LastIndex(email, "<") + 1
		endIdx := strings.LastIndex(email, ">")
		if startIdx > 0 && endIdx > startIdx {
			email = email[startIdx:endIdx]
		}
	}
	return strings.TrimSpace(email)
}

// NormalizeEmailAddress returns the lower-cased bare address used for allow-list matching.
func NormalizeEmailAddress(email string) string {
	address := ExtractEmailAddress(email)
	if address == "" {
		return ""
	}
	validation := mailvalidate.ValidateEmailSyntax(address)
	if validation.IsValid && validation.CleanEmail != "" {
		address = validation.CleanEmail
	}
	return strings.ToLower(address)
}

func ExtractDomainFromEmail(email string) string {
	email = ExtractEmailAddress(email)
	if email == "" {
		return ""
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}

	return strings.ToLower(strings.TrimSpace(parts[1]))
}
