package clean

import (
	"net/url"
	"strings"
)

const (
	minTitleLen   = 5
	maxTitleLen   = 500
	minContentLen = 50
)

// Validate checks the candidate title/content/url against the field
// validation rules. A non-empty issues slice means the candidate must be
// rejected with taskerr.KindValidation.
func Validate(title, content, rawURL string) []string {
	var issues []string

	trimmedTitle := strings.TrimSpace(title)
	if len(trimmedTitle) < minTitleLen || len(trimmedTitle) > maxTitleLen {
		issues = append(issues, "title must be between 5 and 500 characters")
	}

	if len(strings.TrimSpace(content)) < minContentLen {
		issues = append(issues, "content must have at least 50 characters of readable text")
	}

	if IsGarbage(content) {
		issues = append(issues, "content failed garbage detection")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		issues = append(issues, "url must use http or https scheme")
	}

	return issues
}
