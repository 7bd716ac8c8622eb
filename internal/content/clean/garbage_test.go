package clean

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsGarbage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", true},
		{"normal prose", "This is a perfectly normal sentence about malware analysis.", false},
		{"extraction failed marker", "Content not available in your region.", true},
		{"replacement characters", strings.Repeat("�", 20) + strings.Repeat("a", 20), true},
		{"repeated token dominance", strings.Repeat("spam ", 60), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsGarbage(tt.text))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		title      string
		content    string
		url        string
		wantIssues bool
	}{
		{"valid", "A Valid Title", strings.Repeat("word ", 20), "https://example.com/a", false},
		{"short title", "Hi", strings.Repeat("word ", 20), "https://example.com/a", true},
		{"short content", "A Valid Title", "too short", "https://example.com/a", true},
		{"bad scheme", "A Valid Title", strings.Repeat("word ", 20), "ftp://example.com/a", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := Validate(tt.title, tt.content, tt.url)
			if tt.wantIssues {
				assert.NotEmpty(t, issues)
			} else {
				assert.Empty(t, issues)
			}
		})
	}
}
