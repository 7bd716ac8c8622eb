package clean

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// extractionFailedMarkers are literal strings emitted by upstream proxies,
// compression middleware, or CDNs in place of real content.
var extractionFailedMarkers = []string{
	"content not available",
	"unable to decompress",
	"compression error",
	"proxy error",
	"access denied by edge",
	"please enable javascript",
}

// IsGarbage reports whether text looks like corrupted or failed extraction
// output rather than real article content.
func IsGarbage(text string) bool {
	if text == "" {
		return true
	}

	if nonPrintableRatio(text) > 0.08 {
		return true
	}

	if hasConsecutiveControlRun(text, 3) {
		return true
	}

	lower := strings.ToLower(text)
	for _, marker := range extractionFailedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	if len(text) > 200 && topTokenDominates(text, 0.25) {
		return true
	}

	return false
}

func nonPrintableRatio(text string) float64 {
	total := 0
	bad := 0
	for _, r := range text {
		total++
		if r == utf8.RuneError || (!unicode.IsPrint(r) && !unicode.IsSpace(r)) {
			bad++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(bad) / float64(total)
}

func hasConsecutiveControlRun(text string, runLength int) bool {
	run := 0
	for _, r := range text {
		if (!unicode.IsPrint(r) && !unicode.IsSpace(r)) || r == utf8.RuneError {
			run++
			if run >= runLength {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func topTokenDominates(text string, threshold float64) bool {
	tokens := wordPattern.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		return false
	}
	counts := make(map[string]int, len(tokens))
	top := 0
	for _, tok := range tokens {
		counts[tok]++
		if counts[tok] > top {
			top = counts[tok]
		}
	}
	return float64(top)/float64(len(tokens)) > threshold
}
