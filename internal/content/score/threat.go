package score

import (
	"regexp"
	"strings"
)

// ThreatHunting is the additive threat-hunting sub-score breakdown, stored
// verbatim under Article.Metadata["threat_hunting"].
type ThreatHunting struct {
	Score          int      `json:"score"`
	PerfectMatches []string `json:"perfect_matches,omitempty"`
	LOLBASMatches  []string `json:"lolbas_matches,omitempty"`
	GoodMatches    []string `json:"good_matches,omitempty"`
	TechnicalDepth int      `json:"technical_depth"`
	Density        float64  `json:"density"`
}

// perfectDiscriminators: Windows process names, EDR query tables/fields,
// and telemetry schema tokens that almost never appear outside genuine
// threat-hunting or DFIR content.
var perfectDiscriminators = []string{
	"lsass.exe", "mimikatz", "sekurlsa", "wdigest", "ntlmrelay",
	"deviceprocessevents", "deviceregistryevents", "devicenetworkevents",
	"sysmon event id", "winlogbeat", "securityevent", "eventid 4688",
	"process_creation", "query_table", "azuread signinlogs",
}

// lolbasBinaries: the canonical "living off the land" binaries tracked by
// the LOLBAS project.
var lolbasBinaries = []string{
	"rundll32.exe", "regsvr32.exe", "mshta.exe", "certutil.exe",
	"bitsadmin.exe", "wmic.exe", "powershell.exe", "msbuild.exe",
	"installutil.exe", "regasm.exe", "regsvcs.exe", "cscript.exe",
	"wscript.exe", "forfiles.exe", "msiexec.exe",
}

// goodDiscriminators: terms that correlate with technical security content
// without being as unambiguous as the perfect set.
var goodDiscriminators = []string{
	"indicator of compromise", "ioc", "ttps", "mitre att&ck", "apt",
	"c2 server", "command and control", "lateral movement",
	"privilege escalation", "persistence mechanism", "exfiltration",
	"payload", "dropper", "beacon",
}

var (
	cvePattern      = regexp.MustCompile(`(?i)CVE-\d{4}-\d{4,7}`)
	hexPattern      = regexp.MustCompile(`\b(0x[0-9a-fA-F]{4,}|[0-9a-fA-F]{32,64})\b`)
	registryPattern = regexp.MustCompile(`(?i)HKEY_[A-Z_]+\\[^\s]+`)
	winPathPattern  = regexp.MustCompile(`[Cc]:\\[A-Za-z0-9_\\.\s]+`)
	hashPattern     = regexp.MustCompile(`\b[0-9a-fA-F]{32}\b|\b[0-9a-fA-F]{40}\b|\b[0-9a-fA-F]{64}\b`)
)

// ComputeThreatHunting additive-scores content: 15 per
// perfect-discriminator match, 12 per LOLBAS match, 8 per good-discriminator
// match, plus up to 30 for technical depth, capped at 100.
func ComputeThreatHunting(content string) ThreatHunting {
	lower := strings.ToLower(content)

	perfect := matchAll(lower, perfectDiscriminators)
	lolbas := matchAll(lower, lolbasBinaries)
	good := matchAll(lower, goodDiscriminators)

	depth := technicalDepth(content)

	raw := 15*len(perfect) + 12*len(lolbas) + 8*len(good) + depth
	score := raw
	if score > 100 {
		score = 100
	}

	wordCount := len(strings.Fields(content))
	density := 0.0
	if wordCount > 0 {
		density = float64(len(perfect)+len(lolbas)+len(good)) / float64(wordCount)
	}

	return ThreatHunting{
		Score:          score,
		PerfectMatches: perfect,
		LOLBASMatches:  lolbas,
		GoodMatches:    good,
		TechnicalDepth: depth,
		Density:        density,
	}
}

func matchAll(lowerContent string, terms []string) []string {
	var matches []string
	for _, term := range terms {
		if strings.Contains(lowerContent, term) {
			matches = append(matches, term)
		}
	}
	return matches
}

// technicalDepth awards up to 30 points for structural indicators of
// hands-on technical content: CVE references, hex/hash values, registry
// paths, Windows file paths, and fenced code blocks. 6 points per
// indicator present, capped at 30.
func technicalDepth(content string) int {
	indicators := 0
	if cvePattern.MatchString(content) {
		indicators++
	}
	if hexPattern.MatchString(content) {
		indicators++
	}
	if registryPattern.MatchString(content) {
		indicators++
	}
	if winPathPattern.MatchString(content) {
		indicators++
	}
	if hashPattern.MatchString(content) {
		indicators++
	}
	if codeBlockPattern.MatchString(content) {
		indicators++
	}

	depth := indicators * 6
	if depth > 30 {
		depth = 30
	}
	return depth
}
