// Package score implements the Processor's quality and threat-hunting
// scoring stages: content-shape heuristics over the cleaned article text.
package score

import (
	"math"
	"regexp"
	"strings"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/utils/text"
)

// RejectFloor is the quality_score below which an article is rejected
// unless its source is trusted (weight > 1.5).
const RejectFloor = 0.3

const freshnessHalfLifeDays = 180

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "to": {}, "in": {}, "on": {}, "and": {},
	"or": {}, "for": {}, "with": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"how": {}, "what": {}, "this": {}, "that": {}, "it": {}, "at": {}, "by": {},
	"as": {}, "from": {}, "be": {}, "has": {}, "have": {}, "new": {},
}

var linkPattern = regexp.MustCompile(`\([a-z]+://[^\s)]+\)`)
var codeBlockPattern = regexp.MustCompile("```|(?m)^ {4}\\S")
var wordPattern = regexp.MustCompile(`[A-Za-z0-9']+`)

// Quality is the weighted combination of the quality-score sub-metrics,
// stored verbatim under Article.Metadata["quality"].
type Quality struct {
	Score                float64 `json:"score"`
	LengthScore          float64 `json:"length_score"`
	LinkDensityScore     float64 `json:"link_density_score"`
	HasCodeBlock         bool    `json:"has_code_block"`
	FreshnessScore       float64 `json:"freshness_score"`
	TitleInformativeness float64 `json:"title_informativeness"`
}

// Compute scores cleaned content 0..1: content length
// (saturating at 2k chars), inverse link density, code-block presence,
// freshness (half-life 180 days), and title informativeness.
func Compute(title, content string, publishedAt *time.Time, now time.Time) Quality {
	// Rune count, not byte length: a CJK-language threat report would
	// otherwise score as if it were 2-3x longer than it reads, since each
	// character spans multiple UTF-8 bytes.
	lengthScore := min1(float64(text.CountRunes(content)) / 2000)

	linkChars := 0
	for _, m := range linkPattern.FindAllString(content, -1) {
		linkChars += len(m)
	}
	linkDensity := 0.0
	if len(content) > 0 {
		linkDensity = float64(linkChars) / float64(len(content))
	}
	linkDensityScore := 1 - min1(linkDensity*4)

	hasCode := codeBlockPattern.MatchString(content)

	freshness := 1.0
	if publishedAt != nil {
		ageDays := now.Sub(*publishedAt).Hours() / 24
		if ageDays > 0 {
			freshness = halfLifeDecay(ageDays, freshnessHalfLifeDays)
		}
	}

	titleScore := titleInformativeness(title)

	q := Quality{
		LengthScore:          lengthScore,
		LinkDensityScore:     linkDensityScore,
		HasCodeBlock:         hasCode,
		FreshnessScore:       freshness,
		TitleInformativeness: titleScore,
	}

	codeBonus := 0.0
	if hasCode {
		codeBonus = 1.0
	}
	q.Score = 0.35*lengthScore + 0.2*linkDensityScore + 0.1*codeBonus + 0.2*freshness + 0.15*titleScore
	return q
}

// Rejected reports whether the score falls below RejectFloor, exempting
// trusted sources per entity.Source.IsTrusted.
func Rejected(q float64, src *entity.Source) bool {
	return q < RejectFloor && !src.IsTrusted()
}

func titleInformativeness(title string) float64 {
	words := wordPattern.FindAllString(strings.ToLower(title), -1)
	if len(words) == 0 {
		return 0
	}
	informative := 0
	for _, w := range words {
		if _, stop := stopwords[w]; !stop {
			informative++
		}
	}
	return float64(informative) / float64(len(words))
}

func halfLifeDecay(ageDays, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 0
	}
	return math.Pow(0.5, ageDays/halfLifeDays)
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
