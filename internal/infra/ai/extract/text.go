package extract

import (
	"regexp"
	"sort"
	"strings"
)

// Vocabulary maps a canonical keyword to the surface forms that count as a hit.
type Vocabulary map[string][]string

// PestVocabulary is the fixed pest keyword list.
var PestVocabulary = Vocabulary{
	"aphid":        {"aphid", "aphids", "greenfly"},
	"spider mite":  {"spider mite", "spider mites", "red spider"},
	"whitefly":     {"whitefly", "whiteflies"},
	"thrips":       {"thrips"},
	"mealybug":     {"mealybug", "mealybugs"},
	"scale insect": {"scale insect", "scale insects"},
	"caterpillar":  {"caterpillar", "caterpillars", "hornworm", "armyworm"},
	"fungus gnat":  {"fungus gnat", "fungus gnats"},
	"leafminer":    {"leafminer", "leaf miner", "leaf miners"},
	"slug":         {"slug", "slugs", "snail", "snails"},
}

// DiseaseVocabulary is the fixed disease keyword list.
var DiseaseVocabulary = Vocabulary{
	"powdery mildew": {"powdery mildew"},
	"downy mildew":   {"downy mildew"},
	"blight":         {"blight", "early blight", "late blight"},
	"leaf spot":      {"leaf spot", "leaf spots"},
	"rust":           {"rust"},
	"root rot":       {"root rot"},
	"mosaic virus":   {"mosaic virus", "mosaic"},
	"anthracnose":    {"anthracnose"},
	"gray mold":      {"gray mold", "grey mould", "botrytis"},
	"fusarium wilt":  {"fusarium", "fusarium wilt"},
	"bacterial wilt": {"bacterial wilt"},
}

// KeywordHits returns the canonical keywords of vocab found in text, sorted.
// Matching is case-insensitive and respects word boundaries.
func KeywordHits(text string, vocab Vocabulary) []string {
	lower := strings.ToLower(text)
	var hits []string
	for canonical, forms := range vocab {
		quoted := make([]string, 0, len(forms))
		for _, f := range forms {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(f)))
		}
		re := regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
		if re.MatchString(lower) {
			hits = append(hits, canonical)
		}
	}
	sort.Strings(hits)
	return hits
}

// MinClauseLength filters out fragments too short to be advice.
const MinClauseLength = 20

var (
	sentenceSplit = regexp.MustCompile(`[.!?;\n]+`)
	advicePattern = regexp.MustCompile(`(?i)\b(should|recommend(?:ed|s)?|apply|treat with|consider|ensure)\b`)
	listMarker    = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)
)

// RecommendationClauses returns advice-shaped sentences in text order, deduplicated.
func RecommendationClauses(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range sentenceSplit.Split(text, -1) {
		s = strings.TrimSpace(listMarker.ReplaceAllString(s, ""))
		if len(s) < MinClauseLength || !advicePattern.MatchString(s) {
			continue
		}
		k := strings.ToLower(s)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

// HealthScore derives a coarse 0..100 health score from sentiment keywords.
func HealthScore(text string) int {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "excellent"):
		return 90
	case strings.Contains(lower, "poor"), strings.Contains(lower, "severely"):
		return 30
	case strings.Contains(lower, "moderate"), strings.Contains(lower, "some issues"):
		return 60
	default:
		return 75
	}
}
