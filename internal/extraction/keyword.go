package extraction

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"dinemate/internal/preference/models"
)

// Keyword extraction confidence levels. Keyword hits are weaker evidence
// than an LLM judgment, and taste descriptors are weaker than explicit
// cuisine names.
const (
	confidenceCuisine = 0.7
	confidenceDietary = 0.85
	confidencePrice   = 0.75
	confidenceAmbient = 0.6
	confidenceRadius  = 0.8
)

var cuisineTerms = []string{
	"pizza", "burger", "sushi", "taco", "pasta", "chinese", "italian",
	"mexican", "indian", "thai", "japanese", "korean", "vietnamese",
	"american", "french", "mediterranean", "bbq", "seafood", "steakhouse",
	"ramen", "greek", "turkish", "lebanese", "ethiopian",
}

var dietaryTerms = []string{
	"vegetarian", "vegan", "gluten-free", "gluten free", "halal", "kosher",
	"dairy-free", "dairy free", "nut allergy", "pescatarian",
}

// priceTerms map budget vocabulary to the tier ceiling (1 cheapest .. 4
// priciest), following the $..$$$$ convention of venue APIs.
var priceTerms = map[string]int{
	"cheap":       1,
	"budget":      1,
	"affordable":  2,
	"mid-range":   2,
	"moderate":    2,
	"pricey":      3,
	"expensive":   3,
	"upscale":     3,
	"fine dining": 4,
	"splurge":     4,
}

var ambienceTerms = []string{
	"quiet", "cozy", "romantic", "lively", "casual", "fancy", "outdoor",
	"rooftop", "family-friendly", "trendy", "dive",
}

// negationPattern catches a denial shortly before a term: "not", "no",
// "don't want", "anything but", "no longer", "stopped being".
var negationPattern = regexp.MustCompile(
	`\b(?:not?|don'?t (?:want|like|do)|no longer|stopped being|anything but|can'?t do|hate)\b`)

// dollarPattern and radiusPattern pull explicit amounts out of free text.
var (
	dollarPattern = regexp.MustCompile(`\$(\d+)`)
	radiusPattern = regexp.MustCompile(`\bwithin (\d+)\s*(?:km|kilometers?|miles?|mi)\b`)
	budgetPattern = regexp.MustCompile(`\b(?:budget|spend|under|around|about) (?:of )?\$?(\d+)\b`)
)

// KeywordAnalyzer extracts drafts by lexicon and pattern matching. It is
// deliberately conservative: precision over recall, because every false
// signal pollutes a user's resolved state for weeks of decay.
type KeywordAnalyzer struct{}

// NewKeywordAnalyzer creates the fallback analyzer.
func NewKeywordAnalyzer() *KeywordAnalyzer {
	return &KeywordAnalyzer{}
}

func (a *KeywordAnalyzer) Analyze(ctx context.Context, content string) ([]SignalDraft, error) {
	text := strings.ToLower(content)
	drafts := []SignalDraft{}

	for _, term := range cuisineTerms {
		if idx := indexOfTerm(text, term); idx >= 0 {
			drafts = append(drafts, SignalDraft{
				Dimension:  models.DimensionCuisine,
				Value:      normalizeTerm(term),
				Polarity:   polarityAround(text, idx),
				Confidence: confidenceCuisine,
			})
		}
	}

	for _, term := range dietaryTerms {
		if idx := indexOfTerm(text, term); idx >= 0 {
			drafts = append(drafts, SignalDraft{
				Dimension:  models.DimensionDietaryRestriction,
				Value:      normalizeTerm(term),
				Polarity:   polarityAround(text, idx),
				Confidence: confidenceDietary,
			})
		}
	}

	if tier, idx, ok := a.priceTier(text); ok {
		drafts = append(drafts, SignalDraft{
			Dimension:  models.DimensionBudgetTier,
			Value:      strconv.Itoa(tier),
			Polarity:   polarityAround(text, idx),
			Confidence: confidencePrice,
		})
	}

	for _, term := range ambienceTerms {
		if idx := indexOfTerm(text, term); idx >= 0 {
			drafts = append(drafts, SignalDraft{
				Dimension:  models.DimensionAmbience,
				Value:      normalizeTerm(term),
				Polarity:   polarityAround(text, idx),
				Confidence: confidenceAmbient,
			})
		}
	}

	if match := radiusPattern.FindStringSubmatch(text); match != nil {
		drafts = append(drafts, SignalDraft{
			Dimension:  models.DimensionLocationRadius,
			Value:      match[1],
			Polarity:   models.PolarityPositive,
			Confidence: confidenceRadius,
		})
	}

	return drafts, nil
}

// priceTier resolves budget vocabulary or explicit amounts to a tier.
// Explicit dollar amounts beat vague vocabulary when both appear.
func (a *KeywordAnalyzer) priceTier(text string) (tier, index int, ok bool) {
	if match := dollarPattern.FindStringSubmatchIndex(text); match != nil {
		amount, _ := strconv.Atoi(text[match[2]:match[3]])
		return amountToTier(amount), match[0], true
	}
	if match := budgetPattern.FindStringSubmatchIndex(text); match != nil {
		amount, _ := strconv.Atoi(text[match[2]:match[3]])
		return amountToTier(amount), match[0], true
	}
	for term, mapped := range priceTerms {
		if idx := strings.Index(text, term); idx >= 0 {
			return mapped, idx, true
		}
	}
	return 0, 0, false
}

// amountToTier maps a per-person dollar amount to the 1..4 tier scale.
func amountToTier(amount int) int {
	switch {
	case amount <= 20:
		return 1
	case amount <= 50:
		return 2
	case amount <= 150:
		return 3
	default:
		return 4
	}
}

// polarityAround reports whether the term at idx sits inside a negation
// window. Only the 30 characters before the term are inspected: "I don't
// want sushi" negates sushi, "sushi is great, no?" does not.
func polarityAround(text string, idx int) models.Polarity {
	start := idx - 30
	if start < 0 {
		start = 0
	}
	if negationPattern.MatchString(text[start:idx]) {
		return models.PolarityNegative
	}
	return models.PolarityPositive
}

// indexOfTerm finds a whole-word occurrence of term.
func indexOfTerm(text, term string) int {
	for offset := 0; ; {
		idx := strings.Index(text[offset:], term)
		if idx < 0 {
			return -1
		}
		idx += offset
		if isWordBoundary(text, idx, len(term)) {
			return idx
		}
		offset = idx + len(term)
	}
}

func isWordBoundary(text string, idx, length int) bool {
	before := idx == 0 || !isWordChar(text[idx-1])
	end := idx + length
	// Tolerate a plural "s" so "tacos" and "burgers" still hit.
	if end < len(text) && text[end] == 's' {
		end++
	}
	after := end >= len(text) || !isWordChar(text[end])
	return before && after
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

// normalizeTerm collapses multiword variants ("gluten free") onto their
// canonical hyphenated value.
func normalizeTerm(term string) string {
	return strings.ReplaceAll(term, " ", "-")
}
