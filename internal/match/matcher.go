// Package match ranks bid response items against a requirement by lexical
// similarity. The ranked list is part of the audit trail: it is recorded for
// every requirement, even when the best score is zero.
package match

import (
	"sort"
	"strings"
	"unicode"

	"github.com/katescodes/bidaudit/internal/models"
)

// MethodJaccard names the scoring method recorded in rule traces.
const MethodJaccard = "jaccard"

// DefaultTopK is the number of candidates kept per requirement.
const DefaultTopK = 5

// Matcher scores responses against requirement text.
type Matcher struct {
	topK int
}

// New creates a Matcher keeping the top K candidates; k <= 0 uses DefaultTopK.
func New(k int) *Matcher {
	if k <= 0 {
		k = DefaultTopK
	}
	return &Matcher{topK: k}
}

// Rank scores every response against the requirement and returns the top-K
// candidates in descending score order. Ties keep the responses' original
// order. The result is non-empty whenever responses is non-empty.
func (m *Matcher) Rank(req *models.Requirement, responses []*models.BidResponseItem) []models.Candidate {
	reqTokens := Tokenize(req.RequirementText)

	candidates := make([]models.Candidate, 0, len(responses))
	for _, r := range responses {
		candidates = append(candidates, models.Candidate{
			ResponseID: r.ID,
			Score:      Jaccard(reqTokens, Tokenize(r.ResponseText)),
			Method:     MethodJaccard,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > m.topK {
		candidates = candidates[:m.topK]
	}
	return candidates
}

// Tokenize splits text into a token set. Latin-script runs split on
// whitespace and punctuation; for text with no space-separable tokens
// (CJK and similar scripts) it falls back to character bigrams.
func Tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	lower := strings.ToLower(text)

	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	var cjk []rune
	for _, w := range words {
		runes := []rune(w)
		if isCJK(runes) {
			cjk = append(cjk, runes...)
			continue
		}
		tokens[w] = struct{}{}
	}

	// Character bigrams for scripts without whitespace segmentation.
	if len(cjk) == 1 {
		tokens[string(cjk)] = struct{}{}
	}
	for i := 0; i+1 < len(cjk); i++ {
		tokens[string(cjk[i:i+2])] = struct{}{}
	}

	return tokens
}

// Jaccard returns |a ∩ b| / |a ∪ b|; two empty sets score 0.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func isCJK(runes []rune) bool {
	for _, r := range runes {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}
