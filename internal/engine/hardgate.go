package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/katescodes/bidaudit/internal/models"
)

// evalResult is what a single evaluator produces for one requirement. The
// orchestrator folds it into the persisted review item.
type evalResult struct {
	status            models.ReviewStatus
	evaluator         string
	matchedResponseID *string
	computedTrace     models.ComputedTrace
	remark            string
	// derivedSegments lists bid-side segments referenced by a
	// cross-field consistency finding.
	derivedSegments []string
}

// failOrWarn maps a defect to FAIL for hard requirements and WARN for soft
// ones. Hard requirements block approval; soft ones flag for review.
func failOrWarn(isHard bool) models.ReviewStatus {
	if isHard {
		return models.StatusFail
	}
	return models.StatusWarn
}

// evaluatePresence checks that at least one candidate clears the similarity
// threshold. A hard requirement with no eval method lands here by default:
// it is never silently skipped.
func evaluatePresence(req *models.Requirement, candidates []models.Candidate, minSimilarity float64) evalResult {
	trace := models.ComputedTrace{"method": "PRESENCE", "min_similarity": minSimilarity}
	res := evalResult{evaluator: EvaluatorHardGate, computedTrace: trace}

	if len(candidates) > 0 {
		trace["best_score"] = candidates[0].Score
	}

	if len(candidates) == 0 || candidates[0].Score < minSimilarity {
		trace["pass"] = false
		res.status = failOrWarn(req.IsHard)
		res.remark = ErrNoCandidate.Error()
		return res
	}

	trace["pass"] = true
	res.status = models.StatusPass
	res.matchedResponseID = &candidates[0].ResponseID
	return res
}

// evaluateValidity validates the best candidate's extracted value against
// the pattern in the value schema. A missing pattern or missing value is
// PENDING: validity cannot be confirmed, so it is never assumed.
func evaluateValidity(req *models.Requirement, best *models.BidResponseItem) evalResult {
	trace := models.ComputedTrace{"method": "VALIDITY"}
	res := evalResult{evaluator: EvaluatorHardGate, computedTrace: trace}

	pattern := ""
	if req.ValueSchema != nil {
		pattern = req.ValueSchema.Pattern
	}
	if pattern == "" {
		trace["error"] = "no validation pattern in value schema"
		res.status = models.StatusPending
		res.remark = "no validation pattern configured"
		return res
	}
	trace["pattern"] = pattern

	re, err := regexp.Compile(pattern)
	if err != nil {
		trace["error"] = fmt.Sprintf("invalid pattern: %v", err)
		res.status = models.StatusPending
		res.remark = "validation pattern does not compile"
		return res
	}

	if best == nil || best.ExtractedValue == nil || strings.TrimSpace(*best.ExtractedValue) == "" {
		trace["pass"] = false
		res.status = models.StatusPending
		res.remark = "no extracted value to validate"
		return res
	}
	value := strings.TrimSpace(*best.ExtractedValue)
	trace["extracted_value"] = value
	res.matchedResponseID = &best.ID

	if !re.MatchString(value) {
		trace["pass"] = false
		res.status = failOrWarn(req.IsHard)
		res.remark = fmt.Sprintf("value %q does not match required format", value)
		return res
	}

	trace["pass"] = true
	res.status = models.StatusPass
	return res
}
