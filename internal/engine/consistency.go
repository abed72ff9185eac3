package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/katescodes/bidaudit/internal/models"
	"github.com/katescodes/bidaudit/internal/normalize"
)

// evaluateConsistency detects internal contradictions across a bidder's
// response set for one dimension: differing company names, or quoted prices
// and durations that disagree between document sections. Findings are
// conservative — variance yields WARN (or PENDING when unparseable); FAIL
// requires the explicit must-reject policy.
func (o *Orchestrator) evaluateConsistency(req *models.Requirement, pool []*models.BidResponseItem) evalResult {
	kind := resolveConsistencyKind(req.Dimension, req.EvalMethod)
	trace := models.ComputedTrace{"method": "CONSISTENCY", "kind": string(kind)}
	res := evalResult{evaluator: EvaluatorConsistency, computedTrace: trace}

	group := responsesInDimension(req.Dimension, pool)
	if len(group) == 0 {
		trace["compared"] = 0
		res.status = models.StatusPending
		res.remark = "no responses to compare"
		return res
	}
	trace["compared"] = len(group)
	res.matchedResponseID = &group[0].ID
	for _, r := range group {
		res.derivedSegments = append(res.derivedSegments, r.EvidenceSegmentIDs...)
	}

	switch kind {
	case kindPrice:
		return o.checkPriceConsistency(group, trace, res)
	case kindDuration:
		return checkDurationConsistency(group, trace, res)
	default:
		return checkCompanyNameConsistency(group, trace, res)
	}
}

// responsesInDimension returns the responses sharing the requirement's
// dimension, or the whole pool when the dimension is unset.
func responsesInDimension(dimension string, pool []*models.BidResponseItem) []*models.BidResponseItem {
	if dimension == "" {
		return pool
	}
	var group []*models.BidResponseItem
	for _, r := range pool {
		if r.Dimension == dimension {
			group = append(group, r)
		}
	}
	if len(group) == 0 {
		return pool
	}
	return group
}

// responseValueText prefers the structured extracted value over raw text.
func responseValueText(r *models.BidResponseItem) string {
	if r.ExtractedValue != nil && strings.TrimSpace(*r.ExtractedValue) != "" {
		return *r.ExtractedValue
	}
	return r.ResponseText
}

// checkCompanyNameConsistency flags name variance after normalization.
// Spelling and format variance is common, so this is WARN, never FAIL.
func checkCompanyNameConsistency(group []*models.BidResponseItem, trace models.ComputedTrace, res evalResult) evalResult {
	seen := make(map[string]string) // normalized -> original
	for _, r := range group {
		raw := strings.TrimSpace(responseValueText(r))
		if raw == "" {
			continue
		}
		seen[normalize.CompanyName(raw)] = raw
	}

	variants := make([]string, 0, len(seen))
	for _, orig := range seen {
		variants = append(variants, orig)
	}
	sort.Strings(variants)
	trace["distinct_values"] = len(seen)

	if len(seen) == 0 {
		res.status = models.StatusPending
		res.remark = "no company name could be read; needs manual review"
		return res
	}
	if len(seen) > 1 {
		res.status = models.StatusWarn
		res.remark = fmt.Sprintf("company name stated inconsistently across sections: %s", strings.Join(variants, " / "))
		return res
	}
	res.status = models.StatusPass
	return res
}

// checkPriceConsistency compares normalized quoted prices. Relative
// variance within the rounding tolerance is flagged as likely rounding;
// larger variance asks for verification. FAIL only under the configured
// must-reject policy.
func (o *Orchestrator) checkPriceConsistency(group []*models.BidResponseItem, trace models.ComputedTrace, res evalResult) evalResult {
	var values []int64
	for _, r := range group {
		raw := responseValueText(r)
		v, err := normalize.Money(raw)
		if err != nil {
			trace["error"] = err.Error()
			res.status = models.StatusPending
			res.remark = fmt.Sprintf("unparseable quoted price %q; needs manual review", strings.TrimSpace(raw))
			return res
		}
		values = append(values, v)
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	trace["min_minor_units"] = lo
	trace["max_minor_units"] = hi

	if lo == hi {
		res.status = models.StatusPass
		return res
	}

	relDiff := float64(hi-lo) / float64(hi)
	trace["relative_diff"] = relDiff

	if o.cfg.PriceRejectOver > 0 && relDiff > o.cfg.PriceRejectOver {
		res.status = models.StatusFail
		res.remark = fmt.Sprintf("quoted prices differ by %.2f%%, above the must-reject threshold", relDiff*100)
		return res
	}

	res.status = models.StatusWarn
	if relDiff <= o.cfg.PriceRoundingTolerance {
		res.remark = fmt.Sprintf("quoted prices differ by %.2f%%: likely rounding", relDiff*100)
	} else {
		res.remark = fmt.Sprintf("quoted prices differ by %.2f%%: please verify", relDiff*100)
	}
	return res
}

// checkDurationConsistency compares normalized durations in days. Same
// WARN-by-default policy as company names.
func checkDurationConsistency(group []*models.BidResponseItem, trace models.ComputedTrace, res evalResult) evalResult {
	var values []int
	for _, r := range group {
		raw := responseValueText(r)
		v, err := normalize.Duration(raw)
		if err != nil {
			trace["error"] = err.Error()
			res.status = models.StatusPending
			res.remark = fmt.Sprintf("unparseable duration %q; needs manual review", strings.TrimSpace(raw))
			return res
		}
		values = append(values, v)
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	trace["min_days"] = lo
	trace["max_days"] = hi

	if lo != hi {
		res.status = models.StatusWarn
		res.remark = fmt.Sprintf("stated duration varies between %d and %d days across sections: please verify", lo, hi)
		return res
	}
	res.status = models.StatusPass
	return res
}
