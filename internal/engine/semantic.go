package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/katescodes/bidaudit/internal/judge"
	"github.com/katescodes/bidaudit/internal/models"
)

// evaluateSemanticUnavailable degrades a semantic requirement when no judge
// is configured. Hard invariant: required-but-unavailable judgment is
// PENDING, never PASS.
func evaluateSemanticUnavailable() evalResult {
	return evalResult{
		status:        models.StatusPending,
		evaluator:     EvaluatorSemanticPending,
		computedTrace: models.ComputedTrace{"method": "SEMANTIC", "error": ErrJudgeUnavailable.Error()},
		remark:        "semantic judge not configured; needs manual review",
	}
}

// evaluateSemantic invokes the external judge with the requirement text and
// the top-ranked candidates. Timeouts and judge errors degrade to PENDING;
// low-confidence verdicts are clamped down rather than trusted.
func (o *Orchestrator) evaluateSemantic(ctx context.Context, req *models.Requirement, candidates []models.Candidate, responses map[string]*models.BidResponseItem) evalResult {
	if o.judge == nil {
		o.logger.Warn("semantic requirement with no judge configured",
			zap.String("requirement_id", req.ID))
		return evaluateSemanticUnavailable()
	}

	trace := models.ComputedTrace{"method": "SEMANTIC"}
	res := evalResult{evaluator: EvaluatorSemantic, computedTrace: trace}

	jc := make([]judge.Candidate, 0, judge.MaxCandidates)
	for _, c := range candidates {
		if len(jc) == judge.MaxCandidates {
			break
		}
		r, ok := responses[c.ResponseID]
		if !ok {
			continue
		}
		jc = append(jc, judge.Candidate{ResponseID: r.ID, Text: r.ResponseText, Score: c.Score})
	}

	verdict, err := o.judgeWithRetry(ctx, req.RequirementText, jc)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			o.logger.Warn("semantic judge call timed out",
				zap.String("requirement_id", req.ID),
				zap.Duration("timeout", o.cfg.JudgeTimeout))
			trace["error"] = "judge timeout"
			res.remark = "semantic judge timed out; needs manual review"
		} else {
			o.logger.Warn("semantic judge call failed",
				zap.String("requirement_id", req.ID), zap.Error(err))
			trace["error"] = err.Error()
			res.remark = "semantic judge failed; needs manual review"
		}
		res.status = models.StatusPending
		return res
	}

	trace["judgment"] = verdict.Judgment
	trace["confidence"] = verdict.Confidence
	trace["reason"] = verdict.Reason
	trace["evidence_quote"] = verdict.EvidenceQuote
	if len(jc) > 0 {
		res.matchedResponseID = &jc[0].ResponseID
	}
	res.remark = verdict.Reason

	var status models.ReviewStatus
	switch verdict.Judgment {
	case judge.VerdictSatisfied:
		status = models.StatusPass
	case judge.VerdictNotSatisfied:
		status = failOrWarn(req.IsHard)
	default:
		status = models.StatusPending
	}

	if verdict.Confidence < o.cfg.JudgeMinConfidence {
		trace["clamped"] = true
		switch status {
		case models.StatusPass:
			status = models.StatusWarn
		case models.StatusFail:
			status = models.StatusPending
		}
	}

	res.status = status
	return res
}

// judgeWithRetry calls the judge with a per-call timeout and retries once on
// a transient error. Timeouts and cancellations are not retried: a slow
// judge degrades the item to PENDING instead of doubling the wait.
func (o *Orchestrator) judgeWithRetry(ctx context.Context, requirementText string, candidates []judge.Candidate) (*judge.Result, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.JudgeTimeout)
		verdict, err := o.judge.Judge(callCtx, requirementText, candidates)
		cancel()
		if err == nil {
			return verdict, nil
		}
		lastErr = err
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}
