// Package engine implements the review pipeline: candidate matching,
// rule evaluation (presence/validity, numeric, semantic, cross-field
// consistency), evidence assembly, and run orchestration. The governing
// principle across every path is that ambiguity or missing evidence never
// resolves to PASS.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/katescodes/bidaudit/internal/judge"
	"github.com/katescodes/bidaudit/internal/match"
	"github.com/katescodes/bidaudit/internal/models"
	"github.com/katescodes/bidaudit/internal/store"
)

// Orchestrator drives review runs end to end. All dependencies are injected;
// the judge may be nil, in which case semantic requirements degrade to
// PENDING.
type Orchestrator struct {
	store   store.Store
	judge   judge.Judge
	cfg     Config
	logger  *zap.Logger
	matcher *match.Matcher
}

// New creates an Orchestrator. A nil logger falls back to a no-op logger.
func New(s store.Store, j judge.Judge, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Orchestrator{
		store:   s,
		judge:   j,
		cfg:     cfg,
		logger:  logger,
		matcher: match.New(cfg.TopK),
	}
}

// itemContext carries one requirement's evaluation through the pipeline
// stages until persistence.
type itemContext struct {
	req        *models.Requirement
	item       *models.ReviewItem
	matched    *models.BidResponseItem
	candidates []models.Candidate
	result     evalResult
	semantic   bool
}

// Run executes one review run for a project and bidder: two batched reads,
// per-requirement matching and evaluation, a bounded-concurrency semantic
// phase, one batched evidence lookup, and one bulk write (retried once).
// A failure on one requirement degrades that item to PENDING and the run
// continues. The run is marked committed only after a clean end.
func (o *Orchestrator) Run(ctx context.Context, projectID, bidderName string) (*models.ReviewRun, error) {
	// A re-submitted project+bidder supersedes any stale running run so its
	// partial results are never read as final.
	if n, err := o.store.SupersedeRunningRuns(ctx, projectID, bidderName); err != nil {
		return nil, fmt.Errorf("supersede prior runs: %w", err)
	} else if n > 0 {
		o.logger.Info("superseded stale running runs", zap.Int64("count", n))
	}

	run := &models.ReviewRun{ProjectID: projectID, BidderName: bidderName}
	if err := o.store.CreateReviewRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create review run: %w", err)
	}

	log := o.logger.With(
		zap.String("review_run_id", run.ID),
		zap.String("project_id", projectID),
		zap.String("bidder_name", bidderName),
	)

	// Two batched reads; nothing else touches the store until evidence
	// assembly and the final bulk write.
	requirements, err := o.store.ListRequirements(ctx, projectID)
	if err != nil {
		return o.failRun(ctx, run, fmt.Errorf("load requirements: %w", err))
	}
	responses, err := o.store.ListBidResponses(ctx, projectID, bidderName)
	if err != nil {
		return o.failRun(ctx, run, fmt.Errorf("load bid responses: %w", err))
	}
	log.Info("run started",
		zap.Int("requirements", len(requirements)),
		zap.Int("responses", len(responses)))

	responsesByID := make(map[string]*models.BidResponseItem, len(responses))
	for _, r := range responses {
		responsesByID[r.ID] = r
	}

	items := make([]*itemContext, 0, len(requirements))
	var semanticItems []*itemContext

	for _, req := range requirements {
		ic := &itemContext{
			req: req,
			item: &models.ReviewItem{
				ReviewRunID:   run.ID,
				RequirementID: req.ID,
				State:         models.ItemStateCreated,
			},
		}
		items = append(items, ic)

		ic.candidates = o.matcher.Rank(req, candidatePool(req, responses))
		ic.item.RuleTrace = models.RuleTrace{Candidates: ic.candidates}
		ic.item.State = models.ItemStateCandidateMatched

		if o.isSemantic(req) {
			ic.semantic = true
			semanticItems = append(semanticItems, ic)
			continue
		}

		ic.result = o.evaluateOne(req, ic.candidates, responses, responsesByID)
		o.finishEvaluation(ic, responsesByID, log)
	}

	// Semantic phase: independent judge calls with bounded concurrency and
	// per-call timeouts.
	o.runSemanticPhase(ctx, semanticItems, responsesByID, log)

	if ctx.Err() != nil {
		// A superseded or cancelled run must not be committed.
		return o.failRun(context.WithoutCancel(ctx), run, fmt.Errorf("run cancelled: %w", ctx.Err()))
	}

	if err := attachEvidence(ctx, o.store, items); err != nil {
		return o.failRun(ctx, run, fmt.Errorf("attach evidence: %w", err))
	}

	reviewItems := make([]*models.ReviewItem, len(items))
	for i, ic := range items {
		ic.item.State = models.ItemStatePersisted
		reviewItems[i] = ic.item
	}

	if err := o.store.BulkCreateReviewItems(ctx, reviewItems); err != nil {
		log.Warn("bulk write failed, retrying once", zap.Error(err))
		if err2 := o.store.BulkCreateReviewItems(ctx, reviewItems); err2 != nil {
			for _, ic := range items {
				ic.item.State = models.ItemStateFailedToPersist
			}
			return o.failRun(ctx, run, fmt.Errorf("persist review items: %w", err2))
		}
	}

	run.Status = models.RunStatusCommitted
	run.ItemCount = len(reviewItems)
	for _, item := range reviewItems {
		switch item.Status {
		case models.StatusFail:
			run.FailCount++
		case models.StatusPending:
			run.PendingCount++
		}
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	if err := o.store.UpdateReviewRun(ctx, run); err != nil {
		return run, fmt.Errorf("commit review run: %w", err)
	}

	log.Info("run committed",
		zap.Int("items", run.ItemCount),
		zap.Int("fail", run.FailCount),
		zap.Int("pending", run.PendingCount))
	return run, nil
}

// candidatePool narrows the response pool to the requirement's dimension
// when any responses carry it; otherwise the full pool is ranked.
func candidatePool(req *models.Requirement, responses []*models.BidResponseItem) []*models.BidResponseItem {
	if req.Dimension == "" {
		return responses
	}
	var pool []*models.BidResponseItem
	for _, r := range responses {
		if r.Dimension == req.Dimension {
			pool = append(pool, r)
		}
	}
	if len(pool) == 0 {
		return responses
	}
	return pool
}

// isSemantic reports whether the requirement needs the external judge.
func (o *Orchestrator) isSemantic(req *models.Requirement) bool {
	if req.EvalMethod == "consistency" {
		return false
	}
	switch req.ReqType {
	case models.ReqTypeSemantic:
		return true
	case models.ReqTypeNumeric, models.ReqTypePresence, models.ReqTypeValidity:
		return false
	default:
		// Untyped soft requirements are ambiguous and escalate; hard ones
		// fall back to the deterministic presence gate instead.
		return !req.IsHard
	}
}

// evaluateOne routes a non-semantic requirement to its evaluator. A panic
// inside an evaluator is contained here: the item degrades to PENDING with
// evaluator "error" and the run continues.
func (o *Orchestrator) evaluateOne(req *models.Requirement, candidates []models.Candidate, responses []*models.BidResponseItem, responsesByID map[string]*models.BidResponseItem) (res evalResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("evaluator crashed",
				zap.String("requirement_id", req.ID),
				zap.Any("panic", r))
			res = evalResult{
				status:        models.StatusPending,
				evaluator:     EvaluatorError,
				computedTrace: models.ComputedTrace{"error": fmt.Sprint(r)},
				remark:        "evaluation failed; needs manual review",
			}
		}
	}()

	var best *models.BidResponseItem
	if len(candidates) > 0 {
		best = responsesByID[candidates[0].ResponseID]
	}

	if req.EvalMethod == "consistency" {
		return o.evaluateConsistency(req, responses)
	}

	switch req.ReqType {
	case models.ReqTypeNumeric:
		return evaluateNumeric(req, best)
	case models.ReqTypeValidity:
		return evaluateValidity(req, best)
	case models.ReqTypePresence:
		return evaluatePresence(req, candidates, o.cfg.MinSimilarity)
	default:
		// Hard requirement without a usable eval method: default to the
		// presence gate rather than skipping it.
		return evaluatePresence(req, candidates, o.cfg.MinSimilarity)
	}
}

// finishEvaluation folds an evaluator result into the review item.
func (o *Orchestrator) finishEvaluation(ic *itemContext, responsesByID map[string]*models.BidResponseItem, log *zap.Logger) {
	res := ic.result
	item := ic.item

	item.Status = res.status
	item.Evaluator = res.evaluator
	item.ComputedTrace = res.computedTrace
	item.Remark = res.remark
	item.MatchedResponseID = res.matchedResponseID
	if res.matchedResponseID != nil {
		ic.matched = responsesByID[*res.matchedResponseID]
	} else if len(ic.candidates) > 0 && res.evaluator != EvaluatorHardGate {
		// Keep the best candidate's evidence reachable for audit even when
		// the evaluator did not confirm a match.
		ic.matched = responsesByID[ic.candidates[0].ResponseID]
	}
	item.State = models.ItemStateEvaluated

	log.Debug("requirement evaluated",
		zap.String("requirement_id", ic.req.ID),
		zap.String("evaluator", item.Evaluator),
		zap.String("status", string(item.Status)))
}

// runSemanticPhase evaluates semantic items with at most JudgeConcurrency
// in-flight judge calls. Each call carries its own timeout; cancellation of
// the run context abandons the remaining calls.
func (o *Orchestrator) runSemanticPhase(ctx context.Context, items []*itemContext, responsesByID map[string]*models.BidResponseItem, log *zap.Logger) {
	if len(items) == 0 {
		return
	}

	sem := make(chan struct{}, o.cfg.JudgeConcurrency)
	var wg sync.WaitGroup
	for _, ic := range items {
		wg.Add(1)
		go func(ic *itemContext) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				ic.result = evalResult{
					status:        models.StatusPending,
					evaluator:     EvaluatorSemantic,
					computedTrace: models.ComputedTrace{"method": "SEMANTIC", "error": "run cancelled"},
					remark:        "run cancelled before judgment",
				}
				return
			}
			ic.result = o.safeEvaluateSemantic(ctx, ic.req, ic.candidates, responsesByID)
		}(ic)
	}
	wg.Wait()

	for _, ic := range items {
		o.finishEvaluation(ic, responsesByID, log)
	}
}

// safeEvaluateSemantic contains judge panics the same way evaluateOne
// contains deterministic-evaluator panics.
func (o *Orchestrator) safeEvaluateSemantic(ctx context.Context, req *models.Requirement, candidates []models.Candidate, responsesByID map[string]*models.BidResponseItem) (res evalResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("semantic evaluator crashed",
				zap.String("requirement_id", req.ID),
				zap.Any("panic", r))
			res = evalResult{
				status:        models.StatusPending,
				evaluator:     EvaluatorError,
				computedTrace: models.ComputedTrace{"error": fmt.Sprint(r)},
				remark:        "evaluation failed; needs manual review",
			}
		}
	}()
	return o.evaluateSemantic(ctx, req, candidates, responsesByID)
}

// failRun marks the run failed and surfaces the causing error. Items that
// were already committed in an earlier write remain valid.
func (o *Orchestrator) failRun(ctx context.Context, run *models.ReviewRun, cause error) (*models.ReviewRun, error) {
	run.Status = models.RunStatusFailed
	now := time.Now().UTC()
	run.CompletedAt = &now
	if err := o.store.UpdateReviewRun(ctx, run); err != nil {
		o.logger.Error("failed to mark run as failed", zap.Error(err))
	}
	return run, cause
}
