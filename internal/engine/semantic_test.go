package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katescodes/bidaudit/internal/judge"
	"github.com/katescodes/bidaudit/internal/models"
)

// fakeJudge returns a canned result, an error, or blocks until its context
// expires.
type fakeJudge struct {
	result *judge.Result
	err    error
	block  bool
	calls  int
	seen   []judge.Candidate
}

func (f *fakeJudge) Judge(ctx context.Context, requirementText string, candidates []judge.Candidate) (*judge.Result, error) {
	f.calls++
	f.seen = candidates
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func semanticReq() *models.Requirement {
	return &models.Requirement{
		ID:              "req-s",
		ReqType:         models.ReqTypeSemantic,
		IsHard:          true,
		RequirementText: "the bidder must commit to on-site support",
	}
}

func semanticFixture() ([]models.Candidate, map[string]*models.BidResponseItem) {
	candidates := []models.Candidate{
		{ResponseID: "r1", Score: 0.5},
		{ResponseID: "r2", Score: 0.3},
		{ResponseID: "r3", Score: 0.2},
		{ResponseID: "r4", Score: 0.1},
	}
	byID := map[string]*models.BidResponseItem{
		"r1": {ID: "r1", ResponseText: "we provide 24/7 on-site support"},
		"r2": {ID: "r2", ResponseText: "support hotline available"},
		"r3": {ID: "r3", ResponseText: "maintenance plan attached"},
		"r4": {ID: "r4", ResponseText: "unrelated"},
	}
	return candidates, byID
}

func TestEvaluateSemantic_NoJudgeIsPending(t *testing.T) {
	o := testOrchestrator(Config{})
	candidates, byID := semanticFixture()

	res := o.evaluateSemantic(context.Background(), semanticReq(), candidates, byID)

	assert.Equal(t, models.StatusPending, res.status, "no judge must never default to PASS")
	assert.Equal(t, EvaluatorSemanticPending, res.evaluator)
}

func TestEvaluateSemantic_SatisfiedHighConfidence(t *testing.T) {
	fj := &fakeJudge{result: &judge.Result{
		Judgment:   judge.VerdictSatisfied,
		Confidence: 0.9,
		Reason:     "explicit on-site support commitment",
	}}
	o := testOrchestrator(Config{})
	o.judge = fj
	candidates, byID := semanticFixture()

	res := o.evaluateSemantic(context.Background(), semanticReq(), candidates, byID)

	assert.Equal(t, models.StatusPass, res.status)
	assert.Equal(t, EvaluatorSemantic, res.evaluator)
	assert.Equal(t, 0.9, res.computedTrace["confidence"])
	require.NotNil(t, res.matchedResponseID)
	assert.Equal(t, "r1", *res.matchedResponseID)
	assert.Len(t, fj.seen, judge.MaxCandidates, "at most 3 candidates reach the judge")
}

func TestEvaluateSemantic_LowConfidenceClamped(t *testing.T) {
	candidates, byID := semanticFixture()

	t.Run("low-confidence pass becomes WARN", func(t *testing.T) {
		o := testOrchestrator(Config{JudgeMinConfidence: 0.6})
		o.judge = &fakeJudge{result: &judge.Result{Judgment: judge.VerdictSatisfied, Confidence: 0.3}}

		res := o.evaluateSemantic(context.Background(), semanticReq(), candidates, byID)
		assert.Equal(t, models.StatusWarn, res.status)
		assert.Equal(t, true, res.computedTrace["clamped"])
	})

	t.Run("low-confidence fail becomes PENDING", func(t *testing.T) {
		o := testOrchestrator(Config{JudgeMinConfidence: 0.6})
		o.judge = &fakeJudge{result: &judge.Result{Judgment: judge.VerdictNotSatisfied, Confidence: 0.3}}

		res := o.evaluateSemantic(context.Background(), semanticReq(), candidates, byID)
		assert.Equal(t, models.StatusPending, res.status)
	})
}

func TestEvaluateSemantic_NotSatisfied(t *testing.T) {
	candidates, byID := semanticFixture()
	o := testOrchestrator(Config{})
	o.judge = &fakeJudge{result: &judge.Result{Judgment: judge.VerdictNotSatisfied, Confidence: 0.9}}

	res := o.evaluateSemantic(context.Background(), semanticReq(), candidates, byID)
	assert.Equal(t, models.StatusFail, res.status, "hard requirement, confident rejection")

	soft := semanticReq()
	soft.IsHard = false
	res = o.evaluateSemantic(context.Background(), soft, candidates, byID)
	assert.Equal(t, models.StatusWarn, res.status)
}

func TestEvaluateSemantic_UnclearIsPending(t *testing.T) {
	candidates, byID := semanticFixture()
	o := testOrchestrator(Config{})
	o.judge = &fakeJudge{result: &judge.Result{Judgment: judge.VerdictUnclear, Confidence: 0.9}}

	res := o.evaluateSemantic(context.Background(), semanticReq(), candidates, byID)
	assert.Equal(t, models.StatusPending, res.status)
}

func TestEvaluateSemantic_TimeoutIsPending(t *testing.T) {
	candidates, byID := semanticFixture()
	o := testOrchestrator(Config{JudgeTimeout: 10 * time.Millisecond})
	o.judge = &fakeJudge{block: true}

	res := o.evaluateSemantic(context.Background(), semanticReq(), candidates, byID)
	assert.Equal(t, models.StatusPending, res.status, "timeout must degrade, not block or PASS")
	assert.Contains(t, res.remark, "timed out")
}

func TestEvaluateSemantic_JudgeErrorIsPending(t *testing.T) {
	candidates, byID := semanticFixture()
	o := testOrchestrator(Config{})
	o.judge = &fakeJudge{err: errors.New("boom")}

	res := o.evaluateSemantic(context.Background(), semanticReq(), candidates, byID)
	assert.Equal(t, models.StatusPending, res.status)
}

// flakyJudge fails a fixed number of calls before answering.
type flakyJudge struct {
	failures int
	calls    int
	result   *judge.Result
}

func (f *flakyJudge) Judge(ctx context.Context, requirementText string, candidates []judge.Candidate) (*judge.Result, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient")
	}
	return f.result, nil
}

func TestEvaluateSemantic_TransientErrorRetriedOnce(t *testing.T) {
	candidates, byID := semanticFixture()
	o := testOrchestrator(Config{})
	fj := &flakyJudge{failures: 1, result: &judge.Result{Judgment: judge.VerdictSatisfied, Confidence: 0.9}}
	o.judge = fj

	res := o.evaluateSemantic(context.Background(), semanticReq(), candidates, byID)
	assert.Equal(t, models.StatusPass, res.status)
	assert.Equal(t, 2, fj.calls, "one retry after a transient error")
}
