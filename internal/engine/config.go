package engine

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/katescodes/bidaudit/internal/match"
)

// Evaluator tags recorded on review items.
const (
	EvaluatorHardGate        = "hard_gate"
	EvaluatorQuant           = "quant_check"
	EvaluatorSemantic        = "semantic_judge"
	EvaluatorSemanticPending = "semantic_pending"
	EvaluatorConsistency     = "consistency_check"
	EvaluatorError           = "error"
)

// Config holds review pipeline tuning knobs.
type Config struct {
	// TopK is how many ranked candidates are kept per requirement.
	TopK int
	// MinSimilarity is the minimal candidate score for a PRESENCE check to
	// count a response as present.
	MinSimilarity float64
	// JudgeConcurrency bounds parallel semantic judge calls per run.
	JudgeConcurrency int
	// JudgeTimeout bounds one judge call; on expiry the item degrades to
	// PENDING instead of blocking the run.
	JudgeTimeout time.Duration
	// JudgeMinConfidence clamps low-confidence verdicts down to WARN or
	// PENDING instead of trusting them.
	JudgeMinConfidence float64
	// PriceRoundingTolerance is the relative price variance treated as
	// likely rounding (default 0.5%).
	PriceRoundingTolerance float64
	// PriceRejectOver, when > 0, is the explicit must-reject policy: price
	// variance above it becomes FAIL. Zero leaves the conservative
	// WARN-only behavior. Configured per ruleset, not hardcoded.
	PriceRejectOver float64
}

// DefaultConfig returns the pipeline config, reading from viper when set.
func DefaultConfig() Config {
	cfg := Config{
		TopK:                   viper.GetInt("review.top_k"),
		MinSimilarity:          viper.GetFloat64("review.min_similarity"),
		JudgeConcurrency:       viper.GetInt("review.judge_concurrency"),
		JudgeTimeout:           viper.GetDuration("review.judge_timeout"),
		JudgeMinConfidence:     viper.GetFloat64("review.judge_min_confidence"),
		PriceRoundingTolerance: viper.GetFloat64("review.price_rounding_tolerance"),
		PriceRejectOver:        viper.GetFloat64("review.price_reject_over"),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = match.DefaultTopK
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = 0.1
	}
	if c.JudgeConcurrency <= 0 {
		c.JudgeConcurrency = 5
	}
	if c.JudgeTimeout <= 0 {
		c.JudgeTimeout = 30 * time.Second
	}
	if c.JudgeMinConfidence <= 0 {
		c.JudgeMinConfidence = 0.6
	}
	if c.PriceRoundingTolerance <= 0 {
		c.PriceRoundingTolerance = 0.005
	}
	return c
}

// consistencyKind classifies which normalization a consistency requirement
// compares with, derived from the requirement's dimension or eval method.
type consistencyKind string

const (
	kindCompanyName consistencyKind = "company_name"
	kindPrice       consistencyKind = "price"
	kindDuration    consistencyKind = "duration"
)

func resolveConsistencyKind(dimension, evalMethod string) consistencyKind {
	s := strings.ToLower(dimension + " " + evalMethod)
	switch {
	case strings.Contains(s, "price") || strings.Contains(s, "报价") || strings.Contains(s, "价格") || strings.Contains(s, "金额"):
		return kindPrice
	case strings.Contains(s, "duration") || strings.Contains(s, "工期") || strings.Contains(s, "schedule") || strings.Contains(s, "期限"):
		return kindDuration
	default:
		return kindCompanyName
	}
}
