// Package judge provides the external semantic judgment capability used when
// a requirement cannot be decided deterministically. The capability is
// optional: callers must treat an absent judge as "cannot decide", never as
// a pass.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Candidate is one ranked bid passage submitted for judgment.
type Candidate struct {
	ResponseID string
	Text       string
	Score      float64
}

// MaxCandidates bounds how many ranked candidates a single judgment sees.
const MaxCandidates = 3

// Verdict values returned by the judge.
const (
	VerdictSatisfied    = "satisfied"
	VerdictNotSatisfied = "not_satisfied"
	VerdictUnclear      = "unclear"
)

// Result is the judge's structured answer.
type Result struct {
	Judgment      string  `json:"judgment"` // satisfied | not_satisfied | unclear
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason"`
	EvidenceQuote string  `json:"evidence_quote"`
}

// Judge decides whether the candidate responses satisfy a requirement.
type Judge interface {
	Judge(ctx context.Context, requirementText string, candidates []Candidate) (*Result, error)
}

// AnthropicJudge implements Judge on the Anthropic Messages API.
type AnthropicJudge struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewAnthropicJudge creates a judge with the given API key and model.
func NewAnthropicJudge(apiKey, model string) *AnthropicJudge {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicJudge{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for one judgment.
func buildPrompt(requirementText string, candidates []Candidate) (system string, user string) {
	system = `You audit bidding documents. Given one tender requirement and up to 3 candidate passages from a bid response, decide whether the bid satisfies the requirement. Return ONLY a JSON object with these fields:
- "judgment": one of "satisfied", "not_satisfied", "unclear"
- "confidence": a number between 0 and 1
- "reason": one or two sentences explaining the judgment
- "evidence_quote": the exact passage from a candidate that supports the judgment (empty string if none)

Rules:
- Judge only from the given passages; never assume facts not present in them
- If the passages do not address the requirement, return "unclear", not "satisfied"
- The evidence_quote must be copied verbatim from a candidate passage
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Requirement:\n")
	sb.WriteString(requirementText)
	sb.WriteString("\n\nCandidate passages:\n")
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. (similarity %.2f) %s\n", i+1, c.Score, c.Text)
	}
	user = sb.String()
	return
}

// Judge sends the requirement and ranked candidates to the model and parses
// the structured verdict. At most MaxCandidates candidates are submitted.
func (j *AnthropicJudge) Judge(ctx context.Context, requirementText string, candidates []Candidate) (*Result, error) {
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}
	systemPrompt, userPrompt := buildPrompt(requirementText, candidates)

	msg, err := j.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     j.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	// Strip markdown fencing if present
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("parse judge response as JSON: %w\nraw response: %s", err, text)
	}

	switch result.Judgment {
	case VerdictSatisfied, VerdictNotSatisfied, VerdictUnclear:
	default:
		return nil, fmt.Errorf("judge returned unknown judgment %q", result.Judgment)
	}

	return &result, nil
}
