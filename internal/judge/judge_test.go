package judge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	t.Run("with candidates", func(t *testing.T) {
		system, user := buildPrompt("must hold ISO 9001 certification", []Candidate{
			{ResponseID: "r1", Text: "we are ISO 9001:2015 certified", Score: 0.7},
			{ResponseID: "r2", Text: "our QA process is audited yearly", Score: 0.3},
		})

		assert.Contains(t, system, `"judgment"`)
		assert.Contains(t, system, `"confidence"`)
		assert.Contains(t, system, `"reason"`)
		assert.Contains(t, system, `"evidence_quote"`)
		assert.Contains(t, system, `"unclear"`)

		assert.Contains(t, user, "must hold ISO 9001 certification")
		assert.Contains(t, user, "we are ISO 9001:2015 certified")
		assert.Contains(t, user, "similarity 0.70")
	})

	t.Run("system prompt forbids assuming facts", func(t *testing.T) {
		system, _ := buildPrompt("anything", nil)
		assert.Contains(t, system, "never assume")
		assert.Contains(t, system, `not "satisfied"`)
	})
}

func TestBuildPromptLargeCandidate(t *testing.T) {
	long := strings.Repeat("条款", 2000)
	_, user := buildPrompt("req", []Candidate{{Text: long}})
	assert.Contains(t, user, long)
}
