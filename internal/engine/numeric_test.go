package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katescodes/bidaudit/internal/models"
)

func floatPtr(v float64) *float64 { return &v }
func strPtr(s string) *string     { return &s }

func numericReq(schema *models.ValueSchema, text string) *models.Requirement {
	return &models.Requirement{
		ID:              "req-1",
		ReqType:         models.ReqTypeNumeric,
		IsHard:          true,
		ValueSchema:     schema,
		RequirementText: text,
	}
}

func respWithValue(value string) *models.BidResponseItem {
	return &models.BidResponseItem{ID: "resp-1", ExtractedValue: &value}
}

func TestResolveThreshold_SchemaWinsOverText(t *testing.T) {
	req := numericReq(&models.ValueSchema{Minimum: floatPtr(30)}, "not less than 99 days")
	th, err := resolveThreshold(req)
	require.NoError(t, err)
	assert.Equal(t, ThresholdSourceSchema, th.source)
	assert.Equal(t, 30.0, *th.min)
	assert.Nil(t, th.max)
}

func TestParseThresholdText(t *testing.T) {
	tests := []struct {
		text string
		min  *float64
		max  *float64
		cnst *float64
	}{
		{"not less than 30 days", floatPtr(30), nil, nil},
		{"at least 5 years of experience", floatPtr(5), nil, nil},
		{"no more than 1,000 units", nil, floatPtr(1000), nil},
		{"between 30 and 90 days", floatPtr(30), floatPtr(90), nil},
		{"工期不少于30天", floatPtr(30), nil, nil},
		{"工期不超过90天", nil, floatPtr(90), nil},
		{"质保期2年以上", floatPtr(2), nil, nil},
		{"交货期30天以内", nil, floatPtr(30), nil},
		{"30至90天", floatPtr(30), floatPtr(90), nil},
		{"保证金必须为50000", nil, nil, floatPtr(50000)},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			th, err := parseThresholdText(tt.text)
			require.NoError(t, err)
			assert.Equal(t, ThresholdSourceTextParse, th.source)
			if tt.min != nil {
				require.NotNil(t, th.min)
				assert.Equal(t, *tt.min, *th.min)
			}
			if tt.max != nil {
				require.NotNil(t, th.max)
				assert.Equal(t, *tt.max, *th.max)
			}
			if tt.cnst != nil {
				require.NotNil(t, th.cnst)
				assert.Equal(t, *tt.cnst, *th.cnst)
			}
		})
	}
}

func TestParseThresholdText_Unresolvable(t *testing.T) {
	_, err := parseThresholdText("quality must be excellent")
	assert.ErrorIs(t, err, ErrThresholdUnresolved)
}

// Scenario: schema {min:30, max:90}, extracted value 60 → PASS with full trace.
func TestEvaluateNumeric_WithinRange(t *testing.T) {
	req := numericReq(&models.ValueSchema{Minimum: floatPtr(30), Maximum: floatPtr(90)}, "")
	res := evaluateNumeric(req, respWithValue("60"))

	assert.Equal(t, models.StatusPass, res.status)
	assert.Equal(t, EvaluatorQuant, res.evaluator)
	assert.Equal(t, "NUMERIC", res.computedTrace["method"])
	assert.Equal(t, 30.0, res.computedTrace["required_min"])
	assert.Equal(t, 90.0, res.computedTrace["required_max"])
	assert.Equal(t, 60.0, res.computedTrace["extracted_value"])
	assert.Equal(t, ThresholdSourceSchema, res.computedTrace["source"])
	assert.Equal(t, true, res.computedTrace["pass"])
}

// Scenario: same schema, value 10 → FAIL below minimum.
func TestEvaluateNumeric_BelowMinimum(t *testing.T) {
	req := numericReq(&models.ValueSchema{Minimum: floatPtr(30), Maximum: floatPtr(90)}, "")
	res := evaluateNumeric(req, respWithValue("10"))

	assert.Equal(t, models.StatusFail, res.status)
	assert.Contains(t, res.remark, "below minimum")
	assert.Equal(t, false, res.computedTrace["pass"])
}

func TestEvaluateNumeric_AboveMaximum(t *testing.T) {
	req := numericReq(&models.ValueSchema{Maximum: floatPtr(90)}, "")
	res := evaluateNumeric(req, respWithValue("120"))

	assert.Equal(t, models.StatusFail, res.status)
	assert.Contains(t, res.remark, "above maximum")
}

func TestEvaluateNumeric_ConstMismatch(t *testing.T) {
	req := numericReq(&models.ValueSchema{Const: floatPtr(50000)}, "")
	res := evaluateNumeric(req, respWithValue("40000"))

	assert.Equal(t, models.StatusFail, res.status)
}

// Scenario: threshold and value both parsed from text → PASS, source "text_parse".
func TestEvaluateNumeric_TextParseFallback(t *testing.T) {
	req := numericReq(nil, "not less than 30 days")
	resp := &models.BidResponseItem{ID: "resp-1", ResponseText: "will complete within 45 days"}

	res := evaluateNumeric(req, resp)

	assert.Equal(t, models.StatusPass, res.status)
	assert.Equal(t, ThresholdSourceTextParse, res.computedTrace["source"])
	assert.Equal(t, 30.0, res.computedTrace["required_min"])
	assert.Equal(t, 45.0, res.computedTrace["extracted_value"])
	assert.Equal(t, true, res.computedTrace["pass"])
}

func TestEvaluateNumeric_NoThreshold_Pending(t *testing.T) {
	req := numericReq(nil, "must be reasonable")
	res := evaluateNumeric(req, respWithValue("60"))

	assert.Equal(t, models.StatusPending, res.status, "unresolvable threshold must never PASS")
	assert.Equal(t, "insufficient basis for comparison", res.remark)
}

func TestEvaluateNumeric_NoValue_Pending(t *testing.T) {
	req := numericReq(&models.ValueSchema{Minimum: floatPtr(30)}, "")

	t.Run("no matched response", func(t *testing.T) {
		res := evaluateNumeric(req, nil)
		assert.Equal(t, models.StatusPending, res.status)
		assert.Equal(t, false, res.computedTrace["pass"])
	})

	t.Run("response without a number", func(t *testing.T) {
		res := evaluateNumeric(req, &models.BidResponseItem{ID: "r", ResponseText: "as soon as possible"})
		assert.Equal(t, models.StatusPending, res.status, "unextractable value must never PASS")
	})
}

func TestExtractResponseValue_PrefersExtractedValue(t *testing.T) {
	resp := &models.BidResponseItem{
		ID:             "r",
		ExtractedValue: strPtr("45"),
		ResponseText:   "some text mentioning 999",
	}
	v, err := extractResponseValue(resp)
	require.NoError(t, err)
	assert.Equal(t, 45.0, v)
}

func TestExtractNumber_FullWidthDigits(t *testing.T) {
	v, err := extractNumber("工期４５天")
	require.NoError(t, err)
	assert.Equal(t, 45.0, v)
}
