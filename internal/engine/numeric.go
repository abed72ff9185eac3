package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/katescodes/bidaudit/internal/models"
)

// Threshold sources recorded in computed traces.
const (
	ThresholdSourceSchema    = "schema"
	ThresholdSourceTextParse = "text_parse"
)

// threshold is a resolved numeric constraint.
type threshold struct {
	min    *float64
	max    *float64
	cnst   *float64
	source string
}

// num is the capture group shared by the threshold patterns.
const num = `(-?\d+(?:,\d{3})*(?:\.\d+)?)`

var (
	numberRe = regexp.MustCompile(`-?\d+(?:,\d{3})*(?:\.\d+)?`)

	// Ordered patterns; the first match wins. Range forms come first so
	// "between 30 and 90" is not read as a bare minimum.
	rangeRes = compileAll(
		`between\s+`+num+`\s+and\s+`+num,
		num+`\s*(?:至|到|~)\s*`+num+`\s*(?:天|日|万元|元|个月|年|%)`,
	)
	minRes = compileAll(
		`(?:不少于|不低于|不小于|至少|大于等于)\s*`+num,
		`(?:not\s+less\s+than|no\s+less\s+than|at\s+least|minimum\s+of|>=|≥)\s*`+num,
		num+`\s*(?:天|日|万元|元|个月|年|%)?\s*(?:以上|或以上)`,
	)
	maxRes = compileAll(
		`(?:不超过|不多于|不高于|不大于|至多|小于等于)\s*`+num,
		`(?:not\s+more\s+than|no\s+more\s+than|at\s+most|maximum\s+of|within|<=|≤)\s*`+num,
		num+`\s*(?:天|日|万元|元|个月|年|%)?\s*(?:以内|之内)`,
	)
	constRes = compileAll(
		`(?:等于|必须为|exactly|equal\s+to|=)\s*` + num,
	)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(p)
	}
	return res
}

func parseNum(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

// extractNumber pulls the first number out of free text, after folding
// full-width digits to ASCII.
func extractNumber(text string) (float64, error) {
	s := width.Narrow.String(text)
	m := numberRe.FindString(s)
	if m == "" {
		return 0, fmt.Errorf("%w: %q", ErrValueUnparsed, text)
	}
	return parseNum(m)
}

// parseThresholdText resolves a threshold from requirement prose. Used only
// when the value schema yields nothing.
func parseThresholdText(text string) (*threshold, error) {
	s := strings.ToLower(width.Narrow.String(text))

	for _, re := range rangeRes {
		if m := re.FindStringSubmatch(s); m != nil {
			lo, err1 := parseNum(m[1])
			hi, err2 := parseNum(m[2])
			if err1 == nil && err2 == nil {
				return &threshold{min: &lo, max: &hi, source: ThresholdSourceTextParse}, nil
			}
		}
	}
	for _, re := range minRes {
		if m := re.FindStringSubmatch(s); m != nil {
			if v, err := parseNum(m[1]); err == nil {
				return &threshold{min: &v, source: ThresholdSourceTextParse}, nil
			}
		}
	}
	for _, re := range maxRes {
		if m := re.FindStringSubmatch(s); m != nil {
			if v, err := parseNum(m[1]); err == nil {
				return &threshold{max: &v, source: ThresholdSourceTextParse}, nil
			}
		}
	}
	for _, re := range constRes {
		if m := re.FindStringSubmatch(s); m != nil {
			if v, err := parseNum(m[1]); err == nil {
				return &threshold{cnst: &v, source: ThresholdSourceTextParse}, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrThresholdUnresolved, text)
}

// resolveThreshold applies the priority order: value schema first, then
// pattern extraction from the requirement text.
func resolveThreshold(req *models.Requirement) (*threshold, error) {
	if vs := req.ValueSchema; vs != nil && (vs.Minimum != nil || vs.Maximum != nil || vs.Const != nil) {
		return &threshold{min: vs.Minimum, max: vs.Maximum, cnst: vs.Const, source: ThresholdSourceSchema}, nil
	}
	return parseThresholdText(req.RequirementText)
}

// extractResponseValue reads a number from the structured extracted value,
// falling back to a numeric scan of the response text.
func extractResponseValue(resp *models.BidResponseItem) (float64, error) {
	if resp == nil {
		return 0, fmt.Errorf("%w: no matched response", ErrValueUnparsed)
	}
	if resp.ExtractedValue != nil && strings.TrimSpace(*resp.ExtractedValue) != "" {
		if v, err := extractNumber(*resp.ExtractedValue); err == nil {
			return v, nil
		}
	}
	return extractNumber(resp.ResponseText)
}

// evaluateNumeric runs the quantitative check for one NUMERIC requirement
// against its best candidate. Unresolvable thresholds or values degrade to
// PENDING; a comparison failure is FAIL. The computed trace always records
// the resolved bounds, the extracted value, the threshold source, and the
// boolean outcome.
func evaluateNumeric(req *models.Requirement, best *models.BidResponseItem) evalResult {
	trace := models.ComputedTrace{"method": "NUMERIC"}
	res := evalResult{evaluator: EvaluatorQuant, computedTrace: trace}

	th, err := resolveThreshold(req)
	if err != nil {
		trace["error"] = err.Error()
		res.status = models.StatusPending
		res.remark = "insufficient basis for comparison"
		return res
	}
	trace["source"] = th.source
	if th.min != nil {
		trace["required_min"] = *th.min
	}
	if th.max != nil {
		trace["required_max"] = *th.max
	}
	if th.cnst != nil {
		trace["required_const"] = *th.cnst
	}

	if best != nil {
		res.matchedResponseID = &best.ID
	}

	value, err := extractResponseValue(best)
	if err != nil {
		trace["error"] = err.Error()
		trace["pass"] = false
		res.status = models.StatusPending
		res.remark = "response value could not be extracted"
		return res
	}
	trace["extracted_value"] = value

	switch {
	case th.min != nil && value < *th.min:
		trace["pass"] = false
		res.status = models.StatusFail
		res.remark = fmt.Sprintf("below minimum: %v < %v", value, *th.min)
	case th.max != nil && value > *th.max:
		trace["pass"] = false
		res.status = models.StatusFail
		res.remark = fmt.Sprintf("above maximum: %v > %v", value, *th.max)
	case th.cnst != nil && value != *th.cnst:
		trace["pass"] = false
		res.status = models.StatusFail
		res.remark = fmt.Sprintf("expected %v, got %v", *th.cnst, value)
	default:
		trace["pass"] = true
		res.status = models.StatusPass
	}
	return res
}
