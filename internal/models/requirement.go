package models

import "time"

// ReqType classifies how a tender requirement is evaluated.
type ReqType string

const (
	ReqTypeNumeric  ReqType = "NUMERIC"
	ReqTypePresence ReqType = "PRESENCE"
	ReqTypeValidity ReqType = "VALIDITY"
	ReqTypeSemantic ReqType = "SEMANTIC"
)

// ValueSchema constrains the value a bid response must carry for a
// requirement. All fields are optional; a nil pointer means "no bound".
type ValueSchema struct {
	Minimum *float64 `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	Const   *float64 `json:"const,omitempty" yaml:"const,omitempty"`
	Pattern string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// Empty reports whether the schema carries no usable constraint.
func (v *ValueSchema) Empty() bool {
	return v == nil || (v.Minimum == nil && v.Maximum == nil && v.Const == nil && v.Pattern == "")
}

// Requirement is a single structured tender requirement, produced by the
// upstream extraction subsystem. Immutable during a review run.
type Requirement struct {
	ID               string
	ProjectID        string
	Dimension        string
	ReqType          ReqType
	IsHard           bool
	EvalMethod       string // optional; empty means unset
	ValueSchema      *ValueSchema
	RequirementText  string
	SourceSegmentIDs []string
	CreatedAt        time.Time
}
