package engine

import "errors"

// Evaluation error taxonomy. These never propagate out of a run: each maps
// to a conservative item status (PENDING, or FAIL/WARN for absent
// candidates). Ambiguity or missing evidence must never resolve to PASS.
var (
	// ErrThresholdUnresolved: no numeric threshold in schema or text.
	ErrThresholdUnresolved = errors.New("numeric threshold could not be resolved")
	// ErrValueUnparsed: no numeric value found in the response.
	ErrValueUnparsed = errors.New("numeric value could not be extracted")
	// ErrNoCandidate: no response meets the similarity threshold.
	ErrNoCandidate = errors.New("no candidate meets similarity threshold")
	// ErrJudgeUnavailable: semantic judgment required but no judge configured.
	ErrJudgeUnavailable = errors.New("semantic judge not configured")
)
