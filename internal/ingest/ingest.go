// Package ingest loads structured extraction output — requirements, bid
// response items, and document segments — from YAML or JSON files into the
// store. This is the interface boundary to the upstream extraction
// subsystems; nothing here parses raw documents.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/katescodes/bidaudit/internal/models"
	"github.com/katescodes/bidaudit/internal/store"
)

// Bundle is the on-disk fixture format: one project's requirements plus the
// responses and segments referenced by them.
type Bundle struct {
	ProjectID    string           `yaml:"project_id" json:"project_id"`
	Requirements []RequirementDoc `yaml:"requirements" json:"requirements"`
	Responses    []ResponseDoc    `yaml:"responses" json:"responses"`
	Segments     []SegmentDoc     `yaml:"segments" json:"segments"`
}

// RequirementDoc mirrors models.Requirement for file input.
type RequirementDoc struct {
	ID              string              `yaml:"id" json:"id"`
	Dimension       string              `yaml:"dimension" json:"dimension"`
	ReqType         string              `yaml:"req_type" json:"req_type"`
	IsHard          bool                `yaml:"is_hard" json:"is_hard"`
	EvalMethod      string              `yaml:"eval_method" json:"eval_method"`
	ValueSchema     *models.ValueSchema `yaml:"value_schema" json:"value_schema"`
	RequirementText string              `yaml:"requirement_text" json:"requirement_text"`
	SourceSegments  []string            `yaml:"source_segment_refs" json:"source_segment_refs"`
}

// ResponseDoc mirrors models.BidResponseItem for file input.
type ResponseDoc struct {
	ID               string   `yaml:"id" json:"id"`
	BidderName       string   `yaml:"bidder_name" json:"bidder_name"`
	Dimension        string   `yaml:"dimension" json:"dimension"`
	ResponseType     string   `yaml:"response_type" json:"response_type"`
	ResponseText     string   `yaml:"response_text" json:"response_text"`
	ExtractedValue   *string  `yaml:"extracted_value" json:"extracted_value"`
	EvidenceSegments []string `yaml:"evidence_segment_refs" json:"evidence_segment_refs"`
}

// SegmentDoc mirrors models.Segment for file input.
type SegmentDoc struct {
	ID          string `yaml:"id" json:"id"`
	AssetID     string `yaml:"asset_id" json:"asset_id"`
	PageStart   int    `yaml:"page_start" json:"page_start"`
	PageEnd     int    `yaml:"page_end" json:"page_end"`
	HeadingPath string `yaml:"heading_path" json:"heading_path"`
	Content     string `yaml:"content" json:"content"`
}

var validReqTypes = map[string]bool{
	"":                             true, // unset: routed by hardness at evaluation time
	string(models.ReqTypeNumeric):  true,
	string(models.ReqTypePresence): true,
	string(models.ReqTypeValidity): true,
	string(models.ReqTypeSemantic): true,
}

// LoadFile reads and validates a bundle from a YAML or JSON file.
func LoadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var b Bundle
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks the structural invariants the pipeline depends on.
func (b *Bundle) Validate() error {
	if b.ProjectID == "" {
		return fmt.Errorf("bundle missing project_id")
	}
	for i, r := range b.Requirements {
		if strings.TrimSpace(r.RequirementText) == "" {
			return fmt.Errorf("requirement %d: empty requirement_text", i)
		}
		if !validReqTypes[r.ReqType] {
			return fmt.Errorf("requirement %d: unknown req_type %q", i, r.ReqType)
		}
	}
	for i, r := range b.Responses {
		if r.BidderName == "" {
			return fmt.Errorf("response %d: missing bidder_name", i)
		}
	}
	return nil
}

// Import writes the bundle into the store with batched creates.
func Import(ctx context.Context, s store.Store, b *Bundle) error {
	segments := make([]*models.Segment, len(b.Segments))
	for i, d := range b.Segments {
		segments[i] = &models.Segment{
			ID:          d.ID,
			AssetID:     d.AssetID,
			PageStart:   d.PageStart,
			PageEnd:     d.PageEnd,
			HeadingPath: d.HeadingPath,
			Content:     d.Content,
		}
	}
	if err := s.CreateSegments(ctx, segments); err != nil {
		return fmt.Errorf("import segments: %w", err)
	}

	reqs := make([]*models.Requirement, len(b.Requirements))
	for i, d := range b.Requirements {
		reqs[i] = &models.Requirement{
			ID:               d.ID,
			ProjectID:        b.ProjectID,
			Dimension:        d.Dimension,
			ReqType:          models.ReqType(d.ReqType),
			IsHard:           d.IsHard,
			EvalMethod:       d.EvalMethod,
			ValueSchema:      d.ValueSchema,
			RequirementText:  d.RequirementText,
			SourceSegmentIDs: d.SourceSegments,
		}
	}
	if err := s.CreateRequirements(ctx, reqs); err != nil {
		return fmt.Errorf("import requirements: %w", err)
	}

	responses := make([]*models.BidResponseItem, len(b.Responses))
	for i, d := range b.Responses {
		responses[i] = &models.BidResponseItem{
			ID:                 d.ID,
			ProjectID:          b.ProjectID,
			BidderName:         d.BidderName,
			Dimension:          d.Dimension,
			ResponseType:       d.ResponseType,
			ResponseText:       d.ResponseText,
			ExtractedValue:     d.ExtractedValue,
			EvidenceSegmentIDs: d.EvidenceSegments,
		}
	}
	if err := s.CreateBidResponses(ctx, responses); err != nil {
		return fmt.Errorf("import responses: %w", err)
	}

	return nil
}
