package engine

import (
	"context"
	"fmt"

	"github.com/katescodes/bidaudit/internal/models"
	"github.com/katescodes/bidaudit/internal/store"
)

// maxQuoteRunes bounds the excerpt length carried per evidence entry.
const maxQuoteRunes = 300

// attachEvidence resolves every segment referenced by any item in the run
// with one batched lookup, then builds the role-tagged evidence list per
// item: tender-side entries from the requirement's source segments, bid-side
// entries from the matched response and any consistency-derived segments.
func attachEvidence(ctx context.Context, s store.Store, items []*itemContext) error {
	idSet := make(map[string]struct{})
	for _, ic := range items {
		for _, id := range ic.req.SourceSegmentIDs {
			idSet[id] = struct{}{}
		}
		if ic.matched != nil {
			for _, id := range ic.matched.EvidenceSegmentIDs {
				idSet[id] = struct{}{}
			}
		}
		for _, id := range ic.result.derivedSegments {
			idSet[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	segments, err := s.GetSegmentsByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("batch segment lookup: %w", err)
	}

	for _, ic := range items {
		item := ic.item

		for _, id := range ic.req.SourceSegmentIDs {
			item.Evidence = append(item.Evidence, buildEvidence(models.RoleTender, id, models.EvidenceSourceRequirementText, segments))
			item.TenderEvidenceIDs = append(item.TenderEvidenceIDs, id)
		}
		// Consistency findings are computed across several responses, so
		// their bid-side evidence is all tagged as derived rather than as
		// one matched response's passage.
		if item.Evaluator == EvaluatorConsistency {
			for _, id := range ic.result.derivedSegments {
				item.Evidence = append(item.Evidence, buildEvidence(models.RoleBid, id, models.EvidenceSourceDerivedConsistency, segments))
				item.BidEvidenceIDs = append(item.BidEvidenceIDs, id)
			}
		} else if ic.matched != nil {
			for _, id := range ic.matched.EvidenceSegmentIDs {
				item.Evidence = append(item.Evidence, buildEvidence(models.RoleBid, id, models.EvidenceSourceMatchedResponse, segments))
				item.BidEvidenceIDs = append(item.BidEvidenceIDs, id)
			}
		}

		item.State = models.ItemStateEvidenceAttached
	}
	return nil
}

// buildEvidence normalizes one entry; unresolved segments keep their id so
// the reference is still auditable.
func buildEvidence(role models.EvidenceRole, segmentID, source string, segments map[string]*models.Segment) models.Evidence {
	ev := models.Evidence{Role: role, SegmentID: segmentID, Source: source}
	if seg, ok := segments[segmentID]; ok {
		ev.AssetID = seg.AssetID
		ev.PageStart = seg.PageStart
		ev.PageEnd = seg.PageEnd
		ev.HeadingPath = seg.HeadingPath
		ev.Quote = truncateRunes(seg.Content, maxQuoteRunes)
	}
	return ev
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
