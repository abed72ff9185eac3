package engine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katescodes/bidaudit/internal/models"
	"github.com/katescodes/bidaudit/internal/store"
)

// countingStore records how many segment lookups the assembler issues.
type countingStore struct {
	store.Store
	segmentLookups int
}

func (c *countingStore) GetSegmentsByIDs(ctx context.Context, ids []string) (map[string]*models.Segment, error) {
	c.segmentLookups++
	return c.Store.GetSegmentsByIDs(ctx, ids)
}

func TestAttachEvidence_SingleBatchedLookup(t *testing.T) {
	ctx := context.Background()
	inner, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, inner.Migrate(ctx))
	t.Cleanup(func() { inner.Close() })

	require.NoError(t, inner.CreateSegments(ctx, []*models.Segment{
		{ID: "seg-1", AssetID: "tender.pdf", Content: strings.Repeat("条款内容", 200)},
		{ID: "seg-2", AssetID: "bid.pdf", Content: "承诺函"},
		{ID: "seg-3", AssetID: "bid.pdf", Content: "报价明细"},
	}))

	cs := &countingStore{Store: inner}

	items := []*itemContext{
		{
			req:     &models.Requirement{ID: "req-1", SourceSegmentIDs: []string{"seg-1"}},
			item:    &models.ReviewItem{RequirementID: "req-1", Evaluator: EvaluatorHardGate},
			matched: &models.BidResponseItem{ID: "r1", EvidenceSegmentIDs: []string{"seg-2"}},
		},
		{
			req:    &models.Requirement{ID: "req-2"},
			item:   &models.ReviewItem{RequirementID: "req-2", Evaluator: EvaluatorConsistency},
			result: evalResult{derivedSegments: []string{"seg-2", "seg-3"}},
		},
		{
			req:  &models.Requirement{ID: "req-3", SourceSegmentIDs: []string{"seg-missing"}},
			item: &models.ReviewItem{RequirementID: "req-3", Evaluator: EvaluatorQuant},
		},
	}

	require.NoError(t, attachEvidence(ctx, cs, items))
	assert.Equal(t, 1, cs.segmentLookups, "all segments for the run resolve in one batched read")

	first := items[0].item
	require.Len(t, first.Evidence, 2)
	assert.Equal(t, models.RoleTender, first.Evidence[0].Role)
	assert.Equal(t, models.EvidenceSourceRequirementText, first.Evidence[0].Source)
	assert.Equal(t, models.RoleBid, first.Evidence[1].Role)
	assert.Equal(t, []string{"seg-1"}, first.TenderEvidenceIDs)
	assert.Equal(t, []string{"seg-2"}, first.BidEvidenceIDs)
	assert.Equal(t, models.ItemStateEvidenceAttached, first.State)

	// Quotes are bounded excerpts.
	assert.LessOrEqual(t, len([]rune(first.Evidence[0].Quote)), maxQuoteRunes+1)

	second := items[1].item
	require.Len(t, second.Evidence, 2)
	for _, ev := range second.Evidence {
		assert.Equal(t, models.EvidenceSourceDerivedConsistency, ev.Source)
		assert.Equal(t, models.RoleBid, ev.Role)
	}

	// Unresolvable segment ids stay referenced for auditability.
	third := items[2].item
	require.Len(t, third.Evidence, 1)
	assert.Equal(t, "seg-missing", third.Evidence[0].SegmentID)
	assert.Empty(t, third.Evidence[0].Quote)
}
