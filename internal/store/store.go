package store

import (
	"context"

	"github.com/katescodes/bidaudit/internal/models"
)

// ReviewItemFilter narrows review item listings.
type ReviewItemFilter struct {
	ReviewRunID string
	Status      models.ReviewStatus
	Evaluator   string
}

// Store defines the persistence interface for bidaudit.
type Store interface {
	// Requirements
	CreateRequirements(ctx context.Context, reqs []*models.Requirement) error
	ListRequirements(ctx context.Context, projectID string) ([]*models.Requirement, error)

	// Bid responses
	CreateBidResponses(ctx context.Context, items []*models.BidResponseItem) error
	ListBidResponses(ctx context.Context, projectID, bidderName string) ([]*models.BidResponseItem, error)

	// Document segments
	CreateSegments(ctx context.Context, segments []*models.Segment) error
	GetSegmentsByIDs(ctx context.Context, ids []string) (map[string]*models.Segment, error)

	// Review runs
	CreateReviewRun(ctx context.Context, run *models.ReviewRun) error
	GetReviewRun(ctx context.Context, id string) (*models.ReviewRun, error)
	UpdateReviewRun(ctx context.Context, run *models.ReviewRun) error
	ListReviewRuns(ctx context.Context, projectID, bidderName string) ([]*models.ReviewRun, error)
	SupersedeRunningRuns(ctx context.Context, projectID, bidderName string) (int64, error)

	// Review items
	BulkCreateReviewItems(ctx context.Context, items []*models.ReviewItem) error
	ListReviewItems(ctx context.Context, filter ReviewItemFilter) ([]*models.ReviewItem, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
