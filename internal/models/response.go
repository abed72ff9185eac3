package models

import "time"

// BidResponseItem is a single structured item extracted from a bidder's
// response document. Immutable during a review run; a dimension may carry
// several items from different document sections.
type BidResponseItem struct {
	ID                 string
	ProjectID          string
	BidderName         string
	Dimension          string
	ResponseType       string
	ResponseText       string
	ExtractedValue     *string // structured value captured upstream, if any
	EvidenceSegmentIDs []string
	CreatedAt          time.Time
}

// Segment is a located slice of a source document, resolved in batch by the
// segment lookup capability.
type Segment struct {
	ID          string
	AssetID     string
	PageStart   int
	PageEnd     int
	HeadingPath string
	Content     string
}
