package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/katescodes/bidaudit/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes access through Go's pool and avoids "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ulid.Monotonic only yields monotonically increasing ULIDs when the same
// reader is reused across calls; rand.Rand is not safe for concurrent use,
// so access is serialized.
var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewULID generates a new ULID string.
func NewULID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func unmarshalStrings(s string) []string {
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Requirements ---

func (s *SQLiteStore) CreateRequirements(ctx context.Context, reqs []*models.Requirement) error {
	if len(reqs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, r := range reqs {
		if r.ID == "" {
			r.ID = NewULID()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		schemaJSON := ""
		if !r.ValueSchema.Empty() {
			schemaJSON = marshalJSON(r.ValueSchema)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO requirements (id, project_id, dimension, req_type, is_hard, eval_method, value_schema, requirement_text, source_segment_ids, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.ProjectID, r.Dimension, string(r.ReqType), boolToInt(r.IsHard),
			r.EvalMethod, schemaJSON, r.RequirementText, marshalJSON(r.SourceSegmentIDs), r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("create requirement %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRequirements(ctx context.Context, projectID string) ([]*models.Requirement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, dimension, req_type, is_hard, eval_method, value_schema, requirement_text, source_segment_ids, created_at
		FROM requirements WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list requirements: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reqs []*models.Requirement
	for rows.Next() {
		r := &models.Requirement{}
		var reqType, schemaJSON, segIDs string
		var isHard int
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Dimension, &reqType, &isHard,
			&r.EvalMethod, &schemaJSON, &r.RequirementText, &segIDs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan requirement: %w", err)
		}
		r.ReqType = models.ReqType(reqType)
		r.IsHard = isHard != 0
		if schemaJSON != "" {
			var vs models.ValueSchema
			if err := json.Unmarshal([]byte(schemaJSON), &vs); err == nil {
				r.ValueSchema = &vs
			}
		}
		r.SourceSegmentIDs = unmarshalStrings(segIDs)
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// --- Bid responses ---

func (s *SQLiteStore) CreateBidResponses(ctx context.Context, items []*models.BidResponseItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, item := range items {
		if item.ID == "" {
			item.ID = NewULID()
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO bid_responses (id, project_id, bidder_name, dimension, response_type, response_text, extracted_value, evidence_segment_ids, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.ProjectID, item.BidderName, item.Dimension, item.ResponseType,
			item.ResponseText, item.ExtractedValue, marshalJSON(item.EvidenceSegmentIDs), item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("create bid response %s: %w", item.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListBidResponses(ctx context.Context, projectID, bidderName string) ([]*models.BidResponseItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, bidder_name, dimension, response_type, response_text, extracted_value, evidence_segment_ids, created_at
		FROM bid_responses WHERE project_id = ? AND bidder_name = ? ORDER BY created_at, id`, projectID, bidderName)
	if err != nil {
		return nil, fmt.Errorf("list bid responses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*models.BidResponseItem
	for rows.Next() {
		item := &models.BidResponseItem{}
		var extracted sql.NullString
		var segIDs string
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.BidderName, &item.Dimension,
			&item.ResponseType, &item.ResponseText, &extracted, &segIDs, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bid response: %w", err)
		}
		if extracted.Valid {
			item.ExtractedValue = &extracted.String
		}
		item.EvidenceSegmentIDs = unmarshalStrings(segIDs)
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- Segments ---

func (s *SQLiteStore) CreateSegments(ctx context.Context, segments []*models.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, seg := range segments {
		if seg.ID == "" {
			seg.ID = NewULID()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO segments (id, asset_id, page_start, page_end, heading_path, content)
			VALUES (?, ?, ?, ?, ?, ?)`,
			seg.ID, seg.AssetID, seg.PageStart, seg.PageEnd, seg.HeadingPath, seg.Content,
		)
		if err != nil {
			return fmt.Errorf("create segment %s: %w", seg.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetSegmentsByIDs resolves a batch of segment ids in one query. Missing ids
// are simply absent from the returned map.
func (s *SQLiteStore) GetSegmentsByIDs(ctx context.Context, ids []string) (map[string]*models.Segment, error) {
	out := make(map[string]*models.Segment, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(
		`SELECT id, asset_id, page_start, page_end, heading_path, content FROM segments WHERE id IN (%s)`,
		strings.Join(placeholders, ","),
	)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get segments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		seg := &models.Segment{}
		if err := rows.Scan(&seg.ID, &seg.AssetID, &seg.PageStart, &seg.PageEnd, &seg.HeadingPath, &seg.Content); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		out[seg.ID] = seg
	}
	return out, rows.Err()
}

// --- Review runs ---

func (s *SQLiteStore) CreateReviewRun(ctx context.Context, run *models.ReviewRun) error {
	if run.ID == "" {
		run.ID = NewULID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_runs (id, project_id, bidder_name, status, item_count, fail_count, pending_count, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProjectID, run.BidderName, string(run.Status),
		run.ItemCount, run.FailCount, run.PendingCount, run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("create review run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetReviewRun(ctx context.Context, id string) (*models.ReviewRun, error) {
	run := &models.ReviewRun{}
	var status string
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, bidder_name, status, item_count, fail_count, pending_count, started_at, completed_at
		FROM review_runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.ProjectID, &run.BidderName, &status,
		&run.ItemCount, &run.FailCount, &run.PendingCount, &run.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("review run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get review run: %w", err)
	}

	run.Status = models.RunStatus(status)
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

func (s *SQLiteStore) UpdateReviewRun(ctx context.Context, run *models.ReviewRun) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE review_runs SET status=?, item_count=?, fail_count=?, pending_count=?, completed_at=? WHERE id=?`,
		string(run.Status), run.ItemCount, run.FailCount, run.PendingCount, run.CompletedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update review run: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("review run not found: %s", run.ID)
	}
	return nil
}

func (s *SQLiteStore) ListReviewRuns(ctx context.Context, projectID, bidderName string) ([]*models.ReviewRun, error) {
	query := `SELECT id, project_id, bidder_name, status, item_count, fail_count, pending_count, started_at, completed_at
		FROM review_runs`
	var conditions []string
	var args []any
	if projectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, projectID)
	}
	if bidderName != "" {
		conditions = append(conditions, "bidder_name = ?")
		args = append(args, bidderName)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY started_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list review runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*models.ReviewRun
	for rows.Next() {
		run := &models.ReviewRun{}
		var status string
		var completedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.ProjectID, &run.BidderName, &status,
			&run.ItemCount, &run.FailCount, &run.PendingCount, &run.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan review run: %w", err)
		}
		run.Status = models.RunStatus(status)
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SupersedeRunningRuns marks every still-running run for the project+bidder
// as superseded. Called before starting a fresh run so stale partial results
// are never mistaken for final ones.
func (s *SQLiteStore) SupersedeRunningRuns(ctx context.Context, projectID, bidderName string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE review_runs SET status=? WHERE project_id=? AND bidder_name=? AND status=?`,
		string(models.RunStatusSuperseded), projectID, bidderName, string(models.RunStatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("supersede running runs: %w", err)
	}
	return res.RowsAffected()
}

// --- Review items ---

// BulkCreateReviewItems writes all items of a run in a single transaction.
func (s *SQLiteStore) BulkCreateReviewItems(ctx context.Context, items []*models.ReviewItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, item := range items {
		if item.ID == "" {
			item.ID = NewULID()
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO review_items (id, review_run_id, requirement_id, matched_response_id, status, evaluator, rule_trace, computed_trace, evidence, tender_evidence_ids, bid_evidence_ids, remark, state, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.ReviewRunID, item.RequirementID, item.MatchedResponseID,
			string(item.Status), item.Evaluator,
			marshalJSON(item.RuleTrace), marshalJSON(item.ComputedTrace), marshalJSON(item.Evidence),
			marshalJSON(item.TenderEvidenceIDs), marshalJSON(item.BidEvidenceIDs),
			item.Remark, string(item.State), item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("create review item for requirement %s: %w", item.RequirementID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListReviewItems(ctx context.Context, filter ReviewItemFilter) ([]*models.ReviewItem, error) {
	query := `SELECT id, review_run_id, requirement_id, matched_response_id, status, evaluator, rule_trace, computed_trace, evidence, tender_evidence_ids, bid_evidence_ids, remark, state, created_at
		FROM review_items`
	var conditions []string
	var args []any

	if filter.ReviewRunID != "" {
		conditions = append(conditions, "review_run_id = ?")
		args = append(args, filter.ReviewRunID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Evaluator != "" {
		conditions = append(conditions, "evaluator = ?")
		args = append(args, filter.Evaluator)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list review items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*models.ReviewItem
	for rows.Next() {
		item := &models.ReviewItem{}
		var matched sql.NullString
		var status, state, ruleTrace, computedTrace, evidence, tenderIDs, bidIDs string
		if err := rows.Scan(&item.ID, &item.ReviewRunID, &item.RequirementID, &matched,
			&status, &item.Evaluator, &ruleTrace, &computedTrace, &evidence,
			&tenderIDs, &bidIDs, &item.Remark, &state, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review item: %w", err)
		}
		if matched.Valid {
			item.MatchedResponseID = &matched.String
		}
		item.Status = models.ReviewStatus(status)
		item.State = models.ItemState(state)
		_ = json.Unmarshal([]byte(ruleTrace), &item.RuleTrace)
		_ = json.Unmarshal([]byte(computedTrace), &item.ComputedTrace)
		_ = json.Unmarshal([]byte(evidence), &item.Evidence)
		item.TenderEvidenceIDs = unmarshalStrings(tenderIDs)
		item.BidEvidenceIDs = unmarshalStrings(bidIDs)
		items = append(items, item)
	}
	return items, rows.Err()
}
