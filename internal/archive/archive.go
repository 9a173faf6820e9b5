// Package archive is a supplemental, best-effort record of finished runs
// in PostgreSQL: the State Store's Redis TTL reclaims a completed run's
// state after spec.md §3's lifecycle window, but audit and cost reporting
// need a durable trail outliving that TTL.
//
// Grounded on the teacher's internal/app/storage/postgres store-per-domain
// pattern (store.go: a single *sql.DB-backed Store, one method set per
// domain, raw parameterized SQL). This uses sqlx over the bare database/sql
// the teacher reaches for, since sqlx.DB's StructScan/NamedExec removes the
// teacher's repetitive Scan(&a, &b, &c, ...) boilerplate for exactly this
// append-only, struct-shaped write path.
package archive

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	core "github.com/bridgelab/reportpipeline/internal/core/service"
	"github.com/bridgelab/reportpipeline/internal/domain/report"
)

// RunRecord is one archived run, written once at completion or terminal
// failure.
type RunRecord struct {
	ReportID      string    `db:"report_id"`
	UserID        string    `db:"user_id"`
	Status        string    `db:"status"`
	StartedAt     time.Time `db:"started_at"`
	FinishedAt    time.Time `db:"finished_at"`
	TotalTokens   int64     `db:"total_tokens"`
	TotalCost     float64   `db:"total_cost"`
	TotalDuration int64     `db:"total_duration_ms"`
	ErrorMessage  string    `db:"error_message"`
	StageAnalytics []byte   `db:"stage_analytics"`
}

// Archive is the run-analytics archive contract.
type Archive interface {
	Record(ctx context.Context, s *report.State) error
	Get(ctx context.Context, reportID string) (*RunRecord, error)
	ListRecentRuns(ctx context.Context, userID string, limit int) ([]RunRecord, error)
}

// Store implements Archive over PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// New builds a Store over an already-connected sqlx.DB.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn using the lib/pq driver and verifies connectivity.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Record upserts a finished run's analytics ledger. Only terminal states
// (completed, failed) are meaningful to archive; callers are expected to
// call this once per run, after the Pipeline Runner returns.
func (s *Store) Record(ctx context.Context, st *report.State) error {
	analyticsJSON, err := json.Marshal(st.StageAnalytics)
	if err != nil {
		return err
	}
	errMsg := ""
	if st.Error != nil {
		errMsg = st.Error.Message
	}

	rec := RunRecord{
		ReportID:       st.ReportID,
		UserID:         st.UserID,
		Status:         string(st.Status),
		StartedAt:      st.CreatedAt,
		FinishedAt:     st.UpdatedAt,
		TotalTokens:    st.TotalTokens,
		TotalCost:      st.TotalCost,
		TotalDuration:  st.TotalDuration,
		ErrorMessage:   errMsg,
		StageAnalytics: analyticsJSON,
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO pipeline_runs (
			report_id, user_id, status, started_at, finished_at,
			total_tokens, total_cost, total_duration_ms, error_message, stage_analytics
		) VALUES (
			:report_id, :user_id, :status, :started_at, :finished_at,
			:total_tokens, :total_cost, :total_duration_ms, :error_message, :stage_analytics
		)
		ON CONFLICT (report_id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			total_tokens = EXCLUDED.total_tokens,
			total_cost = EXCLUDED.total_cost,
			total_duration_ms = EXCLUDED.total_duration_ms,
			error_message = EXCLUDED.error_message,
			stage_analytics = EXCLUDED.stage_analytics
	`, rec)
	return err
}

// ListRecentRuns returns a user's most recent archived runs, newest first,
// for operational dashboards; the Pipeline Runner itself never consults
// this read path.
func (s *Store) ListRecentRuns(ctx context.Context, userID string, limit int) ([]RunRecord, error) {
	limit = core.ClampLimit(limit, core.DefaultListLimit, core.MaxListLimit)
	var recs []RunRecord
	err := s.db.SelectContext(ctx, &recs, `
		SELECT report_id, user_id, status, started_at, finished_at,
		       total_tokens, total_cost, total_duration_ms, error_message, stage_analytics
		FROM pipeline_runs
		WHERE user_id = $1
		ORDER BY finished_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Get fetches one archived run by reportId.
func (s *Store) Get(ctx context.Context, reportID string) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.GetContext(ctx, &rec, `
		SELECT report_id, user_id, status, started_at, finished_at,
		       total_tokens, total_cost, total_duration_ms, error_message, stage_analytics
		FROM pipeline_runs
		WHERE report_id = $1
	`, reportID)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
