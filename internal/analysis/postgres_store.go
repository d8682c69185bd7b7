package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/walletscope/internal/pagination"
)

// PostgresStore persists analysis reports in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed report store.
// Schema is managed by the goose migrations in migrations/.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SaveReport(ctx context.Context, r *Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_reports (id, address, score, combined_score, level, report, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		r.ID,
		strings.ToLower(r.Address),
		r.Score,
		r.CombinedScore,
		string(r.Level),
		body,
		r.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis report: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAddress(ctx context.Context, address string, limit int, cursor *pagination.Cursor) ([]*Report, error) {
	query := `
		SELECT report
		FROM analysis_reports
		WHERE address = $1
	`
	args := []interface{}{strings.ToLower(address)}

	if cursor != nil {
		query += ` AND (generated_at, id) < ($2, $3)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += fmt.Sprintf(` ORDER BY generated_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analysis reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Report
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			continue
		}
		var r Report
		if err := json.Unmarshal(body, &r); err != nil {
			continue
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

// PruneBefore removes reports older than the given time. Intended for a
// periodic retention job.
func (s *PostgresStore) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analysis_reports WHERE generated_at < $1`, t)
	if err != nil {
		return 0, fmt.Errorf("failed to prune analysis reports: %w", err)
	}
	return res.RowsAffected()
}
