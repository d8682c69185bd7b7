package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PostgresStore persists risk assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
// Schema is managed by the goose migrations in migrations/.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, a *Assessment) error {
	breakdownJSON, err := json.Marshal(a.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal breakdown: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (id, address, score, level, breakdown, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		a.ID,
		strings.ToLower(a.Address),
		a.Score,
		string(a.Level),
		breakdownJSON,
		a.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record risk assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAddress(ctx context.Context, address string, limit int) ([]*Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, score, level, breakdown, evaluated_at
		FROM risk_assessments
		WHERE address = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, strings.ToLower(address), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Assessment
	for rows.Next() {
		var a Assessment
		var breakdownJSON []byte
		var evaluatedAt time.Time

		if err := rows.Scan(&a.ID, &a.Address, &a.Score, &a.Level, &breakdownJSON, &evaluatedAt); err != nil {
			continue
		}
		a.EvaluatedAt = evaluatedAt
		a.Breakdown = make(Breakdown)
		_ = json.Unmarshal(breakdownJSON, &a.Breakdown)
		result = append(result, &a)
	}
	return result, nil
}
