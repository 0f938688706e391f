package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/lib/pq"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// OpenPostgres connects with lib/pq and applies the usage migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := MigratePostgres(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (r *PostgresRepository) Record(ctx context.Context, record domain.UsageRecord) error {
	query := `
		INSERT INTO usage_records (id, user_id, task_id, model_used, provider, cost, latency_ms, tokens_used, prompt_preview, capabilities, cached, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.UserID,
		record.TaskID,
		record.ModelUsed,
		record.Provider,
		record.Cost,
		record.LatencyMs,
		record.TokensUsed,
		record.PromptPreview,
		pq.StringArray(record.Capabilities),
		record.Cached,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Since(ctx context.Context, since time.Time) ([]domain.UsageRecord, error) {
	query := `
		SELECT id, user_id, task_id, model_used, provider, cost, latency_ms, tokens_used, prompt_preview, capabilities, cached, created_at
		FROM usage_records
		WHERE created_at >= $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var records []domain.UsageRecord
	for rows.Next() {
		var rec domain.UsageRecord
		var capabilities pq.StringArray
		err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.TaskID,
			&rec.ModelUsed,
			&rec.Provider,
			&rec.Cost,
			&rec.LatencyMs,
			&rec.TokensUsed,
			&rec.PromptPreview,
			&capabilities,
			&rec.Cached,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		rec.Capabilities = []string(capabilities)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// TotalCost sums cost since the given time. An empty userID sums every user.
func (r *PostgresRepository) TotalCost(ctx context.Context, userID string, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(cost), 0)
		FROM usage_records
		WHERE ($1::text = '' OR user_id = $1) AND created_at >= $2
	`

	var total float64
	if err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("query total cost: %w", err)
	}

	return total, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
