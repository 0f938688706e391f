package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteRepository stores usage locally for single-node and development setups.
// Timestamps are stored as Unix nanoseconds and capabilities as a JSON array.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// OpenSQLite opens path with the pure-Go driver and applies the usage migrations.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := MigrateSQLite(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (r *SQLiteRepository) Record(ctx context.Context, record domain.UsageRecord) error {
	capabilities, err := json.Marshal(nonNil(record.Capabilities))
	if err != nil {
		return fmt.Errorf("encode capabilities: %w", err)
	}

	query := `
		INSERT OR IGNORE INTO usage_records (id, user_id, task_id, model_used, provider, cost, latency_ms, tokens_used, prompt_preview, capabilities, cached, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.UserID,
		record.TaskID,
		record.ModelUsed,
		record.Provider,
		record.Cost,
		record.LatencyMs,
		record.TokensUsed,
		record.PromptPreview,
		string(capabilities),
		record.Cached,
		record.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) Since(ctx context.Context, since time.Time) ([]domain.UsageRecord, error) {
	query := `
		SELECT id, user_id, task_id, model_used, provider, cost, latency_ms, tokens_used, prompt_preview, capabilities, cached, created_at
		FROM usage_records
		WHERE created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var records []domain.UsageRecord
	for rows.Next() {
		var rec domain.UsageRecord
		var capabilities string
		var createdAt int64
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
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		if err := json.Unmarshal([]byte(capabilities), &rec.Capabilities); err != nil {
			return nil, fmt.Errorf("decode capabilities: %w", err)
		}
		rec.CreatedAt = time.Unix(0, createdAt)
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (r *SQLiteRepository) TotalCost(ctx context.Context, userID string, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(cost), 0)
		FROM usage_records
		WHERE (? = '' OR user_id = ?) AND created_at >= ?
	`

	var total float64
	if err := r.db.QueryRowContext(ctx, query, userID, userID, since.UnixNano()).Scan(&total); err != nil {
		return 0, fmt.Errorf("query total cost: %w", err)
	}

	return total, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
