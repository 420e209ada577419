package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/mo"

	"github.com/jinford/pdf-assistant/internal/core/assistant"
)

// AssistantStorage はアシスタントのセッション（run）を PostgreSQL に保存する
type AssistantStorage struct {
	db     DBTX
	schema string
	table  string
}

// NewAssistantStorage は新しい AssistantStorage を返す。
func NewAssistantStorage(db DBTX, table string) *AssistantStorage {
	return &AssistantStorage{
		db:     db,
		schema: DefaultSchema,
		table:  table,
	}
}

var _ assistant.Storage = (*AssistantStorage)(nil)

const runColumns = `run_id, name, run_name, user_id, llm, memory, assistant_data, run_data, user_data, created_at, updated_at`

func (s *AssistantStorage) tableName() string {
	return qualifiedName(s.schema, s.table)
}

func (s *AssistantStorage) Create(ctx context.Context) error {
	index := pgx.Identifier{s.table + "_user_id_idx"}.Sanitize()
	return execAll(ctx, s.db,
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{s.schema}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id TEXT PRIMARY KEY,
			name TEXT,
			run_name TEXT,
			user_id TEXT,
			llm JSONB,
			memory JSONB,
			assistant_data JSONB,
			run_data JSONB,
			user_data JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ
		)`, s.tableName()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (user_id)`, index, s.tableName()),
	)
}

func (s *AssistantStorage) Read(ctx context.Context, runID string) (mo.Option[*assistant.Run], error) {
	row := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE run_id = $1`, runColumns, s.tableName()),
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return mo.None[*assistant.Run](), nil
		}
		return mo.None[*assistant.Run](), fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	return mo.Some(run), nil
}

// Upsert は run を保存する。既存の run は created_at を維持したまま更新する
func (s *AssistantStorage) Upsert(ctx context.Context, run *assistant.Run) error {
	llm, err := marshalJSON(run.LLM)
	if err != nil {
		return fmt.Errorf("failed to marshal llm: %w", err)
	}
	memory, err := json.Marshal(run.Memory)
	if err != nil {
		return fmt.Errorf("failed to marshal memory: %w", err)
	}
	assistantData, err := marshalJSON(run.AssistantData)
	if err != nil {
		return fmt.Errorf("failed to marshal assistant_data: %w", err)
	}
	runData, err := marshalJSON(run.RunData)
	if err != nil {
		return fmt.Errorf("failed to marshal run_data: %w", err)
	}
	userData, err := marshalJSON(run.UserData)
	if err != nil {
		return fmt.Errorf("failed to marshal user_data: %w", err)
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := run.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err = s.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (run_id) DO UPDATE SET
				name = EXCLUDED.name,
				run_name = EXCLUDED.run_name,
				user_id = EXCLUDED.user_id,
				llm = EXCLUDED.llm,
				memory = EXCLUDED.memory,
				assistant_data = EXCLUDED.assistant_data,
				run_data = EXCLUDED.run_data,
				user_data = EXCLUDED.user_data,
				updated_at = EXCLUDED.updated_at`, s.tableName(), runColumns),
		run.RunID,
		StringToNullableText(run.Name),
		StringToNullableText(run.RunName),
		StringToNullableText(run.UserID),
		llm,
		memory,
		assistantData,
		runData,
		userData,
		createdAt,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", run.RunID, err)
	}
	return nil
}

// GetAllRunIDs はユーザーの run ID を作成日時の新しい順に返す。userID が空の場合は全ユーザーが対象
func (s *AssistantStorage) GetAllRunIDs(ctx context.Context, userID string) ([]string, error) {
	query, args := s.listQuery("run_id", userID)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list run ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan run ids: %w", err)
	}
	return ids, nil
}

// GetAllRuns はユーザーの run を作成日時の新しい順に返す
func (s *AssistantStorage) GetAllRuns(ctx context.Context, userID string) ([]*assistant.Run, error) {
	query, args := s.listQuery(runColumns, userID)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*assistant.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// Delete は run を削除する
func (s *AssistantStorage) Delete(ctx context.Context, runID string) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE run_id = $1`, s.tableName()), runID); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	return nil
}

func (s *AssistantStorage) listQuery(columns, userID string) (string, []any) {
	if userID == "" {
		return fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at DESC`, columns, s.tableName()), nil
	}
	return fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1 ORDER BY created_at DESC`, columns, s.tableName()), []any{userID}
}

func scanRun(row pgx.Row) (*assistant.Run, error) {
	var (
		run                                     assistant.Run
		name, runName, userID                   pgtype.Text
		llm, memory, assistantData, runData, ud []byte
		updatedAt                               pgtype.Timestamptz
	)
	if err := row.Scan(&run.RunID, &name, &runName, &userID, &llm, &memory, &assistantData, &runData, &ud, &run.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}

	run.Name = PgtextToString(name)
	run.RunName = PgtextToString(runName)
	run.UserID = PgtextToString(userID)
	if updatedAt.Valid {
		run.UpdatedAt = updatedAt.Time
	}

	targets := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"llm", llm, &run.LLM},
		{"memory", memory, &run.Memory},
		{"assistant_data", assistantData, &run.AssistantData},
		{"run_data", runData, &run.RunData},
		{"user_data", ud, &run.UserData},
	}
	for _, t := range targets {
		if len(t.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(t.raw, t.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", t.name, err)
		}
	}

	return &run, nil
}

// marshalJSON は nil のマップを NULL として扱う
func marshalJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
