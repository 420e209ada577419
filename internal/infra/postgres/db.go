package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DefaultSchema はコレクションとセッションテーブルを作成するスキーマ
const DefaultSchema = "ai"

// undefinedTableCode は PostgreSQL の undefined_table エラーコード
const undefinedTableCode = "42P01"

// DBTX は pgxpool.Pool / pgx.Conn に共通する操作
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// qualifiedName はスキーマ修飾済みでエスケープされたテーブル名を返す
func qualifiedName(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

// execAll は DDL を1文ずつ実行する
func execAll(ctx context.Context, db DBTX, statements ...string) error {
	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return nil
}

// tableExists はテーブルの存在を確認する
func tableExists(ctx context.Context, db DBTX, schema, table string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		schema, table,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s.%s: %w", schema, table, err)
	}
	return exists, nil
}

// isUndefinedTable はテーブル未作成によるエラーかを判定する
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTableCode
}

// StringToNullableText converts string to pgtype.Text (nullable)
func StringToNullableText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// PgtextToString converts pgtype.Text to string (NULL becomes "")
func PgtextToString(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}
