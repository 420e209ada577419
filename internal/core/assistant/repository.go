package assistant

import (
	"context"

	"github.com/samber/mo"
)

// Storage はセッション（run）の永続化を担う
type Storage interface {
	// Create は保存先テーブルが存在しない場合に作成する
	Create(ctx context.Context) error
	// Read は run を取得する。存在しない場合は None を返す
	Read(ctx context.Context, runID string) (mo.Option[*Run], error)
	// Upsert は run を保存する
	Upsert(ctx context.Context, run *Run) error
	// GetAllRunIDs はユーザーの run ID を新しい順に返す
	GetAllRunIDs(ctx context.Context, userID string) ([]string, error)
	// GetAllRuns はユーザーの run を新しい順に返す
	GetAllRuns(ctx context.Context, userID string) ([]*Run, error)
}
