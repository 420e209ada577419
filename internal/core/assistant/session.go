package assistant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/mo"
)

// ResolveRunID は再開するセッションの run ID を決定する。
// newSession が true の場合、またはユーザーの run が存在しない場合は None を返す。
func ResolveRunID(ctx context.Context, storage Storage, userID string, newSession bool) (mo.Option[string], error) {
	if newSession {
		return mo.None[string](), nil
	}

	runIDs, err := storage.GetAllRunIDs(ctx, userID)
	if err != nil {
		return mo.None[string](), fmt.Errorf("failed to list runs for user %s: %w", userID, err)
	}
	if len(runIDs) == 0 {
		return mo.None[string](), nil
	}

	slog.InfoContext(ctx, "Resuming existing session", "runID", runIDs[0], "userID", userID)
	return mo.Some(runIDs[0]), nil
}
