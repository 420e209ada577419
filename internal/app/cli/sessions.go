package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jinford/pdf-assistant/internal/core/assistant"
)

// SessionsListAction は保存済みセッションの一覧を表示するコマンドのアクション
func SessionsListAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	userID := cmd.String("user-id")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	runs, err := appCtx.Container.Storage.GetAllRuns(ctx, userID)
	if err != nil {
		return fmt.Errorf("セッション一覧の取得に失敗: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("セッションが見つかりませんでした")
		return nil
	}

	return renderSessionsTable(os.Stdout, runs)
}

// renderSessionsTable はテーブル形式でセッション一覧を表示する（新しい順）
func renderSessionsTable(w io.Writer, runs []*assistant.Run) error {
	table := tablewriter.NewWriter(w)
	table.Header("Run ID", "User", "Turns", "Created At", "Updated At")

	for _, run := range runs {
		if err := table.Append(
			run.RunID,
			run.UserID,
			fmt.Sprintf("%d", run.Turns()),
			run.CreatedAt.Format("2006-01-02 15:04"),
			run.UpdatedAt.Format("2006-01-02 15:04"),
		); err != nil {
			return err
		}
	}

	return table.Render()
}
