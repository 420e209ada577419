package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/pdf-assistant/internal/core/assistant"
)

// ChatAction は PDF について対話するメインコマンドのアクション
func ChatAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	userID := cmd.String("user-id")
	newSession := cmd.Bool("new-session")

	appCtx, err := prepareAssistantApp(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	a, err := newSessionAssistant(ctx, appCtx, userID, newSession)
	if err != nil {
		return err
	}

	runID, err := a.Start(ctx)
	if err != nil {
		return fmt.Errorf("セッションの開始に失敗: %w", err)
	}
	appCtx.Logger().InfoContext(ctx, "Starting assistant session", "runID", runID, "userID", userID)

	repl := NewREPL(
		a,
		NewPromptReader(userID),
		os.Stdout,
		NewRenderer(os.Stdout, true),
		appCtx.Logger(),
	)
	return repl.Run(ctx)
}

// newSessionAssistant は直近のセッションを再開する（newSession の場合は新規）アシスタントを作成する
func newSessionAssistant(ctx context.Context, appCtx *AppContext, userID string, newSession bool) (*assistant.Assistant, error) {
	cont := appCtx.Container

	runID, err := assistant.ResolveRunID(ctx, cont.Storage, userID, newSession)
	if err != nil {
		return nil, err
	}

	opts := assistant.DefaultOptions()
	opts.RunID = runID
	opts.UserID = userID
	opts.HistoryTurns = cont.Config.Knowledge.ChatHistoryTurns

	return cont.NewAssistant(opts)
}
