package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// AskAction は1回だけ質問して回答を表示するコマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	userID := cmd.String("user-id")
	newSession := cmd.Bool("new-session")

	// 質問文の取得
	question := cmd.Args().First()
	if question == "" {
		return fmt.Errorf("質問文を指定してください")
	}

	appCtx, err := prepareAssistantApp(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	a, err := newSessionAssistant(ctx, appCtx, userID, newSession)
	if err != nil {
		return err
	}

	answer, err := a.Chat(ctx, question)
	if err != nil {
		appCtx.Logger().ErrorContext(ctx, "質問応答に失敗しました", "error", err)
		return err
	}

	rendered, err := NewRenderer(os.Stdout, true).Render(answer)
	if err != nil {
		rendered = answer
	}
	fmt.Println(rendered)

	appCtx.Logger().InfoContext(ctx, "質問応答が完了しました", "runID", a.RunID())
	return nil
}
