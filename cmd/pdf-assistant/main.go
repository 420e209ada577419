package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/pdf-assistant/internal/app/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func envFlag(local bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
		Local: local,
	}
}

func userIDFlag(local bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "user-id",
		Usage: "セッションを保存するユーザーID",
		Value: "default_user",
		Local: local,
	}
}

func newSessionFlag(local bool) *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:  "new-session",
		Usage: "直近のセッションを再開せず新しいセッションを開始",
		Local: local,
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "pdf-assistant",
		Usage: "PDF の内容について質問できる対話アシスタント",
		Flags: []cli.Flag{
			envFlag(true),
			newSessionFlag(true),
			userIDFlag(true),
		},
		Action: appcli.ChatAction,
		Commands: []*cli.Command{
			{
				Name:      "ask",
				Usage:     "1回だけ質問して回答を表示",
				ArgsUsage: "<question>",
				Flags: []cli.Flag{
					envFlag(true),
					newSessionFlag(true),
					userIDFlag(true),
				},
				Action: appcli.AskAction,
			},
			{
				Name:  "sessions",
				Usage: "セッション管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "保存済みセッションを新しい順に表示",
						Flags: []cli.Flag{
							envFlag(true),
							&cli.StringFlag{
								Name:  "user-id",
								Usage: "ユーザーID（空の場合は全ユーザー）",
								Value: "default_user",
							},
						},
						Action: appcli.SessionsListAction,
					},
				},
			},
			{
				Name:  "knowledge",
				Usage: "ナレッジベース管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "load",
						Usage: "PDF を読み込みベクトルコレクションに格納",
						Flags: []cli.Flag{
							envFlag(true),
							&cli.BoolFlag{
								Name:  "recreate",
								Usage: "コレクションを作り直してから読み込む",
							},
						},
						Action: appcli.KnowledgeLoadAction,
					},
				},
			},
		},
	}
}
